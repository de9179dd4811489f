package core

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"
)

// RiskBand is the discretized severity of a risk score.
type RiskBand int

const (
	BandLow RiskBand = iota
	BandMedium
	BandHigh
	BandCritical
)

func (b RiskBand) String() string {
	switch b {
	case BandLow:
		return "LOW"
	case BandMedium:
		return "MEDIUM"
	case BandHigh:
		return "HIGH"
	case BandCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

func (b RiskBand) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

func (b *RiskBand) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	parsed, ok := ParseRiskBand(str)
	if !ok {
		parsed = BandLow
	}
	*b = parsed
	return nil
}

// ParseRiskBand converts a string to a RiskBand. Case-insensitive.
func ParseRiskBand(s string) (RiskBand, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return BandLow, true
	case "MEDIUM", "MED":
		return BandMedium, true
	case "HIGH":
		return BandHigh, true
	case "CRITICAL", "CRIT":
		return BandCritical, true
	default:
		return BandLow, false
	}
}

// Feature names used in explanations and config.
const (
	FeatureOffHours       = "off_hours"
	FeatureRemovableMedia = "removable_media"
	FeatureProcessAnomaly = "process_anomaly"
	FeatureBulkDownload   = "bulk_download"
	FeatureSentiment      = "sentiment"
)

// Contribution is one feature's signed share of the raw (pre-squash) score.
type Contribution struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`        // raw feature value, 0..1 or -1..1
	Weight  float64 `json:"weight"`       // configured weight
	Signed  float64 `json:"contribution"` // value × weight (× amplification)
}

// RiskAssessment is the immutable output of scoring one event. Recomputation
// under different config produces a new assessment, never mutates this one.
type RiskAssessment struct {
	EventID       string          `json:"event_id"`
	Score         float64         `json:"score"` // 0..1, post-squash
	Band          RiskBand        `json:"band"`
	RawScore      float64         `json:"raw_score"` // pre-squash weighted sum
	Amplified     bool            `json:"amplified"`
	Contributions []Contribution  `json:"contributions"`
	Sentiment     *SentimentScore `json:"sentiment,omitempty"`
	ComputedAt    time.Time       `json:"computed_at"`
}

// FeatureWeights holds the configured weight per feature, by name.
type FeatureWeights struct {
	OffHours       float64 `yaml:"off_hours"`
	RemovableMedia float64 `yaml:"removable_media"`
	ProcessAnomaly float64 `yaml:"process_anomaly"`
	BulkDownload   float64 `yaml:"bulk_download"`
	Sentiment      float64 `yaml:"sentiment"`
}

// BandCuts are the ascending score cut points dividing the four bands:
// score < Medium → LOW, < High → MEDIUM, < Critical → HIGH, else CRITICAL.
type BandCuts struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// LogisticParams shape the squashing function 1/(1+e^(-k(x-x0))).
type LogisticParams struct {
	Steepness float64 `yaml:"steepness"`
	Midpoint  float64 `yaml:"midpoint"`
}

// ScoringConfig holds every tunable of the risk scorer. All the constants the
// prototype hard-coded live here instead.
type ScoringConfig struct {
	Weights              FeatureWeights `yaml:"weights"`
	DownloadCeilingBytes int64          `yaml:"download_ceiling_bytes"` // volume normalization cap
	AmplifyThreshold     int            `yaml:"amplify_threshold"`      // active binary flags needed
	AmplifyFactor        float64        `yaml:"amplify_factor"`
	Logistic             LogisticParams `yaml:"logistic"`
	Bands                BandCuts       `yaml:"bands"`
}

// DefaultScoringConfig returns the scorer defaults.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		Weights: FeatureWeights{
			OffHours:       0.30,
			RemovableMedia: 0.12,
			ProcessAnomaly: 0.13,
			BulkDownload:   0.25,
			Sentiment:      0.20,
		},
		DownloadCeilingBytes: 500 << 20, // 500 MiB
		AmplifyThreshold:     2,
		AmplifyFactor:        1.3,
		Logistic:             LogisticParams{Steepness: 4, Midpoint: 0.5},
		Bands:                BandCuts{Medium: 0.3, High: 0.6, Critical: 0.85},
	}
}

// Validate fails fast on out-of-domain scoring settings.
func (c *ScoringConfig) Validate() error {
	for name, w := range map[string]float64{
		FeatureOffHours:       c.Weights.OffHours,
		FeatureRemovableMedia: c.Weights.RemovableMedia,
		FeatureProcessAnomaly: c.Weights.ProcessAnomaly,
		FeatureBulkDownload:   c.Weights.BulkDownload,
		FeatureSentiment:      c.Weights.Sentiment,
	} {
		if w < 0 {
			return &ConfigurationError{Setting: "scoring.weights." + name, Reason: "must be non-negative"}
		}
	}
	if c.DownloadCeilingBytes <= 0 {
		return &ConfigurationError{Setting: "scoring.download_ceiling_bytes", Reason: "must be positive"}
	}
	if c.AmplifyThreshold < 1 {
		return &ConfigurationError{Setting: "scoring.amplify_threshold", Reason: "must be at least 1"}
	}
	if c.AmplifyFactor < 1 {
		return &ConfigurationError{Setting: "scoring.amplify_factor", Reason: "must be at least 1.0"}
	}
	if c.Logistic.Steepness <= 0 {
		return &ConfigurationError{Setting: "scoring.logistic.steepness", Reason: "must be positive"}
	}
	b := c.Bands
	if !(0 < b.Medium && b.Medium < b.High && b.High < b.Critical && b.Critical < 1) {
		return &ConfigurationError{Setting: "scoring.bands", Reason: "cut points must be ascending within (0,1)"}
	}
	return nil
}

// RiskScorer converts events (plus optional sentiment) into assessments.
// Pure: same event, sentiment, and config always yield an identical result.
type RiskScorer struct {
	cfg ScoringConfig
}

// NewRiskScorer creates a scorer. The config must already be validated.
func NewRiskScorer(cfg ScoringConfig) *RiskScorer {
	return &RiskScorer{cfg: cfg}
}

// Score assesses one event. sentiment may be nil when the event carries no
// text; it then contributes nothing.
func (s *RiskScorer) Score(event *Event, sentiment *SentimentScore) RiskAssessment {
	w := s.cfg.Weights

	var contributions []Contribution
	activeFlags := 0

	addFlag := func(name string, present bool, weight float64) {
		if !present {
			return
		}
		activeFlags++
		if weight != 0 {
			contributions = append(contributions, Contribution{
				Feature: name, Value: 1, Weight: weight, Signed: weight,
			})
		}
	}

	addFlag(FeatureOffHours, event.OffHours != nil, w.OffHours)
	addFlag(FeatureRemovableMedia, event.Media != nil, w.RemovableMedia)
	addFlag(FeatureProcessAnomaly, event.Process != nil, w.ProcessAnomaly)

	if event.Download != nil && event.Download.Bytes > 0 && w.BulkDownload != 0 {
		volume := clamp(float64(event.Download.Bytes)/float64(s.cfg.DownloadCeilingBytes), 0, 1)
		contributions = append(contributions, Contribution{
			Feature: FeatureBulkDownload, Value: volume, Weight: w.BulkDownload,
			Signed: volume * w.BulkDownload,
		})
	}

	if sentiment != nil && w.Sentiment != 0 {
		// Negative sentiment raises risk, positive lowers it.
		inversion := -sentiment.Polarity * sentiment.Magnitude
		if inversion != 0 {
			contributions = append(contributions, Contribution{
				Feature: FeatureSentiment, Value: inversion, Weight: w.Sentiment,
				Signed: inversion * w.Sentiment,
			})
		}
	}

	raw := 0.0
	for _, c := range contributions {
		raw += c.Signed
	}

	// Correlated anomalies are worth more than their linear sum. Scaling each
	// contribution keeps the explanation summing exactly to the raw score.
	amplified := activeFlags >= s.cfg.AmplifyThreshold
	if amplified {
		raw = 0
		for i := range contributions {
			contributions[i].Signed *= s.cfg.AmplifyFactor
			raw += contributions[i].Signed
		}
	}

	sort.Slice(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Signed) > math.Abs(contributions[j].Signed)
	})

	score := s.squash(raw)

	return RiskAssessment{
		EventID:       event.ID,
		Score:         score,
		Band:          s.cfg.Band(score),
		RawScore:      raw,
		Amplified:     amplified,
		Contributions: contributions,
		Sentiment:     sentiment,
		ComputedAt:    event.Timestamp,
	}
}

// squash maps the unbounded raw sum into [0,1] so no weight configuration can
// push the score out of range.
func (s *RiskScorer) squash(raw float64) float64 {
	p := s.cfg.Logistic
	return 1 / (1 + math.Exp(-p.Steepness*(raw-p.Midpoint)))
}

// Band assigns the band for a squashed score using the configured cut points.
func (c *ScoringConfig) Band(score float64) RiskBand {
	switch {
	case score < c.Bands.Medium:
		return BandLow
	case score < c.Bands.High:
		return BandMedium
	case score < c.Bands.Critical:
		return BandHigh
	default:
		return BandCritical
	}
}
