package core

import (
	"math"
	"reflect"
	"testing"
	"time"
)

func testEvent(t EventType) *Event {
	e := NewEvent("u-1", t, "test")
	e.Timestamp = time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	return e
}

func TestScoreAmplification(t *testing.T) {
	cfg := DefaultScoringConfig()
	cfg.Weights = FeatureWeights{OffHours: 0.2, RemovableMedia: 0.3}

	event := testEvent(EventOffHours)
	event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
	event.Media = &RemovableMediaAttrs{DeviceName: "usb", BytesCopied: 1 << 20}

	got := NewRiskScorer(cfg).Score(event, nil)

	if !got.Amplified {
		t.Fatal("two active flags should amplify")
	}
	wantRaw := (0.2 + 0.3) * 1.3
	if !almostEqual(got.RawScore, wantRaw, 1e-9) {
		t.Errorf("raw = %v, want %v", got.RawScore, wantRaw)
	}
	wantScore := 1 / (1 + math.Exp(-4*(wantRaw-0.5)))
	if !almostEqual(got.Score, wantScore, 1e-9) {
		t.Errorf("score = %v, want %v", got.Score, wantScore)
	}
	if got.Band != BandHigh {
		t.Errorf("band = %v, want HIGH", got.Band)
	}
	// Contributions sorted by absolute size: removable media outranks off-hours.
	if len(got.Contributions) != 2 {
		t.Fatalf("contributions = %d, want 2", len(got.Contributions))
	}
	if got.Contributions[0].Feature != FeatureRemovableMedia {
		t.Errorf("top contribution = %s, want %s", got.Contributions[0].Feature, FeatureRemovableMedia)
	}
}

func TestScoreSingleFlagNotAmplified(t *testing.T) {
	cfg := DefaultScoringConfig()
	event := testEvent(EventOffHours)
	event.OffHours = &OffHoursAttrs{LocalHour: 2, Intensity: 0.5}

	got := NewRiskScorer(cfg).Score(event, nil)
	if got.Amplified {
		t.Error("one active flag must not amplify")
	}
	if !almostEqual(got.RawScore, cfg.Weights.OffHours, 1e-9) {
		t.Errorf("raw = %v, want %v", got.RawScore, cfg.Weights.OffHours)
	}
}

func TestScoreExplanationSumsToRaw(t *testing.T) {
	cfg := DefaultScoringConfig()
	scorer := NewRiskScorer(cfg)

	event := testEvent(EventBulkDownload)
	event.Download = &BulkDownloadAttrs{Bytes: 300 << 20, FileCount: 900}
	event.OffHours = &OffHoursAttrs{LocalHour: 1, Intensity: 1}
	event.Media = &RemovableMediaAttrs{BytesCopied: 300 << 20}
	sentiment := &SentimentScore{Polarity: -0.8, Magnitude: 0.8, Emotion: EmotionAnger, Matched: 2}

	got := scorer.Score(event, sentiment)
	sum := 0.0
	for _, c := range got.Contributions {
		sum += c.Signed
	}
	if !almostEqual(sum, got.RawScore, 1e-9) {
		t.Errorf("contributions sum %v != raw %v", sum, got.RawScore)
	}
	for i := 1; i < len(got.Contributions); i++ {
		if math.Abs(got.Contributions[i].Signed) > math.Abs(got.Contributions[i-1].Signed) {
			t.Errorf("contributions not sorted by |value| at %d", i)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	scorer := NewRiskScorer(DefaultScoringConfig())
	event := testEvent(EventMessage)
	event.Message = &MessageAttrs{Text: "I hate this"}
	sentiment := &SentimentScore{Polarity: -1, Magnitude: 1, Emotion: EmotionAnger, Matched: 1}

	first := scorer.Score(event, sentiment)
	for i := 0; i < 5; i++ {
		if got := scorer.Score(event, sentiment); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs", i)
		}
	}
}

func TestScoreRange(t *testing.T) {
	cfg := DefaultScoringConfig()
	scorer := NewRiskScorer(cfg)

	// Worst case: every feature maxed.
	event := testEvent(EventBulkDownload)
	event.Download = &BulkDownloadAttrs{Bytes: 10 << 30, FileCount: 10000} // over the ceiling
	event.OffHours = &OffHoursAttrs{LocalHour: 3, Intensity: 1}
	event.Media = &RemovableMediaAttrs{BytesCopied: 10 << 30}
	event.Process = &ProcessAnomalyAttrs{ProcessName: "nc", Count: 9}
	sentiment := &SentimentScore{Polarity: -1, Magnitude: 1, Emotion: EmotionAnger, Matched: 3}

	got := scorer.Score(event, sentiment)
	if got.Score < 0 || got.Score > 1 {
		t.Errorf("score = %v, out of [0,1]", got.Score)
	}
	if got.Band != BandCritical {
		t.Errorf("band = %v, want CRITICAL for a maxed event", got.Band)
	}

	// Download volume clamps at the ceiling.
	for _, c := range got.Contributions {
		if c.Feature == FeatureBulkDownload && !almostEqual(c.Value, 1, 1e-9) {
			t.Errorf("download value = %v, want clamped to 1", c.Value)
		}
	}

	// Best case: a cheerful message only.
	calm := testEvent(EventMessage)
	calm.Message = &MessageAttrs{Text: "great"}
	positive := &SentimentScore{Polarity: 0.7, Magnitude: 0.7, Emotion: EmotionPositive, Matched: 1}
	low := scorer.Score(calm, positive)
	if low.Band != BandLow {
		t.Errorf("band = %v, want LOW for a positive message", low.Band)
	}
	if low.Score >= got.Score {
		t.Error("positive message must score below a maxed event")
	}
}

func TestPositiveSentimentLowersScore(t *testing.T) {
	scorer := NewRiskScorer(DefaultScoringConfig())
	event := testEvent(EventOffHours)
	event.OffHours = &OffHoursAttrs{LocalHour: 2, Intensity: 1}

	neutral := scorer.Score(event, nil)
	cheerful := scorer.Score(event, &SentimentScore{Polarity: 0.8, Magnitude: 0.8, Emotion: EmotionPositive, Matched: 1})
	hostile := scorer.Score(event, &SentimentScore{Polarity: -0.8, Magnitude: 0.8, Emotion: EmotionAnger, Matched: 1})

	if !(cheerful.Score < neutral.Score) {
		t.Errorf("positive sentiment should lower score: %v !< %v", cheerful.Score, neutral.Score)
	}
	if !(hostile.Score > neutral.Score) {
		t.Errorf("negative sentiment should raise score: %v !> %v", hostile.Score, neutral.Score)
	}
}

func TestBandCuts(t *testing.T) {
	cfg := DefaultScoringConfig()
	tests := []struct {
		score float64
		want  RiskBand
	}{
		{0, BandLow},
		{0.299, BandLow},
		{0.3, BandMedium},
		{0.599, BandMedium},
		{0.6, BandHigh},
		{0.849, BandHigh},
		{0.85, BandCritical},
		{1, BandCritical},
	}
	for _, tt := range tests {
		if got := cfg.Band(tt.score); got != tt.want {
			t.Errorf("Band(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestScoringConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ScoringConfig)
		wantOK bool
	}{
		{"defaults", func(c *ScoringConfig) {}, true},
		{"negative weight", func(c *ScoringConfig) { c.Weights.OffHours = -0.1 }, false},
		{"zero ceiling", func(c *ScoringConfig) { c.DownloadCeilingBytes = 0 }, false},
		{"amplify threshold zero", func(c *ScoringConfig) { c.AmplifyThreshold = 0 }, false},
		{"amplify factor below one", func(c *ScoringConfig) { c.AmplifyFactor = 0.9 }, false},
		{"flat logistic", func(c *ScoringConfig) { c.Logistic.Steepness = 0 }, false},
		{"descending bands", func(c *ScoringConfig) { c.Bands = BandCuts{Medium: 0.6, High: 0.3, Critical: 0.85} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultScoringConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate() = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}

func TestParseRiskBand(t *testing.T) {
	tests := []struct {
		in     string
		want   RiskBand
		wantOK bool
	}{
		{"LOW", BandLow, true},
		{"medium", BandMedium, true},
		{" High ", BandHigh, true},
		{"CRIT", BandCritical, true},
		{"bogus", BandLow, false},
	}
	for _, tt := range tests {
		got, ok := ParseRiskBand(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseRiskBand(%q) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
