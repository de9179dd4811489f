package core

import (
	"math"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// sentiment.go — lexicon-based polarity and emotion scoring for message text.
//
// Deliberately simple and fully deterministic: a fixed signed-weight lexicon,
// a negation rule (flip the next sentiment word within a lookback window),
// and an intensifier rule (boost the next sentiment word, non-stacking).
// No model, no network, no state.
// ---------------------------------------------------------------------------

// Emotion tags the dominant emotional category of a text.
type Emotion int

const (
	EmotionNeutral Emotion = iota
	EmotionStress
	EmotionAnger
	EmotionResignation
	EmotionPositive
)

func (e Emotion) String() string {
	switch e {
	case EmotionNeutral:
		return "NEUTRAL"
	case EmotionStress:
		return "STRESS"
	case EmotionAnger:
		return "ANGER"
	case EmotionResignation:
		return "RESIGNATION"
	case EmotionPositive:
		return "POSITIVE"
	default:
		return "UNKNOWN"
	}
}

func (e Emotion) MarshalJSON() ([]byte, error) {
	return []byte(`"` + e.String() + `"`), nil
}

// SentimentScore is the result of analyzing one text. Derived, never stored
// on its own — it rides along on the assessment that consumed it.
type SentimentScore struct {
	Polarity  float64 `json:"polarity"`  // -1..1
	Magnitude float64 `json:"magnitude"` // 0..1, mean |weight| of matched tokens
	Emotion   Emotion `json:"emotion"`
	Matched   int     `json:"matched_tokens"`
}

// lexiconEntry is one sentiment-bearing word.
type lexiconEntry struct {
	Weight   float64
	Category Emotion
}

// SentimentConfig holds the tunable constants of the analyzer.
type SentimentConfig struct {
	NegationLookback  int     `yaml:"negation_lookback"`  // tokens a negator reaches forward
	IntensifierFactor float64 `yaml:"intensifier_factor"` // multiplier, non-stacking
}

// DefaultSentimentConfig returns the analyzer defaults.
func DefaultSentimentConfig() SentimentConfig {
	return SentimentConfig{
		NegationLookback:  3,
		IntensifierFactor: 1.5,
	}
}

// SentimentAnalyzer scores free text against a fixed lexicon.
type SentimentAnalyzer struct {
	cfg          SentimentConfig
	lexicon      map[string]lexiconEntry
	negators     map[string]bool
	intensifiers map[string]bool
}

// NewSentimentAnalyzer creates an analyzer with the built-in lexicon.
func NewSentimentAnalyzer(cfg SentimentConfig) *SentimentAnalyzer {
	if cfg.NegationLookback <= 0 {
		cfg.NegationLookback = 3
	}
	if cfg.IntensifierFactor <= 0 {
		cfg.IntensifierFactor = 1.5
	}
	return &SentimentAnalyzer{
		cfg:          cfg,
		lexicon:      defaultLexicon(),
		negators:     defaultNegators(),
		intensifiers: defaultIntensifiers(),
	}
}

func defaultLexicon() map[string]lexiconEntry {
	return map[string]lexiconEntry{
		// anger
		"angry":   {-1.0, EmotionAnger},
		"hate":    {-1.0, EmotionAnger},
		"furious": {-0.9, EmotionAnger},
		"unfair":  {-0.6, EmotionAnger},
		"bad":     {-0.6, EmotionAnger},
		// stress
		"stressed":    {-0.8, EmotionStress},
		"urgent":      {-0.5, EmotionStress},
		"immediately": {-0.4, EmotionStress},
		"suspicious":  {-0.6, EmotionStress},
		"concern":     {-0.5, EmotionStress},
		"worried":     {-0.5, EmotionStress},
		"pressure":    {-0.5, EmotionStress},
		"deadline":    {-0.3, EmotionStress},
		"help":        {-0.2, EmotionStress},
		// resignation
		"quit":      {-0.7, EmotionResignation},
		"leaving":   {-0.5, EmotionResignation},
		"done":      {-0.3, EmotionResignation},
		"whatever":  {-0.4, EmotionResignation},
		"pointless": {-0.6, EmotionResignation},
		"sorry":     {-0.3, EmotionResignation},
		"tired":     {-0.4, EmotionResignation},
		// positive
		"happy":  {0.6, EmotionPositive},
		"great":  {0.7, EmotionPositive},
		"thanks": {0.5, EmotionPositive},
		"good":   {0.5, EmotionPositive},
		"ok":     {0.1, EmotionPositive},
		"glad":   {0.5, EmotionPositive},
	}
}

func defaultNegators() map[string]bool {
	return map[string]bool{
		"not": true, "never": true, "no": true,
		"dont": true, "don't": true, "cant": true, "can't": true,
		"wont": true, "won't": true, "isnt": true, "isn't": true,
	}
}

func defaultIntensifiers() map[string]bool {
	return map[string]bool{
		"very": true, "extremely": true, "really": true, "so": true, "totally": true,
	}
}

// tokenize lowercases and splits on whitespace and punctuation, keeping
// in-word apostrophes so contractions like "don't" survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		if r == '\'' {
			return false
		}
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// Analyze scores one text. Empty or fully-unmatched input yields the zero
// score with a Neutral emotion.
func (a *SentimentAnalyzer) Analyze(text string) SentimentScore {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return SentimentScore{Emotion: EmotionNeutral}
	}

	var (
		sum        float64
		absSum     float64
		matched    int
		categories = map[Emotion]float64{}

		pendingNegation    int  // tokens left in the negation window
		pendingIntensifier bool // consumed by the next sentiment word
	)

	for _, tok := range tokens {
		if a.negators[tok] {
			pendingNegation = a.cfg.NegationLookback
			continue
		}
		if a.intensifiers[tok] {
			pendingIntensifier = true
			continue
		}

		entry, ok := a.lexicon[tok]
		if !ok {
			if pendingNegation > 0 {
				pendingNegation--
			}
			continue
		}

		weight := entry.Weight
		category := entry.Category

		if pendingIntensifier {
			weight *= a.cfg.IntensifierFactor
			pendingIntensifier = false
		}
		if pendingNegation > 0 {
			weight = -weight
			pendingNegation = 0
			// A negated positive reads as distress ("not happy"), a negated
			// negative reads as reassurance ("not worried").
			if entry.Weight > 0 {
				category = EmotionStress
			} else {
				category = EmotionPositive
			}
		}

		sum += weight
		absSum += math.Abs(weight)
		matched++
		categories[category] += math.Abs(weight)
	}

	if matched == 0 {
		return SentimentScore{Emotion: EmotionNeutral}
	}

	polarity := clamp(sum/float64(matched), -1, 1)
	magnitude := clamp(absSum/float64(matched), 0, 1)

	return SentimentScore{
		Polarity:  polarity,
		Magnitude: magnitude,
		Emotion:   dominantEmotion(categories),
		Matched:   matched,
	}
}

// dominantEmotion picks the category with the largest matched weight sum.
// Ties resolve to Neutral — a text equally angry and cheerful is nothing.
func dominantEmotion(categories map[Emotion]float64) Emotion {
	best := EmotionNeutral
	bestSum := 0.0
	tied := false
	for cat, s := range categories {
		switch {
		case s > bestSum:
			best, bestSum, tied = cat, s, false
		case s == bestSum && s > 0:
			tied = true
		}
	}
	if tied || bestSum == 0 {
		return EmotionNeutral
	}
	return best
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
