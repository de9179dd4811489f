package core

import (
	"math"
	"testing"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestAnalyzeBasics(t *testing.T) {
	a := NewSentimentAnalyzer(DefaultSentimentConfig())

	tests := []struct {
		name      string
		text      string
		polarity  float64
		magnitude float64
		emotion   Emotion
		matched   int
	}{
		{
			name:      "empty text",
			text:      "",
			polarity:  0,
			magnitude: 0,
			emotion:   EmotionNeutral,
			matched:   0,
		},
		{
			name:      "no lexicon matches",
			text:      "the quarterly report is attached",
			polarity:  0,
			magnitude: 0,
			emotion:   EmotionNeutral,
			matched:   0,
		},
		{
			name:      "mixed positive and mild stress",
			text:      "happy to help with the rollout",
			polarity:  0.2, // happy +0.6, help -0.2, mean 0.2
			magnitude: 0.4,
			emotion:   EmotionPositive,
			matched:   2,
		},
		{
			name:      "single negative word",
			text:      "this schedule is unfair",
			polarity:  -0.6,
			magnitude: 0.6,
			emotion:   EmotionAnger,
			matched:   1,
		},
		{
			name:      "negated positive reads as stress",
			text:      "I am not happy with this decision",
			polarity:  -0.6,
			magnitude: 0.6,
			emotion:   EmotionStress,
			matched:   1,
		},
		{
			name:      "negated negative reads as reassurance",
			text:      "not worried about the audit",
			polarity:  0.5,
			magnitude: 0.5,
			emotion:   EmotionPositive,
			matched:   1,
		},
		{
			name:      "negation expires outside the lookback window",
			text:      "not going to be happy",
			polarity:  0.6, // three unmatched tokens exhaust the window
			magnitude: 0.6,
			emotion:   EmotionPositive,
			matched:   1,
		},
		{
			name:      "intensifier boosts the next sentiment word",
			text:      "very stressed today",
			polarity:  -1, // -0.8 * 1.5 clamps to -1
			magnitude: 1,
			emotion:   EmotionStress,
			matched:   1,
		},
		{
			name:      "contraction survives tokenizing",
			text:      "don't quit yet",
			polarity:  0.7, // negated resignation flips positive
			magnitude: 0.7,
			emotion:   EmotionPositive,
			matched:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Analyze(tt.text)
			if !almostEqual(got.Polarity, tt.polarity, 1e-9) {
				t.Errorf("polarity = %v, want %v", got.Polarity, tt.polarity)
			}
			if !almostEqual(got.Magnitude, tt.magnitude, 1e-9) {
				t.Errorf("magnitude = %v, want %v", got.Magnitude, tt.magnitude)
			}
			if got.Emotion != tt.emotion {
				t.Errorf("emotion = %v, want %v", got.Emotion, tt.emotion)
			}
			if got.Matched != tt.matched {
				t.Errorf("matched = %d, want %d", got.Matched, tt.matched)
			}
		})
	}
}

func TestAnalyzeIntensifierDoesNotStack(t *testing.T) {
	a := NewSentimentAnalyzer(DefaultSentimentConfig())

	// Two intensifiers before one sentiment word boost it once; the boosted
	// weight still clamps to the polarity range.
	got := a.Analyze("really very stressed")
	if !almostEqual(got.Polarity, -1, 1e-9) {
		t.Errorf("polarity = %v, want -1", got.Polarity)
	}
	if got.Matched != 1 {
		t.Errorf("matched = %d, want 1", got.Matched)
	}
}

func TestAnalyzeDeterministic(t *testing.T) {
	a := NewSentimentAnalyzer(DefaultSentimentConfig())
	text := "I hate this pointless deadline pressure"
	first := a.Analyze(text)
	for i := 0; i < 5; i++ {
		if got := a.Analyze(text); got != first {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestAnalyzePolarityRange(t *testing.T) {
	a := NewSentimentAnalyzer(DefaultSentimentConfig())
	texts := []string{
		"hate hate hate angry furious",
		"very extremely totally hate angry",
		"great great great thanks happy glad",
		"not not not never no happy",
	}
	for _, text := range texts {
		got := a.Analyze(text)
		if got.Polarity < -1 || got.Polarity > 1 {
			t.Errorf("Analyze(%q).Polarity = %v, out of [-1,1]", text, got.Polarity)
		}
		if got.Magnitude < 0 || got.Magnitude > 1 {
			t.Errorf("Analyze(%q).Magnitude = %v, out of [0,1]", text, got.Magnitude)
		}
	}
}

func TestDominantEmotionTieIsNeutral(t *testing.T) {
	a := NewSentimentAnalyzer(DefaultSentimentConfig())
	// unfair (anger 0.6) and suspicious (stress 0.6) tie exactly.
	got := a.Analyze("unfair and suspicious")
	if got.Emotion != EmotionNeutral {
		t.Errorf("emotion = %v, want NEUTRAL on tie", got.Emotion)
	}
}
