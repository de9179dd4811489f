package main

// ---------------------------------------------------------------------------
// cmd_sentiment.go — analyze message text locally
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"strings"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdSentiment(args []string) {
	fs := flag.NewFlagSet("sentiment", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	format := fs.String("format", "table", "output format: table, json")
	_ = fs.Parse(args)

	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		errorf("usage: sentra sentiment [flags] <text>")
	}

	cfg := loadConfigOrDefault(envConfig(*configPath))
	score := core.NewSentimentAnalyzer(cfg.Sentiment).Analyze(text)

	if parseFormat(*format) == FormatJSON {
		printJSON(score)
		return
	}

	polarity := fmt.Sprintf("%+.2f", score.Polarity)
	switch {
	case score.Polarity < -0.3:
		polarity = red(polarity)
	case score.Polarity > 0.3:
		polarity = green(polarity)
	}
	fmt.Printf("polarity %s  magnitude %.2f  emotion %s  matched %d\n",
		polarity, score.Magnitude, bold(score.Emotion.String()), score.Matched)
}
