package main

// ---------------------------------------------------------------------------
// cmd_score.go — score a crafted event locally and explain the result
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdScore(args []string) {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	user := fs.String("user", "analyst-sandbox", "user id for the crafted event")
	message := fs.String("message", "", "chat message text")
	offHours := fs.Int("off-hours", -1, "local hour of off-hours activity (0-23, -1 disables)")
	usbBytes := fs.Int64("usb", 0, "bytes copied to removable media")
	process := fs.String("process", "", "anomalous process name")
	download := fs.Int64("download", 0, "bytes bulk-downloaded")
	files := fs.Int("files", 0, "file count of the bulk download")
	format := fs.String("format", "table", "output format: table, json")
	_ = fs.Parse(args)

	event, err := craftEvent(*user, *message, *offHours, *usbBytes, *process, *download, *files)
	if err != nil {
		errorf("%v", err)
	}

	cfg := loadConfigOrDefault(envConfig(*configPath))
	analyzer := core.NewSentimentAnalyzer(cfg.Sentiment)
	scorer := core.NewRiskScorer(cfg.Scoring)

	var sentiment *core.SentimentScore
	if event.Message != nil {
		s := analyzer.Analyze(event.Message.Text)
		sentiment = &s
	}
	assessment := scorer.Score(event, sentiment)

	if parseFormat(*format) == FormatJSON {
		printJSON(assessment)
		return
	}

	fmt.Printf("%s %.3f  band %s  raw %.3f", bold("score:"),
		assessment.Score, bandColor(assessment.Band.String()), assessment.RawScore)
	if assessment.Amplified {
		fmt.Printf("  %s", yellow("(amplified)"))
	}
	fmt.Println()
	if sentiment != nil {
		fmt.Printf("%s polarity %+.2f  magnitude %.2f  emotion %s\n",
			bold("sentiment:"), sentiment.Polarity, sentiment.Magnitude, sentiment.Emotion)
	}
	fmt.Println()

	t := NewTable(os.Stdout, "FEATURE", "VALUE", "WEIGHT", "CONTRIBUTION")
	for _, c := range assessment.Contributions {
		t.AddRow(c.Feature,
			fmt.Sprintf("%.3f", c.Value),
			fmt.Sprintf("%.2f", c.Weight),
			fmt.Sprintf("%+.3f", c.Signed))
	}
	t.Render()
}

// craftEvent builds an event from score flags. The primary type is the first
// anomaly given; extra flags become co-occurring blocks on the same event.
func craftEvent(user, message string, offHours int, usbBytes int64, process string, download int64, files int) (*core.Event, error) {
	var event *core.Event
	claim := func(t core.EventType) {
		if event == nil {
			event = core.NewEvent(user, t, "cli")
		}
	}

	if offHours >= 0 {
		claim(core.EventOffHours)
		event.OffHours = &core.OffHoursAttrs{LocalHour: offHours % 24, Intensity: 1}
	}
	if usbBytes > 0 {
		claim(core.EventRemovableMedia)
		event.Media = &core.RemovableMediaAttrs{DeviceName: "usb-drive", BytesCopied: usbBytes}
	}
	if process != "" {
		claim(core.EventProcessAnomaly)
		event.Process = &core.ProcessAnomalyAttrs{ProcessName: process, Count: 1}
	}
	if download > 0 {
		claim(core.EventBulkDownload)
		event.Download = &core.BulkDownloadAttrs{Bytes: download, FileCount: files}
	}
	if message != "" {
		claim(core.EventMessage)
		event.Message = &core.MessageAttrs{Text: message, Channel: "cli"}
	}
	if event == nil {
		return nil, fmt.Errorf("nothing to score — give at least one of --message, --off-hours, --usb, --process, --download")
	}
	return event, event.Validate()
}
