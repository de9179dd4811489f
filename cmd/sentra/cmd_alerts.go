package main

// ---------------------------------------------------------------------------
// cmd_alerts.go — list and transition alerts via the API
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdAlerts(args []string) {
	fs := flag.NewFlagSet("alerts", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "", "API address override")
	apiKey := fs.String("api-key", "", "API key")
	minBand := fs.String("min-band", "", "only show alerts at or above this band")
	limit := fs.Int("limit", 50, "maximum alerts to list")
	format := fs.String("format", "table", "output format: table, json, csv")
	actor := fs.String("actor", "", "acting analyst for transitions")
	reason := fs.String("reason", "", "close reason")
	_ = fs.Parse(args)

	base := apiBase(*addr, envConfig(*configPath))
	key := resolveAPIKey(*apiKey, envConfig(*configPath))

	// Transition form: alerts <ack|escalate|close> <alert-id>
	if fs.NArg() >= 2 {
		verb, alertID := fs.Arg(0), fs.Arg(1)
		switch verb {
		case "ack", "escalate", "close":
		default:
			errorf("unknown alerts action %q — use ack, escalate, or close", verb)
		}
		if *actor == "" {
			errorf("--actor is required for alert transitions")
		}
		payload, _ := json.Marshal(map[string]string{"actor": *actor, "reason": *reason})
		body, err := apiPost(base+"/api/v1/alerts/"+alertID+"/"+verb, payload, key, 10*time.Second)
		if err != nil {
			errorf("%v", err)
		}
		var alert core.Alert
		if err := json.Unmarshal(body, &alert); err != nil {
			errorf("parsing response: %v", err)
		}
		fmt.Printf("%s alert %s is now %s\n", green("ok:"), alert.ID, bold(alert.Status.String()))
		return
	}

	url := fmt.Sprintf("%s/api/v1/alerts?limit=%d", base, *limit)
	if *minBand != "" {
		url += "&min_band=" + *minBand
	}
	body, err := apiGet(url, key, 10*time.Second)
	if err != nil {
		errorf("%v", err)
	}

	var resp struct {
		Alerts []core.Alert `json:"alerts"`
		Total  int          `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		errorf("parsing response: %v", err)
	}

	switch parseFormat(*format) {
	case FormatJSON:
		printJSON(resp.Alerts)
	case FormatCSV:
		rows := make([][]string, 0, len(resp.Alerts))
		for _, a := range resp.Alerts {
			rows = append(rows, []string{
				a.ID, a.UserID, a.Assessment.Band.String(),
				fmt.Sprintf("%.3f", a.Assessment.Score),
				a.Status.String(), a.CaseID,
				a.CreatedAt.Format(time.RFC3339),
			})
		}
		writeCSV([]string{"id", "user_id", "band", "score", "status", "case_id", "created_at"}, rows)
	default:
		if len(resp.Alerts) == 0 {
			fmt.Println(dim("no alerts"))
			return
		}
		t := NewTable(os.Stdout, "ID", "USER", "BAND", "SCORE", "STATUS", "CASE")
		for _, a := range resp.Alerts {
			t.AddRow(shortID(a.ID), a.UserID, bandColor(a.Assessment.Band.String()),
				fmt.Sprintf("%.3f", a.Assessment.Score), a.Status.String(), shortID(a.CaseID))
		}
		t.Render()
		fmt.Println(dim(fmt.Sprintf("%d alerts", resp.Total)))
	}
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
