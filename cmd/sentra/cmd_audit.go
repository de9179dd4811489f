package main

// ---------------------------------------------------------------------------
// cmd_audit.go — query the audit trail via the API
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdAudit(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "", "API address override")
	apiKey := fs.String("api-key", "", "API key")
	actor := fs.String("actor", "", "filter by actor")
	target := fs.String("target", "", "filter by target id")
	from := fs.String("from", "", "only entries at or after this RFC3339 time")
	to := fs.String("to", "", "only entries at or before this RFC3339 time")
	limit := fs.Int("limit", 100, "maximum entries")
	format := fs.String("format", "table", "output format: table, json")
	_ = fs.Parse(args)

	base := apiBase(*addr, envConfig(*configPath))
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", *limit))
	if *actor != "" {
		q.Set("actor", *actor)
	}
	if *target != "" {
		q.Set("target", *target)
	}
	if *from != "" {
		q.Set("from", *from)
	}
	if *to != "" {
		q.Set("to", *to)
	}

	body, err := apiGet(base+"/api/v1/audit?"+q.Encode(),
		resolveAPIKey(*apiKey, envConfig(*configPath)), 10*time.Second)
	if err != nil {
		errorf("%v", err)
	}

	var resp struct {
		Entries []core.AuditEntry `json:"entries"`
		Total   int               `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		errorf("parsing response: %v", err)
	}

	if parseFormat(*format) == FormatJSON {
		printJSON(resp.Entries)
		return
	}

	if len(resp.Entries) == 0 {
		fmt.Println(dim("no audit entries"))
		return
	}
	t := NewTable(os.Stdout, "ID", "TIME", "ACTOR", "ACTION", "TARGET", "DETAILS")
	for _, e := range resp.Entries {
		t.AddRow(fmt.Sprintf("%d", e.ID), e.Timestamp.Format("15:04:05"),
			e.Actor, e.Action, e.TargetKind+":"+shortID(e.TargetID), e.Details)
	}
	t.Render()
	fmt.Println(dim(fmt.Sprintf("%d entries", resp.Total)))
}
