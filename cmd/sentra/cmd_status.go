package main

// ---------------------------------------------------------------------------
// cmd_status.go — engine status via the API
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "", "API address override")
	apiKey := fs.String("api-key", "", "API key")
	format := fs.String("format", "table", "output format: table, json")
	_ = fs.Parse(args)

	base := apiBase(*addr, envConfig(*configPath))
	body, err := apiGet(base+"/api/v1/status", resolveAPIKey(*apiKey, envConfig(*configPath)), 5*time.Second)
	if err != nil {
		errorf("%v", err)
	}

	if parseFormat(*format) == FormatJSON {
		var v interface{}
		if err := json.Unmarshal(body, &v); err != nil {
			errorf("parsing response: %v", err)
		}
		printJSON(v)
		return
	}

	var status struct {
		Status string                 `json:"status"`
		Stats  map[string]interface{} `json:"stats"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		errorf("parsing response: %v", err)
	}

	fmt.Printf("%s %s\n\n", bold("sentra engine:"), green(status.Status))
	t := NewTable(os.Stdout, "COMPONENT", "STATS")
	for name, stats := range status.Stats {
		t.AddRow(name, fmt.Sprintf("%v", stats))
	}
	t.Render()
}
