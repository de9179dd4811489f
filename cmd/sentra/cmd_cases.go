package main

// ---------------------------------------------------------------------------
// cmd_cases.go — list, assign, close, and export cases via the API
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdCases(args []string) {
	fs := flag.NewFlagSet("cases", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "", "API address override")
	apiKey := fs.String("api-key", "", "API key")
	limit := fs.Int("limit", 50, "maximum cases to list")
	format := fs.String("format", "table", "output format: table, json")
	actor := fs.String("actor", "", "acting analyst")
	analyst := fs.String("analyst", "", "analyst to assign")
	note := fs.String("note", "", "resolution note for close")
	withAlerts := fs.Bool("with-alerts", false, "also close all linked alerts")
	out := fs.String("out", "", "output file for export (default stdout)")
	_ = fs.Parse(args)

	base := apiBase(*addr, envConfig(*configPath))
	key := resolveAPIKey(*apiKey, envConfig(*configPath))

	if fs.NArg() >= 1 {
		switch fs.Arg(0) {
		case "export":
			exportCases(base, key, *out)
			return
		case "assign", "close":
			if fs.NArg() < 2 {
				errorf("usage: sentra cases %s <case-id>", fs.Arg(0))
			}
			if *actor == "" {
				errorf("--actor is required for case transitions")
			}
			caseID := fs.Arg(1)
			payload, _ := json.Marshal(map[string]interface{}{
				"actor":       *actor,
				"analyst":     *analyst,
				"note":        *note,
				"with_alerts": *withAlerts,
			})
			body, err := apiPost(base+"/api/v1/cases/"+caseID+"/"+fs.Arg(0), payload, key, 10*time.Second)
			if err != nil {
				errorf("%v", err)
			}
			var c core.Case
			if err := json.Unmarshal(body, &c); err != nil {
				errorf("parsing response: %v", err)
			}
			fmt.Printf("%s case %s is now %s\n", green("ok:"), c.ID, bold(c.Status.String()))
			return
		default:
			errorf("unknown cases action %q — use assign, close, or export", fs.Arg(0))
		}
	}

	body, err := apiGet(fmt.Sprintf("%s/api/v1/cases?limit=%d", base, *limit), key, 10*time.Second)
	if err != nil {
		errorf("%v", err)
	}

	var resp struct {
		Cases []core.Case `json:"cases"`
		Total int         `json:"total"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		errorf("parsing response: %v", err)
	}

	if parseFormat(*format) == FormatJSON {
		printJSON(resp.Cases)
		return
	}

	if len(resp.Cases) == 0 {
		fmt.Println(dim("no cases"))
		return
	}
	t := NewTable(os.Stdout, "ID", "USER", "STATUS", "ANALYST", "ALERTS", "OPENED")
	for _, c := range resp.Cases {
		t.AddRow(shortID(c.ID), c.UserID, c.Status.String(), c.AssignedAnalyst,
			fmt.Sprintf("%d", len(c.AlertIDs)), c.OpenedAt.Format("15:04:05"))
	}
	t.Render()
	fmt.Println(dim(fmt.Sprintf("%d cases", resp.Total)))
}

func exportCases(base, key, out string) {
	body, err := apiGet(base+"/api/v1/cases/export", key, 30*time.Second)
	if err != nil {
		errorf("%v", err)
	}
	if out == "" {
		fmt.Print(string(body))
		return
	}
	if err := os.WriteFile(out, body, 0o644); err != nil {
		errorf("writing %s: %v", out, err)
	}
	fmt.Printf("%s wrote %s\n", green("ok:"), out)
}
