package main

// ---------------------------------------------------------------------------
// cmd_leaderboard.go — analyst leaderboard via the API
// ---------------------------------------------------------------------------

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdLeaderboard(args []string) {
	fs := flag.NewFlagSet("leaderboard", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	addr := fs.String("addr", "", "API address override")
	apiKey := fs.String("api-key", "", "API key")
	format := fs.String("format", "table", "output format: table, json")
	_ = fs.Parse(args)

	base := apiBase(*addr, envConfig(*configPath))
	body, err := apiGet(base+"/api/v1/leaderboard",
		resolveAPIKey(*apiKey, envConfig(*configPath)), 10*time.Second)
	if err != nil {
		errorf("%v", err)
	}

	var resp struct {
		Leaderboard []core.AnalystProfile `json:"leaderboard"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		errorf("parsing response: %v", err)
	}

	if parseFormat(*format) == FormatJSON {
		printJSON(resp.Leaderboard)
		return
	}

	if len(resp.Leaderboard) == 0 {
		fmt.Println(dim("no analysts on the board yet"))
		return
	}
	t := NewTable(os.Stdout, "#", "ANALYST", "POINTS", "CASES", "DRILLS", "BADGES")
	for i, p := range resp.Leaderboard {
		t.AddRow(fmt.Sprintf("%d", i+1), p.Analyst,
			fmt.Sprintf("%d", p.Points), fmt.Sprintf("%d", p.CasesClosed),
			fmt.Sprintf("%d", p.Drills), strings.Join(p.Badges, ", "))
	}
	t.Render()
}
