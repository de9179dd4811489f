package main

// ---------------------------------------------------------------------------
// main.go — command dispatcher for the sentra CLI
//
// This file is intentionally slim. All command implementations live in
// their own files (cmd_*.go). Shared helpers are in helpers.go, http.go,
// and output.go.
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
)

var (
	version   = "1.0.0"
	commit    = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--version", "-V":
			printVersion(os.Stdout)
			os.Exit(0)
		case "--help", "-h", "help":
			printUsage(os.Stdout)
			os.Exit(0)
		}
	}

	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(0)
	}

	subcmd := os.Args[1]
	args := os.Args[2:]

	switch subcmd {
	case "run":
		cmdRun(args)
	case "init":
		cmdInit(args)
	case "status":
		cmdStatus(args)
	case "score":
		cmdScore(args)
	case "sentiment":
		cmdSentiment(args)
	case "alerts":
		cmdAlerts(args)
	case "cases":
		cmdCases(args)
	case "audit":
		cmdAudit(args)
	case "leaderboard":
		cmdLeaderboard(args)
	case "version":
		printVersion(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, red("error: ")+"unknown command %q\n\n", subcmd)
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

func printVersion(w *os.File) {
	fmt.Fprintf(w, "sentra %s (commit %s, built %s)\n", version, commit, buildDate)
}

func printUsage(w *os.File) {
	fmt.Fprintf(w, `%s — insider threat decision engine

Usage:
  sentra <command> [flags]

Engine:
  run          Start the engine (pipeline, API, simulator)
  init         Write a default config file
  status       Show engine status via the API

Scoring (local, no engine needed):
  score        Score a crafted event and explain the result
  sentiment    Analyze message text

Triage (via the API):
  alerts       List and transition alerts
  cases        List, assign, close, and export cases
  audit        Query the audit trail
  leaderboard  Show the analyst leaderboard

Other:
  version      Print version information

Environment:
  SENTRA_CONFIG   config file path (default configs/default.yaml)
  SENTRA_ADDR     API address override
  SENTRA_API_KEY  API key for authenticated servers
`, bold("sentra"))
}
