package main

// ---------------------------------------------------------------------------
// helpers.go — TTY detection, color, error helpers, env-based config
// ---------------------------------------------------------------------------

import (
	"fmt"
	"os"
	"strings"

	"github.com/sentra-project/sentra/internal/core"
)

const defaultConfigPath = "configs/default.yaml"

// ---------------------------------------------------------------------------
// TTY / color helpers
// ---------------------------------------------------------------------------

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func colorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return isTTY(os.Stderr)
}

func ansi(code, s string) string {
	if !colorEnabled() {
		return s
	}
	return code + s + "\033[0m"
}

func red(s string) string    { return ansi("\033[91m", s) }
func yellow(s string) string { return ansi("\033[93m", s) }
func green(s string) string  { return ansi("\033[32m", s) }
func cyan(s string) string   { return ansi("\033[36m", s) }
func dim(s string) string    { return ansi("\033[90m", s) }
func bold(s string) string   { return ansi("\033[1m", s) }

// bandColor renders a band name in its severity color.
func bandColor(band string) string {
	switch band {
	case "CRITICAL":
		return red(band)
	case "HIGH":
		return yellow(band)
	case "MEDIUM":
		return cyan(band)
	default:
		return green(band)
	}
}

// ---------------------------------------------------------------------------
// Error / warn helpers (always to stderr)
// ---------------------------------------------------------------------------

func errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, red("error: ")+format+"\n", args...)
	os.Exit(1)
}

func warnf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, yellow("warn: ")+format+"\n", args...)
}

// ---------------------------------------------------------------------------
// Env-based configuration
//
// Environment variables:
//   SENTRA_CONFIG  — default config file path
//   SENTRA_ADDR    — API address override
//   SENTRA_API_KEY — API key for authentication
// ---------------------------------------------------------------------------

// envConfig returns the config path, preferring flag > env > default.
func envConfig(flagVal string) string {
	if flagVal != "" && flagVal != defaultConfigPath {
		return flagVal
	}
	if e := os.Getenv("SENTRA_CONFIG"); e != "" {
		return e
	}
	return flagVal
}

// loadConfigOrDefault loads the config file, falling back to defaults when
// the file does not exist. Local commands work out of the box that way.
func loadConfigOrDefault(path string) *core.Config {
	cfg, err := core.LoadConfig(path)
	if err != nil {
		if os.IsNotExist(unwrapAll(err)) {
			return core.DefaultConfig()
		}
		errorf("loading config %s: %v", path, err)
	}
	return cfg
}

func unwrapAll(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return err
		}
		inner := u.Unwrap()
		if inner == nil {
			return err
		}
		err = inner
	}
}

// apiBase resolves the API base URL from flag, env, and config.
func apiBase(addrOverride, configPath string) string {
	addr := ""
	if addrOverride != "" {
		addr = addrOverride
	} else if e := os.Getenv("SENTRA_ADDR"); e != "" {
		addr = e
	} else {
		cfg := loadConfigOrDefault(configPath)
		addr = cfg.Server.Addr
	}
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimSuffix(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}

// resolveAPIKey returns the API key from flag, env, or config (in that order).
func resolveAPIKey(flagKey, configPath string) string {
	if flagKey != "" {
		return flagKey
	}
	if envKey := os.Getenv("SENTRA_API_KEY"); envKey != "" {
		return envKey
	}
	cfg := loadConfigOrDefault(configPath)
	return cfg.Server.APIKey
}
