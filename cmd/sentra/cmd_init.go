package main

// ---------------------------------------------------------------------------
// cmd_init.go — write a default config file
// ---------------------------------------------------------------------------

import (
	"flag"
	"fmt"
	"os"

	"github.com/sentra-project/sentra/internal/core"
)

func cmdInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "where to write the config")
	force := fs.Bool("force", false, "overwrite an existing file")
	_ = fs.Parse(args)

	path := envConfig(*configPath)
	if _, err := os.Stat(path); err == nil && !*force {
		errorf("%s already exists — use --force to overwrite", path)
	}

	if err := core.SaveConfig(core.DefaultConfig(), path); err != nil {
		errorf("writing config: %v", err)
	}
	fmt.Printf("%s wrote %s\n", green("ok:"), path)
	fmt.Println(dim("edit it, then start the engine with: sentra run --config " + path))
}
