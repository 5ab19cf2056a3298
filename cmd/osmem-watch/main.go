// Command osmem-watch hot-reloads an allocator debug configuration file
// and prints the resulting Config whenever it changes on disk, using
// fsnotify the same way the teacher package's vfs watcher does.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/orizon-lang/osmem/internal/allocator"
	"github.com/orizon-lang/osmem/internal/cli"
)

// debugConfig is the on-disk shape watched by this tool. It mirrors the
// boolean toggles on allocator.Config; the Config's Logger field is not
// part of it.
type debugConfig struct {
	EnableDebugLog        bool `json:"enable_debug_log"`
	EnableOwnerGuard      bool `json:"enable_owner_guard"`
	EnableIntegrityChecks bool `json:"enable_integrity_checks"`
}

func (c debugConfig) options() []allocator.Option {
	return []allocator.Option{
		allocator.WithDebugLog(c.EnableDebugLog),
		allocator.WithOwnerGuard(c.EnableOwnerGuard),
		allocator.WithIntegrityChecks(c.EnableIntegrityChecks),
	}
}

func loadDebugConfig(path string) (debugConfig, error) {
	var c debugConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config: %w", err)
	}

	return c, nil
}

func main() {
	var (
		showVersion bool
		jsonOutput  bool
		configPath  string
	)

	flag.BoolVar(&showVersion, "version", false, "show version information")
	flag.BoolVar(&jsonOutput, "json", false, "output version in JSON format")
	flag.StringVar(&configPath, "config", "osmem-debug.json", "debug configuration file to watch")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "osmem-watch reloads allocator debug toggles whenever the config file changes.\n\n")
		fmt.Fprintf(os.Stderr, "OPTIONS:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		cli.PrintVersion("osmem-watch", jsonOutput)

		return
	}

	logger := cli.NewLogger(true)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cli.ExitWithError("creating watcher: %v", err)
	}
	defer watcher.Close()

	if err := watcher.Add(configPath); err != nil {
		cli.ExitWithError("watching %s: %v", configPath, err)
	}

	apply := func() {
		cfg, err := loadDebugConfig(configPath)
		if err != nil {
			logger.Error("%v", err)

			return
		}

		allocator.Configure(cfg.options()...)
		logger.Info("reloaded config: debug=%v owner-guard=%v integrity-checks=%v",
			cfg.EnableDebugLog, cfg.EnableOwnerGuard, cfg.EnableIntegrityChecks)
	}

	apply()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}

			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				apply()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			logger.Error("watch error: %v", err)
		}
	}
}
