package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/docopt/docopt-go"
	xslice "github.com/frantjc/x/slice"
)

var formats = []string{"text", "json", "yaml"}

type config struct {
	IPAPath     string
	IconPath    string
	Format      string
	Envman      string
	DryRun      bool
	P12Path     string
	P12Password string
	Verbosity   int
}

func parseConfig(opts docopt.Opts) (*config, error) {
	cfg := &config{}
	cfg.IPAPath, _ = opts.String("--ipapath")
	cfg.IconPath, _ = opts.String("--icon")
	cfg.Format, _ = opts.String("--format")
	cfg.Envman, _ = opts.String("--envman")
	cfg.DryRun, _ = opts.Bool("--dry-run")
	cfg.P12Path, _ = opts.String("--p12")
	cfg.P12Password, _ = opts.String("--password")
	// Repeated flags are counted, so the value is an int rather than a string
	cfg.Verbosity, _ = opts["--verbose"].(int)

	// Get values from environment if not provided via flags
	if cfg.IPAPath == "" {
		cfg.IPAPath = os.Getenv("IPA_PATH")
	}
	if cfg.Envman == "" {
		cfg.Envman = os.Getenv("ENVMAN_PATH")
	}
	if cfg.Envman == "" {
		cfg.Envman = "envman"
	}
	if cfg.P12Path == "" {
		cfg.P12Path = os.Getenv("IPA_INFO_P12")
	}
	if cfg.P12Password == "" {
		cfg.P12Password = os.Getenv("IPA_INFO_P12_PASSWORD")
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}

	// Validate required parameters
	if cfg.IPAPath == "" {
		return nil, fmt.Errorf("no IPA path provided: use --ipapath or set IPA_PATH")
	}

	absPath, err := filepath.Abs(cfg.IPAPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPA path: %w", err)
	}
	cfg.IPAPath = absPath

	if _, err := os.Stat(cfg.IPAPath); err != nil {
		return nil, fmt.Errorf("IPA path does not exist: %s", cfg.IPAPath)
	}

	if cfg.IconPath != "" {
		if cfg.IconPath, err = filepath.Abs(cfg.IconPath); err != nil {
			return nil, fmt.Errorf("failed to resolve icon path: %w", err)
		}
	}

	if !xslice.Includes(formats, cfg.Format) {
		return nil, fmt.Errorf("unknown format %q, expected one of %v", cfg.Format, formats)
	}

	return cfg, nil
}
