package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/fatih/color"
	"github.com/futuredapp/bitrise-step-ipa-info/pkg/envman"
	"github.com/futuredapp/bitrise-step-ipa-info/pkg/ipainfo"
	"github.com/go-logr/logr"
)

const version = "1.0.0"

const usage = `ipa-info - iOS IPA Metadata Tool

Reads the bundle information, provisioning profile and app icon of an IPA file
and exports them for the following steps of a Bitrise workflow.

Usage:
  ipa-info [--ipapath=<path>] [--icon=<path>] [--format=<fmt>] [--envman=<bin>] [--dry-run] [--p12=<path>] [--password=<password>] [-v...]
  ipa-info -h | --help
  ipa-info --version

Options:
  -a --ipapath=<path>    Path to the .ipa file (or IPA_PATH env var)
  --icon=<path>          Where to write the decoded app icon (defaults to icon.png next to the IPA)
  --format=<fmt>         Summary format: text, json or yaml [default: text]
  --envman=<bin>         envman executable used for exporting (or ENVMAN_PATH env var, defaults to envman)
  --dry-run              Print the exported values instead of calling envman
  --p12=<path>           P12 signing identity to check against the profile (or IPA_INFO_P12 env var)
  --password=<password>  Password for the P12 file (or IPA_INFO_P12_PASSWORD env var)
  -v --verbose           Log progress (-v) or debug details (-vv)
  -h --help              Show this help message
  --version              Show version

Exported values:
  IOS_IPA_PACKAGE_NAME   Bundle identifier
  IOS_IPA_FILE_SIZE      Size of the IPA in bytes
  IOS_APP_NAME           CFBundleName
  IOS_APP_VERSION_NAME   CFBundleShortVersionString
  IOS_APP_VERSION_CODE   CFBundleVersion
  IOS_ICON_PATH          Path of the decoded icon, empty if none was found
  IOS_APP_PROFILE_NAME   Name of the embedded provisioning profile

Examples:
  # Inspect an IPA and export its metadata
  ipa-info --ipapath=build/MyApp.ipa

  # Print the metadata as JSON without calling envman
  ipa-info -a build/MyApp.ipa --format=json --dry-run
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fail(fmt.Errorf("failed to parse arguments: %w", err))
	}

	cfg, err := parseConfig(opts)
	if err != nil {
		fail(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx = logr.NewContext(ctx, newLogger(os.Stderr, cfg.Verbosity))

	if err := run(ctx, cfg, os.Stdout); err != nil {
		stop()
		fail(err)
	}
}

// fail prints the error highlighted on stderr and exits with status 1
func fail(err error) {
	_, _ = color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func newLogger(w io.Writer, verbosity int) logr.Logger {
	// Errors are always shown, -v adds info and -vv adds debug messages
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slog.Level(int(slog.LevelWarn) - 4*verbosity),
	})

	return logr.FromSlogHandler(handler)
}

func run(ctx context.Context, cfg *config, stdout io.Writer) error {
	log := logr.FromContextOrDiscard(ctx)

	var inspectOpts []ipainfo.Option
	if cfg.IconPath != "" {
		inspectOpts = append(inspectOpts, ipainfo.WithIconPath(cfg.IconPath))
	}

	if cfg.P12Path != "" {
		p12Data, err := os.ReadFile(cfg.P12Path)
		if err != nil {
			return fmt.Errorf("failed to read P12 file: %w", err)
		}

		identity, err := ipainfo.LoadSigningIdentity(p12Data, cfg.P12Password)
		if err != nil {
			return err
		}

		log.Info("checking signing identity", "commonName", identity.CommonName(), "teamID", identity.TeamID)
		inspectOpts = append(inspectOpts, ipainfo.WithSigningIdentity(identity))
	}

	log.Info("inspecting IPA", "path", cfg.IPAPath)
	md, err := ipainfo.Inspect(ctx, cfg.IPAPath, inspectOpts...)
	if err != nil {
		return err
	}

	if err := printMetadata(stdout, md, cfg.Format); err != nil {
		return fmt.Errorf("failed to print metadata: %w", err)
	}

	var exporter envman.Exporter = envman.Command(cfg.Envman)
	if cfg.DryRun {
		exporter = &envman.Writer{W: stdout}
	}

	return exportOutputs(ctx, exporter, md.Outputs())
}

// exportOutputs stops at the first value that cannot be exported
func exportOutputs(ctx context.Context, exporter envman.Exporter, outputs []ipainfo.Output) error {
	for _, out := range outputs {
		if err := exporter.Export(ctx, out.Key, out.Value); err != nil {
			return fmt.Errorf("failed to export %s: %w", out.Key, err)
		}
	}

	return nil
}
