// Package envman hands key/value pairs to the Bitrise envman tool so that
// later steps of a workflow can read them as environment variables.
package envman

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

// Exporter exports a single key/value pair
type Exporter interface {
	Export(ctx context.Context, key, value string) error
}

// Command represents the path to an `envman` executable.
type Command string

func (c Command) String() string {
	return string(c)
}

// Add executes `envman add --key <key> --value <value>` against the
// `envman` found at Command.
func (c Command) Add(ctx context.Context, key, value string) error {
	//nolint:gosec
	cmd := exec.CommandContext(ctx, c.String(), "add", "--key", key, "--value", value)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("failed to export %s: %w: %s", key, err, out)
	}

	return nil
}

// Export implements Exporter.
func (c Command) Export(ctx context.Context, key, value string) error {
	return c.Add(ctx, key, value)
}

// Writer prints KEY=value lines instead of calling envman.
type Writer struct {
	W io.Writer
}

// Export implements Exporter.
func (w *Writer) Export(_ context.Context, key, value string) error {
	_, err := fmt.Fprintf(w.W, "%s=%s\n", key, value)
	return err
}

var (
	_ Exporter = Command("")
	_ Exporter = &Writer{}
)
