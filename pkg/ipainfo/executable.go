package ipainfo

import (
	"bytes"
	"fmt"

	"github.com/blacktop/go-macho"
)

// Architectures returns the CPU names of a thin or fat Mach-O binary
func Architectures(data []byte) ([]string, error) {
	// Parse the Mach-O
	m, err := macho.NewFile(bytes.NewReader(data))
	if err == nil {
		defer m.Close()
		return []string{m.CPU.String()}, nil
	}

	// Try as fat binary
	fat, err := macho.NewFatFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Mach-O: %w", err)
	}
	defer fat.Close()

	arches := make([]string, 0, len(fat.Arches))
	for _, arch := range fat.Arches {
		arches = append(arches, arch.CPU.String())
	}

	return arches, nil
}
