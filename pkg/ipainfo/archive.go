package ipainfo

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	// PayloadDir is the top-level directory holding the .app bundle in an IPA
	PayloadDir = "Payload"

	// InfoPlistPattern matches the application manifest of the main bundle
	InfoPlistPattern = "Payload/*.app/Info.plist"

	// EmbeddedProfilePattern matches the embedded provisioning profile of the main bundle
	EmbeddedProfilePattern = "Payload/*.app/embedded.mobileprovision"
)

// Archive is an open IPA file. It is owned by a single caller and must be
// closed when no longer needed.
type Archive struct {
	Path string

	rc     *zip.ReadCloser
	files  map[string]*zip.File
	closed bool
}

// DirEntry is a direct child of a directory inside the archive.
type DirEntry struct {
	Name  string
	IsDir bool
}

// OpenArchive opens the IPA at path for reading
func OpenArchive(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open IPA %s: %w: %v", path, ErrArchiveCorrupt, err)
	}

	files := make(map[string]*zip.File, len(rc.File))
	for _, f := range rc.File {
		// Keep the first entry for duplicated names, as readers of the
		// central directory usually do
		if _, ok := files[f.Name]; !ok {
			files[f.Name] = f
		}
	}

	return &Archive{Path: path, rc: rc, files: files}, nil
}

// Entries lists the direct children of dir in central directory order.
// Directories that only exist implicitly through file paths are included.
func (a *Archive) Entries(dir string) ([]DirEntry, error) {
	if a.closed {
		return nil, fmt.Errorf("archive %s is closed", a.Path)
	}

	prefix := strings.Trim(dir, "/")
	if prefix != "" {
		prefix += "/"
	}

	var (
		entries []DirEntry
		index   = map[string]int{}
	)
	for _, f := range a.rc.File {
		if !strings.HasPrefix(f.Name, prefix) {
			continue
		}

		rest := strings.TrimPrefix(f.Name, prefix)
		if rest == "" {
			continue
		}

		name, _, isDir := strings.Cut(rest, "/")
		if name == "" {
			continue
		}

		if i, ok := index[name]; ok {
			// A later entry can reveal that an earlier name is a directory
			if isDir {
				entries[i].IsDir = true
			}
			continue
		}

		index[name] = len(entries)
		entries = append(entries, DirEntry{Name: name, IsDir: isDir})
	}

	return entries, nil
}

// Find returns the name of the first entry matching pattern (path.Match syntax)
func (a *Archive) Find(pattern string) (string, bool) {
	if a.closed {
		return "", false
	}

	for _, f := range a.rc.File {
		if matched, err := path.Match(pattern, f.Name); err == nil && matched {
			return f.Name, true
		}
	}

	return "", false
}

// Size returns the uncompressed size of an entry
func (a *Archive) Size(name string) (uint64, error) {
	f, err := a.lookup(name)
	if err != nil {
		return 0, err
	}

	return f.UncompressedSize64, nil
}

// ReadEntry returns the decompressed contents of an entry
func (a *Archive) ReadEntry(name string) ([]byte, error) {
	f, err := a.lookup(name)
	if err != nil {
		return nil, err
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	return data, nil
}

// ExtractEntry writes the contents of an entry to destPath, replacing any
// existing file
func (a *Archive) ExtractEntry(name, destPath string) error {
	f, err := a.lookup(name)
	if err != nil {
		return err
	}

	if f.FileInfo().IsDir() {
		return fmt.Errorf("cannot extract directory %s", name)
	}

	// Create parent directories
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return err
	}

	srcFile, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", name, err)
	}
	defer srcFile.Close()

	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(destFile, srcFile); err != nil {
		destFile.Close()
		return fmt.Errorf("failed to extract %s: %w", name, err)
	}

	return destFile.Close()
}

// Close releases the underlying file. Calling it more than once is a no-op.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true

	return a.rc.Close()
}

func (a *Archive) lookup(name string) (*zip.File, error) {
	if a.closed {
		return nil, fmt.Errorf("archive %s is closed", a.Path)
	}

	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
	}

	return f, nil
}

// AppBundleDir returns the in-archive directory of the .app bundle that owns
// the given entry, e.g. "Payload/Acme.app" for "Payload/Acme.app/Info.plist"
func AppBundleDir(entry string) string {
	return path.Dir(entry)
}
