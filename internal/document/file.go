package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// newFileMode is the mode of a document saved for the first time.
const newFileMode = 0644

// File is a Buffer loaded from, and saved back to, a path on disk.
type File struct {
	*Buffer
	Path string
}

// Open reads path into a File. Line endings are normalized to LF. A missing
// file opens as an empty document.
func Open(path string) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", abs, err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return &File{Buffer: NewBuffer(text), Path: abs}, nil
}

// Save writes the buffer to disk through a temporary file and a rename.
func (f *File) Save() error {
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.Path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(f.Text()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	// CreateTemp makes the file 0600; keep the mode of the file being replaced.
	mode := os.FileMode(newFileMode)
	if info, err := os.Stat(f.Path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replace %s: %w", f.Path, err)
	}
	return nil
}
