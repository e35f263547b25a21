package codec

import (
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// WriteFileAtomic writes b to path via a sibling temp file, fsyncs the file,
// renames it over the destination, and fsyncs the containing directory.
// On any failure the temp file is removed; no half-written file is ever
// visible at path (spec.md §4.A).
func WriteFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp := filepath.Join(dir, "."+filepath.Base(path)+".tmp-"+uuid.NewString()[:8])
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmp)
	}()

	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	return fsyncDir(dir)
}

// WriteJSONAtomic canonicalizes v and writes it atomically to path.
func WriteJSONAtomic(path string, v any) error {
	b, err := CanonicalJSON(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, b)
}

// WriteJSONLAtomic canonicalizes each element of rows (one per line, '\n'
// terminated, trailing newline after the last line) and writes the whole
// file atomically. An empty rows slice produces an empty file.
func WriteJSONLAtomic(path string, rows []any) error {
	var buf []byte
	for _, r := range rows {
		line, err := CanonicalJSONLine(r)
		if err != nil {
			return err
		}
		buf = append(buf, line...)
		buf = append(buf, '\n')
	}
	return WriteFileAtomic(path, buf)
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
