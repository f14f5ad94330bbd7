// Package export writes maps in external formats.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"tileforge.dev/internal/tilemap"
)

var ErrUnknownFormat = errors.New("export: unknown format")

type Format interface {
	Name() string
	Description() string
	Extension() string
	Write(w io.Writer, m *tilemap.Map) error
}

var (
	mu      sync.RWMutex
	formats = map[string]Format{}
)

// Register adds f to the registry, replacing any format with the same name.
func Register(f Format) {
	mu.Lock()
	defer mu.Unlock()
	formats[f.Name()] = f
}

func Lookup(name string) (Format, error) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := formats[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
	return f, nil
}

// Names lists registered formats in sorted order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(formats))
	for n := range formats {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WriteFile exports m with the named format. A missing extension on path
// is filled in from the format.
func WriteFile(name, path string, m *tilemap.Map) (string, error) {
	f, err := Lookup(name)
	if err != nil {
		return "", err
	}
	if filepath.Ext(path) == "" {
		path += "." + f.Extension()
	}
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if err := f.Write(out, m); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return path, os.Rename(tmp, path)
}

// baseName returns the file name up to its first dot.
func baseName(p string) string {
	p = filepath.Base(filepath.ToSlash(p))
	if i := strings.IndexByte(p, '.'); i >= 0 {
		p = p[:i]
	}
	return p
}
