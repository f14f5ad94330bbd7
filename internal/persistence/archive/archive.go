package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type RevisionMeta struct {
	Doc       string `json:"doc"`
	Revision  int    `json:"revision"`
	Source    string `json:"source"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// ArchiveRevision copies the stored revision of a document into
// `dataDir/archives/<doc>/rev_<NNN>/` before it is overwritten. A missing
// source file means there is nothing to keep yet and is not an error.
func ArchiveRevision(dataDir, doc, srcPath string, revision int) (archivedPath string, archived bool, err error) {
	if revision <= 0 {
		return "", false, nil
	}
	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}

	archiveDir := filepath.Join(dataDir, "archives", doc, fmt.Sprintf("rev_%03d", revision))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(srcPath))
	if err := copyFile(srcPath, dst); err != nil {
		return "", false, err
	}

	meta := RevisionMeta{
		Doc:       doc,
		Revision:  revision,
		Source:    srcPath,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return dst, true, nil
}

// List returns the archived revisions under dataDir, ordered by document
// and revision. Passing a doc limits the listing to that document.
func List(dataDir, doc string) ([]RevisionMeta, error) {
	pattern := filepath.Join(dataDir, "archives", "*", "rev_*", "meta.json")
	if doc != "" {
		pattern = filepath.Join(dataDir, "archives", doc, "rev_*", "meta.json")
	}
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	out := make([]RevisionMeta, 0, len(paths))
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		var m RevisionMeta
		if err := json.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Doc != out[j].Doc {
			return out[i].Doc < out[j].Doc
		}
		return out[i].Revision < out[j].Revision
	})
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
