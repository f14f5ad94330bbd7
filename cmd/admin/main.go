package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"tileforge.dev/internal/persistence/archive"
	persistlog "tileforge.dev/internal/persistence/log"
	"tileforge.dev/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "archives":
			archivesCmd(os.Args[2:])
			return
		case "restore":
			restoreCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "save":
			saveCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	files, err := filepath.Glob(filepath.Join(*dataDir, "*"+snapshot.Ext))
	if err != nil {
		fmt.Fprintln(os.Stderr, "glob:", err)
		os.Exit(1)
	}
	for _, f := range files {
		st, err := os.Stat(f)
		if err != nil {
			continue
		}
		h, err := snapshot.ReadHeader(f)
		if err != nil {
			fmt.Printf("%s\t(unreadable: %v)\n", filepath.Base(f), err)
			continue
		}
		fmt.Printf("%s\tname=%s\trev=%d\tsize=%s\tsaved=%s\n",
			filepath.Base(f), h.Name, h.Revision, humanize.Bytes(uint64(st.Size())), ago(h.SavedAt))
	}
}

func archivesCmd(args []string) {
	fs := flag.NewFlagSet("archives", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	doc := fs.String("doc", "", "document id (optional)")
	_ = fs.Parse(args)

	revs, err := archive.List(*dataDir, strings.TrimSpace(*doc))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list archives:", err)
		os.Exit(1)
	}
	if len(revs) == 0 {
		fmt.Println("no archived revisions")
		return
	}
	for _, r := range revs {
		fmt.Printf("%s\trev=%d\t%s\tarchived=%s\n", r.Doc, r.Revision, r.Snapshot, ago(r.CreatedAt))
	}
}

// restoreCmd copies an archived revision back over the document it was
// taken from (or to -out).
func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	doc := fs.String("doc", "", "document id (required)")
	rev := fs.Int("rev", 0, "archived revision (required)")
	outPath := fs.String("out", "", "output path (optional; defaults to the archived source path)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*doc) == "" || *rev <= 0 {
		fmt.Fprintln(os.Stderr, "missing -doc or -rev")
		os.Exit(2)
	}
	revs, err := archive.List(*dataDir, *doc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list archives:", err)
		os.Exit(1)
	}
	var meta *archive.RevisionMeta
	for i := range revs {
		if revs[i].Revision == *rev {
			meta = &revs[i]
		}
	}
	if meta == nil {
		fmt.Fprintf(os.Stderr, "no archived revision %d for %s\n", *rev, *doc)
		os.Exit(2)
	}

	src := filepath.Join(*dataDir, "archives", meta.Doc, fmt.Sprintf("rev_%03d", meta.Revision), meta.Snapshot)
	dst := strings.TrimSpace(*outPath)
	if dst == "" {
		dst = meta.Source
	}
	// Check the archived copy decodes before overwriting anything.
	if _, err := snapshot.Read(src); err != nil {
		fmt.Fprintln(os.Stderr, "read archived revision:", err)
		os.Exit(1)
	}
	if err := copyFile(src, dst); err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	fmt.Printf("restored %s rev=%d -> %s\n", meta.Doc, meta.Revision, dst)
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	doc := fs.String("doc", "", "document id filter")
	kind := fs.String("kind", "", "entry kind filter (action|save)")
	_ = fs.Parse(args)

	files, err := persistlog.JournalFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "journal files:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	n := 0
	for _, f := range files {
		entries, err := persistlog.ReadJournal(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read journal:", err)
			os.Exit(1)
		}
		for _, e := range entries {
			if *doc != "" && e.Doc != *doc {
				continue
			}
			if *kind != "" && e.Kind != *kind {
				continue
			}
			_ = enc.Encode(e)
			n++
		}
	}
	fmt.Fprintf(os.Stderr, "%d entries from %d files\n", n, len(files))
}

func ago(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return "unknown"
	}
	return humanize.Time(t)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}
