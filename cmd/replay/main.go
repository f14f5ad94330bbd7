package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	persistlog "tileforge.dev/internal/persistence/log"
)

// replay re-runs journaled actions on an earlier revision of a document and
// checks every step lands on the journaled size.
func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	inPath := fs.String("in", "", "document to start from (e.g. an archived revision)")
	dataDir := fs.String("data", "./data", "runtime data directory holding journal/")
	docID := fs.String("doc", "", "journal document id (default: derived from -in)")
	toRev := fs.Int("to_rev", 0, "stop at the save that wrote this revision (optional)")
	outPath := fs.String("out", "", "write the replayed document here (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*inPath) == "" {
		return fmt.Errorf("missing -in")
	}

	sess := editor.New(editor.Config{Registry: actions.Default()})
	d, err := sess.Open(*inPath)
	if err != nil {
		return err
	}
	doc := strings.TrimSpace(*docID)
	if doc == "" {
		doc = d.ID
	}

	entries, err := journalFor(*dataDir, doc)
	if err != nil {
		return err
	}
	// Seqs restart with every server run, so the journal is walked by
	// position starting after the save that wrote -in.
	start := savedAt(entries, d.Revision) + 1
	if d.Revision > 0 && start == 0 {
		return fmt.Errorf("journal has no save of %s revision %d", doc, d.Revision)
	}
	stop := len(entries)
	if *toRev > 0 {
		i := savedAt(entries, *toRev)
		if i < 0 || i < start {
			return fmt.Errorf("no save of revision %d after revision %d in the journal", *toRev, d.Revision)
		}
		stop = i
	}

	checked, err := replay(sess, d.ID, entries[start:stop])
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "replay ok: doc=%s rev=%d checked=%d size=%dx%d\n", doc, d.Revision, checked, d.Map.Width, d.Map.Height)

	if strings.TrimSpace(*outPath) != "" {
		p, err := sess.SaveAs(context.Background(), d.ID, *outPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	return nil
}

func journalFor(dataDir, doc string) ([]editor.JournalEntry, error) {
	files, err := persistlog.JournalFiles(dataDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no journal files under %s", dataDir)
	}
	var out []editor.JournalEntry
	for _, f := range files {
		entries, err := persistlog.ReadJournal(f)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Doc == doc {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

// savedAt returns the index of the last save that produced revision, or -1.
func savedAt(entries []editor.JournalEntry, revision int) int {
	if revision <= 0 {
		return -1
	}
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Kind == editor.EntrySave && e.Applied && e.Revision == revision {
			return i
		}
	}
	return -1
}

func replay(sess *editor.Session, docID string, entries []editor.JournalEntry) (int, error) {
	ctx := editor.WithSource(context.Background(), "replay")
	d, ok := sess.Document(docID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", editor.ErrDocNotFound, docID)
	}

	checked := 0
	for _, e := range entries {
		if e.Kind != editor.EntryAction || !e.Applied {
			continue
		}
		if got := d.Map.Size(); got != e.Before {
			return checked, fmt.Errorf("seq=%d %s: size before got=%dx%d want=%dx%d", e.Seq, e.Action, got.W, got.H, e.Before.W, e.Before.H)
		}
		res, err := sess.RunOn(ctx, docID, e.Action, e.Selection)
		if err != nil {
			return checked, fmt.Errorf("seq=%d %s: %w", e.Seq, e.Action, err)
		}
		if res.Applied && res.After != e.After {
			return checked, fmt.Errorf("seq=%d %s: size after got=%dx%d want=%dx%d", e.Seq, e.Action, res.After.W, res.After.H, e.After.W, e.After.H)
		}
		checked++
	}
	return checked, nil
}
