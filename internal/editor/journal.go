package editor

import (
	"context"

	"tileforge.dev/internal/tilemap"
	"tileforge.dev/internal/tilemap/gridshift"
)

const (
	EntryAction = "action"
	EntrySave   = "save"
	// EntryPaint records a brush stroke. Strokes keep the map size.
	EntryPaint = "paint"
)

// JournalEntry records one applied action, brush stroke or save.
type JournalEntry struct {
	Seq    uint64 `json:"seq"`
	Time   string `json:"time"`
	Kind   string `json:"kind"`
	Doc    string `json:"doc"`
	Source string `json:"source,omitempty"`

	Action    string          `json:"action,omitempty"`
	Applied   bool            `json:"applied"`
	Selection *tilemap.Rect   `json:"selection,omitempty"`
	Span      *gridshift.Span `json:"span,omitempty"`
	Before    tilemap.Size    `json:"before"`
	After     tilemap.Size    `json:"after"`
	Message   string          `json:"message,omitempty"`

	Path     string `json:"path,omitempty"`
	Revision int    `json:"revision,omitempty"`
	Archive  string `json:"archive,omitempty"`
}

// JournalSink receives journal entries. Sinks must not block for long;
// the session holds its lock while writing.
type JournalSink interface {
	WriteEntry(e JournalEntry) error
}

type sourceKey struct{}

// WithSource tags actions run with ctx, e.g. "cli", "ws" or "script".
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}
