package observerproto

import (
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/protocol"
)

// Version is the observer protocol version (separate from the host WS protocol).
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeEntry     = "ENTRY"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the document filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Doc limits the stream to one document; empty follows all of them.
	Doc string `json:"doc,omitempty"`
	// IncludeSaves also streams save entries.
	IncludeSaves bool `json:"include_saves,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string            `json:"protocol_version"`
	Active          string            `json:"active,omitempty"`
	Documents       []protocol.DocRef `json:"documents"`
}

// Server -> Client. One per journal entry that passes the filter.
type EntryMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Entry           editor.JournalEntry `json:"entry"`
}
