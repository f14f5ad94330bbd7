package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tileforge.dev/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// roundTrip validates the JSON encoding of a Go message, so the structs
// and the schemas cannot drift apart.
func roundTrip(t *testing.T, s *jsonschema.Schema, msg any) error {
	t.Helper()
	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return s.Validate(v)
}

func TestSchemas_ValidateMessages(t *testing.T) {
	hello := compile(t, "hello.schema.json")
	welcome := compile(t, "welcome.schema.json")
	action := compile(t, "action.schema.json")
	result := compile(t, "result.schema.json")

	check := func(s *jsonschema.Schema, msg any) {
		t.Helper()
		if err := roundTrip(t, s, msg); err != nil {
			t.Fatalf("validate %T: %v", msg, err)
		}
	}

	check(hello, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: "hostctl",
		Auth: &protocol.HelloAuth{Token: "t"}, MaxQueue: 8,
	})
	check(welcome, protocol.WelcomeMsg{
		Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "S1", Active: "level1",
		Actions: []protocol.ActionRef{
			{ID: "InsertRowsAt", Text: "Insert Rows at Selection"},
			{ID: "Undo", Text: "Undo", Shortcut: "Ctrl+Z"},
		},
		Documents: []protocol.DocRef{{ID: "level1", Width: 5, Height: 5, Revision: 2}},
	})
	check(action, protocol.ActionMsg{
		Type: protocol.TypeAction, ProtocolVersion: protocol.Version, ID: "r1", DocID: "level1",
		Action: "DeleteColsAt", Selection: &protocol.Rect{X: 1, Y: 0, W: 2, H: 1},
	})
	check(action, protocol.DocMsg{Type: protocol.TypeUndo, ProtocolVersion: protocol.Version, ID: "r2"})
	check(result, protocol.ResultMsg{
		Type: protocol.TypeResult, ProtocolVersion: protocol.Version, ID: "r1", Action: "DeleteColsAt",
		Applied: true, Width: 3, Height: 5, Span: &protocol.Span{Start: 1, Extent: 2},
	})
	check(result, protocol.ResultMsg{
		Type: protocol.TypeResult, ProtocolVersion: protocol.Version, ID: "r3",
		Code: protocol.ErrUnknownAction, Message: "unknown action: Bogus",
	})
}

func TestSchemas_RejectMalformed(t *testing.T) {
	action := compile(t, "action.schema.json")
	result := compile(t, "result.schema.json")

	var v any
	_ = json.Unmarshal([]byte(`{"type":"ACTION","protocol_version":"1.0","id":"r1"}`), &v)
	if err := action.Validate(v); err == nil {
		t.Fatalf("ACTION without action accepted")
	}
	_ = json.Unmarshal([]byte(`{"type":"ACTION","protocol_version":"1.0","id":"r1","action":"X","selection":{"x":0,"y":0,"w":-1,"h":1}}`), &v)
	if err := action.Validate(v); err == nil {
		t.Fatalf("negative selection width accepted")
	}
	_ = json.Unmarshal([]byte(`{"type":"RESULT","protocol_version":"1.0","id":"r1","applied":false,"width":1,"height":1,"code":"bad"}`), &v)
	if err := result.Validate(v); err == nil {
		t.Fatalf("lowercase code accepted")
	}
}
