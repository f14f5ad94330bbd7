package mcp

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/tilemap"
)

func newTestServer(t *testing.T, secret string) (*httptest.Server, *editor.Session) {
	t.Helper()
	sess := editor.New(editor.Config{Registry: actions.Default(), UndoLimit: 10})
	m := tilemap.New(4, 4, 16, 16)
	m.AddLayer(m.NewTileLayer("ground"))
	if _, err := sess.Add("level1", m); err != nil {
		t.Fatalf("Add: %v", err)
	}
	s, err := NewServer(Config{Editor: sess, HMACSecret: secret})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/mcp", s.Handler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts, sess
}

func rpcPost(t *testing.T, base string, payload any, sign func(*http.Request, []byte)) (int, rpcResponse) {
	t.Helper()
	b, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", base+"/mcp", bytes.NewReader(b))
	req.Header.Set("content-type", "application/json")
	if sign != nil {
		sign(req, b)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	var out rpcResponse
	if res.StatusCode == http.StatusOK {
		if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
			t.Fatalf("decode: %v", err)
		}
	}
	return res.StatusCode, out
}

func callTool(t *testing.T, base, name string, args map[string]any) rpcResponse {
	t.Helper()
	_, resp := rpcPost(t, base, map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "call_tool",
		"params":  map[string]any{"name": name, "arguments": args},
	}, nil)
	return resp
}

func TestMCP_Initialize_And_ListTools(t *testing.T) {
	ts, _ := newTestServer(t, "")

	_, initResp := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 1, "method": "initialize"}, nil)
	if initResp.Error != nil {
		t.Fatalf("initialize error: %+v", initResp.Error)
	}
	rm, _ := initResp.Result.(map[string]any)
	if rm["protocolVersion"] != protocolVersion {
		t.Fatalf("protocolVersion=%v", rm["protocolVersion"])
	}

	for _, method := range []string{"list_tools", "tools/list"} {
		_, lt := rpcPost(t, ts.URL, map[string]any{"jsonrpc": "2.0", "id": 2, "method": method}, nil)
		if lt.Error != nil {
			t.Fatalf("%s error: %+v", method, lt.Error)
		}
		rm2, ok := lt.Result.(map[string]any)
		if !ok {
			t.Fatalf("unexpected %s result type: %T", method, lt.Result)
		}
		tools, ok := rm2["tools"].([]any)
		if !ok {
			t.Fatalf("missing tools array")
		}
		if len(tools) != 6 {
			t.Fatalf("expected 6 tools, got %d", len(tools))
		}
	}
}

func TestMCP_RunActionUndoRedo(t *testing.T) {
	ts, sess := newTestServer(t, "")

	resp := callTool(t, ts.URL, toolRunAction, map[string]any{
		"doc":       "level1",
		"action":    actions.InsertRowsAt,
		"selection": map[string]any{"x": 0, "y": 1, "w": 4, "h": 2},
	})
	if resp.Error != nil {
		t.Fatalf("run_action: %+v", resp.Error)
	}
	res, _ := resp.Result.(map[string]any)
	after, _ := res["after"].(map[string]any)
	if res["applied"] != true || after["h"] != float64(6) {
		t.Fatalf("run_action result=%v", res)
	}

	if resp := callTool(t, ts.URL, toolUndo, map[string]any{"doc": "level1"}); resp.Error != nil {
		t.Fatalf("undo: %+v", resp.Error)
	}
	d, _ := sess.Document("level1")
	if d.Map.Height != 4 {
		t.Fatalf("height after undo=%d want 4", d.Map.Height)
	}
	if resp := callTool(t, ts.URL, toolRedo, map[string]any{"doc": "level1"}); resp.Error != nil {
		t.Fatalf("redo: %+v", resp.Error)
	}
	if d.Map.Height != 6 {
		t.Fatalf("height after redo=%d want 6", d.Map.Height)
	}

	resp = callTool(t, ts.URL, toolListDocuments, nil)
	docs, _ := resp.Result.(map[string]any)["documents"].([]any)
	if len(docs) != 1 || docs[0].(map[string]any)["dirty"] != true {
		t.Fatalf("documents=%v", docs)
	}
}

func TestMCP_ListActionsIncludesMenus(t *testing.T) {
	ts, _ := newTestServer(t, "")
	resp := callTool(t, ts.URL, toolListActions, nil)
	if resp.Error != nil {
		t.Fatalf("list_actions: %+v", resp.Error)
	}
	res, _ := resp.Result.(map[string]any)
	menus, _ := res["menus"].(map[string]any)
	edit, _ := menus["Edit"].([]any)
	found := false
	for _, it := range edit {
		if it.(map[string]any)["action"] == actions.InsertRowsAt {
			found = true
		}
	}
	if !found {
		t.Fatalf("Edit menu=%v", edit)
	}
}

func TestMCP_CallTool_Errors(t *testing.T) {
	ts, _ := newTestServer(t, "")

	if resp := callTool(t, ts.URL, "nope", nil); resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected tool not found (-32601), got %+v", resp.Error)
	}
	if resp := callTool(t, ts.URL, toolRunAction, map[string]any{"doc": "level1"}); resp.Error == nil || resp.Error.Message != "missing action" {
		t.Fatalf("missing action: %+v", resp.Error)
	}
	if resp := callTool(t, ts.URL, toolRunAction, map[string]any{"doc": "nope", "action": actions.InsertRowsAt}); resp.Error == nil || resp.Error.Code != codeToolFailed {
		t.Fatalf("unknown doc: %+v", resp.Error)
	}
	// level1 was never given a path.
	if resp := callTool(t, ts.URL, toolSave, map[string]any{"doc": "level1"}); resp.Error == nil {
		t.Fatalf("expected save without path to fail")
	}
}

func TestMCP_SignedRequests(t *testing.T) {
	ts, _ := newTestServer(t, "topsecret")
	payload := map[string]any{"jsonrpc": "2.0", "id": 1, "method": "list_tools"}

	if status, _ := rpcPost(t, ts.URL, payload, nil); status != http.StatusUnauthorized {
		t.Fatalf("unsigned status=%d want 401", status)
	}
	sign := func(req *http.Request, body []byte) {
		Sign(req, body, []byte("topsecret"), "client_1", "n-1", time.Now())
	}
	status, resp := rpcPost(t, ts.URL, payload, sign)
	if status != http.StatusOK || resp.Error != nil {
		t.Fatalf("signed status=%d resp=%+v", status, resp)
	}
	if status, _ := rpcPost(t, ts.URL, payload, sign); status != http.StatusUnauthorized {
		t.Fatalf("replayed status=%d want 401", status)
	}
}
