// Package mcp serves editor tools to automation clients over JSON-RPC.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"tileforge.dev/internal/actions"
	"tileforge.dev/internal/editor"
	"tileforge.dev/internal/tilemap"
)

const protocolVersion = "2024-11-05"

// Editor is the part of an editor session the tools drive.
type Editor interface {
	Documents() []editor.DocumentInfo
	Registry() *actions.Registry
	RunOn(ctx context.Context, docID, actionID string, sel *tilemap.Rect) (actions.Result, error)
	Undo(ctx context.Context, docID string) (actions.Result, error)
	Redo(ctx context.Context, docID string) (actions.Result, error)
	Save(ctx context.Context, docID string) (string, error)
}

type Config struct {
	Editor Editor
	// HMACSecret enables signed requests. Without it every request is
	// accepted and mounting the handler behind a loopback check is up to
	// the caller.
	HMACSecret string
	Logger     *log.Logger
}

type Server struct {
	editor     Editor
	hmacSecret []byte
	replay     *replayGuard
	logger     *log.Logger
	now        func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Editor == nil {
		return nil, fmt.Errorf("nil editor")
	}
	s := &Server{editor: cfg.Editor, logger: cfg.Logger, now: time.Now}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.hmacSecret = []byte(cfg.HMACSecret)
		s.replay = newReplayGuard(0)
	}
	return s, nil
}

// Handler serves JSON-RPC at any path it is mounted on.
func (s *Server) Handler() http.Handler { return http.HandlerFunc(s.handleMCP) }

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 4<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	client := strings.TrimSpace(r.Header.Get(headerClientID))
	if len(s.hmacSecret) > 0 {
		now := s.now()
		vr := verifyHMAC(r, body, s.hmacSecret, now)
		if vr.HTTPStatus != 0 {
			http.Error(rw, vr.Message, vr.HTTPStatus)
			return
		}
		if !s.replay.allow(vr.ClientID, vr.Nonce, now) {
			http.Error(rw, "replayed nonce", http.StatusUnauthorized)
			return
		}
		client = vr.ClientID
	}
	if client == "" {
		client = "anonymous"
	}

	var resp rpcResponse
	req, err := parseRPCRequest(body)
	if err != nil {
		resp = rpcErr(nil, codeParseError, "bad jsonrpc request", err.Error())
	} else {
		resp = s.dispatch(editor.WithSource(r.Context(), "mcp:"+client), req)
	}
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "tileforge"},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools", "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})

	case "call_tool", "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		if p.Name == "" {
			return rpcErr(req.ID, codeInvalidParams, "missing tool name", nil)
		}
		if !isKnownTool(p.Name) {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": p.Name})
		}
		out, err := s.callTool(ctx, p.Name, p.Arguments)
		if err != nil {
			if s.logger != nil {
				s.logger.Printf("tool=%s err=%v", p.Name, err)
			}
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

const (
	toolListDocuments = "tileforge.list_documents"
	toolListActions   = "tileforge.list_actions"
	toolRunAction     = "tileforge.run_action"
	toolUndo          = "tileforge.undo"
	toolRedo          = "tileforge.redo"
	toolSave          = "tileforge.save"
)

func isKnownTool(name string) bool {
	switch name {
	case toolListDocuments, toolListActions, toolRunAction, toolUndo, toolRedo, toolSave:
		return true
	default:
		return false
	}
}

func toolsList() []map[string]any {
	noArgs := map[string]any{"type": "object", "properties": map[string]any{}, "additionalProperties": false}
	docArg := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"doc": map[string]any{"type": "string", "description": "document id; empty means the active document"},
		},
	}
	rect := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
			"y": map[string]any{"type": "integer"},
			"w": map[string]any{"type": "integer", "minimum": 0},
			"h": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"x", "y", "w", "h"},
	}
	return []map[string]any{
		{"name": toolListDocuments, "description": "List open documents with size, revision and dirty state.", "inputSchema": noArgs},
		{"name": toolListActions, "description": "List registered editor actions and the menus that place them.", "inputSchema": noArgs},
		{
			"name":        toolRunAction,
			"description": "Trigger an editor action, optionally replacing the selection first.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"doc":       map[string]any{"type": "string"},
					"action":    map[string]any{"type": "string"},
					"selection": rect,
				},
				"required": []string{"action"},
			},
		},
		{"name": toolUndo, "description": "Undo the last change of a document.", "inputSchema": docArg},
		{"name": toolRedo, "description": "Redo the last undone change of a document.", "inputSchema": docArg},
		{"name": toolSave, "description": "Save a document to its path.", "inputSchema": docArg},
	}
}

var menuNames = []string{"Edit", "Map", "Layer"}

type actionInfo struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Shortcut string `json:"shortcut,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	var p struct {
		Doc       string        `json:"doc"`
		Action    string        `json:"action"`
		Selection *tilemap.Rect `json:"selection"`
	}
	if err := decodeArgs(args, &p); err != nil {
		return nil, err
	}

	switch name {
	case toolListDocuments:
		return map[string]any{"documents": s.editor.Documents()}, nil

	case toolListActions:
		reg := s.editor.Registry()
		list := reg.List()
		out := make([]actionInfo, 0, len(list))
		for _, a := range list {
			out = append(out, actionInfo{ID: a.ID, Text: a.Text, Shortcut: a.Shortcut, Disabled: a.Disabled})
		}
		menus := map[string][]actions.MenuItem{}
		for _, name := range menuNames {
			menus[name] = reg.Menu(name)
		}
		return map[string]any{"actions": out, "menus": menus}, nil

	case toolRunAction:
		if strings.TrimSpace(p.Action) == "" {
			return nil, fmt.Errorf("missing action")
		}
		if p.Selection != nil && (p.Selection.W < 0 || p.Selection.H < 0) {
			return nil, fmt.Errorf("negative selection size")
		}
		return s.editor.RunOn(ctx, p.Doc, p.Action, p.Selection)

	case toolUndo:
		return s.editor.Undo(ctx, p.Doc)

	case toolRedo:
		return s.editor.Redo(ctx, p.Doc)

	case toolSave:
		path, err := s.editor.Save(ctx, p.Doc)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": path}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}
