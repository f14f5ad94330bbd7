// Command hostctl drives a running server over /v1/ws: it sends one
// request and prints the RESULT.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"tileforge.dev/internal/protocol"
)

func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "hostctl", "client name")
		token  = flag.String("token", "", "auth token (or set TILEFORGE_TOKEN)")
		doc    = flag.String("doc", "", "document id (default: active)")
		sel    = flag.String("sel", "", "selection x,y,w,h for actions")
		listOn = flag.Bool("list", false, "print documents and actions from WELCOME and exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hostctl] ", log.LstdFlags|log.Lmicroseconds)
	if !*listOn && flag.NArg() == 0 {
		logger.Fatalf("usage: hostctl [flags] <ActionID|UNDO|REDO|SAVE>")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("TILEFORGE_TOKEN"))
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        8,
	}
	if tok != "" {
		hello.Auth = &protocol.HelloAuth{Token: tok}
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Printf("WELCOME session=%s active=%s docs=%d", w.SessionID, w.Active, len(w.Documents))
	if *listOn {
		for _, d := range w.Documents {
			fmt.Printf("doc %s %dx%d rev=%d dirty=%v\n", d.ID, d.Width, d.Height, d.Revision, d.Dirty)
		}
		for _, a := range w.Actions {
			fmt.Printf("action %s %q %s\n", a.ID, a.Text, a.Shortcut)
		}
		return
	}

	req, err := buildRequest(flag.Arg(0), *doc, *sel)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if err := conn.WriteJSON(req); err != nil {
		logger.Fatalf("send: %v", err)
	}
	var res protocol.ResultMsg
	if err := conn.ReadJSON(&res); err != nil {
		logger.Fatalf("read RESULT: %v", err)
	}
	b, _ := json.Marshal(res)
	fmt.Println(string(b))
	if res.Code != "" {
		os.Exit(1)
	}
}

func buildRequest(verb, doc, sel string) (any, error) {
	id := "R" + strconv.FormatInt(time.Now().UnixNano(), 36)
	switch strings.ToUpper(verb) {
	case protocol.TypeUndo, protocol.TypeRedo, protocol.TypeSave:
		return protocol.DocMsg{Type: strings.ToUpper(verb), ProtocolVersion: protocol.Version, ID: id, DocID: doc}, nil
	}
	m := protocol.ActionMsg{Type: protocol.TypeAction, ProtocolVersion: protocol.Version, ID: id, DocID: doc, Action: verb}
	if sel != "" {
		var v [4]int
		parts := strings.Split(sel, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("bad -sel %q: want x,y,w,h", sel)
		}
		for i, p := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("bad -sel %q: %w", sel, err)
			}
			v[i] = n
		}
		m.Selection = &protocol.Rect{X: v[0], Y: v[1], W: v[2], H: v[3]}
	}
	return m, nil
}
