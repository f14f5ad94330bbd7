package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	ClientName      string     `json:"client_name"`
	Auth            *HelloAuth `json:"auth,omitempty"`
	// MaxQueue bounds how many replies the server buffers for this client.
	MaxQueue int `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	SessionID       string      `json:"session_id"`
	Active          string      `json:"active,omitempty"`
	Actions         []ActionRef `json:"actions"`
	Documents       []DocRef    `json:"documents"`
}

type ActionRef struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Shortcut string `json:"shortcut,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

type DocRef struct {
	ID       string `json:"id"`
	Path     string `json:"path,omitempty"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Infinite bool   `json:"infinite,omitempty"`
	Revision int    `json:"revision"`
	Dirty    bool   `json:"dirty,omitempty"`
}

type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ACTION (client -> server). An empty doc_id targets the active document;
// a missing selection uses the document's current one.
type ActionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	DocID           string `json:"doc_id,omitempty"`
	Action          string `json:"action"`
	Selection       *Rect  `json:"selection,omitempty"`
}

// UNDO, REDO and SAVE (client -> server) carry only a target document.
type DocMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	DocID           string `json:"doc_id,omitempty"`
}

type Span struct {
	Start  int `json:"start"`
	Extent int `json:"extent"`
}

// RESULT (server -> client) answers one request by id.
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
	DocID           string `json:"doc_id,omitempty"`
	Action          string `json:"action,omitempty"`
	Applied         bool   `json:"applied"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Span            *Span  `json:"span,omitempty"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
}
