package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrUnauthorized    = "E_UNAUTHORIZED"

	// Document routing/state.
	ErrDocNotFound = "E_DOC_NOT_FOUND"
	ErrNoActiveDoc = "E_NO_ACTIVE_DOC"
	ErrNoPath      = "E_NO_PATH"
	ErrBusy        = "E_BUSY"

	// Action layer.
	ErrBadRequest     = "E_BAD_REQUEST"
	ErrUnknownAction  = "E_UNKNOWN_ACTION"
	ErrActionDisabled = "E_ACTION_DISABLED"
	ErrInternal       = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrUnauthorized:    {},
	ErrDocNotFound:     {},
	ErrNoActiveDoc:     {},
	ErrNoPath:          {},
	ErrBusy:            {},
	ErrBadRequest:      {},
	ErrUnknownAction:   {},
	ErrActionDisabled:  {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
