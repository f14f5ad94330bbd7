package mcp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	headerClientID  = "x-client-id"
	headerTS        = "x-ts"
	headerNonce     = "x-nonce"
	headerSignature = "x-signature"

	signatureWindow = 5 * time.Minute
)

// canonicalString is what a client signs: the millisecond timestamp,
// method, path, client id, nonce and raw body joined by newlines.
func canonicalString(ts, method, pathname, clientID, nonce string, rawBody []byte) string {
	return ts + "\n" + strings.ToUpper(method) + "\n" + pathname + "\n" +
		strings.TrimSpace(clientID) + "\n" + strings.TrimSpace(nonce) + "\n" + string(rawBody)
}

func signHMAC(secret []byte, canonical string) string {
	h := hmac.New(sha256.New, secret)
	_, _ = h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// Sign sets the auth headers on req for body. Clients and tests use it.
func Sign(req *http.Request, body []byte, secret []byte, clientID, nonce string, now time.Time) {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	req.Header.Set(headerClientID, clientID)
	req.Header.Set(headerTS, ts)
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, signHMAC(secret, canonicalString(ts, req.Method, req.URL.Path, clientID, nonce, body)))
}

type verifyResult struct {
	ClientID   string
	Nonce      string
	HTTPStatus int
	Message    string
}

func verifyHMAC(r *http.Request, rawBody []byte, secret []byte, now time.Time) verifyResult {
	clientID := strings.TrimSpace(r.Header.Get(headerClientID))
	if clientID == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing " + headerClientID}
	}
	tsStr := strings.TrimSpace(r.Header.Get(headerTS))
	if tsStr == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing " + headerTS}
	}
	nonce := strings.TrimSpace(r.Header.Get(headerNonce))
	if nonce == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing " + headerNonce}
	}
	sig := strings.ToLower(strings.TrimSpace(r.Header.Get(headerSignature)))
	if sig == "" {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "missing " + headerSignature}
	}

	tsMS, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad " + headerTS}
	}
	window := signatureWindow.Milliseconds()
	if d := now.UnixMilli() - tsMS; d > window || d < -window {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: headerTS + " outside window"}
	}

	want := signHMAC(secret, canonicalString(tsStr, r.Method, r.URL.Path, clientID, nonce, rawBody))
	if !hmac.Equal([]byte(sig), []byte(want)) {
		return verifyResult{HTTPStatus: http.StatusUnauthorized, Message: "bad signature"}
	}
	return verifyResult{ClientID: clientID, Nonce: nonce}
}
