package mcp

import (
	"bytes"
	"net/http"
	"testing"
	"time"
)

func TestHMAC_SignAndVerify_Vector(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte("{\"jsonrpc\":\"2.0\",\"id\":1,\"method\":\"list_tools\"}")

	got := signHMAC(secret, canonicalString("1700000000000", "post", "/mcp", "client_1", "n-1", body))
	want := "c8403c671a0eb542973f10f08d0ef20a3ef7b1f4204b71dc177cbcf7bc39addd"
	if got != want {
		t.Fatalf("signature mismatch: got=%s want=%s", got, want)
	}

	req, _ := http.NewRequest("POST", "http://example.invalid/mcp", bytes.NewReader(body))
	Sign(req, body, secret, "client_1", "n-1", time.UnixMilli(1700000000000))
	if req.Header.Get(headerSignature) != want {
		t.Fatalf("Sign header=%s want %s", req.Header.Get(headerSignature), want)
	}
	vr := verifyHMAC(req, body, secret, time.UnixMilli(1700000000000+1000))
	if vr.HTTPStatus != 0 {
		t.Fatalf("expected ok, got status=%d msg=%s", vr.HTTPStatus, vr.Message)
	}
	if vr.ClientID != "client_1" || vr.Nonce != "n-1" {
		t.Fatalf("verify result=%+v", vr)
	}
}

func TestHMAC_Verify_Rejects(t *testing.T) {
	secret := []byte("topsecret")
	body := []byte("{\"jsonrpc\":\"2.0\"}")
	signedAt := time.UnixMilli(1700000000000)

	newReq := func() *http.Request {
		req, _ := http.NewRequest("POST", "http://example.invalid/mcp", bytes.NewReader(body))
		Sign(req, body, secret, "client_1", "n-1", signedAt)
		return req
	}

	if vr := verifyHMAC(newReq(), body, secret, signedAt.Add(301*time.Second)); vr.HTTPStatus != http.StatusUnauthorized {
		t.Fatalf("expired: status=%d", vr.HTTPStatus)
	}
	if vr := verifyHMAC(newReq(), []byte(`{"jsonrpc":"2.0","x":1}`), secret, signedAt); vr.Message != "bad signature" {
		t.Fatalf("tampered body: %+v", vr)
	}
	if vr := verifyHMAC(newReq(), body, []byte("other"), signedAt); vr.Message != "bad signature" {
		t.Fatalf("wrong secret: %+v", vr)
	}
	req := newReq()
	req.Header.Del(headerNonce)
	if vr := verifyHMAC(req, body, secret, signedAt); vr.Message != "missing x-nonce" {
		t.Fatalf("missing nonce: %+v", vr)
	}
}
