// File: protocol/handshake_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/momentics/wspeer/protocol"
)

const sampleRequest = "GET /chat HTTP/1.1\r\n" +
	"Host: example.com:8000\r\n" +
	"Upgrade: websocket\r\n" +
	"Connection: Upgrade\r\n" +
	"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
	"Sec-WebSocket-Version: 13\r\n\r\n"

func TestAcceptKeyVector(t *testing.T) {
	// The worked example from RFC 6455 section 1.3.
	got := protocol.AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Errorf("AcceptKey = %q, want %q", got, want)
	}
}

func TestServerHandshake(t *testing.T) {
	resp, consumed, err := protocol.ServerHandshake([]byte(sampleRequest))
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	if resp == nil {
		t.Fatal("ServerHandshake returned incomplete for a full request")
	}
	if consumed != len(sampleRequest) {
		t.Errorf("consumed = %d, want %d", consumed, len(sampleRequest))
	}
	text := string(resp)
	if !strings.HasPrefix(text, "HTTP/1.1 101 Switching Protocols\r\n") {
		t.Errorf("status line: %q", text)
	}
	if !strings.Contains(text, "Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=\r\n") {
		t.Errorf("accept header missing: %q", text)
	}
	if !strings.HasSuffix(text, "\r\n\r\n") {
		t.Errorf("response not terminated: %q", text)
	}
}

func TestServerHandshakeIncomplete(t *testing.T) {
	for cut := 0; cut < len(sampleRequest)-1; cut++ {
		resp, consumed, err := protocol.ServerHandshake([]byte(sampleRequest[:cut]))
		if err != nil {
			t.Fatalf("cut %d: unexpected error %v", cut, err)
		}
		if resp != nil || consumed != 0 {
			t.Fatalf("cut %d: handshake completed early", cut)
		}
	}
}

func TestServerHandshakeRejects(t *testing.T) {
	cases := []struct {
		name string
		req  string
	}{
		{"non-GET", strings.Replace(sampleRequest, "GET", "POST", 1)},
		{"no upgrade", "GET / HTTP/1.1\r\nHost: x\r\nSec-WebSocket-Key: abc\r\n\r\n"},
		{"no key", "GET / HTTP/1.1\r\nHost: x\r\nUpgrade: websocket\r\n\r\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := protocol.ServerHandshake([]byte(tc.req)); err == nil {
				t.Error("malformed request accepted")
			}
		})
	}
}

func TestClientHandshakeRoundTrip(t *testing.T) {
	req, key := protocol.BuildClientHandshake("example.com:8000", "/chat")
	if key == "" {
		t.Fatal("empty key")
	}
	text := string(req)
	if !strings.HasPrefix(text, "GET /chat HTTP/1.1\r\n") {
		t.Errorf("request line: %q", text)
	}
	for _, h := range []string{
		"Host: example.com:8000\r\n",
		"Upgrade: websocket\r\n",
		"Connection: Upgrade\r\n",
		"Sec-WebSocket-Key: " + key + "\r\n",
		"Sec-WebSocket-Version: 13\r\n",
	} {
		if !strings.Contains(text, h) {
			t.Errorf("missing header %q in %q", h, text)
		}
	}

	// Feed the request through the server side and verify its reply.
	resp, _, err := protocol.ServerHandshake(req)
	if err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}
	consumed, err := protocol.CheckServerHandshake(resp, key)
	if err != nil {
		t.Fatalf("CheckServerHandshake: %v", err)
	}
	if consumed != len(resp) {
		t.Errorf("consumed = %d, want %d", consumed, len(resp))
	}
}

func TestClientHandshakeTrailingFrameBytes(t *testing.T) {
	_, key := protocol.BuildClientHandshake("h:1", "/")
	resp := []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + protocol.AcceptKey(key) + "\r\n\r\n")
	frame := protocol.EncodeFrame(protocol.OpcodeText, true, false, []byte("hi"))
	buffered := append(append([]byte{}, resp...), frame...)

	consumed, err := protocol.CheckServerHandshake(buffered, key)
	if err != nil {
		t.Fatalf("CheckServerHandshake: %v", err)
	}
	if consumed != len(resp) {
		t.Fatalf("consumed = %d, want %d", consumed, len(resp))
	}
	if !bytes.Equal(buffered[consumed:], frame) {
		t.Error("frame bytes after the terminator were disturbed")
	}
}

func TestClientHandshakeAcceptMismatch(t *testing.T) {
	_, key := protocol.BuildClientHandshake("h:1", "/")
	resp := []byte("HTTP/1.1 101 Switching Protocols\r\n" +
		"Sec-WebSocket-Accept: bm90IHRoZSByaWdodCBkaWdlc3Q=\r\n\r\n")
	if _, err := protocol.CheckServerHandshake(resp, key); err == nil {
		t.Error("wrong accept digest was not rejected")
	}
}

func TestClientHandshakeNon101(t *testing.T) {
	_, key := protocol.BuildClientHandshake("h:1", "/")
	resp := []byte("HTTP/1.1 403 Forbidden\r\n\r\n")
	if _, err := protocol.CheckServerHandshake(resp, key); err == nil {
		t.Error("non-101 status accepted")
	}
}
