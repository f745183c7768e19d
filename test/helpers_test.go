package test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/asciiarena/asciiarena/protocol"
)

// readMessage receives one envelope with a read deadline so a silent
// server fails the test instead of hanging it.
func readMessage(t *testing.T, ws *websocket.Conn, timeout time.Duration) (protocol.Message, error) {
	t.Helper()
	if ws == nil {
		return protocol.Message{}, errors.New("websocket connection is nil")
	}
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return protocol.Message{}, fmt.Errorf("setting read deadline: %w", err)
	}
	defer func() { _ = ws.SetReadDeadline(time.Time{}) }()

	var msg protocol.Message
	if err := websocket.JSON.Receive(ws, &msg); err != nil {
		return protocol.Message{}, err
	}
	return msg, nil
}

// waitForType reads and discards envelopes until one of the wanted type
// arrives. STATE_UPDATE broadcasts interleave with everything else, so
// most assertions go through here.
func waitForType(t *testing.T, ws *websocket.Conn, msgType string, timeout time.Duration) protocol.Message {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("no %s message within %v", msgType, timeout)
		}
		msg, err := readMessage(t, ws, remaining)
		if err != nil {
			t.Fatalf("reading while waiting for %s: %v", msgType, err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

// waitForConnect reads CONNECT messages until one satisfies the predicate.
// The server sends a bare welcome first and the join/resume answer later.
func waitForConnect(t *testing.T, ws *websocket.Conn, timeout time.Duration, accept func(protocol.ConnectPayload) bool) protocol.ConnectPayload {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		msg := waitForType(t, ws, protocol.TypeConnect, time.Until(deadline))
		var payload protocol.ConnectPayload
		if err := msg.DecodePayload(&payload); err != nil {
			t.Fatalf("decoding CONNECT payload: %v", err)
		}
		if accept(payload) {
			return payload
		}
	}
}

func sendMessage(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	msg, err := protocol.New(msgType, payload)
	if err != nil {
		t.Fatalf("encoding %s: %v", msgType, err)
	}
	if err := websocket.JSON.Send(ws, msg); err != nil {
		t.Fatalf("sending %s: %v", msgType, err)
	}
}
