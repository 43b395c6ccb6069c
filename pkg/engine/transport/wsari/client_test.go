package wsari

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
	"github.com/voxflow-go/voxflow/pkg/engine/transport"
)

var upgrader = websocket.Upgrader{}

// fakePBX speaks the control protocol from the server side. Behaviors
// are keyed by command type.
type fakePBX struct {
	t      *testing.T
	server *httptest.Server
}

func newFakePBX(t *testing.T, handle func(conn *websocket.Conn, cmd command)) *fakePBX {
	t.Helper()
	p := &fakePBX{t: t}
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var cmd command
			if err := conn.ReadJSON(&cmd); err != nil {
				return
			}
			handle(conn, cmd)
		}
	}))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePBX) url() string {
	return "ws" + strings.TrimPrefix(p.server.URL, "http")
}

func dialTest(t *testing.T, p *fakePBX) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{URL: p.url()}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func ack(conn *websocket.Conn, cmd command) message {
	return message{Type: "response", ID: cmd.ID, OK: true, CallID: cmd.CallID}
}

func TestOriginateAndHangup(t *testing.T) {
	pbx := newFakePBX(t, func(conn *websocket.Conn, cmd command) {
		switch cmd.Type {
		case "originate":
			_ = conn.WriteJSON(message{Type: "response", ID: cmd.ID, OK: true, CallID: "pbx-42"})
		case "hangup":
			_ = conn.WriteJSON(ack(conn, cmd))
		}
	})
	c := dialTest(t, pbx)

	callID, err := c.Originate(context.Background(), "+33100000000", "+33900000000")
	if err != nil {
		t.Fatalf("originate: %v", err)
	}
	if callID != "pbx-42" {
		t.Fatalf("call id = %q", callID)
	}
	if err := c.Hangup(context.Background(), callID); err != nil {
		t.Fatalf("hangup: %v", err)
	}
}

func TestCommandFailureIsTransportError(t *testing.T) {
	pbx := newFakePBX(t, func(conn *websocket.Conn, cmd command) {
		_ = conn.WriteJSON(message{Type: "response", ID: cmd.ID, OK: false, Error: "trunk unavailable"})
	})
	c := dialTest(t, pbx)

	_, err := c.Originate(context.Background(), "+33100000000", "")
	var ce *callerr.Error
	if !errors.As(err, &ce) || ce.Type != callerr.ErrTransport {
		t.Fatalf("err = %v, want transport error", err)
	}
	if !strings.Contains(ce.Message, "trunk unavailable") {
		t.Fatalf("error message lost: %v", ce)
	}
}

func TestPlayBlocksUntilStopPlayback(t *testing.T) {
	var pendingPlay string
	pbx := newFakePBX(t, func(conn *websocket.Conn, cmd command) {
		switch cmd.Type {
		case "play":
			// Held until stop arrives; the response is sent from the
			// stop_playback branch.
			pendingPlay = cmd.ID
		case "stop_playback":
			_ = conn.WriteJSON(ack(conn, cmd))
			_ = conn.WriteJSON(message{Type: "response", ID: pendingPlay, OK: true})
		}
	})
	c := dialTest(t, pbx)

	playDone := make(chan error, 1)
	go func() {
		playDone <- c.Play(context.Background(), "pbx-42", "pitch.wav")
	}()

	select {
	case err := <-playDone:
		t.Fatalf("play returned before stop: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := c.StopPlayback(context.Background(), "pbx-42"); err != nil {
		t.Fatalf("stop playback: %v", err)
	}
	select {
	case err := <-playDone:
		if err != nil {
			t.Fatalf("play after stop: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("play did not return after stop")
	}
}

func TestEventsAndFramesDelivery(t *testing.T) {
	samples := []int16{1000, -1000, 2000, -2000}
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[2*i:], uint16(s))
	}
	b64 := base64.StdEncoding.EncodeToString(raw)

	pbx := newFakePBX(t, func(conn *websocket.Conn, cmd command) {
		if cmd.Type != "originate" {
			return
		}
		_ = conn.WriteJSON(message{Type: "response", ID: cmd.ID, OK: true, CallID: "pbx-42"})
		_ = conn.WriteJSON(message{Type: "event", Event: "answered", CallID: "pbx-42"})
		_ = conn.WriteJSON(message{Type: "frame", CallID: "pbx-42", PCM: b64})
		_ = conn.WriteJSON(message{Type: "event", Event: "hangup", CallID: "pbx-42"})
	})
	c := dialTest(t, pbx)

	frames := c.Frames("pbx-42")
	if _, err := c.Originate(context.Background(), "+33100000000", ""); err != nil {
		t.Fatalf("originate: %v", err)
	}

	select {
	case ev := <-c.Events():
		if ev.Type != transport.EventAnswered || ev.CallID != "pbx-42" {
			t.Fatalf("event = %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("answered event not delivered")
	}

	select {
	case f := <-frames:
		if len(f.PCM) != len(samples) {
			t.Fatalf("frame has %d samples, want %d", len(f.PCM), len(samples))
		}
		for i := range samples {
			if f.PCM[i] != samples[i] {
				t.Fatalf("sample %d = %d, want %d", i, f.PCM[i], samples[i])
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("frame not delivered")
	}

	select {
	case ev := <-c.Events():
		if ev.Type != transport.EventHangup {
			t.Fatalf("event = %+v, want hangup", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("hangup event not delivered")
	}

	// Hangup closes the call's frame stream.
	select {
	case _, ok := <-frames:
		if ok {
			t.Fatalf("unexpected extra frame")
		}
	case <-time.After(time.Second):
		t.Fatalf("frame stream not closed after hangup")
	}
}

func TestDecodePCMRejectsOddPayload(t *testing.T) {
	if _, err := decodePCM(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})); err == nil {
		t.Fatalf("odd payload must be rejected")
	}
	if _, err := decodePCM("!!!"); err == nil {
		t.Fatalf("invalid base64 must be rejected")
	}
}
