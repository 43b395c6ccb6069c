// Package wsari implements the PBX control channel over a websocket:
// JSON commands correlated by id, an asynchronous event stream, and
// live caller audio frames carried as base64 PCM.
package wsari

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxflow-go/voxflow/pkg/engine/callerr"
	"github.com/voxflow-go/voxflow/pkg/engine/transport"
)

// ErrClosed is returned by commands once the control channel is gone.
var ErrClosed = errors.New("pbx control channel closed")

const frameBuffer = 256

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxMessageBytes  int64
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 20 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
	return c
}

// command is one client request. Every command receives exactly one
// response with the same id; play responds when playback finishes.
type command struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	CallID   string `json:"call_id,omitempty"`
	Number   string `json:"number,omitempty"`
	CallerID string `json:"caller_id,omitempty"`
	Audio    string `json:"audio,omitempty"`
}

// message is the single inbound envelope: responses, events, frames.
type message struct {
	Type string `json:"type"`

	// response fields
	ID         string `json:"id,omitempty"`
	OK         bool   `json:"ok,omitempty"`
	Error      string `json:"error,omitempty"`
	Audio      string `json:"audio,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// event fields
	Event string `json:"event,omitempty"`
	Digit string `json:"digit,omitempty"`

	// frame fields
	PCM string `json:"pcm,omitempty"`

	CallID string `json:"call_id,omitempty"`
}

// Client is the websocket PBX transport. It satisfies
// transport.Transport.
type Client struct {
	cfg    Config
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan message
	frames  map[string]chan transport.Frame
	closed  bool
	err     error

	events chan transport.Event
	done   chan struct{}
}

// Dial connects to the PBX control channel and starts the read and
// ping loops.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial pbx %s: %w", cfg.URL, err)
	}
	conn.SetReadLimit(cfg.MaxMessageBytes)

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		logger:  logger,
		pending: make(map[string]chan message),
		frames:  make(map[string]chan transport.Frame),
		events:  make(chan transport.Event, 64),
		done:    make(chan struct{}),
	}

	pongWait := cfg.PingInterval * 5 / 2
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.readLoop(pongWait)
	go c.pingLoop()
	return c, nil
}

// Close tears down the control channel. In-flight commands fail with
// ErrClosed.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.cfg.WriteTimeout))
	c.writeMu.Unlock()
	err := c.conn.Close()
	c.shutdown(ErrClosed)
	return err
}

func (c *Client) readLoop(pongWait time.Duration) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("undecodable pbx message", "error", err)
			continue
		}
		switch msg.Type {
		case "response":
			c.dispatchResponse(msg)
		case "event":
			c.dispatchEvent(msg)
		case "frame":
			c.dispatchFrame(msg)
		default:
			c.logger.Warn("unknown pbx message type", "type", msg.Type)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.cfg.WriteTimeout))
			c.writeMu.Unlock()
			if err != nil {
				c.shutdown(err)
				return
			}
		}
	}
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	for id, ch := range c.frames {
		close(ch)
		delete(c.frames, id)
	}
	c.mu.Unlock()
	close(c.done)
	close(c.events)
	if !errors.Is(err, ErrClosed) {
		c.logger.Error("pbx control channel lost", "error", err)
	}
}

func (c *Client) dispatchResponse(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	if ok {
		delete(c.pending, msg.ID)
	}
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("response for unknown command", "id", msg.ID)
		return
	}
	ch <- msg
}

func (c *Client) dispatchEvent(msg message) {
	ev := transport.Event{
		Type:   transport.EventType(msg.Event),
		CallID: msg.CallID,
		Digit:  msg.Digit,
		At:     time.Now(),
	}
	if ev.Type == transport.EventHangup {
		c.closeFrames(msg.CallID)
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event stream full, dropping", "type", ev.Type, "call_id", ev.CallID)
	}
}

func (c *Client) dispatchFrame(msg message) {
	pcm, err := decodePCM(msg.PCM)
	if err != nil {
		c.logger.Warn("undecodable audio frame", "call_id", msg.CallID, "error", err)
		return
	}
	frame := transport.Frame{PCM: pcm, At: time.Now()}

	c.mu.Lock()
	ch, ok := c.frames[msg.CallID]
	c.mu.Unlock()
	if !ok {
		return
	}
	// Frames are best-effort live audio; never block the read loop.
	select {
	case ch <- frame:
	default:
	}
}

func (c *Client) closeFrames(callID string) {
	c.mu.Lock()
	ch, ok := c.frames[callID]
	if ok {
		delete(c.frames, callID)
	}
	c.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (c *Client) send(ctx context.Context, cmd command) (message, error) {
	cmd.ID = uuid.NewString()
	ch := make(chan message, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return message{}, ErrClosed
	}
	c.pending[cmd.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	err := c.conn.WriteJSON(cmd)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, cmd.ID)
		c.mu.Unlock()
		return message{}, fmt.Errorf("send %s: %w", cmd.Type, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, cmd.ID)
		c.mu.Unlock()
		return message{}, ctx.Err()
	case <-c.done:
		return message{}, ErrClosed
	case resp, ok := <-ch:
		if !ok {
			return message{}, ErrClosed
		}
		if !resp.OK {
			return message{}, callerr.NewTransportError(cmd.CallID, cmd.Type+": "+resp.Error)
		}
		return resp, nil
	}
}

func (c *Client) Originate(ctx context.Context, number, callerID string) (string, error) {
	resp, err := c.send(ctx, command{Type: "originate", Number: number, CallerID: callerID})
	if err != nil {
		return "", err
	}
	if resp.CallID == "" {
		return "", callerr.NewTransportError("", "originate: pbx returned no call id")
	}
	return resp.CallID, nil
}

// Play blocks until the PBX reports playback finished, which includes
// interruption via StopPlayback.
func (c *Client) Play(ctx context.Context, callID, audioRef string) error {
	_, err := c.send(ctx, command{Type: "play", CallID: callID, Audio: audioRef})
	return err
}

func (c *Client) StopPlayback(ctx context.Context, callID string) error {
	_, err := c.send(ctx, command{Type: "stop_playback", CallID: callID})
	return err
}

func (c *Client) StartRecording(ctx context.Context, callID string) error {
	_, err := c.send(ctx, command{Type: "start_recording", CallID: callID})
	return err
}

func (c *Client) StopRecording(ctx context.Context, callID string) (transport.Recording, error) {
	resp, err := c.send(ctx, command{Type: "stop_recording", CallID: callID})
	if err != nil {
		return transport.Recording{}, err
	}
	return transport.Recording{
		AudioRef: resp.Audio,
		Duration: time.Duration(resp.DurationMS) * time.Millisecond,
	}, nil
}

func (c *Client) Hangup(ctx context.Context, callID string) error {
	_, err := c.send(ctx, command{Type: "hangup", CallID: callID})
	return err
}

func (c *Client) Frames(callID string) <-chan transport.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.frames[callID]; ok {
		return ch
	}
	ch := make(chan transport.Frame, frameBuffer)
	if c.closed {
		close(ch)
		return ch
	}
	c.frames[callID] = ch
	return ch
}

func (c *Client) Events() <-chan transport.Event { return c.events }

// decodePCM decodes base64 little-endian 16-bit samples.
func decodePCM(b64 string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(raw)%2 != 0 {
		return nil, errors.New("odd pcm payload length")
	}
	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return pcm, nil
}
