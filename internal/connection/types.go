package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrStaleConnection      = errors.New("connection stale (no ping)")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrNoSubscriptions      = errors.New("no subscriptions")
	ErrAlreadyStreaming     = errors.New("already streaming")
	ErrInvalidChannel       = errors.New("invalid channel name")
	ErrNilHandler           = errors.New("nil handler")
	ErrHandlerNotComparable = errors.New("handler type is not comparable")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Frame is one inbound data message, routed by channel name.
type Frame struct {
	Channel    string
	Data       json.RawMessage
	ReceivedAt time.Time
	Session    string // ID of the physical connection that delivered it
}

// Handler receives frames for the channels it is subscribed to.
//
// Handlers are compared with == to detect duplicate registrations, so
// implementations must be comparable; Subscribe rejects other types. Pointer
// receivers are the usual choice.
// HandleFrame must not block: it runs on the connection's read path.
type Handler interface {
	HandleFrame(f Frame)
}

type funcHandler struct {
	fn func(Frame)
}

func (h *funcHandler) HandleFrame(f Frame) { h.fn(f) }

// NewHandler wraps fn in a Handler with its own identity. Keep the returned
// value to unsubscribe later.
func NewHandler(fn func(Frame)) Handler {
	return &funcHandler{fn: fn}
}

// Mode selects how channels map onto physical connections.
type Mode int

const (
	// ModeCombined carries every channel over one connection and updates the
	// channel set with live SUBSCRIBE/UNSUBSCRIBE control messages.
	ModeCombined Mode = iota
	// ModeSingle dedicates the connection to this multiplexer's channel set and
	// reconnects when that set changes.
	ModeSingle
)

func (m Mode) String() string {
	switch m {
	case ModeCombined:
		return "combined"
	case ModeSingle:
		return "single"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "combined" or "single".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "combined", "":
		return ModeCombined, nil
	case "single":
		return ModeSingle, nil
	default:
		return 0, fmt.Errorf("unknown stream mode %q", s)
	}
}

// combinedFrame is the wire envelope used by /stream connections.
type combinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// controlRequest is a live subscription update.
type controlRequest struct {
	Method string   `json:"method"` // "SUBSCRIBE" or "UNSUBSCRIBE"
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// controlResponse acknowledges a controlRequest.
type controlResponse struct {
	Result json.RawMessage `json:"result"`
	ID     *int64          `json:"id"`
	Error  *controlError   `json:"error,omitempty"`
}

type controlError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Full stream URL
	UserAgent        string        // Sent on the handshake when set
	PingInterval     time.Duration // How often we ping the server
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration
	BufferSize       int // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       10000,
	}
}

// ClientFactory creates the transport for one physical connection.
type ClientFactory func(cfg ClientConfig, logger *slog.Logger) Client

// MultiplexerConfig configures a Multiplexer.
type MultiplexerConfig struct {
	BaseURL string // e.g. wss://stream.binance.com:9443
	Mode    Mode
	Client  ClientConfig // URL is filled per connection

	// NewClient overrides the transport; nil uses NewClient.
	NewClient ClientFactory
}

// DefaultMultiplexerConfig returns sensible defaults.
func DefaultMultiplexerConfig() MultiplexerConfig {
	return MultiplexerConfig{
		BaseURL: "wss://stream.binance.com:9443",
		Mode:    ModeCombined,
		Client:  DefaultClientConfig(),
	}
}

// MultiplexerStats provides statistics about a multiplexer.
type MultiplexerStats struct {
	Mode             Mode
	Channels         int
	Handlers         int
	Connected        bool
	Session          string // current session ID, empty when disconnected
	Sessions         int64  // physical connections opened so far
	FramesDispatched int64
	FramesUnrouted   int64 // frames for channels with no handlers
	FramesMalformed  int64
}
