package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// session is one physical connection and the channel set it was opened with.
type session struct {
	id       string
	client   Client
	channels []string
	raw      bool // single-channel /ws/<channel> stream without envelope

	stopOnce sync.Once
	stop     chan struct{}
	restart  bool
}

// end asks the stream loop to leave this session, optionally reconnecting.
func (s *session) end(restart bool) {
	s.stopOnce.Do(func() {
		s.restart = restart
		close(s.stop)
	})
}

// Multiplexer routes frames from at most one physical connection to the
// handlers registered per channel.
type Multiplexer struct {
	cfg       MultiplexerConfig
	newClient ClientFactory
	logger    *slog.Logger

	mu        sync.Mutex
	subs      map[string][]Handler
	order     []string // channels in registration order
	sess      *session // live connection, nil when torn down
	streaming bool

	controlID  atomic.Int64
	sessions   atomic.Int64
	dispatched atomic.Int64
	unrouted   atomic.Int64
	malformed  atomic.Int64
}

// NewMultiplexer creates a multiplexer. No connection is opened until Stream.
func NewMultiplexer(cfg MultiplexerConfig, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultMultiplexerConfig().BaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	newClient := cfg.NewClient
	if newClient == nil {
		newClient = NewClient
	}

	return &Multiplexer{
		cfg:       cfg,
		newClient: newClient,
		logger:    logger.With("component", "multiplexer", "mode", cfg.Mode.String()),
		subs:      make(map[string][]Handler),
	}
}

// Mode returns the construction-time mode.
func (m *Multiplexer) Mode() Mode {
	return m.cfg.Mode
}

// Subscribe registers h for channel. Registering the same handler twice is a
// no-op. A new channel is added to a live connection immediately: by control
// message in combined mode, by reconnecting in single mode.
func (m *Multiplexer) Subscribe(channel string, h Handler) error {
	if channel == "" || strings.ContainsAny(channel, "/? ") {
		return fmt.Errorf("%w: %q", ErrInvalidChannel, channel)
	}
	if h == nil {
		return ErrNilHandler
	}
	if !reflect.TypeOf(h).Comparable() {
		return fmt.Errorf("%w: %T", ErrHandlerNotComparable, h)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.subs[channel]
	for _, existing := range handlers {
		if existing == h {
			return nil
		}
	}
	m.subs[channel] = append(handlers, h)
	if len(handlers) > 0 {
		return nil
	}

	m.order = append(m.order, channel)
	m.logger.Debug("channel subscribed", "channel", channel)

	if m.sess == nil {
		return nil
	}
	switch m.cfg.Mode {
	case ModeCombined:
		m.sendControlLocked("SUBSCRIBE", channel)
	case ModeSingle:
		m.sess.end(true)
	}
	return nil
}

// Unsubscribe removes h from channel. When the last handler of the last
// channel goes away the connection is torn down and Stream returns nil.
func (m *Multiplexer) Unsubscribe(channel string, h Handler) error {
	if h == nil || !reflect.TypeOf(h).Comparable() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	handlers := m.subs[channel]
	idx := -1
	for i, existing := range handlers {
		if existing == h {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	if len(handlers) > 1 {
		m.subs[channel] = append(handlers[:idx:idx], handlers[idx+1:]...)
		return nil
	}

	delete(m.subs, channel)
	for i, c := range m.order {
		if c == channel {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	m.logger.Debug("channel unsubscribed", "channel", channel)

	if m.sess == nil {
		return nil
	}
	if m.cfg.Mode == ModeCombined {
		m.sendControlLocked("UNSUBSCRIBE", channel)
	}
	switch {
	case len(m.subs) == 0:
		m.sess.end(false)
	case m.cfg.Mode == ModeSingle:
		m.sess.end(true)
	}
	return nil
}

// Channels returns the subscribed channels in registration order.
func (m *Multiplexer) Channels() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Stream opens a connection for the current channel set and dispatches frames
// until ctx is canceled, the transport fails, or the last channel is
// unsubscribed. It returns ctx.Err() on cancellation, a wrapped transport
// error on failure and nil after the last unsubscribe. Subscriptions survive
// every outcome.
func (m *Multiplexer) Stream(ctx context.Context) error {
	m.mu.Lock()
	if m.streaming {
		m.mu.Unlock()
		return ErrAlreadyStreaming
	}
	if len(m.subs) == 0 {
		m.mu.Unlock()
		return ErrNoSubscriptions
	}
	m.streaming = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.streaming = false
		m.mu.Unlock()
	}()

	for {
		restart, err := m.streamSession(ctx)
		if !restart {
			return err
		}
		m.logger.Debug("channel set changed, reconnecting")
	}
}

// streamSession runs one physical connection. restart reports that the
// channel set changed in single mode and a new connection is wanted.
func (m *Multiplexer) streamSession(ctx context.Context) (restart bool, err error) {
	m.mu.Lock()
	channels := append([]string(nil), m.order...)
	m.mu.Unlock()
	if len(channels) == 0 {
		return false, nil
	}

	sess := &session{
		id:       uuid.NewString(),
		channels: channels,
		raw:      m.cfg.Mode == ModeSingle && len(channels) == 1,
		stop:     make(chan struct{}),
	}
	clientCfg := m.cfg.Client
	clientCfg.URL = m.streamURL(channels, sess.raw)
	logger := m.logger.With("session", sess.id)

	client := m.newClient(clientCfg, logger)
	if err := client.Connect(ctx); err != nil {
		client.Close()
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("connect %s: %w", clientCfg.URL, err)
	}
	sess.client = client
	m.sessions.Add(1)

	if done, restart := m.attach(sess); done {
		client.Close()
		return restart, nil
	}
	defer m.detach(sess)

	logger.Info("stream connected", "channels", len(channels))

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-sess.stop:
			return sess.restart, nil
		case err := <-client.Errors():
			logger.Warn("stream transport failed", "error", err)
			return false, fmt.Errorf("session %s: %w", sess.id, err)
		case msg := <-client.Messages():
			m.dispatch(sess, msg)
		}
	}
}

// attach publishes sess as the live connection, reconciling channels that
// changed while connecting. done reports that the session must not be used.
func (m *Multiplexer) attach(sess *session) (done, restart bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return true, false
	}

	opened := make(map[string]struct{}, len(sess.channels))
	for _, c := range sess.channels {
		opened[c] = struct{}{}
	}
	var added, removed []string
	for _, c := range m.order {
		if _, ok := opened[c]; !ok {
			added = append(added, c)
		}
		delete(opened, c)
	}
	for c := range opened {
		removed = append(removed, c)
	}

	if m.cfg.Mode == ModeSingle && (len(added) > 0 || len(removed) > 0) {
		return true, true
	}

	m.sess = sess
	if len(added) > 0 {
		m.sendControlLocked("SUBSCRIBE", added...)
	}
	if len(removed) > 0 {
		m.sendControlLocked("UNSUBSCRIBE", removed...)
	}
	return false, false
}

// detach tears the session down. Once sess is cleared no subscription can be
// sent to it; later ones wait for the next connection.
func (m *Multiplexer) detach(sess *session) {
	m.mu.Lock()
	if m.sess == sess {
		m.sess = nil
	}
	m.mu.Unlock()

	if err := sess.client.Close(); err != nil {
		m.logger.Debug("close stream connection", "session", sess.id, "error", err)
	}
}

// sendControlLocked sends a live subscription update. Failures are logged;
// a broken transport also ends the stream through its error channel.
func (m *Multiplexer) sendControlLocked(method string, channels ...string) {
	req := controlRequest{
		Method: method,
		Params: channels,
		ID:     m.controlID.Add(1),
	}
	data, err := json.Marshal(req)
	if err != nil {
		m.logger.Error("marshal control request", "error", err)
		return
	}
	if err := m.sess.client.Send(data); err != nil {
		m.logger.Warn("send control request failed", "method", method, "channels", channels, "error", err)
		return
	}
	m.logger.Debug("control request sent", "method", method, "channels", channels, "id", req.ID)
}

func (m *Multiplexer) streamURL(channels []string, raw bool) string {
	if raw {
		return m.cfg.BaseURL + "/ws/" + channels[0]
	}
	return m.cfg.BaseURL + "/stream?streams=" + strings.Join(channels, "/")
}

func (m *Multiplexer) dispatch(sess *session, msg TimestampedMessage) {
	frame, ok := m.decode(sess, msg)
	if !ok {
		return
	}

	m.mu.Lock()
	handlers := append([]Handler(nil), m.subs[frame.Channel]...)
	m.mu.Unlock()

	if len(handlers) == 0 {
		m.unrouted.Add(1)
		return
	}
	m.dispatched.Add(1)
	for _, h := range handlers {
		m.invoke(h, frame)
	}
}

func (m *Multiplexer) invoke(h Handler, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("frame handler panicked", "channel", frame.Channel, "panic", r)
		}
	}()
	h.HandleFrame(frame)
}

// decode extracts the channel and payload from a raw message. Control
// acknowledgements and malformed messages are logged and reported as !ok.
func (m *Multiplexer) decode(sess *session, msg TimestampedMessage) (Frame, bool) {
	frame := Frame{ReceivedAt: msg.ReceivedAt, Session: sess.id}

	if sess.raw {
		if !json.Valid(msg.Data) {
			m.malformed.Add(1)
			m.logger.Warn("dropping malformed frame", "session", sess.id, "size", len(msg.Data))
			return frame, false
		}
		frame.Channel = sess.channels[0]
		frame.Data = msg.Data
		return frame, true
	}

	var env combinedFrame
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		m.malformed.Add(1)
		m.logger.Warn("dropping malformed frame", "session", sess.id, "error", err)
		return frame, false
	}
	if env.Stream != "" && len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
		frame.Channel = env.Stream
		frame.Data = env.Data
		return frame, true
	}

	var resp controlResponse
	if err := json.Unmarshal(msg.Data, &resp); err == nil && resp.ID != nil {
		if resp.Error != nil {
			m.logger.Warn("control request rejected", "id", *resp.ID, "code", resp.Error.Code, "msg", resp.Error.Msg)
		} else {
			m.logger.Debug("control request acknowledged", "id", *resp.ID)
		}
		return frame, false
	}

	m.malformed.Add(1)
	m.logger.Warn("dropping frame without stream", "session", sess.id)
	return frame, false
}

// Stats returns current multiplexer statistics.
func (m *Multiplexer) Stats() MultiplexerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := MultiplexerStats{
		Mode:             m.cfg.Mode,
		Channels:         len(m.subs),
		Sessions:         m.sessions.Load(),
		FramesDispatched: m.dispatched.Load(),
		FramesUnrouted:   m.unrouted.Load(),
		FramesMalformed:  m.malformed.Load(),
	}
	for _, hs := range m.subs {
		stats.Handlers += len(hs)
	}
	if m.sess != nil {
		stats.Connected = m.sess.client.IsConnected()
		stats.Session = m.sess.id
	}
	return stats
}
