package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"latencyctl/internal/eventbus"
)

const (
	defaultPingInterval = 30 * time.Second
	pingWriteTimeout    = 5 * time.Second
)

// Envelope is one frame on the push channel.
type Envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// EventStream reads push events from the backend's WebSocket endpoint and
// fans them out to handlers registered with On.
type EventStream struct {
	url          string
	apiKey       string
	bus          *eventbus.Bus
	dialer       *websocket.Dialer
	pingInterval time.Duration
	onConnect    func()
}

// NewEventStream prepares a stream for url. Handlers registered with On
// receive events once Run is connected.
func NewEventStream(url, apiKey string, bus *eventbus.Bus) *EventStream {
	if bus == nil {
		bus = eventbus.New()
	}
	return &EventStream{
		url:    url,
		apiKey: apiKey,
		bus:    bus,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		pingInterval: defaultPingInterval,
	}
}

// On registers a handler for topic and returns its unregister function.
func (s *EventStream) On(topic string, h eventbus.Handler) func() {
	return s.bus.On(topic, h)
}

// OnConnect sets a callback invoked after every successful dial, before
// the first event is read.
func (s *EventStream) OnConnect(fn func()) {
	s.onConnect = fn
}

// Run connects and pumps events until the socket fails or ctx is done. It
// returns nil when stopped through ctx. There is no reconnect.
func (s *EventStream) Run(ctx context.Context) error {
	header := http.Header{}
	if s.apiKey != "" {
		header.Set("Authorization", "Bearer "+s.apiKey)
	}
	conn, _, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return fmt.Errorf("dial event stream: %w", err)
	}
	defer conn.Close()

	if s.onConnect != nil {
		s.onConnect()
	}

	pongWait := 2 * s.pingInterval
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.readLoop(conn, pongWait)
	})
	g.Go(func() error {
		return s.keepAlive(gctx, conn)
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readLoop fails once nothing, not even a pong, arrived for pongWait.
func (s *EventStream) readLoop(conn *websocket.Conn, pongWait time.Duration) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errStreamClosed
			}
			return fmt.Errorf("read event: %w", err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Topic == "" {
			log.Printf("event stream: dropping undecodable frame (%d bytes)", len(data))
			continue
		}
		s.bus.Emit(env.Topic, env.Payload)
	}
}

// keepAlive pings the backend and closes the socket when ctx ends or a
// ping cannot be sent, which unblocks readLoop.
func (s *EventStream) keepAlive(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(pingWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				_ = conn.Close()
				return fmt.Errorf("ping event stream: %w", err)
			}
		case <-ctx.Done():
			deadline := time.Now().Add(pingWriteTimeout)
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
			_ = conn.Close()
			return nil
		}
	}
}

var errStreamClosed = errors.New("event stream closed by backend")

// IsStreamClosed reports whether err is the backend closing the stream
// cleanly.
func IsStreamClosed(err error) bool {
	return errors.Is(err, errStreamClosed)
}
