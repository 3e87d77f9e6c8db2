package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	outBufSize     = 256

	reconnectBase = 500 * time.Millisecond
	reconnectCap  = 30 * time.Second
	maxReconnects = 8
)

// outFrame is a client-to-server frame: subscriptions and typing emits.
type outFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"room_id,omitempty"`
	Stopped bool   `json:"stopped,omitempty"`
}

// WSStream implements Stream over a gorilla websocket connection. One
// goroutine reads, one writes; a dropped connection is re-dialed with
// exponential backoff and the active subscriptions are replayed, so a
// reconnect looks to the engine like a subscription refresh, not a resync.
type WSStream struct {
	url     string
	tokenFn func() string
	log     logging.Logger
	dialer  *websocket.Dialer

	events chan models.Event
	out    chan outFrame

	mu        sync.Mutex
	subs      map[string]struct{}
	connected bool

	// OnState, if set, observes connectivity transitions. Called outside
	// the stream's locks.
	OnState func(connected bool)
}

// NewWSStream creates a stream for the given websocket URL. tokenFn supplies
// the current access token at dial time (it rotates on refresh).
func NewWSStream(url string, tokenFn func() string, log logging.Logger) *WSStream {
	return &WSStream{
		url:     url,
		tokenFn: tokenFn,
		log:     log,
		dialer:  websocket.DefaultDialer,
		events:  make(chan models.Event, outBufSize),
		out:     make(chan outFrame, outBufSize),
		subs:    make(map[string]struct{}),
	}
}

func (s *WSStream) Events() <-chan models.Event { return s.events }

// Run dials and pumps until ctx is cancelled or the bounded reconnect budget
// is exhausted. The events channel is closed on return.
func (s *WSStream) Run(ctx context.Context) error {
	defer close(s.events)

	for {
		backoff := retry.WithCappedDuration(reconnectCap,
			retry.WithMaxRetries(maxReconnects, retry.NewExponential(reconnectBase)))

		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := s.runConn(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warn(ctx, "stream connection lost", "err", err)
				return retry.RetryableError(err)
			}
			return nil
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrTransportUnavailable, err)
		}
		// runConn returned nil without a context cancel: the server closed
		// cleanly; dial again with a fresh backoff budget.
	}
}

func (s *WSStream) runConn(ctx context.Context) error {
	header := http.Header{}
	header.Set(common.AccessTokenHeaderName, s.tokenFn())

	conn, resp, err := s.dialer.DialContext(ctx, s.url, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblock ReadMessage when the context ends.
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	s.setConnected(true)
	defer s.setConnected(false)

	s.resubscribe()

	writeErr := make(chan error, 1)
	go func() { writeErr <- s.writePump(connCtx, conn) }()

	readErr := s.readPump(connCtx, conn)
	cancel()
	<-writeErr
	return readErr
}

func (s *WSStream) readPump(ctx context.Context, conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var ev models.Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.log.Error(ctx, "undecodable stream frame", "err", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *WSStream) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return ctx.Err()
		case frame := <-s.out:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := conn.WriteJSON(frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}

// Subscribe registers interest in a room and announces it if connected. The
// subscription survives reconnects.
func (s *WSStream) Subscribe(roomID string) error {
	s.mu.Lock()
	s.subs[roomID] = struct{}{}
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return nil // replayed on connect
	}
	return s.enqueue(outFrame{Type: "subscribe", RoomID: roomID})
}

func (s *WSStream) Unsubscribe(roomID string) error {
	s.mu.Lock()
	delete(s.subs, roomID)
	connected := s.connected
	s.mu.Unlock()

	if !connected {
		return nil
	}
	return s.enqueue(outFrame{Type: "unsubscribe", RoomID: roomID})
}

// EmitTyping is fire-and-forget; a full buffer drops the indicator rather
// than blocking the caller.
func (s *WSStream) EmitTyping(roomID string, stopped bool) error {
	select {
	case s.out <- outFrame{Type: "typing", RoomID: roomID, Stopped: stopped}:
		return nil
	default:
		return nil
	}
}

func (s *WSStream) enqueue(f outFrame) error {
	select {
	case s.out <- f:
		return nil
	default:
		return fmt.Errorf("%w: stream send buffer full", common.ErrTransportUnavailable)
	}
}

func (s *WSStream) resubscribe() {
	s.mu.Lock()
	rooms := make([]string, 0, len(s.subs))
	for id := range s.subs {
		rooms = append(rooms, id)
	}
	s.mu.Unlock()

	for _, id := range rooms {
		_ = s.enqueue(outFrame{Type: "subscribe", RoomID: id})
	}
}

func (s *WSStream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	cb := s.OnState
	s.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}
