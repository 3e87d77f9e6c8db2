// Package engine is the synchronization controller: the single writer of the
// cache and the only component that touches both transports and the key
// store. The UI calls its operations and observes the cache; the engine owns
// reconciliation of optimistic writes with server echoes, push-event
// ingestion, pagination and room lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cipherroom/internal/client/cache"
	"github.com/cipherroom/internal/client/history"
	"github.com/cipherroom/internal/client/keystore"
	"github.com/cipherroom/internal/client/models"
	"github.com/cipherroom/internal/client/session"
	"github.com/cipherroom/internal/client/transport"
	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
	"github.com/cipherroom/internal/logging"
)

const (
	defaultSnapshotLimit = 50
	defaultPageLimit     = 30

	// typingDebounce limits how often a continuous local typing burst is
	// re-announced on the stream.
	typingDebounce = 2 * time.Second

	sweepInterval = time.Second
)

// Options configures an Engine. API, Stream, Keys, Cache and Session are
// required; History is optional (nil disables persistence).
type Options struct {
	Session *session.Session
	API     transport.API
	Stream  transport.Stream
	Keys    keystore.Store
	Cache   *cache.Cache
	History history.Repository
	Log     logging.Logger

	SnapshotLimit int
	PageLimit     int

	// Now is the clock; tests override it.
	Now func() time.Time
}

// Engine is safe for concurrent use. All cache mutations happen either in an
// operation called by the UI or in the dispatch loop; both paths go through
// the cache's own locking and the engine's bookkeeping mutex.
type Engine struct {
	sess   *session.Session
	api    transport.API
	stream transport.Stream
	keys   keystore.Store
	cache  *cache.Cache
	hist   history.Repository
	log    logging.Logger

	snapshotLimit int
	pageLimit     int
	now           func() time.Time

	mu      sync.Mutex
	focused string
	// epoch is bumped by CloseRoom so an in-flight snapshot fetch for a
	// closed room discards its result instead of resurrecting the room.
	epoch map[string]uint64
	// queued holds room events that arrived while the room's snapshot was
	// loading; they replay in arrival order once the snapshot lands.
	queued map[string][]models.Event
	// pendingReactions records the last local reaction intent per
	// room|message|emoji until the server echo confirms it. A remote echo
	// that contradicts a pending intent is stale and ignored.
	pendingReactions map[string]bool
	// lastTypingEmit debounces outbound typing announcements per room.
	lastTypingEmit map[string]time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Session == nil || opts.API == nil || opts.Stream == nil || opts.Keys == nil || opts.Cache == nil {
		return nil, fmt.Errorf("engine: session, api, stream, keys and cache are required")
	}
	if opts.Log == nil {
		opts.Log = logging.NewNopLogger()
	}
	if opts.SnapshotLimit <= 0 {
		opts.SnapshotLimit = defaultSnapshotLimit
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = defaultPageLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		sess:             opts.Session,
		api:              opts.API,
		stream:           opts.Stream,
		keys:             opts.Keys,
		cache:            opts.Cache,
		hist:             opts.History,
		log:              opts.Log.With("component", "engine"),
		snapshotLimit:    opts.SnapshotLimit,
		pageLimit:        opts.PageLimit,
		now:              opts.Now,
		epoch:            make(map[string]uint64),
		queued:           make(map[string][]models.Event),
		pendingReactions: make(map[string]bool),
		lastTypingEmit:   make(map[string]time.Time),
	}, nil
}

// Cache exposes the observable state for the UI. Read-only by convention:
// the engine is the cache's single writer.
func (e *Engine) Cache() *cache.Cache { return e.cache }

// Bootstrap loads the room list. Called once after login, before Run.
func (e *Engine) Bootstrap(ctx context.Context) error {
	rooms, err := e.api.FetchRooms(ctx)
	if err != nil {
		return fmt.Errorf("fetching rooms: %w", err)
	}
	for _, r := range rooms {
		e.cache.UpsertRoom(r)
	}
	e.log.Info(ctx, "bootstrap complete", "rooms", len(rooms))
	return nil
}

// Run starts the push stream and consumes its events until ctx is cancelled.
// It also drives the periodic typing sweep.
func (e *Engine) Run(ctx context.Context) error {
	streamErr := make(chan error, 1)
	go func() { streamErr <- e.stream.Run(ctx) }()

	events := e.stream.Events()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			<-streamErr
			return ctx.Err()
		case err := <-streamErr:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("stream terminated: %w", err)
		case ev, ok := <-events:
			if !ok {
				events = nil // Run's return surfaces via streamErr
				continue
			}
			e.dispatch(ctx, ev)
		case <-ticker.C:
			e.cache.SweepTyping(e.now())
		}
	}
}

// Logout erases all local key material and persisted history. The cache is
// abandoned with the engine instance.
func (e *Engine) Logout(ctx context.Context) error {
	if e.hist != nil {
		if err := e.hist.Clear(ctx); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
	}
	if err := e.keys.Clear(ctx); err != nil {
		return fmt.Errorf("clearing keys: %w", err)
	}
	return nil
}

// roomKey resolves the symmetric key for a room. For direct rooms with no
// stored key it derives one from the user's keypair and the peer's public
// key, then stores it. Anything else missing is common.ErrKeyMissing.
func (e *Engine) roomKey(ctx context.Context, roomID string) ([]byte, error) {
	key, err := e.keys.RoomKey(ctx, roomID)
	if err == nil {
		return key, nil
	}
	if !isKeyMissing(err) {
		return nil, err
	}

	room, ok := e.cache.Room(roomID)
	if !ok || room.Type != models.RoomTypeDirect {
		return nil, fmt.Errorf("room %s: %w", roomID, common.ErrKeyMissing)
	}

	kp, err := e.keys.UserKeypair(ctx)
	if err != nil {
		return nil, fmt.Errorf("room %s: no user keypair: %w", roomID, common.ErrKeyMissing)
	}
	members, err := e.api.FetchMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("fetching members of %s: %w", roomID, err)
	}
	var peer []byte
	for _, m := range members {
		if m.UserID != e.sess.UserID && len(m.PublicKey) > 0 {
			peer = m.PublicKey
			break
		}
	}
	if peer == nil {
		return nil, fmt.Errorf("room %s: peer public key unavailable: %w", roomID, common.ErrKeyMissing)
	}

	key, err = cryptox.SharedKey(kp.Private, peer)
	if err != nil {
		return nil, fmt.Errorf("deriving key for %s: %w", roomID, err)
	}
	if err := e.keys.PutRoomKey(ctx, roomID, key); err != nil {
		return nil, fmt.Errorf("storing key for %s: %w", roomID, err)
	}
	return key, nil
}

func isKeyMissing(err error) bool {
	return errors.Is(err, common.ErrKeyMissing) || errors.Is(err, common.ErrNotFound)
}
