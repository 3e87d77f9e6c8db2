package cli

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/cipherroom/internal/client/cache"
	"github.com/cipherroom/internal/client/config"
	"github.com/cipherroom/internal/client/engine"
	"github.com/cipherroom/internal/client/history"
	"github.com/cipherroom/internal/client/keystore"
	"github.com/cipherroom/internal/client/session"
	"github.com/cipherroom/internal/client/storage"
	"github.com/cipherroom/internal/client/transport"
	"github.com/cipherroom/internal/common"
	"github.com/cipherroom/internal/cryptox"
	"github.com/cipherroom/internal/logging"
)

// App is the terminal client: a thin shell over the synchronization engine.
// It owns the local database, the transports and the engine lifecycle; all
// chat semantics live in the engine and its cache.
type App struct {
	config *config.Config
	log    logging.Logger
	reader *bufio.Reader

	db   *sql.DB
	keys keystore.Store
	hist history.Repository

	api    *transport.HTTPClient
	stream *transport.WSStream
	engine *engine.Engine
	sess   *session.Session

	runCancel context.CancelFunc
	runDone   chan struct{}

	// current is the room the user has open; "" when at the room list.
	current string
}

func NewApp(c *config.Config, log logging.Logger) (*App, error) {
	app := &App{
		config: c,
		log:    log,
		reader: bufio.NewReader(os.Stdin),
	}

	if c.DatabaseFile != "" {
		db, err := storage.InitDatabase(context.Background(), c.DatabaseFile)
		if err != nil {
			return nil, fmt.Errorf("initializing database: %w", err)
		}
		app.db = db
		app.keys = keystore.NewSQLite(db)
		app.hist = history.NewSQLiteRepository(db)
	} else {
		app.keys = keystore.NewMemory()
	}

	return app, nil
}

// Run drives the REPL until the user exits, then tears everything down.
func (a *App) Run(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
	a.shutdown()
}

func (a *App) shutdown() {
	if a.runCancel != nil {
		a.runCancel()
		<-a.runDone
		a.runCancel = nil
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) isLoggedIn() bool {
	return a.engine != nil
}

// requireLogin reports whether a session exists, telling the user when not.
func (a *App) requireLogin() bool {
	if a.engine == nil {
		printlnFn("Not logged in.")
		return false
	}
	return true
}

func (a *App) status() string {
	if !a.isLoggedIn() {
		return "logged out"
	}
	if a.current != "" {
		return a.sess.Username + " @ " + a.current
	}
	return a.sess.Username
}

// Register creates an account with a fresh keypair. The password stays on
// the device; the server stores only a salted verifier.
func (a *App) Register(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	kp, err := cryptox.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating keypair: %w", err)
	}
	if err := transport.Register(ctx, nil, a.config.ServerBaseURL, username, password, kp.Public); err != nil {
		printlnFn("Registration failed:", err)
		return err
	}
	if err := a.keys.SetUserKeypair(ctx, kp); err != nil {
		return fmt.Errorf("storing keypair: %w", err)
	}

	printlnFn("Registered. You can now log in.")
	return nil
}

// Login authenticates, wires the transports and the engine and starts the
// push stream.
func (a *App) Login(ctx context.Context) error {
	username, err := GetSimpleText(a.reader, "Username", os.Stdout)
	if err != nil {
		return err
	}
	password, err := GetPassword(os.Stdout)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	tokens, err := transport.Login(ctx, nil, a.config.ServerBaseURL, username, password)
	if err != nil {
		printlnFn("Login failed:", err)
		return err
	}

	sess, err := session.New(a.config.ServerBaseURL, a.config.StreamURL, tokens.AccessToken, tokens.RefreshToken)
	if err != nil {
		return err
	}
	sess.Username = username

	api := transport.NewHTTPClient(a.config.ServerBaseURL,
		&http.Client{Timeout: a.config.RequestTimeout},
		tokens.AccessToken, tokens.RefreshToken)
	stream := transport.NewWSStream(a.config.StreamURL, api.AccessToken, a.log)

	eng, err := engine.New(engine.Options{
		Session:       sess,
		API:           api,
		Stream:        stream,
		Keys:          a.keys,
		Cache:         cache.New(),
		History:       a.hist,
		Log:           a.log,
		SnapshotLimit: a.config.SnapshotLimit,
		PageLimit:     a.config.PageLimit,
	})
	if err != nil {
		return err
	}

	// First login on this device: mint the long-term keypair used for
	// direct-room key derivation.
	if _, kerr := a.keys.UserKeypair(ctx); errors.Is(kerr, common.ErrNotFound) {
		kp, gerr := cryptox.GenerateKeypair()
		if gerr != nil {
			return fmt.Errorf("generating keypair: %w", gerr)
		}
		if serr := a.keys.SetUserKeypair(ctx, kp); serr != nil {
			return fmt.Errorf("storing keypair: %w", serr)
		}
	}

	if err := eng.Bootstrap(ctx); err != nil {
		printlnFn("Could not load rooms:", err)
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.runDone = make(chan struct{})
	go func() {
		defer close(a.runDone)
		if rerr := eng.Run(runCtx); rerr != nil && !errors.Is(rerr, context.Canceled) {
			a.log.Error(runCtx, "engine stopped", "err", rerr)
		}
	}()

	a.sess = sess
	a.api = api
	a.stream = stream
	a.engine = eng
	a.runCancel = cancel

	printlnFn("Logged in as", username)
	return nil
}

// Logout stops the engine and erases local key material and history.
func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		return nil
	}
	if a.runCancel != nil {
		a.runCancel()
		<-a.runDone
		a.runCancel = nil
	}
	if err := a.engine.Logout(ctx); err != nil {
		printlnFn("Logout cleanup failed:", err)
	}
	a.engine = nil
	a.sess = nil
	a.api = nil
	a.stream = nil
	a.current = ""
	printlnFn("Logged out.")
	return nil
}
