package config

import "time"

// Config holds runtime settings for the chat client.
//
// Fields:
//   - ServerBaseURL: base URL of the backend HTTP API.
//   - StreamURL: websocket URL of the push event stream.
//   - DatabaseFile: path of the local SQLite database ("" disables
//     persistence; history and keys then live in memory only).
//   - SnapshotLimit: messages fetched when a room is opened.
//   - PageLimit: messages fetched per LoadMore page.
//   - RequestTimeout: per-request timeout of the HTTP API client.
type Config struct {
	ServerBaseURL  string
	StreamURL      string
	DatabaseFile   string
	SnapshotLimit  int
	PageLimit      int
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8080"
	c.StreamURL = "ws://127.0.0.1:8080/ws"
	c.DatabaseFile = "cipherroom.db"
	c.SnapshotLimit = 50
	c.PageLimit = 30
	c.RequestTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
