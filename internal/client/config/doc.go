// Package config loads runtime configuration for the chat client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the backend HTTP API
//	-w string   websocket URL of the push stream
//	-d string   path of the local database file
//	-t int      request timeout (seconds)
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_base_url": "https://chat.example.com",
//	  "stream_url": "wss://chat.example.com/ws",
//	  "database_file": "cipherroom.db",
//	  "snapshot_limit": 50,
//	  "page_limit": 30,
//	  "request_timeout": "10s"
//	}
//
// Primary API
//
//   - type Config                     — endpoints, database path and fetch limits
//   - func LoadConfig() *Config       — builds Config by applying defaults, JSON, then flags
//   - func (*Config) LoadDefaults()   — sets sensible defaults
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
