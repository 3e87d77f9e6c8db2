// Package cli implements the terminal front end of the chat client: a REPL
// that dispatches to the synchronization engine and renders its cache. It
// contains no chat semantics of its own; everything it shows comes from the
// engine's cache and everything it does goes through engine operations.
package cli
