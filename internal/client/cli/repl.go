package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/cipherroom/internal/client/models"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Rooms(ctx context.Context) error
	Open(ctx context.Context, roomID string) error
	Close(ctx context.Context) error
	Show(ctx context.Context) error
	More(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Edit(ctx context.Context, messageID, text string) error
	Delete(ctx context.Context, messageID string) error
	React(ctx context.Context, messageID, emoji string) error
	Forward(ctx context.Context, messageID, dstRoomID string) error
	Members(ctx context.Context) error
	Create(ctx context.Context, name string, typ models.RoomType) error
	Join(ctx context.Context, roomID string) error
	Leave(ctx context.Context) error
	Upload(ctx context.Context, path string) error
}

// runREPL starts a simple read–eval–print loop for the chat client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Not logged in:
//	  - help             — show available commands
//	  - register         — create an account
//	  - login            — authenticate
//	  - exit | quit      — leave the program
//
//	Logged in:
//	  - rooms            — list rooms with unread counts
//	  - open <room>      — open a room and show its timeline
//	  - close            — leave the room view (cache kept)
//	  - show             — reprint the open room's timeline
//	  - more             — load an older page of history
//	  - send <text>      — send a message to the open room
//	  - edit <id> <text> — edit a message
//	  - del <id>         — delete a message
//	  - react <id> <e>   — toggle an emoji reaction
//	  - fwd <id> <room>  — forward a message to another room
//	  - members          — list members of the open room
//	  - create <name> [public|private|direct]
//	  - join <room>      — join a room
//	  - leave            — leave the open room
//	  - upload <path>    — send a file attachment
//	  - logout           — log out
//	  - exit | quit      — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// report their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cr> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: rooms, open, close, show, more, send, edit, del, react, fwd, members, create, join, leave, upload, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}

		case "register":
			_ = a.Register(ctx)

		case "login":
			_ = a.Login(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "r", "rooms":
			_ = a.Rooms(ctx)

		case "open":
			if len(args) < 1 {
				printlnFn("Usage: open <room>")
				continue
			}
			_ = a.Open(ctx, args[0])

		case "close":
			_ = a.Close(ctx)

		case "show":
			_ = a.Show(ctx)

		case "more":
			_ = a.More(ctx)

		case "s", "send":
			if len(args) < 1 {
				printlnFn("Usage: send <text>")
				continue
			}
			_ = a.Send(ctx, strings.Join(args, " "))

		case "edit":
			if len(args) < 2 {
				printlnFn("Usage: edit <id> <text>")
				continue
			}
			_ = a.Edit(ctx, args[0], strings.Join(args[1:], " "))

		case "del":
			if len(args) < 1 {
				printlnFn("Usage: del <id>")
				continue
			}
			_ = a.Delete(ctx, args[0])

		case "react":
			if len(args) < 2 {
				printlnFn("Usage: react <id> <emoji>")
				continue
			}
			_ = a.React(ctx, args[0], args[1])

		case "fwd":
			if len(args) < 2 {
				printlnFn("Usage: fwd <id> <room>")
				continue
			}
			_ = a.Forward(ctx, args[0], args[1])

		case "members":
			_ = a.Members(ctx)

		case "create":
			if len(args) < 1 {
				printlnFn("Usage: create <name> [public|private|direct]")
				continue
			}
			typ := models.RoomTypePublic
			if len(args) > 1 {
				typ = models.RoomType(args[1])
			}
			_ = a.Create(ctx, args[0], typ)

		case "join":
			if len(args) < 1 {
				printlnFn("Usage: join <room>")
				continue
			}
			_ = a.Join(ctx, args[0])

		case "leave":
			_ = a.Leave(ctx)

		case "upload":
			if len(args) < 1 {
				printlnFn("Usage: upload <path>")
				continue
			}
			_ = a.Upload(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
