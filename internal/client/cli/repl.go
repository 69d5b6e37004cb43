package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Me(ctx context.Context) error
	Logout(ctx context.Context) error
	ProvisionAdmin(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	UploadDocument(ctx context.Context) error
	Keygen(ctx context.Context) error
}

// dispatch runs one command. It reports false for an unknown command.
func dispatch(ctx context.Context, a execIface, cmd string) (bool, error) {
	switch cmd {
	case "register":
		return true, a.Register(ctx)
	case "login":
		return true, a.Login(ctx)
	case "me":
		return true, a.Me(ctx)
	case "logout":
		return true, a.Logout(ctx)
	case "provision":
		return true, a.ProvisionAdmin(ctx)
	case "forgot":
		return true, a.ForgotPassword(ctx)
	case "reset":
		return true, a.ResetPassword(ctx)
	case "upload":
		return true, a.UploadDocument(ctx)
	case "keygen":
		return true, a.Keygen(ctx)
	}
	return false, nil
}

// runREPL reads commands from reader until EOF, "exit" or "quit". Commands
// read their own prompts from the same reader.
//
//	Not logged in: register, login, forgot, reset, provision, keygen
//	Logged in:     me, upload, logout
//
// Command errors are printed by the commands themselves; the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("bantx %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, upload, logout, exit")
			} else {
				printlnFn("Available commands: register, login, forgot, reset, provision, keygen, exit")
			}
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			if ok, _ := dispatch(ctx, a, cmd); !ok {
				printlnFn("Unknown command:", cmd)
			}
		}
	}
}
