package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Enroll(ctx context.Context, args []string) error
	Login(ctx context.Context) error
	WhoAmI(ctx context.Context) error
	Rotate(ctx context.Context) error
	Upload(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Get(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Purge(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
}

// runREPL reads one command per line from reader and dispatches it to a.
// Command errors are printed and the loop goes on; it ends on EOF or on
// "exit"/"quit".
//
//	Not logged in:
//	  - enroll <user>           create an allowlisted user and keep its token
//	  - login                   enter a token at a hidden prompt
//
//	Logged in:
//	  - whoami                  show usage
//	  - rotate                  replace the token
//	  - upload <path>           upload a file
//	  - (l)ist                  list files
//	  - get <id> [dest]         download a file
//	  - delete <id>             delete a file
//	  - purge [all|expired]     delete many files after confirmation
//	  - logout                  forget the token
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("bk %s > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: whoami, rotate, upload, (l)ist, get, delete, purge, logout, exit")
			} else {
				printlnFn("Available commands: enroll, login, exit")
			}
		case "enroll":
			cmdErr = a.Enroll(ctx, args)
		case "login":
			cmdErr = a.Login(ctx)
		case "whoami":
			cmdErr = a.WhoAmI(ctx)
		case "rotate":
			cmdErr = a.Rotate(ctx)
		case "upload":
			cmdErr = a.Upload(ctx, args)
		case "l", "list":
			cmdErr = a.List(ctx)
		case "get":
			cmdErr = a.Get(ctx, args)
		case "delete":
			cmdErr = a.Delete(ctx, args)
		case "purge":
			cmdErr = a.Purge(ctx, args)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("error:", cmdErr)
		}
	}
}
