// File: cmd/tabctl/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/tabctl/cmd"
	"github.com/xkilldash9x/tabctl/internal/observability"
)

const panicLogFile = "tabctl-panic.log"

// Replaced in tests.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
	execute     = cmd.Execute
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	osExit(code)
}

// run maps the command outcome to an exit code. Execute has already logged
// any failure. Interrupting a command is a clean exit.
func run(ctx context.Context) int {
	if err := execute(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return 1
	}
	return 0
}

// handlePanic records a crash to panicLogFile so the browser teardown
// output does not bury it.
func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	msg := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(msg), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n%s\n", err, msg)
	} else {
		fmt.Fprintf(os.Stderr, "CRASH DETECTED. Details logged to %s\n", panicLogFile)
	}
	osExit(2)
}
