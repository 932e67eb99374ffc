// Command monscrape downloads the bulk responses of a SurveyMonkey collector
// into a local page cache and exports the file uploads found in them as CSV.
//
//	monscrape [-d] [-p] <collector_id> [output_file]
//	monscrape invalidate <collector_id>
//
// Without -d or -p both phases run: download walks the collector's pages,
// serving unchanged pages from the cache, and process flattens every cached
// page into rows.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/Sternrassler/monscrape/pkg/config"
)

// Exit codes.
const (
	exitOK           = 0
	exitError        = 1
	exitMissingToken = 10
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	a := &app{stdout: stdout, stderr: stderr, getenv: getenv}

	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "ERROR:", err)
		if errors.Is(err, config.ErrMissingToken) {
			return exitMissingToken
		}
		return exitError
	}
	return exitOK
}
