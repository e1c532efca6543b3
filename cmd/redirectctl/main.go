// Command redirectctl manages redirect rules directly against the database.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		var usage *usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// usageError marks mistakes in how the command was invoked
type usageError struct {
	msg string
}

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `redirectctl manages redirect rules stored in the redirector database.

Usage:
  redirectctl [global flags] <command> [flags] [args]

Commands:
`)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-12s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprint(w, `
Global flags:
  --driver string   storage driver, sqlite or mysql (default $STORAGE_DRIVER)
  --dsn string      database DSN (default $STORAGE_DSN)
  --site uint       site ID (default $REDIRECT_DEFAULT_SITE_ID)

Run "redirectctl <command> --help" for command flags.
`)
}
