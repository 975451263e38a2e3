// Command kais is a terminal client for the Kais backend. Every invocation
// resumes the session kept in the configured credential store, so a login in
// one run is still valid in the next.
//
//	kais login -e ana@kais.io            # password from --password or $KAIS_PASSWORD
//	kais whoami
//	kais request GET /orders
//	kais request POST /orders '{"qty":2}'
//	kais watch                           # keep the session alive until interrupted
//	kais logout
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kochabx/kais/errors"
)

const usage = `usage: kais [flags] <command> [args]

commands:
  login                      log in with --email and --password ($KAIS_PASSWORD)
  whoami                     show the current user and session state
  logout                     end the session
  request METHOD PATH [BODY] send an authenticated request, BODY "-" reads stdin
  watch                      keep the session alive, serve the status endpoints

flags:
`

type flags struct {
	config   string
	email    string
	password string
	verbose  bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "kais:", message(err))
		os.Exit(exitCode(err))
	}
}

func run(args []string) error {
	var f flags
	fs := pflag.NewFlagSet("kais", pflag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", "", "configuration file (default ./kais.yaml when present)")
	fs.StringVarP(&f.email, "email", "e", "", "login email")
	fs.StringVarP(&f.password, "password", "p", "", "login password (default $KAIS_PASSWORD)")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fs.SetInterspersed(true)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return errors.BadRequest("%v", err)
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.BadRequest("missing command")
	}
	if f.password == "" {
		f.password = os.Getenv("KAIS_PASSWORD")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newClient(ctx, f)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd, rest := fs.Arg(0), fs.Args()[1:]; cmd {
	case "login":
		return c.login(ctx, f.email, f.password)
	case "whoami":
		return c.whoami()
	case "logout":
		return c.logout(ctx)
	case "request":
		return c.request(ctx, rest)
	case "watch":
		return c.watch(ctx)
	default:
		return errors.BadRequest("unknown command %q", cmd)
	}
}

func message(err error) string {
	e := errors.FromError(err)
	if cause := e.GetCause(); cause != nil && e.Code >= 500 {
		return e.Message + ": " + errors.FromError(cause).Message
	}
	return e.Message
}

func exitCode(err error) int {
	switch {
	case errors.IsInvalidCredentials(err), errors.IsSessionExpired(err),
		errors.IsUnauthorized(err), errors.IsAuthorizationDenied(err):
		return 3
	case errors.IsTransientNetworkFailure(err):
		return 4
	case errors.Code(err) == 400:
		return 2
	default:
		return 1
	}
}
