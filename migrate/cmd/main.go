package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/localfirst/syncd/migrate"
	"github.com/spf13/pflag"
)

func main() {
	opts := migrate.OptionsFromEnv()
	pflag.StringVar(&opts.Driver, "driver", opts.Driver, "sqlite or postgres")
	pflag.StringVar(&opts.DSN, "dsn", opts.DSN, "database connection string")
	pflag.Int64Var(&opts.Target, "target", opts.Target, "version for up-to/down-to")
	pflag.Parse()
	if pflag.NArg() > 0 {
		opts.Command = pflag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.DSN == "" {
		fmt.Fprintln(os.Stderr, "migrate: missing dsn (--dsn or SYNCD_MIGRATE_DSN)")
		os.Exit(2)
	}
	if err := migrate.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate failed: %v\n", err)
		os.Exit(1)
	}
}
