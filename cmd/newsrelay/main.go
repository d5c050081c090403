package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"newsrelay/internal/app"
)

func main() {
	cmd := &cli.Command{
		Name:  "newsrelay",
		Usage: "Relay university news to Telegram groups",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Value: "./config.json", Usage: "path to config (json or yaml)", Sources: cli.EnvVars("NEWSRELAY_CONFIG")},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Run the bot and the poll loop (default)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return run(ctx, c.String("config"))
				},
			},
			{
				Name:  "check",
				Usage: "Fetch the feed once and show which items are new; sends nothing",
				Flags: []cli.Flag{
					&cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "overall timeout"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					ctx, cancel := context.WithTimeout(ctx, c.Duration("timeout"))
					defer cancel()
					return app.Check(ctx, c.String("config"), os.Stdout)
				},
			},
			{
				Name:  "destinations",
				Usage: "List registered group chat ids",
				Action: func(ctx context.Context, c *cli.Command) error {
					return app.ListDestinations(c.String("config"), os.Stdout)
				},
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(ctx, c.String("config"))
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	a, err := app.NewApp(cfgPath)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Stop(stopCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	var reason app.StopReason
	select {
	case s := <-sigs:
		reason = app.StopSIGINT
		if s == syscall.SIGTERM {
			reason = app.StopSIGTERM
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Stop(stopCtx, reason)
	if reason == app.StopFatalError {
		return a.Err()
	}
	return nil
}
