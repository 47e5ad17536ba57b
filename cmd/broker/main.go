// File: cmd/broker/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/adamnew123456/tabserver/broker"
	"github.com/adamnew123456/tabserver/dispatcher"
	"github.com/adamnew123456/tabserver/pool"
	"github.com/adamnew123456/tabserver/reactor"
)

func main() {
	cmd := &cli.Command{
		Name:      "broker",
		Usage:     "multiplex tabserver line clients onto one WebSocket upstream",
		ArgsUsage: "CLIENT-PORT UPSTREAM-PORT",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "pretty-log", Usage: "human-readable console logging instead of JSON"},
		},
		Action: run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "broker: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	clientPort, upstreamPort, err := parsePorts(cmd.Args().Slice())
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	log := newLogger(cmd.Bool("pretty-log"))

	p := pool.New()
	r := reactor.New(log)
	disp := dispatcher.New(p, log)
	listeners := broker.New(r, p, disp, log)

	upAddr, err := listeners.BindUpstream(fmt.Sprintf("0.0.0.0:%d", upstreamPort))
	if err != nil {
		return cli.Exit(fmt.Sprintf("bind upstream listener: %v", err), 1)
	}
	clientAddr, err := listeners.BindClients(fmt.Sprintf("0.0.0.0:%d", clientPort))
	if err != nil {
		return cli.Exit(fmt.Sprintf("bind client listener: %v", err), 1)
	}
	log.Info().Str("clients", clientAddr).Str("upstream", upAddr).Msg("broker listening")

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		disp.Run()
		close(done)
	}()

	<-sigCtx.Done()
	log.Info().Msg("shutdown signal received, stopping dispatcher")
	disp.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("dispatcher did not stop within the shutdown grace period")
	}
	r.CloseAll()
	return nil
}

func parsePorts(args []string) (client, upstream int, err error) {
	if len(args) != 2 {
		return 0, 0, fmt.Errorf("usage: broker CLIENT-PORT UPSTREAM-PORT")
	}
	client, err = parsePort(args[0])
	if err != nil {
		return 0, 0, fmt.Errorf("client port: %w", err)
	}
	upstream, err = parsePort(args[1])
	if err != nil {
		return 0, 0, fmt.Errorf("upstream port: %w", err)
	}
	if client == upstream {
		return 0, 0, fmt.Errorf("client and upstream ports must be distinct, both are %d", client)
	}
	return client, upstream, nil
}

func parsePort(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a port number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("%d is out of the valid port range 1..65535", n)
	}
	return n, nil
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
