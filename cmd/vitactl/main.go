// Command vitactl is an interactive client for vitaauth-server. It keeps the
// access token in memory and the refresh token in a cookie jar, so every
// command goes through the client's refresh coordinator.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/vitadrop/vitaauth/client"
)

func main() {
	server := flag.String("server", envOr("VITAAUTH_SERVER", "http://localhost:4000"), "server base URL")
	prefix := flag.String("prefix", client.DefaultPrefix, "route prefix of the user API")
	timeout := flag.Duration("refresh-timeout", client.DefaultRefreshTimeout, "upper bound for one token refresh")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	sh := &shell{out: os.Stdout}

	c, err := client.New(*server, client.Options{
		Prefix:         *prefix,
		RefreshTimeout: *timeout,
		Logger:         logger,
		OnSessionEnd: func(error) {
			sh.printf("session ended, please log in again\n")
		},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vitactl: %v\n", err)
		os.Exit(2)
	}
	sh.api = c

	sh.run(ctx, bufio.NewScanner(os.Stdin), 30*time.Second)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
