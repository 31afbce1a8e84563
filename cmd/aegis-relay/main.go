// aegis-relay is a development room authority for interview clients. It
// mints room credentials on /token and relays payloads between the members
// of each room on /ws. With --nats every relayed payload is mirrored to
// aegis.audit.<room>.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"aegisroom/internal/config"
	"aegisroom/internal/logger"
	"aegisroom/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadRelay()
	if err != nil {
		return err
	}

	flagSet := pflag.NewFlagSet("aegis-relay", pflag.ContinueOnError)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	flagSet.StringVar(&cfg.Secret, "secret", cfg.Secret, "HMAC secret for room tokens (AEGIS_RELAY_SECRET)")
	flagSet.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "lifetime of minted room tokens, 0 for none")
	flagSet.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS URL for the audit mirror, empty disables it")
	flagSet.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "debug, info, warn or error")
	flagSet.BoolVar(&cfg.Log.LogToJSON, "log-json", cfg.Log.LogToJSON, "emit JSON log lines")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	logger.Init(cfg.Log)
	log := logger.NewLogger("relay")

	var audit relay.Auditor
	if cfg.NATSURL != "" {
		natsAudit, err := relay.DialAudit(cfg.NATSURL, logger.NewLogger("audit"))
		if err != nil {
			log.Warnf("running without audit mirror: %v", err)
		} else {
			defer natsAudit.Close()
			audit = natsAudit
		}
	}

	hub := relay.NewHub(audit, log)
	server, err := relay.NewServer(relay.Config{
		Secret:   []byte(cfg.Secret),
		TokenTTL: cfg.TokenTTL,
	}, hub, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", cfg.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	hub.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
