// Package natsroom joins interview rooms over core NATS subjects. Every
// participant publishes raw payloads to aegis.room.<room> and subscribes
// to the same subject, skipping its own messages.
package natsroom

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"aegisroom/internal/domain"
	"aegisroom/internal/logger"
	"aegisroom/internal/ports"
	"aegisroom/internal/transport"
)

const subjectPrefix = "aegis.room."

var ErrRoomClosed = errors.New("room connection is closed")

// Subject returns the NATS subject carrying a room's payloads.
func Subject(room string) string {
	return subjectPrefix + transport.SubjectToken(room)
}

// Config controls the NATS connection.
type Config struct {
	ConnectTimeout time.Duration
	PayloadBuffer  int
}

// Connector implements ports.RoomConnector on top of NATS. JoinConfig.URL
// is the NATS server URL; the token, when set, is used as the NATS auth
// token.
type Connector struct {
	cfg    Config
	logger *logger.Logger
}

func NewConnector(cfg Config, log *logger.Logger) *Connector {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.PayloadBuffer <= 0 {
		cfg.PayloadBuffer = 64
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{cfg: cfg, logger: log}
}

func (c *Connector) Join(ctx context.Context, cfg ports.JoinConfig) (ports.Room, error) {
	if strings.TrimSpace(cfg.Identity) == "" {
		return nil, errors.New("participant identity is required")
	}
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}

	r := newRoom(cfg.Identity, Subject(cfg.Room), c.cfg.PayloadBuffer, c.logger.WithField("room", cfg.Room))

	opts := []nats.Option{
		nats.Name("aegisroom-" + cfg.Identity),
		nats.Timeout(c.cfg.ConnectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.logger.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			r.logger.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			r.shutdown()
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	r.conn = nc

	sub, err := nc.Subscribe(r.subject, func(msg *nats.Msg) {
		r.handle(msg)
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.subject, err)
	}
	r.sub = sub

	if err := nc.FlushWithContext(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to flush NATS subscription: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-r.closing:
		}
	}()

	return r, nil
}

type room struct {
	identity string
	subject  string
	logger   *logger.Logger

	conn *nats.Conn
	sub  *nats.Subscription

	payloads chan ports.Payload
	closing  chan struct{}

	// mu guards closed. deliveries hold it for reading so payloads is
	// never closed under a sender.
	mu     sync.RWMutex
	closed bool

	closeOnce    sync.Once
	shutdownOnce sync.Once
}

func newRoom(identity, subject string, buffer int, log *logger.Logger) *room {
	return &room{
		identity: identity,
		subject:  subject,
		logger:   log,
		payloads: make(chan ports.Payload, buffer),
		closing:  make(chan struct{}),
	}
}

func (r *room) handle(msg *nats.Msg) {
	sender := msg.Header.Get(transport.SenderHeader)
	if sender == r.identity {
		return
	}
	r.deliver(ports.Payload{Data: append([]byte(nil), msg.Data...), SenderID: sender})
}

func (r *room) deliver(payload ports.Payload) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.payloads <- payload:
	case <-r.closing:
	}
}

func (r *room) Broadcast(_ context.Context, data []byte) error {
	if r.State() != domain.ConnectionConnected {
		return ErrRoomClosed
	}
	msg := nats.NewMsg(r.subject)
	msg.Header.Set(transport.SenderHeader, r.identity)
	msg.Data = data
	if err := r.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish to %s: %w", r.subject, err)
	}
	return nil
}

func (r *room) Payloads() <-chan ports.Payload {
	return r.payloads
}

func (r *room) State() domain.ConnectionState {
	select {
	case <-r.closing:
		return domain.ConnectionDisconnected
	default:
	}
	if r.conn == nil {
		return domain.ConnectionConnecting
	}
	switch r.conn.Status() {
	case nats.CONNECTED:
		return domain.ConnectionConnected
	case nats.CONNECTING, nats.RECONNECTING:
		return domain.ConnectionConnecting
	default:
		return domain.ConnectionDisconnected
	}
}

func (r *room) Close() error {
	var err error
	r.closeOnce.Do(func() {
		if r.sub != nil {
			err = r.sub.Unsubscribe()
		}
		if r.conn != nil {
			r.conn.Close()
		}
	})
	r.shutdown()
	return err
}

// shutdown closes the payload channel once. It runs from Close and from
// the connection's closed handler.
func (r *room) shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.closing)

		r.mu.Lock()
		r.closed = true
		close(r.payloads)
		r.mu.Unlock()
	})
}
