// Package wsroom joins interview rooms hosted by the websocket relay.
package wsroom

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aegisroom/internal/domain"
	"aegisroom/internal/logger"
	"aegisroom/internal/ports"
	"aegisroom/internal/transport"
)

var ErrRoomClosed = errors.New("room connection is closed")

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
)

// Config controls the websocket dialer.
type Config struct {
	HandshakeTimeout time.Duration
	OutboundBuffer   int
}

// Connector implements ports.RoomConnector over the relay's /ws endpoint.
type Connector struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *logger.Logger
}

func NewConnector(cfg Config, log *logger.Logger) *Connector {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = 32
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Connector{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
		logger: log,
	}
}

func (c *Connector) Join(ctx context.Context, cfg ports.JoinConfig) (ports.Room, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("room token is required")
	}

	wsURL, err := buildRoomURL(cfg.URL, cfg.Token)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.Token)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to room websocket: %w", err)
	}

	r := &room{
		conn:     conn,
		identity: cfg.Identity,
		logger:   c.logger.WithField("room", cfg.Room),
		payloads: make(chan ports.Payload, 64),
		outbound: make(chan []byte, c.cfg.OutboundBuffer),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	r.wg.Add(2)
	go r.readLoop()
	go r.writeLoop()
	go func() {
		r.wg.Wait()
		close(r.payloads)
		close(r.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = r.Close()
		case <-r.done:
		}
	}()

	return r, nil
}

type room struct {
	conn     *websocket.Conn
	identity string
	logger   *logger.Logger

	payloads chan ports.Payload
	outbound chan []byte
	closing  chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func (r *room) Broadcast(ctx context.Context, data []byte) error {
	select {
	case <-r.closing:
		return ErrRoomClosed
	default:
	}

	copied := append([]byte(nil), data...)
	select {
	case r.outbound <- copied:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.closing:
		if err := r.waitErr(); err != nil {
			return err
		}
		return ErrRoomClosed
	}
}

func (r *room) Payloads() <-chan ports.Payload {
	return r.payloads
}

func (r *room) State() domain.ConnectionState {
	select {
	case <-r.closing:
		return domain.ConnectionDisconnected
	default:
		return domain.ConnectionConnected
	}
}

func (r *room) Close() error {
	r.shutdown()
	<-r.done
	return r.waitErr()
}

func (r *room) shutdown() {
	r.closeOnce.Do(func() {
		close(r.closing)
		_ = r.conn.SetReadDeadline(time.Now())
	})
}

func (r *room) waitErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	return r.err
}

func (r *room) setErr(err error) {
	if err == nil {
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		switch closeErr.Code {
		case websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived:
			return
		}
	}

	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil {
		r.err = err
	}
}

func (r *room) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case data := <-r.outbound:
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := r.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				r.setErr(fmt.Errorf("failed to send payload: %w", err))
				r.shutdown()
				return
			}
		case <-r.closing:
			_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = r.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (r *room) readLoop() {
	defer r.wg.Done()
	defer r.shutdown()

	_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))
	r.conn.SetPingHandler(func(appData string) error {
		_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))
		return r.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			select {
			case <-r.closing:
			default:
				r.setErr(fmt.Errorf("failed to read room frame: %w", err))
			}
			return
		}
		_ = r.conn.SetReadDeadline(time.Now().Add(pongWait))

		frame, err := transport.DecodeFrame(data)
		if err != nil {
			r.logger.Debugf("dropping frame: %v", err)
			continue
		}
		if frame.Sender != "" && frame.Sender == r.identity {
			continue
		}

		select {
		case r.payloads <- ports.Payload{Data: frame.Data, SenderID: frame.Sender}:
		case <-r.closing:
			return
		}
	}
}

func buildRoomURL(base, token string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("room url is not configured")
	}

	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasSuffix(base, "/ws") {
		base += "/ws"
	}

	roomURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid room url: %w", err)
	}
	query := roomURL.Query()
	query.Set("token", token)
	roomURL.RawQuery = query.Encode()
	return roomURL.String(), nil
}
