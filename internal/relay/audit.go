package relay

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"aegisroom/internal/logger"
	"aegisroom/internal/transport"
)

const (
	auditSubjectPrefix = "aegis.audit."
	roomHeader         = "Aegis-Room"
)

// AuditSubject is where payloads relayed in room are mirrored.
func AuditSubject(room string) string {
	return auditSubjectPrefix + transport.SubjectToken(room)
}

// NATSAudit publishes every relayed payload to core NATS.
type NATSAudit struct {
	conn   *nats.Conn
	logger *logger.Logger
}

func DialAudit(url string, log *logger.Logger) (*NATSAudit, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := nats.Connect(url,
		nats.Name("aegis-relay"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("audit connection lost: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infof("audit reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect audit nats: %w", err)
	}
	return &NATSAudit{conn: conn, logger: log}, nil
}

func (a *NATSAudit) Publish(room, sender string, data []byte) {
	msg := nats.NewMsg(AuditSubject(room))
	msg.Header.Set(transport.SenderHeader, sender)
	msg.Header.Set(roomHeader, room)
	msg.Data = data
	if err := a.conn.PublishMsg(msg); err != nil {
		a.logger.Errorf("failed to mirror payload from %s: %v", sender, err)
	}
}

func (a *NATSAudit) Status() string {
	return a.conn.Status().String()
}

func (a *NATSAudit) Close() error {
	return a.conn.Drain()
}
