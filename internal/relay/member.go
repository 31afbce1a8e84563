package relay

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	pingPeriod    = (readDeadline * 9) / 10

	// History syncs carry whole transcripts.
	maxFrameBytes = 4 << 20
	sendBuffer    = 256
)

type member struct {
	identity string
	room     string
	conn     *websocket.Conn
	send     chan []byte
}

func newMember(identity, room string, conn *websocket.Conn, buffer int) *member {
	return &member{
		identity: identity,
		room:     room,
		conn:     conn,
		send:     make(chan []byte, buffer),
	}
}

func (h *Hub) readPump(m *member) {
	defer func() {
		h.unregister(m)
		_ = m.conn.Close()
	}()

	m.conn.SetReadLimit(maxFrameBytes)
	_ = m.conn.SetReadDeadline(time.Now().Add(readDeadline))
	m.conn.SetPongHandler(func(string) error {
		return m.conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	for {
		messageType, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnf("websocket error for %s: %v", m.identity, err)
			}
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		_ = m.conn.SetReadDeadline(time.Now().Add(readDeadline))
		h.relay(m, data)
	}
}

// writePump sends one frame per websocket message; room clients decode each
// message as a single frame.
func (h *Hub) writePump(m *member) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = m.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-m.send:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = m.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := m.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = m.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := m.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
