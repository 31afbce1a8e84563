package usecase

import (
	"sync"
	"time"

	"aegisroom/internal/clock"
	"aegisroom/internal/domain"
	"aegisroom/internal/protocol"
)

// historySync lets a late joiner recover the transcript from a peer. After
// the settle delay a participant whose log still holds only the placeholder
// asks the room for history; the first HISTORY_SYNC it accepts wins.
type historySync struct {
	session *sessionContext
	settle  time.Duration

	mu    sync.Mutex
	timer clock.Timer
}

func newHistorySync(session *sessionContext, settle time.Duration) *historySync {
	return &historySync{session: session, settle: settle}
}

// Schedule arms the settle timer. Calling it again replaces the pending timer.
func (h *historySync) Schedule() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = h.session.clock.AfterFunc(h.settle, h.requestIfNeeded)
}

func (h *historySync) requestIfNeeded() {
	s := h.session
	if !s.alive() || s.room.State() != domain.ConnectionConnected {
		return
	}
	if !s.log.NeedsHistory() {
		return
	}
	if err := s.send(protocol.RequestHistory{}); err != nil {
		s.logger.Warnf("history request failed: %v", err)
		return
	}
	s.logger.Debug("requested transcript history from peers")
}

// HandleRequest answers a peer's REQUEST_HISTORY when there is something
// beyond the placeholder to share.
func (h *historySync) HandleRequest() {
	s := h.session
	if !s.log.HasHistory() {
		return
	}
	if err := s.send(protocol.HistorySync{History: s.log.Snapshot()}); err != nil {
		s.logger.Warnf("history reply failed: %v", err)
	}
}

// HandleSync applies a peer's transcript if none was accepted yet.
func (h *historySync) HandleSync(history []domain.TranscriptEntry) bool {
	s := h.session
	if !s.log.ApplySync(history) {
		s.logger.Debug("ignoring duplicate history sync")
		return false
	}
	s.logger.Infof("transcript synchronized with %d entries", len(history))
	s.events.TranscriptChanged(s.log.Snapshot())
	return true
}

func (h *historySync) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}
