package usecase

import (
	"context"
	"fmt"

	"aegisroom/internal/clock"
	"aegisroom/internal/domain"
	"aegisroom/internal/logger"
	"aegisroom/internal/ports"
	"aegisroom/internal/protocol"
)

// sessionContext is the handle every component of one joined room shares.
// Its ctx is cancelled when the room is left, after which timers and late
// external responses must not touch state.
type sessionContext struct {
	ctx    context.Context
	room   ports.Room
	events ports.EventSink
	clock  clock.Clock
	logger *logger.Logger
	log    *transcriptLog
}

func (s *sessionContext) alive() bool {
	return s.ctx.Err() == nil
}

// send encodes msg and broadcasts it to every other participant.
func (s *sessionContext) send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.room.Broadcast(s.ctx, data); err != nil {
		return fmt.Errorf("broadcast %s: %w", msg.Kind(), err)
	}
	return nil
}

func (s *sessionContext) appendEntry(sender domain.Sender, text string) domain.TranscriptEntry {
	entry := s.log.Append(sender, text)
	s.events.TranscriptChanged(s.log.Snapshot())
	return entry
}

// notice records a non-fatal problem in the transcript and the UI error
// channel.
func (s *sessionContext) notice(code domain.ErrorCode, text string) {
	s.appendEntry(domain.SenderSystem, text)
	s.events.SessionError(code, text)
}

type activeSession struct {
	cancel func()
	join   JoinRequest

	session   *sessionContext
	history   *historySync
	takeover  *takeoverMachine
	editor    *editorState
	relay     *codeRelay
	lifecycle *lifecycle

	pumpDone chan struct{}
}

// dispatch handles one inbound payload. Frames the transport still had
// buffered when the session was torn down are dropped.
func (s *activeSession) dispatch(payload ports.Payload) {
	if !s.session.alive() {
		return
	}
	msg, err := protocol.Decode(payload.Data)
	if err != nil {
		s.session.logger.Debugf("dropping payload from %s: %v", payload.SenderID, err)
		return
	}

	switch m := msg.(type) {
	case protocol.Transcript:
		s.session.appendEntry(m.Sender, m.Text)
	case protocol.RequestHistory:
		s.history.HandleRequest()
	case protocol.HistorySync:
		s.history.HandleSync(m.History)
	case protocol.InterviewEnd:
		s.lifecycle.HandleRemoteEnd(m.Reason)
	case protocol.HumanTakeover:
		s.takeover.HandleRemote()
	case protocol.CodeSnapshot:
		s.session.events.EditorReplaced(s.editor.ApplySnapshot(m.Code, m.Language))
	case protocol.AlgoSubmit:
		s.session.appendEntry(domain.SenderCode, formatCodeEntry(m.Language, m.Code, m.Output))
	}
}

// teardown stops every pending timer. The caller closes the room.
func (s *activeSession) teardown() {
	s.cancel()
	s.history.Stop()
	s.lifecycle.Stop()
}
