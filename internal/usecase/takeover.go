package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
	"aegisroom/internal/protocol"
)

var (
	ErrTakeoverActive       = errors.New("human takeover already active")
	ErrNoTakeoverPrompt     = errors.New("no takeover confirmation pending")
	ErrTakeoverNotPermitted = errors.New("only a recruiter can take over the interview")
	ErrUnknownMediaTrack    = errors.New("unknown media track")
)

const takeoverNotice = "RECRUITER TAKEOVER: Human interviewer has taken control. AI is now paused."

// takeoverMachine moves the session from AI_ACTIVE to HUMAN_ACTIVE. The
// transition happens at most once per session and never reverses.
type takeoverMachine struct {
	session *sessionContext
	media   ports.MediaPublisher
	role    domain.Role

	mu         sync.Mutex
	state      domain.TakeoverState
	promptOpen bool
}

func newTakeoverMachine(session *sessionContext, media ports.MediaPublisher, role domain.Role) *takeoverMachine {
	return &takeoverMachine{
		session: session,
		media:   media,
		role:    role,
		state:   domain.TakeoverAIActive,
	}
}

func (m *takeoverMachine) State() (domain.TakeoverState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.promptOpen
}

// Request opens the confirmation prompt.
func (m *takeoverMachine) Request() error {
	if m.role != domain.RoleRecruiter {
		return ErrTakeoverNotPermitted
	}

	m.mu.Lock()
	if m.state == domain.TakeoverHumanActive {
		m.mu.Unlock()
		return ErrTakeoverActive
	}
	m.promptOpen = true
	m.mu.Unlock()

	m.session.events.TakeoverChanged(domain.TakeoverAIActive, true)
	return nil
}

// Cancel dismisses the prompt without side effects.
func (m *takeoverMachine) Cancel() error {
	m.mu.Lock()
	if !m.promptOpen {
		m.mu.Unlock()
		return ErrNoTakeoverPrompt
	}
	m.promptOpen = false
	state := m.state
	m.mu.Unlock()

	m.session.events.TakeoverChanged(state, false)
	return nil
}

// Confirm performs the takeover after the prompt was shown.
func (m *takeoverMachine) Confirm(ctx context.Context) error {
	m.mu.Lock()
	open := m.promptOpen
	m.mu.Unlock()
	if !open {
		return ErrNoTakeoverPrompt
	}
	return m.takeOver(ctx)
}

// Auto performs the takeover without a prompt. It is a no-op unless the
// local participant is a recruiter, the room is connected and no takeover
// happened yet.
func (m *takeoverMachine) Auto(ctx context.Context) bool {
	if m.role != domain.RoleRecruiter || m.session.room.State() != domain.ConnectionConnected {
		return false
	}
	return m.takeOver(ctx) == nil
}

// HandleRemote mirrors a peer's takeover. No transcript entry is added;
// the peer that took over records it in its own log.
func (m *takeoverMachine) HandleRemote() {
	m.mu.Lock()
	if m.state == domain.TakeoverHumanActive {
		m.mu.Unlock()
		return
	}
	m.state = domain.TakeoverHumanActive
	m.promptOpen = false
	m.mu.Unlock()

	m.session.logger.Info("peer took over the interview")
	m.session.events.TakeoverChanged(domain.TakeoverHumanActive, false)
}

func (m *takeoverMachine) takeOver(ctx context.Context) error {
	if m.role != domain.RoleRecruiter {
		return ErrTakeoverNotPermitted
	}

	m.mu.Lock()
	if m.state == domain.TakeoverHumanActive {
		m.mu.Unlock()
		return ErrTakeoverActive
	}
	m.state = domain.TakeoverHumanActive
	m.promptOpen = false
	m.mu.Unlock()

	s := m.session
	s.logger.Info("human takeover")
	s.events.TakeoverChanged(domain.TakeoverHumanActive, false)
	s.appendEntry(domain.SenderSystem, takeoverNotice)

	if err := s.send(protocol.HumanTakeover{}); err != nil {
		s.logger.Warnf("takeover signal failed: %v", err)
		s.notice(domain.ErrorCodeTransport, fmt.Sprintf("Takeover signal failed: %v", err))
	}

	if err := m.media.SetCameraEnabled(ctx, true); err != nil {
		s.events.SessionError(domain.ErrorCodeMedia, fmt.Sprintf("failed to enable camera: %v", err))
	}
	if err := m.media.SetMicrophoneEnabled(ctx, true); err != nil {
		s.events.SessionError(domain.ErrorCodeMedia, fmt.Sprintf("failed to enable microphone: %v", err))
	}
	return nil
}
