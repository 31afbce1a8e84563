package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"aegisroom/internal/clock"
	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
)

var (
	ErrReportUnavailable = errors.New("report is not available until the session has ended")
	ErrNoCandidate       = errors.New("no candidate id for this session")
)

// ReportNotReadyError means the backend is still generating the report.
// Callers should retry after RetryAfter.
type ReportNotReadyError struct {
	RetryAfter time.Duration
}

func (e *ReportNotReadyError) Error() string {
	return fmt.Sprintf("report not ready, retry in %s", e.RetryAfter)
}

func (e *ReportNotReadyError) Unwrap() error { return ports.ErrReportNotReady }

const defaultEndReason = "Session ended"

// lifecycle drives ACTIVE -> ENDING -> ENDED. Both a local end and an
// INTERVIEW_END from the room wait out the grace delay before ENDED.
type lifecycle struct {
	session     *sessionContext
	backend     ports.InterviewBackend
	candidateID string
	grace       time.Duration
	retryAfter  time.Duration
	stopTimeout time.Duration

	mu      sync.Mutex
	state   domain.SessionState
	timer   clock.Timer
	stopped bool
}

func newLifecycle(session *sessionContext, backend ports.InterviewBackend, candidateID string, cfg Config) *lifecycle {
	return &lifecycle{
		session:     session,
		backend:     backend,
		candidateID: candidateID,
		grace:       cfg.EndGrace,
		retryAfter:  cfg.ReportRetry,
		stopTimeout: cfg.StopTimeout,
		state:       domain.SessionStateActive,
	}
}

func (l *lifecycle) State() domain.SessionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// beginEnding moves ACTIVE to ENDING and arms the grace timer. It reports
// false when the session was already ending or has been torn down.
func (l *lifecycle) beginEnding(reason domain.SessionStateReason) bool {
	l.mu.Lock()
	if l.stopped || !l.session.alive() || l.state != domain.SessionStateActive {
		l.mu.Unlock()
		return false
	}
	l.state = domain.SessionStateEnding
	l.timer = l.session.clock.AfterFunc(l.grace, l.finish)
	l.mu.Unlock()

	l.session.events.SessionStateChanged(domain.SessionStateEnding, reason)
	return true
}

func (l *lifecycle) finish() {
	if !l.session.alive() {
		return
	}
	l.mu.Lock()
	if l.state != domain.SessionStateEnding {
		l.mu.Unlock()
		return
	}
	l.state = domain.SessionStateEnded
	l.timer = nil
	l.mu.Unlock()

	l.session.logger.Info("session ended")
	l.session.events.SessionStateChanged(domain.SessionStateEnded, domain.SessionReasonGraceElapsed)
}

// End is the local participant ending the interview.
func (l *lifecycle) End() bool {
	if !l.beginEnding(domain.SessionReasonLocalEnd) {
		return false
	}
	if l.backend != nil && l.candidateID != "" {
		go l.stopInterview()
	}
	return true
}

func (l *lifecycle) stopInterview() {
	ctx, cancel := context.WithTimeout(context.Background(), l.stopTimeout)
	defer cancel()
	if err := l.backend.StopInterview(ctx, l.candidateID); err != nil {
		l.session.logger.Warnf("stop interview for %s failed: %v", l.candidateID, err)
	}
}

// HandleRemoteEnd reacts to INTERVIEW_END from the room.
func (l *lifecycle) HandleRemoteEnd(reason string) {
	if reason == "" {
		reason = defaultEndReason
	}
	l.session.appendEntry(domain.SenderSystem, fmt.Sprintf("Interview completed: %s. Report is being generated...", reason))
	l.beginEnding(domain.SessionReasonRemoteEnd)
}

func (l *lifecycle) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

// DownloadReport fetches the interview report once the session has ended.
func (l *lifecycle) DownloadReport(ctx context.Context) ([]byte, error) {
	if l.State() != domain.SessionStateEnded {
		return nil, ErrReportUnavailable
	}
	if l.backend == nil || l.candidateID == "" {
		return nil, ErrNoCandidate
	}

	data, err := l.backend.DownloadReport(ctx, l.candidateID)
	if errors.Is(err, ports.ErrReportNotReady) {
		return nil, &ReportNotReadyError{RetryAfter: l.retryAfter}
	}
	if err != nil {
		return nil, fmt.Errorf("download report: %w", err)
	}
	return data, nil
}

// DownloadReportWithRetry retries not-ready responses up to attempts
// times, doubling the wait after each one.
func (l *lifecycle) DownloadReportWithRetry(ctx context.Context, attempts int) ([]byte, error) {
	if attempts < 1 {
		attempts = 1
	}
	delay := l.retryAfter
	for attempt := 1; ; attempt++ {
		data, err := l.DownloadReport(ctx)
		var notReady *ReportNotReadyError
		if err == nil || !errors.As(err, &notReady) || attempt >= attempts {
			return data, err
		}
		l.session.logger.Debugf("report not ready, attempt %d/%d, waiting %s", attempt, attempts, delay)
		if err := sleep(ctx, l.session.clock, delay); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	fired := make(chan struct{})
	timer := clk.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
