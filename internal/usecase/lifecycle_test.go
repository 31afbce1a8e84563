package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
	"aegisroom/internal/protocol"
)

func TestEndSessionWaitsForGrace(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})

	if err := h.controller.EndSession(); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	if got := h.controller.Status().Session; got != domain.SessionStateEnding {
		t.Fatalf("expected ENDING, got %s", got)
	}

	select {
	case id := <-h.backend.stopped:
		if id != "cand-42" {
			t.Fatalf("stop called for %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stop-interview was not requested")
	}

	h.clock.Advance(2 * time.Second)
	if got := h.controller.Status().Session; got != domain.SessionStateEnded {
		t.Fatalf("expected ENDED, got %s", got)
	}

	states := h.events.snapshotStates()
	want := []stateEvent{
		{domain.SessionStateActive, domain.SessionReasonJoined},
		{domain.SessionStateEnding, domain.SessionReasonLocalEnd},
		{domain.SessionStateEnded, domain.SessionReasonGraceElapsed},
	}
	if len(states) != len(want) {
		t.Fatalf("unexpected states: %+v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state %d: got %+v want %+v", i, states[i], want[i])
		}
	}

	if err := h.controller.EndSession(); err != nil {
		t.Fatalf("ending twice should be a no-op: %v", err)
	}
	if len(h.events.snapshotStates()) != len(want) {
		t.Fatalf("ending twice must not emit states")
	}
}

func TestEndSessionStopFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.stopErr = errors.New("backend down")
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})

	if err := h.controller.EndSession(); err != nil {
		t.Fatalf("end failed: %v", err)
	}
	<-h.backend.stopped
	h.clock.Advance(2 * time.Second)
	if got := h.controller.Status().Session; got != domain.SessionStateEnded {
		t.Fatalf("expected ENDED despite stop failure, got %s", got)
	}
}

func TestInterviewEndFromRoom(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	h.room.deliver(t, protocol.InterviewEnd{Reason: "Time limit reached"})

	transcript := h.controller.Transcript()
	last := transcript[len(transcript)-1]
	if last.Sender != domain.SenderSystem || last.Text != "Interview completed: Time limit reached. Report is being generated..." {
		t.Fatalf("unexpected entry: %+v", last)
	}
	if got := h.controller.Status().Session; got != domain.SessionStateEnding {
		t.Fatalf("expected ENDING, got %s", got)
	}

	h.clock.Advance(1999 * time.Millisecond)
	if got := h.controller.Status().Session; got != domain.SessionStateEnding {
		t.Fatalf("ended before the grace delay")
	}
	h.clock.Advance(time.Millisecond)
	if got := h.controller.Status().Session; got != domain.SessionStateEnded {
		t.Fatalf("expected ENDED, got %s", got)
	}

	select {
	case id := <-h.backend.stopped:
		t.Fatalf("remote end must not call stop-interview, got %q", id)
	default:
	}
}

func TestInterviewEndDefaultsReason(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	h.room.deliverRaw([]byte(`{"type":"INTERVIEW_END"}`))

	transcript := h.controller.Transcript()
	if got := transcript[len(transcript)-1].Text; got != "Interview completed: Session ended. Report is being generated..." {
		t.Fatalf("unexpected entry: %q", got)
	}
}

func TestDownloadReportGatedOnEnded(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{{data: []byte("%PDF")}}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})

	if _, err := h.controller.DownloadReport(context.Background()); !errors.Is(err, ErrReportUnavailable) {
		t.Fatalf("expected ErrReportUnavailable, got %v", err)
	}

	h.room.deliver(t, protocol.InterviewEnd{Reason: "done"})
	if _, err := h.controller.DownloadReport(context.Background()); !errors.Is(err, ErrReportUnavailable) {
		t.Fatalf("expected ErrReportUnavailable while ENDING, got %v", err)
	}

	h.clock.Advance(2 * time.Second)
	data, err := h.controller.DownloadReport(context.Background())
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	if string(data) != "%PDF" {
		t.Fatalf("unexpected report: %q", data)
	}
}

func TestDownloadReportNotReadyIsRetryable(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{{err: ports.ErrReportNotReady}}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})
	h.room.deliver(t, protocol.InterviewEnd{})
	h.clock.Advance(2 * time.Second)

	_, err := h.controller.DownloadReport(context.Background())
	var notReady *ReportNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected ReportNotReadyError, got %v", err)
	}
	if notReady.RetryAfter != 15*time.Second {
		t.Fatalf("unexpected retry hint: %s", notReady.RetryAfter)
	}
	if !errors.Is(err, ports.ErrReportNotReady) {
		t.Fatalf("expected error to match ports.ErrReportNotReady")
	}
}

func TestDownloadReportOtherFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{{err: errors.New("status 500")}}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})
	h.room.deliver(t, protocol.InterviewEnd{})
	h.clock.Advance(2 * time.Second)

	_, err := h.controller.DownloadReport(context.Background())
	var notReady *ReportNotReadyError
	if err == nil || errors.As(err, &notReady) {
		t.Fatalf("expected a plain failure, got %v", err)
	}
}

func TestDownloadReportWithRetryBacksOff(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{
		{err: ports.ErrReportNotReady},
		{err: ports.ErrReportNotReady},
		{data: []byte("report")},
	}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})
	h.room.deliver(t, protocol.InterviewEnd{})
	h.clock.Advance(2 * time.Second)

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := h.controller.DownloadReportWithRetry(context.Background(), 5)
		done <- result{data, err}
	}()

	waitFor(t, "first backoff", func() bool { return h.clock.Pending() == 1 })
	h.clock.Advance(15 * time.Second)
	waitFor(t, "second backoff", func() bool { return h.clock.Pending() == 1 && h.backend.calls() == 2 })
	h.clock.Advance(29 * time.Second)
	if h.backend.calls() != 2 {
		t.Fatalf("second backoff should double the delay")
	}
	h.clock.Advance(time.Second)

	got := <-done
	if got.err != nil || string(got.data) != "report" {
		t.Fatalf("unexpected result: %q %v", got.data, got.err)
	}
	if h.backend.calls() != 3 {
		t.Fatalf("expected 3 attempts, got %d", h.backend.calls())
	}
}

func TestDownloadReportWithRetryGivesUp(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{{err: ports.ErrReportNotReady}}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})
	h.room.deliver(t, protocol.InterviewEnd{})
	h.clock.Advance(2 * time.Second)

	_, err := h.controller.DownloadReportWithRetry(context.Background(), 1)
	var notReady *ReportNotReadyError
	if !errors.As(err, &notReady) {
		t.Fatalf("expected ReportNotReadyError after last attempt, got %v", err)
	}
}

func TestDownloadReportAfterLeave(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.backend.reports = []reportResponse{{data: []byte("report")}}
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", CandidateID: "cand-42"})
	h.room.deliver(t, protocol.InterviewEnd{})
	h.clock.Advance(2 * time.Second)

	if err := h.controller.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	data, err := h.controller.DownloadReport(context.Background())
	if err != nil || string(data) != "report" {
		t.Fatalf("expected report after leave, got %q %v", data, err)
	}
}

func TestLeaveDuringGraceKeepsEnding(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})
	h.room.deliver(t, protocol.InterviewEnd{})

	if err := h.controller.Leave(); err != nil {
		t.Fatalf("leave failed: %v", err)
	}
	h.clock.Advance(5 * time.Second)

	for _, state := range h.events.snapshotStates() {
		if state.state == domain.SessionStateEnded {
			t.Fatalf("grace timer must not fire after leave")
		}
	}
}
