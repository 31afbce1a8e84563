package usecase

import (
	"testing"
	"time"

	"aegisroom/internal/domain"
	"aegisroom/internal/protocol"
)

func TestHistorySyncLateJoinerRequestsAndAcceptsHistory(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	h.clock.Advance(1999 * time.Millisecond)
	if len(h.room.snapshotSent()) != 0 {
		t.Fatalf("history request sent before the settle delay")
	}
	h.clock.Advance(time.Millisecond)

	kinds := h.room.sentKinds(t)
	if len(kinds) != 1 || kinds[0] != protocol.KindRequestHistory {
		t.Fatalf("expected one REQUEST_HISTORY, got %v", kinds)
	}

	history := []domain.TranscriptEntry{
		{ID: "a", Timestamp: "09:59:00", Sender: domain.SenderSystem, Text: "connected"},
		{ID: "b", Timestamp: "09:59:05", Sender: domain.SenderAgent, Text: "Welcome."},
		{ID: "c", Timestamp: "09:59:09", Sender: domain.SenderCandidate, Text: "Hi!"},
	}
	h.room.deliver(t, protocol.HistorySync{History: history})

	transcript := h.controller.Transcript()
	if len(transcript) != len(history) {
		t.Fatalf("expected %d entries, got %+v", len(history), transcript)
	}
	for i := range history {
		if transcript[i] != history[i] {
			t.Fatalf("entry %d mismatch: %+v", i, transcript[i])
		}
	}
	if !h.controller.Status().HistorySynced {
		t.Fatalf("expected history to be marked synced")
	}
}

func TestHistorySyncAcceptsOnlyFirstSync(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	first := []domain.TranscriptEntry{
		{ID: "1", Sender: domain.SenderAgent, Text: "first"},
		{ID: "2", Sender: domain.SenderCandidate, Text: "reply"},
	}
	second := []domain.TranscriptEntry{
		{ID: "9", Sender: domain.SenderAgent, Text: "other peer"},
	}
	h.room.deliver(t, protocol.HistorySync{History: first})
	h.room.deliver(t, protocol.HistorySync{History: second})
	h.room.deliver(t, protocol.HistorySync{History: first})

	transcript := h.controller.Transcript()
	if len(transcript) != 2 || transcript[0].Text != "first" || transcript[1].Text != "reply" {
		t.Fatalf("later syncs must be ignored, got %+v", transcript)
	}
}

func TestHistorySyncAcceptsEmptyHistory(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	h.room.deliverRaw([]byte(`{"type":"HISTORY_SYNC","history":[]}`))

	if len(h.controller.Transcript()) != 0 {
		t.Fatalf("expected empty transcript after empty sync")
	}
	h.clock.Advance(2 * time.Second)
	if len(h.room.snapshotSent()) != 0 {
		t.Fatalf("no history request after a sync was accepted")
	}
}

func TestHistorySyncSkipsRequestWhenLogHasContent(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})
	h.room.deliver(t, protocol.Transcript{Sender: domain.SenderAgent, Text: "Let's begin."})

	h.clock.Advance(2 * time.Second)
	if len(h.room.snapshotSent()) != 0 {
		t.Fatalf("history request must not be sent when the log already has content")
	}
}

func TestHistorySyncObserverUsesShorterSettle(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok", Role: domain.RoleObserver})

	h.clock.Advance(1500 * time.Millisecond)
	kinds := h.room.sentKinds(t)
	if len(kinds) != 1 || kinds[0] != protocol.KindRequestHistory {
		t.Fatalf("expected observer REQUEST_HISTORY after 1.5s, got %v", kinds)
	}
}

func TestHistorySyncRespondsWhenLogHasHistory(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})
	h.room.deliver(t, protocol.Transcript{Sender: domain.SenderAgent, Text: "Question one."})

	h.room.deliver(t, protocol.RequestHistory{})

	sent := h.room.sentMessages(t)
	if len(sent) != 1 {
		t.Fatalf("expected one HISTORY_SYNC, got %d messages", len(sent))
	}
	sync, ok := sent[0].(protocol.HistorySync)
	if !ok {
		t.Fatalf("expected HistorySync, got %T", sent[0])
	}
	local := h.controller.Transcript()
	if len(sync.History) != len(local) {
		t.Fatalf("expected %d entries, got %d", len(local), len(sync.History))
	}
	for i := range local {
		if sync.History[i] != local[i] {
			t.Fatalf("entry %d mismatch: %+v vs %+v", i, sync.History[i], local[i])
		}
	}
}

func TestHistorySyncIgnoresRequestWithOnlyPlaceholder(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.join(t, JoinRequest{Room: "room-1", Token: "tok"})

	h.room.deliver(t, protocol.RequestHistory{})
	if len(h.room.snapshotSent()) != 0 {
		t.Fatalf("a peer holding only the placeholder must not answer")
	}
}
