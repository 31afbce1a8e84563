package usecase

import (
	"fmt"
	"sync"

	"aegisroom/internal/clock"
	"aegisroom/internal/domain"
)

const timestampLayout = "15:04:05"

// transcriptLog is the participant's ordered transcript. It starts with a
// single system placeholder and changes only by local append or by one
// accepted history sync. synced lives under the same lock as entries so
// the two can never be observed out of step.
type transcriptLog struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries []domain.TranscriptEntry
	synced  bool
	seq     uint64
}

func newTranscriptLog(clk clock.Clock, placeholder string) *transcriptLog {
	l := &transcriptLog{clock: clk}
	l.entries = append(l.entries, l.newEntry(domain.SenderSystem, placeholder))
	return l
}

func (l *transcriptLog) newEntry(sender domain.Sender, text string) domain.TranscriptEntry {
	now := l.clock.Now()
	l.seq++
	return domain.TranscriptEntry{
		ID:        fmt.Sprintf("%d-%d", now.UnixMilli(), l.seq),
		Timestamp: now.Format(timestampLayout),
		Sender:    sender,
		Text:      text,
	}
}

// Append adds a locally observed event at the end of the log.
func (l *transcriptLog) Append(sender domain.Sender, text string) domain.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.newEntry(sender, text)
	l.entries = append(l.entries, entry)
	return entry
}

// ApplySync replaces the log with history if no sync was accepted yet.
func (l *transcriptLog) ApplySync(history []domain.TranscriptEntry) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.synced {
		return false
	}
	l.entries = append(make([]domain.TranscriptEntry, 0, len(history)), history...)
	l.synced = true
	return true
}

func (l *transcriptLog) Snapshot() []domain.TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.TranscriptEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *transcriptLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// HasHistory reports whether the log holds anything beyond the placeholder.
func (l *transcriptLog) HasHistory() bool {
	return l.Len() > 1
}

// NeedsHistory reports whether a history request is still useful.
func (l *transcriptLog) NeedsHistory() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.synced && len(l.entries) <= 1
}

func (l *transcriptLog) Synced() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.synced
}
