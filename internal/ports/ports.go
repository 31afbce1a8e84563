package ports

import (
	"context"
	"errors"
	"io"

	"aegisroom/internal/domain"
)

// JoinConfig describes how to connect to a room.
type JoinConfig struct {
	URL      string
	Token    string
	Room     string
	Identity string
}

// Payload is one data-channel message delivered by a room.
type Payload struct {
	Data     []byte
	SenderID string
}

// Room is a live connection to a real-time session. Payloads closes when
// the room is closed or the transport drops.
type Room interface {
	Broadcast(ctx context.Context, data []byte) error
	Payloads() <-chan Payload
	State() domain.ConnectionState
	Close() error
}

// RoomConnector opens room connections.
type RoomConnector interface {
	Join(ctx context.Context, cfg JoinConfig) (Room, error)
}

// MediaPublisher toggles the local participant's published tracks.
type MediaPublisher interface {
	SetCameraEnabled(ctx context.Context, enabled bool) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
}

// CodeExecutor runs source code in a sandbox.
type CodeExecutor interface {
	Execute(ctx context.Context, language domain.Language, code string) (domain.ExecutionResult, error)
}

// ResumeFile is an uploaded resume document.
type ResumeFile struct {
	Name    string
	Content io.Reader
}

// ErrReportNotReady is returned by InterviewBackend.DownloadReport while
// the report is still being generated.
var ErrReportNotReady = errors.New("report not ready")

// InterviewBackend is the external interviewing authority.
type InterviewBackend interface {
	UploadResume(ctx context.Context, file ResumeFile) (domain.CandidateProfile, error)
	SetFocusTopics(ctx context.Context, candidateID string, topics []string) error
	StartInterview(ctx context.Context, candidateID string) (domain.RoomCredential, error)
	StopInterview(ctx context.Context, candidateID string) error
	DownloadReport(ctx context.Context, candidateID string) ([]byte, error)
}

// CredentialIssuer hands out bearer credentials for joining a room.
type CredentialIssuer interface {
	Issue(ctx context.Context, room string, identity string) (string, error)
}

// Clipboard writes text into the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// EventSink emits room state and events to the UI.
type EventSink interface {
	ConnectionChanged(state domain.ConnectionState)
	TranscriptChanged(entries []domain.TranscriptEntry)
	TakeoverChanged(state domain.TakeoverState, promptOpen bool)
	SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason)
	EditorReplaced(editor domain.EditorState)
	SessionError(code domain.ErrorCode, detail string)
}
