package domain

// Sender identifies who produced a transcript entry.
type Sender string

const (
	SenderAgent     Sender = "AGENT"
	SenderCandidate Sender = "CANDIDATE"
	SenderRecruiter Sender = "RECRUITER"
	SenderSystem    Sender = "SYSTEM"
	SenderCode      Sender = "CODE"
)

// TranscriptEntry is one line of the session transcript.
type TranscriptEntry struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
}

// Role is the part a local participant plays in the room.
type Role string

const (
	RoleCandidate Role = "candidate"
	RoleRecruiter Role = "recruiter"
	RoleObserver  Role = "observer"
)

// ConnectionState mirrors the transport's connection lifecycle.
type ConnectionState string

const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
)

// TakeoverState tracks who is conducting the interview.
type TakeoverState string

const (
	TakeoverAIActive    TakeoverState = "AI_ACTIVE"
	TakeoverHumanActive TakeoverState = "HUMAN_ACTIVE"
)

// SessionState models the interview lifecycle.
type SessionState string

const (
	SessionStateActive SessionState = "ACTIVE"
	SessionStateEnding SessionState = "ENDING"
	SessionStateEnded  SessionState = "ENDED"
)

// SessionStateReason provides a structured reason for state transitions.
type SessionStateReason string

const (
	SessionReasonJoined       SessionStateReason = "joined"
	SessionReasonLocalEnd     SessionStateReason = "local_end"
	SessionReasonRemoteEnd    SessionStateReason = "remote_end"
	SessionReasonGraceElapsed SessionStateReason = "grace_elapsed"
	SessionReasonLeft         SessionStateReason = "left"
)

// ErrorCode identifies non-fatal backend errors surfaced to the UI.
type ErrorCode string

const (
	ErrorCodeStartup    ErrorCode = "startup"
	ErrorCodeTransport  ErrorCode = "transport"
	ErrorCodeMedia      ErrorCode = "media"
	ErrorCodeExecution  ErrorCode = "execution"
	ErrorCodeBackend    ErrorCode = "backend"
	ErrorCodeReport     ErrorCode = "report"
	ErrorCodeCredential ErrorCode = "credential"
	ErrorCodeClipboard  ErrorCode = "clipboard"
)

// Language is a code-execution runtime offered in the editor.
type Language struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SupportedLanguages lists the editor runtimes in display order.
var SupportedLanguages = []Language{
	{ID: "python", Name: "Python", Version: "3.10.0"},
	{ID: "javascript", Name: "JavaScript", Version: "18.15.0"},
	{ID: "typescript", Name: "TypeScript", Version: "5.0.3"},
	{ID: "c++", Name: "C++", Version: "10.2.0"},
	{ID: "java", Name: "Java", Version: "15.0.2"},
}

// EditorState is the content of the candidate's code editor.
type EditorState struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// ExecutionResult is what the sandbox returned for one run.
type ExecutionResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
}

// RunOutcome is the rendered result of a RunCode call.
type RunOutcome struct {
	Display  string `json:"display"`
	Relayed  bool   `json:"relayed"`
	Duration string `json:"duration,omitempty"`
}

// CandidateProfile is the parsed resume summary used to configure an interview.
type CandidateProfile struct {
	CandidateID    string   `json:"candidateId"`
	Skills         []string `json:"skills"`
	FocusTopics    []string `json:"focusTopics"`
	IntegrityCheck bool     `json:"integrityCheck"`
	Fallback       bool     `json:"fallback"`
}

// RoomCredential is what the backend hands out for joining a room.
type RoomCredential struct {
	Token    string `json:"token"`
	RoomName string `json:"roomName"`
}

// Status summarizes the current room state for the UI.
type Status struct {
	Joined        bool            `json:"joined"`
	Role          Role            `json:"role,omitempty"`
	Room          string          `json:"room,omitempty"`
	Identity      string          `json:"identity,omitempty"`
	Connection    ConnectionState `json:"connection"`
	Session       SessionState    `json:"session"`
	Takeover      TakeoverState   `json:"takeover"`
	HistorySynced bool            `json:"historySynced"`
	PromptOpen    bool            `json:"promptOpen"`
	Message       string          `json:"message,omitempty"`
}
