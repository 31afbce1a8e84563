package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aegisroom/internal/clock"
	"aegisroom/internal/domain"
	"aegisroom/internal/logger"
	"aegisroom/internal/ports"
	"aegisroom/internal/protocol"
)

var (
	ErrNotJoined    = errors.New("not joined to a room")
	ErrReadOnlyRole = errors.New("observers cannot publish to the room")
	ErrEmptyMessage = errors.New("message is empty")
)

const (
	participantPlaceholder = "Neural link established. Waiting for AI interviewer..."
	observerPlaceholder    = "Monitoring session. Waiting for transcript..."
)

// Config controls room timing.
type Config struct {
	RoomURL        string
	HistorySettle  time.Duration
	ObserverSettle time.Duration
	EndGrace       time.Duration
	ReportRetry    time.Duration
	StopTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.HistorySettle <= 0 {
		c.HistorySettle = 2 * time.Second
	}
	if c.ObserverSettle <= 0 {
		c.ObserverSettle = 1500 * time.Millisecond
	}
	if c.EndGrace <= 0 {
		c.EndGrace = 2 * time.Second
	}
	if c.ReportRetry <= 0 {
		c.ReportRetry = 15 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 10 * time.Second
	}
	return c
}

// JoinRequest describes how the local participant enters a room.
type JoinRequest struct {
	Room        string
	Identity    string
	Token       string
	Role        domain.Role
	CandidateID string

	// AutoTakeover takes over as soon as the room is connected, without
	// the confirmation prompt.
	AutoTakeover bool
}

// Deps are the collaborators of a RoomController. Backend and Credentials
// may be nil.
type Deps struct {
	Connector   ports.RoomConnector
	Media       ports.MediaPublisher
	Executor    ports.CodeExecutor
	Backend     ports.InterviewBackend
	Credentials ports.CredentialIssuer
	Events      ports.EventSink
	Clock       clock.Clock
	Logger      *logger.Logger
}

// RoomController owns one joined interview room at a time and routes user
// actions and inbound control messages to its components.
type RoomController struct {
	deps Deps
	cfg  Config

	// joinMu serialises Join so a concurrent join cannot orphan a room.
	joinMu sync.Mutex

	mu       sync.Mutex
	current  *activeSession
	previous *activeSession
}

func NewRoomController(deps Deps, cfg Config) *RoomController {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &RoomController{deps: deps, cfg: cfg.withDefaults()}
}

// Join connects to a room, leaving any room joined before.
func (c *RoomController) Join(ctx context.Context, req JoinRequest) error {
	c.joinMu.Lock()
	defer c.joinMu.Unlock()

	req = c.normalize(req)

	c.mu.Lock()
	previous := c.current
	c.current = nil
	c.mu.Unlock()
	if previous != nil {
		c.shutdown(previous)
	}

	c.deps.Events.ConnectionChanged(domain.ConnectionConnecting)

	if req.Token == "" && c.deps.Credentials != nil {
		token, err := c.deps.Credentials.Issue(ctx, req.Room, req.Identity)
		if err != nil {
			c.deps.Logger.Warnf("credential request for room %s failed: %v", req.Room, err)
			c.deps.Events.SessionError(domain.ErrorCodeCredential, err.Error())
			return fmt.Errorf("fetch room credential: %w", err)
		}
		req.Token = token
	}

	room, err := c.deps.Connector.Join(ctx, ports.JoinConfig{
		URL:      c.cfg.RoomURL,
		Token:    req.Token,
		Room:     req.Room,
		Identity: req.Identity,
	})
	if err != nil {
		c.deps.Events.ConnectionChanged(domain.ConnectionDisconnected)
		c.deps.Events.SessionError(domain.ErrorCodeTransport, err.Error())
		return fmt.Errorf("join room %s: %w", req.Room, err)
	}

	active := c.newSession(ctx, room, req)

	c.mu.Lock()
	c.current = active
	c.mu.Unlock()

	go pumpRoomPayloads(room, active.dispatch, func() { c.roomClosed(active) }, active.pumpDone)

	active.session.logger.Infof("joined room %s as %s (%s)", req.Room, req.Identity, req.Role)
	c.deps.Events.ConnectionChanged(room.State())
	c.deps.Events.TranscriptChanged(active.session.log.Snapshot())
	c.deps.Events.TakeoverChanged(domain.TakeoverAIActive, false)
	c.deps.Events.SessionStateChanged(domain.SessionStateActive, domain.SessionReasonJoined)

	active.history.Schedule()
	if req.AutoTakeover && !active.takeover.Auto(active.session.ctx) {
		active.session.logger.Warn("auto takeover skipped")
	}
	return nil
}

func (c *RoomController) normalize(req JoinRequest) JoinRequest {
	if req.Role == "" {
		req.Role = domain.RoleCandidate
	}
	if req.Room == "" {
		req.Room = fmt.Sprintf("interview-%d", c.deps.Clock.Now().Unix())
	}
	if req.Identity == "" {
		req.Identity = fmt.Sprintf("%s-%s", req.Role, strings.SplitN(uuid.NewString(), "-", 2)[0])
	}
	return req
}

func (c *RoomController) newSession(ctx context.Context, room ports.Room, req JoinRequest) *activeSession {
	sessionCtx, cancel := context.WithCancel(ctx)

	placeholder := participantPlaceholder
	settle := c.cfg.HistorySettle
	if req.Role == domain.RoleObserver {
		placeholder = observerPlaceholder
		settle = c.cfg.ObserverSettle
	}

	session := &sessionContext{
		ctx:    sessionCtx,
		room:   room,
		events: c.deps.Events,
		clock:  c.deps.Clock,
		logger: c.deps.Logger.WithFields(map[string]interface{}{"room": req.Room, "role": string(req.Role)}),
		log:    newTranscriptLog(c.deps.Clock, placeholder),
	}
	editor := newEditorState()

	return &activeSession{
		cancel:    cancel,
		join:      req,
		session:   session,
		history:   newHistorySync(session, settle),
		takeover:  newTakeoverMachine(session, c.deps.Media, req.Role),
		editor:    editor,
		relay:     newCodeRelay(session, c.deps.Executor, editor),
		lifecycle: newLifecycle(session, c.deps.Backend, req.CandidateID, c.cfg),
		pumpDone:  make(chan struct{}),
	}
}

// roomClosed runs on the pump goroutine when the transport drops. Local
// state stays readable; realtime features stop.
func (c *RoomController) roomClosed(active *activeSession) {
	if !active.session.alive() {
		return
	}
	active.session.logger.Warn("room connection lost")
	c.deps.Events.ConnectionChanged(domain.ConnectionDisconnected)
	active.session.notice(domain.ErrorCodeTransport, "Connection to the interview room was lost.")
}

// Leave disconnects from the current room and cancels pending timers.
func (c *RoomController) Leave() error {
	c.mu.Lock()
	active := c.current
	c.current = nil
	c.mu.Unlock()

	if active == nil {
		return ErrNotJoined
	}
	c.shutdown(active)
	c.deps.Events.ConnectionChanged(domain.ConnectionDisconnected)
	c.deps.Events.SessionStateChanged(active.lifecycle.State(), domain.SessionReasonLeft)
	return nil
}

func (c *RoomController) shutdown(active *activeSession) {
	active.teardown()
	if err := active.session.room.Close(); err != nil {
		active.session.logger.Warnf("closing room: %v", err)
	}
	<-active.pumpDone

	c.mu.Lock()
	c.previous = active
	c.mu.Unlock()
	active.session.logger.Info("left room")
}

func (c *RoomController) getCurrent() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, ErrNotJoined
	}
	return c.current, nil
}

// SendMessage appends typed chat to the transcript and broadcasts it.
func (c *RoomController) SendMessage(text string) (domain.TranscriptEntry, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TranscriptEntry{}, ErrEmptyMessage
	}

	var sender domain.Sender
	switch active.join.Role {
	case domain.RoleCandidate:
		sender = domain.SenderCandidate
	case domain.RoleRecruiter:
		sender = domain.SenderRecruiter
	default:
		return domain.TranscriptEntry{}, ErrReadOnlyRole
	}

	s := active.session
	entry := s.appendEntry(sender, text)
	if err := s.send(protocol.Transcript{Sender: sender, Text: text}); err != nil {
		s.logger.Warnf("chat broadcast failed: %v", err)
		s.notice(domain.ErrorCodeTransport, fmt.Sprintf("Message not delivered: %v", err))
	}
	return entry, nil
}

func (c *RoomController) RequestTakeover() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	return active.takeover.Request()
}

func (c *RoomController) ConfirmTakeover(ctx context.Context) error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	return active.takeover.Confirm(ctx)
}

func (c *RoomController) CancelTakeover() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	return active.takeover.Cancel()
}

// ReportMediaFailure surfaces a camera or microphone the local device
// refused to start. The takeover state is left as it is.
func (c *RoomController) ReportMediaFailure(track string, detail string) error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	switch track {
	case "camera", "microphone":
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMediaTrack, track)
	}
	active.session.logger.Warnf("%s unavailable: %s", track, detail)
	c.deps.Events.SessionError(domain.ErrorCodeMedia, fmt.Sprintf("failed to enable %s: %s", track, detail))
	return nil
}

// SubmitCode relays a code submission with its captured output.
func (c *RoomController) SubmitCode(code, language, output string) (domain.TranscriptEntry, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.TranscriptEntry{}, err
	}
	if active.join.Role == domain.RoleObserver {
		return domain.TranscriptEntry{}, ErrReadOnlyRole
	}
	return active.relay.Submit(code, language, output), nil
}

// RunCode stores code in the editor, executes it and relays the output.
func (c *RoomController) RunCode(ctx context.Context, code string) (domain.RunOutcome, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.RunOutcome{}, err
	}
	if active.join.Role == domain.RoleObserver {
		return domain.RunOutcome{}, ErrReadOnlyRole
	}
	active.editor.SetCode(code)
	return active.relay.Run(ctx)
}

func (c *RoomController) UpdateCode(code string) error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	active.editor.SetCode(code)
	return nil
}

func (c *RoomController) SelectLanguage(id string) (domain.EditorState, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.EditorState{}, err
	}
	editor, err := active.editor.SelectLanguage(id)
	if err != nil {
		return domain.EditorState{}, err
	}
	c.deps.Events.EditorReplaced(editor)
	return editor, nil
}

func (c *RoomController) Editor() (domain.EditorState, error) {
	active, err := c.getCurrent()
	if err != nil {
		return domain.EditorState{}, err
	}
	return active.editor.Snapshot(), nil
}

// EndSession ends the interview from this side. Ending twice is a no-op.
func (c *RoomController) EndSession() error {
	active, err := c.getCurrent()
	if err != nil {
		return err
	}
	if active.lifecycle.End() {
		active.session.logger.Info("ending session")
	}
	return nil
}

func (c *RoomController) reportSession() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current, nil
	}
	if c.previous != nil {
		return c.previous, nil
	}
	return nil, ErrNotJoined
}

// DownloadReport fetches the report of the current or most recently left
// session.
func (c *RoomController) DownloadReport(ctx context.Context) ([]byte, error) {
	active, err := c.reportSession()
	if err != nil {
		return nil, err
	}
	return active.lifecycle.DownloadReport(ctx)
}

func (c *RoomController) DownloadReportWithRetry(ctx context.Context, attempts int) ([]byte, error) {
	active, err := c.reportSession()
	if err != nil {
		return nil, err
	}
	return active.lifecycle.DownloadReportWithRetry(ctx, attempts)
}

// Transcript returns a copy of the current transcript.
func (c *RoomController) Transcript() []domain.TranscriptEntry {
	active, err := c.reportSession()
	if err != nil {
		return nil
	}
	return active.session.log.Snapshot()
}

// Status returns the current room status.
func (c *RoomController) Status() domain.Status {
	active, err := c.getCurrent()
	if err != nil {
		return domain.Status{
			Connection: domain.ConnectionDisconnected,
			Session:    domain.SessionStateActive,
			Takeover:   domain.TakeoverAIActive,
			Message:    "not joined",
		}
	}
	takeover, prompt := active.takeover.State()
	return domain.Status{
		Joined:        true,
		Role:          active.join.Role,
		Room:          active.join.Room,
		Identity:      active.join.Identity,
		Connection:    active.session.room.State(),
		Session:       active.lifecycle.State(),
		Takeover:      takeover,
		HistorySynced: active.session.log.Synced(),
		PromptOpen:    prompt,
	}
}
