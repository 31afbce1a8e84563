package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"aegisroom/internal/bootstrap"
	"aegisroom/internal/config"
	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
	"aegisroom/internal/providers/backend"
	"aegisroom/internal/usecase"
)

const (
	eventConnection = "aegis:connection"
	eventTranscript = "aegis:transcript"
	eventTakeover   = "aegis:takeover"
	eventSession    = "aegis:session"
	eventEditor     = "aegis:editor"
	eventMedia      = "aegis:media"
	eventError      = "aegis:error"

	reportAttempts = 3
)

// App is the Wails application root.
type App struct {
	ctx context.Context

	controller *usecase.RoomController
	backend    ports.InterviewBackend
	clipboard  ports.Clipboard
	cfg        config.Config
	bootErr    error
}

func NewApp() *App {
	return &App{clipboard: &wailsClipboard{}}
}

func (a *App) startup(ctx context.Context) {
	a.ctx = ctx

	services, err := bootstrap.Build(a, &wailsMedia{app: a})
	if err != nil {
		a.bootErr = err
		a.SessionError(domain.ErrorCodeStartup, err.Error())
		return
	}

	a.cfg = services.Config
	a.controller = services.Controller
	a.backend = services.Backend
}

func (a *App) shutdown(context.Context) {
	if a.controller == nil {
		return
	}
	if err := a.controller.Leave(); err != nil && !errors.Is(err, usecase.ErrNotJoined) {
		fmt.Fprintf(os.Stderr, "leave on shutdown: %v\n", err)
	}
}

// JoinRoomRequest is the frontend's join form.
type JoinRoomRequest struct {
	Room         string      `json:"room"`
	Identity     string      `json:"identity"`
	Token        string      `json:"token"`
	Role         domain.Role `json:"role"`
	CandidateID  string      `json:"candidateId"`
	AutoTakeover bool        `json:"autoTakeover"`
}

// JoinRoom connects to an interview room.
func (a *App) JoinRoom(req JoinRoomRequest) (domain.Status, error) {
	if err := a.requireReady(); err != nil {
		return domain.Status{}, err
	}
	err := a.controller.Join(a.context(), usecase.JoinRequest{
		Room:         req.Room,
		Identity:     req.Identity,
		Token:        req.Token,
		Role:         req.Role,
		CandidateID:  req.CandidateID,
		AutoTakeover: req.AutoTakeover,
	})
	if err != nil {
		return domain.Status{}, err
	}
	return a.controller.Status(), nil
}

// LeaveRoom disconnects from the current room.
func (a *App) LeaveRoom() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.controller.Leave(); err != nil && !errors.Is(err, usecase.ErrNotJoined) {
		return err
	}
	return nil
}

// SendMessage posts typed chat to the room.
func (a *App) SendMessage(text string) (domain.TranscriptEntry, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptEntry{}, err
	}
	return a.controller.SendMessage(text)
}

func (a *App) RequestTakeover() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.RequestTakeover()
}

func (a *App) ConfirmTakeover() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.ConfirmTakeover(a.context())
}

func (a *App) CancelTakeover() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.CancelTakeover()
}

// UpdateCode stores the editor draft without relaying it.
func (a *App) UpdateCode(code string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.UpdateCode(code)
}

func (a *App) SelectLanguage(id string) (domain.EditorState, error) {
	if err := a.requireReady(); err != nil {
		return domain.EditorState{}, err
	}
	return a.controller.SelectLanguage(id)
}

// ReportMediaError is called by the frontend when the webview could not
// start a camera or microphone track.
func (a *App) ReportMediaError(track string, detail string) error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.ReportMediaFailure(track, detail)
}

// RunCode executes the editor content and relays its output.
func (a *App) RunCode(code string) (domain.RunOutcome, error) {
	if err := a.requireReady(); err != nil {
		return domain.RunOutcome{}, err
	}
	return a.controller.RunCode(a.context(), code)
}

func (a *App) SubmitCode(code string, language string, output string) (domain.TranscriptEntry, error) {
	if err := a.requireReady(); err != nil {
		return domain.TranscriptEntry{}, err
	}
	return a.controller.SubmitCode(code, language, output)
}

// EndSession ends the interview from this side.
func (a *App) EndSession() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	return a.controller.EndSession()
}

// SaveReport downloads the report and asks where to write it. It returns
// the chosen path, or "" when the dialog was cancelled.
func (a *App) SaveReport() (string, error) {
	if err := a.requireReady(); err != nil {
		return "", err
	}

	report, err := a.controller.DownloadReportWithRetry(a.context(), reportAttempts)
	if err != nil {
		var notReady *usecase.ReportNotReadyError
		if errors.As(err, &notReady) {
			a.SessionError(domain.ErrorCodeReport, notReady.Error())
		} else {
			a.SessionError(domain.ErrorCodeReport, err.Error())
		}
		return "", err
	}

	path, err := runtime.SaveFileDialog(a.context(), runtime.SaveDialogOptions{
		Title:           "Save interview report",
		DefaultFilename: "interview-report.pdf",
		Filters:         []runtime.FileFilter{{DisplayName: "PDF", Pattern: "*.pdf"}},
	})
	if err != nil || path == "" {
		return "", err
	}
	if err := os.WriteFile(path, report, 0o600); err != nil {
		a.SessionError(domain.ErrorCodeReport, err.Error())
		return "", err
	}
	return path, nil
}

// CopyTranscript writes the transcript as plain text to the clipboard.
func (a *App) CopyTranscript() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if err := a.clipboard.SetText(a.context(), transcriptText(a.controller.Transcript())); err != nil {
		a.SessionError(domain.ErrorCodeClipboard, err.Error())
		return err
	}
	return nil
}

// UploadResume parses a resume. Parse failures fall back to a default
// profile so the interview can still be configured.
func (a *App) UploadResume(name string, content []byte) (domain.CandidateProfile, error) {
	if err := a.requireBackend(); err != nil {
		return domain.CandidateProfile{}, err
	}
	profile, err := a.backend.UploadResume(a.context(), ports.ResumeFile{
		Name:    name,
		Content: bytes.NewReader(content),
	})
	if err != nil {
		a.SessionError(domain.ErrorCodeBackend, err.Error())
		return backend.FallbackProfile(strings.TrimSuffix(name, ".pdf")), nil
	}
	return profile, nil
}

func (a *App) SetFocusTopics(candidateID string, topics []string) error {
	if err := a.requireBackend(); err != nil {
		return err
	}
	if err := a.backend.SetFocusTopics(a.context(), candidateID, topics); err != nil {
		a.SessionError(domain.ErrorCodeBackend, err.Error())
		return err
	}
	return nil
}

// StartInterview asks the backend to dispatch the interviewer. A failed
// call yields an empty credential; the caller may still join with one
// fetched from the token endpoint.
func (a *App) StartInterview(candidateID string) (domain.RoomCredential, error) {
	if err := a.requireBackend(); err != nil {
		return domain.RoomCredential{}, err
	}
	credential, err := a.backend.StartInterview(a.context(), candidateID)
	if err != nil {
		a.SessionError(domain.ErrorCodeBackend, err.Error())
		return domain.RoomCredential{}, nil
	}
	return credential, nil
}

// GetStatus returns the current room status.
func (a *App) GetStatus() domain.Status {
	if a.controller == nil {
		status := domain.Status{Connection: domain.ConnectionDisconnected}
		if a.bootErr != nil {
			status.Message = a.bootErr.Error()
		}
		return status
	}
	return a.controller.Status()
}

func (a *App) GetTranscript() []domain.TranscriptEntry {
	if a.controller == nil {
		return nil
	}
	return a.controller.Transcript()
}

func (a *App) GetLanguages() []domain.Language {
	return append([]domain.Language(nil), domain.SupportedLanguages...)
}

// GetRuntimeInfo returns non-sensitive config for the UI.
func (a *App) GetRuntimeInfo() map[string]string {
	if a.bootErr != nil {
		return map[string]string{"error": a.bootErr.Error()}
	}

	return map[string]string{
		"apiBase":   a.cfg.Backend.APIBase,
		"roomUrl":   a.cfg.Room.URL,
		"transport": a.cfg.Room.Transport,
		"piston":    a.cfg.Execution.PistonURL,
	}
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

func (a *App) requireBackend() error {
	if err := a.requireReady(); err != nil {
		return err
	}
	if a.backend == nil {
		return fmt.Errorf("interview backend is not configured")
	}
	return nil
}

func (a *App) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *App) ConnectionChanged(state domain.ConnectionState) {
	a.emit(eventConnection, map[string]string{"state": string(state)})
}

func (a *App) TranscriptChanged(entries []domain.TranscriptEntry) {
	a.emit(eventTranscript, entries)
}

func (a *App) TakeoverChanged(state domain.TakeoverState, promptOpen bool) {
	a.emit(eventTakeover, map[string]any{"state": string(state), "promptOpen": promptOpen})
}

// SessionStateChanged emits interview lifecycle updates to the frontend.
func (a *App) SessionStateChanged(state domain.SessionState, reason domain.SessionStateReason) {
	a.emit(eventSession, map[string]string{
		"state":   string(state),
		"reason":  string(reason),
		"message": sessionReasonMessage(reason),
	})
}

func (a *App) EditorReplaced(editor domain.EditorState) {
	a.emit(eventEditor, editor)
}

// SessionError emits backend errors to the UI.
func (a *App) SessionError(code domain.ErrorCode, detail string) {
	a.emit(eventError, map[string]string{
		"code":    string(code),
		"message": errorMessage(code, detail),
		"detail":  detail,
	})
}

func (a *App) emit(event string, payload any) {
	if a.ctx == nil {
		return
	}
	runtime.EventsEmit(a.ctx, event, payload)
}

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonJoined:
		return "Interview in progress"
	case domain.SessionReasonLocalEnd:
		return "Ending interview..."
	case domain.SessionReasonRemoteEnd:
		return "Interview completed. Report is being generated..."
	case domain.SessionReasonGraceElapsed:
		return "Interview ended"
	case domain.SessionReasonLeft:
		return "Left the room"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodeTransport:
		return "Connection issue"
	case domain.ErrorCodeMedia:
		return "Camera or microphone unavailable"
	case domain.ErrorCodeExecution:
		return "Code execution failed"
	case domain.ErrorCodeBackend:
		return "Interview service error"
	case domain.ErrorCodeReport:
		return "Report unavailable"
	case domain.ErrorCodeCredential:
		return "Could not obtain room access"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

func transcriptText(entries []domain.TranscriptEntry) string {
	var b strings.Builder
	for _, entry := range entries {
		fmt.Fprintf(&b, "[%s] %s: %s\n", entry.Timestamp, entry.Sender, entry.Text)
	}
	return b.String()
}

type wailsClipboard struct{}

func (c *wailsClipboard) SetText(ctx context.Context, text string) error {
	return runtime.ClipboardSetText(ctx, text)
}

// wailsMedia forwards track toggles to the frontend, which owns the
// browser media devices.
type wailsMedia struct {
	app *App
}

func (m *wailsMedia) SetCameraEnabled(_ context.Context, enabled bool) error {
	return m.toggle("camera", enabled)
}

func (m *wailsMedia) SetMicrophoneEnabled(_ context.Context, enabled bool) error {
	return m.toggle("microphone", enabled)
}

func (m *wailsMedia) toggle(track string, enabled bool) error {
	if m.app.ctx == nil {
		return errors.New("media is unavailable before startup")
	}
	m.app.emit(eventMedia, map[string]any{"track": track, "enabled": enabled})
	return nil
}
