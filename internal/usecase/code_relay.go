package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
	"aegisroom/internal/protocol"
)

var (
	ErrEmptyCode     = errors.New("no code to run")
	ErrRunInProgress = errors.New("a run is already in progress")
)

const (
	maxCodeRunes   = 12000
	maxOutputRunes = 3000

	codeTruncatedSuffix   = "\n... (truncated for transmission)"
	outputTruncatedSuffix = "\n... (truncated)"

	defaultSubmitLanguage = "unknown"
)

// truncateRunes keeps the first limit characters of s and appends suffix
// when anything was cut. Cutting by rune keeps multi-byte text valid.
func truncateRunes(s string, limit int, suffix string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i] + suffix
		}
		count++
	}
	return s
}

func formatCodeEntry(language, code, output string) string {
	label := language
	if label == "" {
		label = "CODE"
	}
	text := fmt.Sprintf("[%s]\n%s", label, code)
	if output != "" {
		text += "\n\n→ Output: " + output
	}
	return text
}

// renderExecution turns a sandbox result into the text shown under the
// editor.
func renderExecution(result domain.ExecutionResult) string {
	switch {
	case result.Stderr != "":
		return result.Stdout + "\nERROR:\n" + result.Stderr
	case result.ExitCode != 0:
		return fmt.Sprintf("%s\nExit code: %d", result.Stdout, result.ExitCode)
	case result.Stdout == "":
		return "(No output)"
	default:
		return result.Stdout
	}
}

type codeRelay struct {
	session  *sessionContext
	executor ports.CodeExecutor
	editor   *editorState

	mu      sync.Mutex
	running bool
}

func newCodeRelay(session *sessionContext, executor ports.CodeExecutor, editor *editorState) *codeRelay {
	return &codeRelay{session: session, executor: executor, editor: editor}
}

// Submit records a code submission locally and relays it to the room.
// Transmission failures end up in the transcript, not with the caller.
func (r *codeRelay) Submit(code, language, output string) domain.TranscriptEntry {
	s := r.session
	code = truncateRunes(code, maxCodeRunes, codeTruncatedSuffix)
	output = truncateRunes(output, maxOutputRunes, outputTruncatedSuffix)

	entry := s.appendEntry(domain.SenderCode, formatCodeEntry(language, code, output))

	if language == "" {
		language = defaultSubmitLanguage
	}
	if err := s.send(protocol.AlgoSubmit{Code: code, Language: language, Output: output}); err != nil {
		s.logger.Warnf("code submission failed: %v", err)
		s.notice(domain.ErrorCodeTransport, fmt.Sprintf("Submission Error: %v", err))
	}
	return entry
}

// Run executes the editor's current code and relays what it printed.
// Only one run may be in flight at a time.
func (r *codeRelay) Run(ctx context.Context) (domain.RunOutcome, error) {
	s := r.session
	editor := r.editor.Snapshot()
	if strings.TrimSpace(editor.Code) == "" {
		return domain.RunOutcome{}, ErrEmptyCode
	}
	if !r.begin() {
		return domain.RunOutcome{}, ErrRunInProgress
	}
	defer r.end()

	started := s.clock.Now()
	result, err := r.executor.Execute(ctx, editor.Language, editor.Code)
	elapsed := s.clock.Now().Sub(started)
	if err != nil {
		s.logger.Warnf("code execution failed: %v", err)
		s.events.SessionError(domain.ErrorCodeExecution, err.Error())
		return domain.RunOutcome{Display: fmt.Sprintf("Execution error: %v", err)}, nil
	}

	outcome := domain.RunOutcome{
		Display:  renderExecution(result),
		Duration: fmt.Sprintf("%.2fs", elapsed.Seconds()),
	}
	if !s.alive() {
		return outcome, nil
	}

	relayed := result.Stdout
	if relayed == "" {
		relayed = result.Stderr
	}
	r.Submit(editor.Code, editor.Language.Name, relayed)
	outcome.Relayed = true
	return outcome, nil
}

func (r *codeRelay) begin() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return false
	}
	r.running = true
	return true
}

func (r *codeRelay) end() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}
