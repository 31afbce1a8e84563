package usecase

import (
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"

	"aegisroom/internal/domain"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

var starterCode = map[string]string{
	"python":     "def solution():\n    # Write your code here\n    pass\n\nprint(solution())\n",
	"javascript": "function solution() {\n  // Write your code here\n}\n\nconsole.log(solution());\n",
	"typescript": "function solution(): void {\n  // Write your code here\n}\n\nconsole.log(solution());\n",
	"c++":        "#include <iostream>\n\nint main() {\n    // Write your code here\n    return 0;\n}\n",
	"java":       "public class Main {\n    public static void main(String[] args) {\n        // Write your code here\n    }\n}\n",
}

// findLanguage matches a supported language by id or display name.
func findLanguage(name string) (domain.Language, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Language{}, false
	}
	return lo.Find(domain.SupportedLanguages, func(lang domain.Language) bool {
		return strings.EqualFold(lang.ID, name) || strings.EqualFold(lang.Name, name)
	})
}

// editorState holds the candidate's editor buffer. Snapshots pushed by the
// interviewer overwrite it; the last one applied wins.
type editorState struct {
	mu       sync.Mutex
	code     string
	language domain.Language
}

func newEditorState() *editorState {
	lang := domain.SupportedLanguages[0]
	return &editorState{code: starterCode[lang.ID], language: lang}
}

func (e *editorState) Snapshot() domain.EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.EditorState{Code: e.code, Language: e.language}
}

func (e *editorState) SetCode(code string) {
	e.mu.Lock()
	e.code = code
	e.mu.Unlock()
}

// ApplySnapshot replaces the code and, when language names a supported
// runtime, the selected language.
func (e *editorState) ApplySnapshot(code, language string) domain.EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.code = code
	if lang, ok := findLanguage(language); ok {
		e.language = lang
	}
	return domain.EditorState{Code: e.code, Language: e.language}
}

// SelectLanguage switches runtime and loads its starter code.
func (e *editorState) SelectLanguage(id string) (domain.EditorState, error) {
	lang, ok := findLanguage(id)
	if !ok {
		return domain.EditorState{}, ErrUnsupportedLanguage
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.language = lang
	e.code = starterCode[lang.ID]
	return domain.EditorState{Code: e.code, Language: e.language}, nil
}
