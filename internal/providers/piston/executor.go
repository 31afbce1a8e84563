// Package piston runs candidate code on a Piston-compatible execution API.
package piston

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"aegisroom/internal/domain"
)

const defaultBaseURL = "https://emkc.org/api/v2/piston"

// Config controls the execution client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Executor implements ports.CodeExecutor.
type Executor struct {
	baseURL string
	http    *http.Client
}

func NewExecutor(cfg Config) *Executor {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Executor{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

type executeRequest struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Files    []executeFile `json:"files"`
}

type executeFile struct {
	Content string `json:"content"`
}

type executeResponse struct {
	Message string `json:"message"`
	Run     *struct {
		Stdout string `json:"stdout"`
		Stderr string `json:"stderr"`
		Code   *int   `json:"code"`
	} `json:"run"`
}

func (e *Executor) Execute(ctx context.Context, language domain.Language, code string) (domain.ExecutionResult, error) {
	body, err := json.Marshal(executeRequest{
		Language: language.ID,
		Version:  language.Version,
		Files:    []executeFile{{Content: code}},
	})
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := e.http.Do(req)
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("execution request failed: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return domain.ExecutionResult{}, fmt.Errorf("failed to read execution response: %w", err)
	}

	var decoded executeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if res.StatusCode != http.StatusOK {
			return domain.ExecutionResult{}, fmt.Errorf("execution service returned status %d", res.StatusCode)
		}
		return domain.ExecutionResult{}, fmt.Errorf("invalid execution response: %w", err)
	}
	if res.StatusCode != http.StatusOK || decoded.Run == nil {
		message := strings.TrimSpace(decoded.Message)
		if message == "" {
			message = fmt.Sprintf("execution service returned status %d", res.StatusCode)
		}
		return domain.ExecutionResult{}, fmt.Errorf("%s", message)
	}

	result := domain.ExecutionResult{Stdout: decoded.Run.Stdout, Stderr: decoded.Run.Stderr}
	if decoded.Run.Code != nil {
		result.ExitCode = *decoded.Run.Code
	}
	return result, nil
}
