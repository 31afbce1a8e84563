// Package backend talks to the interviewing authority's HTTP API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"aegisroom/internal/domain"
	"aegisroom/internal/ports"
)

// ErrReportNotReady is returned by DownloadReport while the report is being
// generated.
var ErrReportNotReady = ports.ErrReportNotReady

var fallbackSkills = []string{"React", "System Design", "Python", "TypeScript", "AWS", "Docker"}

// Config controls the backend client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements ports.InterviewBackend.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// FallbackProfile is used when the resume could not be parsed.
func FallbackProfile(candidateID string) domain.CandidateProfile {
	if strings.TrimSpace(candidateID) == "" {
		candidateID = "Candidate"
	}
	return domain.CandidateProfile{
		CandidateID:    candidateID,
		Skills:         append([]string(nil), fallbackSkills...),
		FocusTopics:    []string{},
		IntegrityCheck: true,
		Fallback:       true,
	}
}

type uploadResponse struct {
	CandidateID string `json:"candidate_id"`
	Audit       struct {
		ContactDetails struct {
			Name string `json:"name"`
		} `json:"contact_details"`
		ResumeClaims struct {
			SkillsList []string `json:"skills_list"`
		} `json:"resume_claims"`
		Summary struct {
			IntegrityLevel string `json:"integrity_level"`
		} `json:"summary"`
	} `json:"audit"`
}

func (c *Client) UploadResume(ctx context.Context, file ports.ResumeFile) (domain.CandidateProfile, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", file.Name)
	if err != nil {
		return domain.CandidateProfile{}, err
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("failed to read resume: %w", err)
	}
	if err := writer.Close(); err != nil {
		return domain.CandidateProfile{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload-resume", &body)
	if err != nil {
		return domain.CandidateProfile{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var decoded uploadResponse
	if err := c.doJSON(req, &decoded); err != nil {
		return domain.CandidateProfile{}, fmt.Errorf("upload resume: %w", err)
	}

	skills := lo.Compact(lo.Map(decoded.Audit.ResumeClaims.SkillsList, func(skill string, _ int) string {
		return strings.TrimSpace(skill)
	}))
	if len(skills) == 0 {
		skills = []string{"React", "Python", "TypeScript"}
	}

	return domain.CandidateProfile{
		CandidateID:    firstNonEmpty(decoded.CandidateID, decoded.Audit.ContactDetails.Name, strings.TrimSuffix(file.Name, ".pdf"), "Candidate"),
		Skills:         skills,
		FocusTopics:    []string{},
		IntegrityCheck: !strings.EqualFold(decoded.Audit.Summary.IntegrityLevel, "Low"),
	}, nil
}

func (c *Client) SetFocusTopics(ctx context.Context, candidateID string, topics []string) error {
	payload := struct {
		CandidateID string   `json:"candidate_id"`
		FocusTopics []string `json:"focus_topics"`
	}{CandidateID: candidateID, FocusTopics: lo.Uniq(topics)}
	if payload.FocusTopics == nil {
		payload.FocusTopics = []string{}
	}

	req, err := c.newJSONRequest(ctx, "/api/set-focus-topics", payload)
	if err != nil {
		return err
	}
	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("set focus topics: %w", err)
	}
	return nil
}

func (c *Client) StartInterview(ctx context.Context, candidateID string) (domain.RoomCredential, error) {
	req, err := c.newJSONRequest(ctx, "/start-interview", candidateRequest{CandidateID: candidateID})
	if err != nil {
		return domain.RoomCredential{}, err
	}

	var decoded struct {
		Token    string `json:"token"`
		RoomName string `json:"room_name"`
	}
	if err := c.doJSON(req, &decoded); err != nil {
		return domain.RoomCredential{}, fmt.Errorf("start interview: %w", err)
	}
	return domain.RoomCredential{Token: decoded.Token, RoomName: decoded.RoomName}, nil
}

func (c *Client) StopInterview(ctx context.Context, candidateID string) error {
	req, err := c.newJSONRequest(ctx, "/stop-interview", candidateRequest{CandidateID: candidateID})
	if err != nil {
		return err
	}
	if err := c.doJSON(req, nil); err != nil {
		return fmt.Errorf("stop interview: %w", err)
	}
	return nil
}

func (c *Client) DownloadReport(ctx context.Context, candidateID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/download-report/"+url.PathEscape(candidateID), nil)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if res.StatusCode == http.StatusNotFound || (res.StatusCode != http.StatusOK && bytes.Contains(bytes.ToLower(data), []byte("not ready"))) {
		return nil, ErrReportNotReady
	}
	if res.StatusCode != http.StatusOK {
		return nil, statusError(res.StatusCode, data)
	}
	return data, nil
}

type candidateRequest struct {
	CandidateID string `json:"candidate_id"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, errors.New("backend base url is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("ngrok-skip-browser-warning", "true")
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) doJSON(req *http.Request, target any) error {
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return statusError(res.StatusCode, data)
	}
	if target == nil {
		return nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("invalid response body: %w", err)
	}
	return nil
}

func statusError(status int, body []byte) error {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return fmt.Errorf("backend returned status %d", status)
	}
	return fmt.Errorf("backend returned status %d: %s", status, text)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
