// Package credentials fetches room credentials from the token endpoint.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aegisroom/internal/logger"
	"aegisroom/internal/roomtoken"
)

var ErrEmptyToken = errors.New("token endpoint returned no token")

type Config struct {
	URL     string
	Timeout time.Duration
}

// Issuer implements ports.CredentialIssuer.
type Issuer struct {
	endpoint string
	http     *http.Client
	log      *logger.Logger
}

func NewIssuer(cfg Config, log *logger.Logger) *Issuer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Issuer{
		endpoint: strings.TrimSpace(cfg.URL),
		http:     &http.Client{Timeout: cfg.Timeout},
		log:      log,
	}
}

func (i *Issuer) Issue(ctx context.Context, room string, identity string) (string, error) {
	if i.endpoint == "" {
		return "", errors.New("token url is not configured")
	}
	endpoint, err := url.Parse(i.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid token url: %w", err)
	}
	query := endpoint.Query()
	query.Set("room", room)
	query.Set("username", identity)
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("ngrok-skip-browser-warning", "true")

	res, err := i.http.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return "", fmt.Errorf("token endpoint returned status %d: %s", res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	token := strings.TrimSpace(decoded.Token)
	if token == "" {
		return "", ErrEmptyToken
	}

	i.describe(token, room, identity)
	return token, nil
}

func (i *Issuer) describe(token, room, identity string) {
	claims, err := roomtoken.Inspect(token)
	if err != nil {
		i.log.Debugf("room credential for %s is opaque", identity)
		return
	}
	if claims.Room != "" && claims.Room != room {
		i.log.Warnf("room credential names room %q, requested %q", claims.Room, room)
	}
	if expiry := claims.Expiry(); !expiry.IsZero() {
		i.log.WithFields(map[string]interface{}{
			"identity": claims.Identity(),
			"room":     claims.Room,
			"expires":  expiry.UTC().Format(time.RFC3339),
		}).Debug("room credential issued")
	}
}
