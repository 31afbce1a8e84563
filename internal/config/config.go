package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aegisroom/internal/logger"
)

const (
	TransportWebsocket = "websocket"
	TransportNATS      = "nats"
)

// Config stores runtime configuration for the interview client.
type Config struct {
	Backend   BackendConfig
	Execution ExecutionConfig
	Room      RoomConfig
	Session   SessionConfig
	Log       logger.LogConfig
}

type BackendConfig struct {
	APIBase     string
	TokenURL    string
	HTTPTimeout time.Duration
}

type ExecutionConfig struct {
	PistonURL string
	Timeout   time.Duration
}

type RoomConfig struct {
	URL       string
	Transport string
	NATSURL   string
}

type SessionConfig struct {
	HistorySettle  time.Duration
	ObserverSettle time.Duration
	EndGrace       time.Duration
	ReportRetry    time.Duration
}

// RelayConfig configures cmd/aegis-relay.
type RelayConfig struct {
	Addr     string
	Secret   string
	TokenTTL time.Duration
	NATSURL  string
	Log      logger.LogConfig
}

// Load resolves configuration from an optional .env file, environment
// variables and sensible defaults. Variables already set in the environment
// win over the file.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	apiBase := strings.TrimRight(envOrDefault("AEGIS_API_BASE", "http://localhost:8000"), "/")
	httpTimeout := envOrDefaultMillis("AEGIS_HTTP_TIMEOUT_MS", 30*time.Second)

	cfg := Config{
		Backend: BackendConfig{
			APIBase:     apiBase,
			TokenURL:    envOrDefault("AEGIS_TOKEN_URL", apiBase+"/api/livekit/token"),
			HTTPTimeout: httpTimeout,
		},
		Execution: ExecutionConfig{
			PistonURL: envOrDefault("AEGIS_PISTON_URL", "https://emkc.org/api/v2/piston"),
			Timeout:   httpTimeout,
		},
		Room: RoomConfig{
			URL:       envOrDefault("AEGIS_ROOM_URL", "http://localhost:7880"),
			Transport: strings.ToLower(envOrDefault("AEGIS_ROOM_TRANSPORT", TransportWebsocket)),
			NATSURL:   envOrDefault("AEGIS_NATS_URL", "nats://127.0.0.1:4222"),
		},
		Session: SessionConfig{
			HistorySettle:  envOrDefaultMillis("AEGIS_HISTORY_SETTLE_MS", 2*time.Second),
			ObserverSettle: envOrDefaultMillis("AEGIS_OBSERVER_SETTLE_MS", 1500*time.Millisecond),
			EndGrace:       envOrDefaultMillis("AEGIS_END_GRACE_MS", 2*time.Second),
			ReportRetry:    envOrDefaultMillis("AEGIS_REPORT_RETRY_MS", 15*time.Second),
		},
		Log: loadLog(),
	}

	switch cfg.Room.Transport {
	case TransportWebsocket, TransportNATS:
	default:
		return Config{}, fmt.Errorf("unsupported room transport %q", cfg.Room.Transport)
	}

	return cfg, nil
}

// LoadRelay resolves the relay's configuration. Flags may override it.
func LoadRelay() (RelayConfig, error) {
	if err := loadDotEnv(); err != nil {
		return RelayConfig{}, err
	}

	return RelayConfig{
		Addr:     envOrDefault("AEGIS_RELAY_ADDR", ":7880"),
		Secret:   strings.TrimSpace(os.Getenv("AEGIS_RELAY_SECRET")),
		TokenTTL: envOrDefaultMillis("AEGIS_RELAY_TOKEN_TTL_MS", 6*time.Hour),
		NATSURL:  strings.TrimSpace(os.Getenv("AEGIS_RELAY_NATS_URL")),
		Log:      loadLog(),
	}, nil
}

func loadLog() logger.LogConfig {
	cfg := logger.DefaultLogConfig()
	cfg.Level = envOrDefault("AEGIS_LOG_LEVEL", cfg.Level)
	cfg.LogToJSON = envOrDefaultBool("AEGIS_LOG_JSON", cfg.LogToJSON)
	cfg.FilePath = strings.TrimSpace(os.Getenv("AEGIS_LOG_FILE"))
	return cfg
}

func loadDotEnv() error {
	path := envOrDefault("AEGIS_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultMillis(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return time.Duration(parsed) * time.Millisecond
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
