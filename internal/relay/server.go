package relay

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"aegisroom/internal/logger"
	"aegisroom/internal/roomtoken"
)

// Config controls credential minting.
type Config struct {
	Secret   []byte
	TokenTTL time.Duration
	Now      func() time.Time
}

// Server exposes the hub over HTTP.
type Server struct {
	hub      *Hub
	cfg      Config
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

func NewServer(cfg Config, hub *Hub, log *logger.Logger) (*Server, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("relay secret is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Desktop shells and local dev servers connect from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: log,
	}, nil
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/token", s.handleToken)
	r.Get("/api/livekit/token", s.handleToken)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealthz)
	return r
}

type tokenResponse struct {
	Token     string `json:"token"`
	Room      string `json:"room"`
	Identity  string `json:"identity"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	room := strings.TrimSpace(r.URL.Query().Get("room"))
	identity := strings.TrimSpace(r.URL.Query().Get("username"))
	if room == "" || identity == "" {
		writeError(w, http.StatusBadRequest, "room and username are required")
		return
	}

	now := s.cfg.Now()
	token, err := roomtoken.Mint(s.cfg.Secret, room, identity, s.cfg.TokenTTL, now)
	if err != nil {
		s.logger.Errorf("failed to mint token for %s: %v", identity, err)
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}

	res := tokenResponse{Token: token, Room: room, Identity: identity}
	if s.cfg.TokenTTL > 0 {
		res.ExpiresAt = now.Add(s.cfg.TokenTTL).UTC().Format(time.RFC3339)
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}

	claims, err := roomtoken.Verify(s.cfg.Secret, token, s.cfg.Now())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorf("websocket upgrade failed for %s: %v", claims.Identity(), err)
		return
	}

	m := newMember(claims.Identity(), claims.Room, conn, sendBuffer)
	s.hub.register(m)
	go s.hub.writePump(m)
	go s.hub.readPump(m)
}

type healthResponse struct {
	Status string         `json:"status"`
	Rooms  map[string]int `json:"rooms"`
	Audit  string         `json:"audit"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Rooms:  s.hub.Rooms(),
		Audit:  s.hub.auditStatus(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
