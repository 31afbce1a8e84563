package bootstrap

import (
	"aegisroom/internal/clock"
	"aegisroom/internal/config"
	"aegisroom/internal/logger"
	"aegisroom/internal/ports"
	"aegisroom/internal/providers/backend"
	"aegisroom/internal/providers/credentials"
	"aegisroom/internal/providers/piston"
	"aegisroom/internal/transport/natsroom"
	"aegisroom/internal/transport/wsroom"
	"aegisroom/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.RoomController
	Backend    *backend.Client
	Config     config.Config
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink, media ports.MediaPublisher) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	logger.Init(cfg.Log)

	api := backend.NewClient(backend.Config{
		BaseURL: cfg.Backend.APIBase,
		Timeout: cfg.Backend.HTTPTimeout,
	})

	deps := usecase.Deps{
		Media: media,
		Executor: piston.NewExecutor(piston.Config{
			BaseURL: cfg.Execution.PistonURL,
			Timeout: cfg.Execution.Timeout,
		}),
		Backend: api,
		Events:  eventSink,
		Clock:   clock.Real(),
		Logger:  logger.NewLogger("room"),
	}

	roomURL := cfg.Room.URL
	switch cfg.Room.Transport {
	case config.TransportNATS:
		// NATS rooms authenticate against the server, not the token endpoint.
		roomURL = cfg.Room.NATSURL
		deps.Connector = natsroom.NewConnector(natsroom.Config{}, logger.NewLogger("natsroom"))
	default:
		deps.Connector = wsroom.NewConnector(wsroom.Config{}, logger.NewLogger("wsroom"))
		deps.Credentials = credentials.NewIssuer(credentials.Config{
			URL:     cfg.Backend.TokenURL,
			Timeout: cfg.Backend.HTTPTimeout,
		}, logger.NewLogger("credentials"))
	}

	controller := usecase.NewRoomController(deps, usecase.Config{
		RoomURL:        roomURL,
		HistorySettle:  cfg.Session.HistorySettle,
		ObserverSettle: cfg.Session.ObserverSettle,
		EndGrace:       cfg.Session.EndGrace,
		ReportRetry:    cfg.Session.ReportRetry,
	})

	return Services{Controller: controller, Backend: api, Config: cfg}, nil
}
