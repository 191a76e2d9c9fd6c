package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/wordfill-backend/internal/challenge"
	"github.com/DoyleJ11/wordfill-backend/internal/hub"
	"github.com/DoyleJ11/wordfill-backend/internal/ws"
)

type Options struct {
	Log            *zap.Logger
	AllowedOrigins []string
}

func SetupRoutes(h *hub.Hub, challenges *challenge.Service, sessions Snapshots, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	hs := &handlers{challenges: challenges, sessions: sessions, log: log}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Route("/challenges", func(r chi.Router) {
		r.Post("/", hs.createChallenge)
		r.Post("/join", hs.joinChallenge)
		r.Get("/detail/{participantId}", hs.participantDetail)
		r.Get("/{id}/snapshot", hs.challengeSnapshot)
		r.Delete("/{id}", hs.deleteChallenge)
	})
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, challenges, ws.Options{Log: log, OriginPatterns: opts.AllowedOrigins}))
	return r
}
