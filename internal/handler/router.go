package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	assessmentHandler "github.com/zhouzirui/z-assess/backend/internal/handler/assessment"
	participantHandler "github.com/zhouzirui/z-assess/backend/internal/handler/participant"
	"github.com/zhouzirui/z-assess/backend/internal/handler/stream"
	"github.com/zhouzirui/z-assess/backend/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-assess/backend/internal/middleware"
	"github.com/zhouzirui/z-assess/backend/internal/model/participant"
	assessmentService "github.com/zhouzirui/z-assess/backend/internal/service/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/handoff"
	"github.com/zhouzirui/z-assess/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(participants participant.Store, svc *assessmentService.Service, review *handoff.ReviewService, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		participantHandler.New(participants).RegisterRoutes(api)
		assessmentHandler.New(svc, review, log).RegisterRoutes(api)
		stream.New(svc, log).RegisterRoutes(api)
		ws.New(svc, log).RegisterRoutes(api)
	})

	return r
}
