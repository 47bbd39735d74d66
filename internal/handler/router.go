package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	authHandler "github.com/zhouzirui/hirestream/backend/internal/handler/auth"
	"github.com/zhouzirui/hirestream/backend/internal/handler/generate"
	"github.com/zhouzirui/hirestream/backend/internal/handler/profile"
	relayHandler "github.com/zhouzirui/hirestream/backend/internal/handler/relay"
	middlewarePkg "github.com/zhouzirui/hirestream/backend/internal/middleware"
	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
	"github.com/zhouzirui/hirestream/backend/internal/service/relay"
	"github.com/zhouzirui/hirestream/backend/pkg/utils"
)

// Dependencies 汇总路由需要的服务，未配置的服务为 nil。
type Dependencies struct {
	// Relays 以路由前缀（如 "/job-description"）为键
	Relays    map[string]*relay.Relay
	Generator generate.Generator
	// CandidateProfile 为空时使用 ai.CandidateSearch
	CandidateProfile ai.Profile
	Accounts         authHandler.Accounts
	AllowedOrigins   []string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(deps.AllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		profile.New(ai.Catalog()).RegisterRoutes(api)

		// 每个服务一个独立的会话中转
		for prefix, rl := range deps.Relays {
			h := relayHandler.New(rl)
			api.Route(prefix, h.RegisterRoutes)
		}

		if deps.Generator != nil {
			var opts []generate.Option
			if deps.CandidateProfile.Name != "" {
				opts = append(opts, generate.WithCandidateProfile(deps.CandidateProfile))
			}
			generate.New(deps.Generator, opts...).RegisterRoutes(api)
		}

		if deps.Accounts != nil {
			authHandler.New(deps.Accounts).RegisterRoutes(api)
		}
	})

	return r
}
