package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/hirestream/backend/internal/config"
	"github.com/zhouzirui/hirestream/backend/internal/handler"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
	"github.com/zhouzirui/hirestream/backend/internal/service/ai"
	"github.com/zhouzirui/hirestream/backend/internal/service/auth"
	"github.com/zhouzirui/hirestream/backend/internal/service/relay"
	"github.com/zhouzirui/hirestream/backend/internal/service/search"
	"github.com/zhouzirui/hirestream/backend/internal/service/session"
	"github.com/zhouzirui/hirestream/backend/internal/storage/users"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := observability.Logger()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		logger.Warn("failed to load .env file, continuing with system environment variables only", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	deps := handler.Dependencies{AllowedOrigins: cfg.Server.AllowedOrigins}

	// Initialize AI service and one relay per generation service
	var stores []*session.MemoryStore
	if cfg.AI.Enabled() {
		aiService, err := newAIService(ctx, cfg)
		if err != nil {
			logger.Warn("failed to initialize AI service, continuing without AI functionality", "error", err)
		} else {
			profiles := relayProfiles(cfg.Search)
			deps.Generator = aiService
			deps.CandidateProfile = profiles["/candidates"]
			deps.Relays = make(map[string]*relay.Relay)
			for prefix, profile := range profiles {
				store := session.NewMemoryStore(session.Options{
					TTL:           cfg.Session.TTL,
					SweepInterval: cfg.Session.SweepInterval,
				})
				stores = append(stores, store)
				deps.Relays[prefix] = relay.New(store, aiService, profile, relay.WithTimeout(cfg.AI.Timeout))
			}
			logger.Info("AI service initialized", "provider", cfg.AI.Provider)
		}
	} else {
		logger.Warn("model credentials missing, skipping AI initialization", "provider", cfg.AI.Provider)
	}
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()

	// Initialize account service
	if cfg.Auth.Enabled() {
		userStore, err := users.Open(ctx, cfg.Auth.Driver, cfg.Auth.DSN)
		if err != nil {
			log.Fatalf("failed to open user store: %v", err)
		}
		defer userStore.Close()

		authService, err := auth.NewService(userStore, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
		if err != nil {
			log.Fatalf("failed to initialize auth service: %v", err)
		}
		deps.Accounts = authService
		logger.Info("auth service initialized", "driver", cfg.Auth.Driver)
	} else {
		logger.Warn("JWT_SECRET not set, account routes disabled")
	}

	router := handler.NewRouter(deps)

	startServer(ctx, cfg.Server, router)
}

// relayProfiles maps route prefixes to the profile each relay serves.
func relayProfiles(searchCfg config.SearchConfig) map[string]ai.Profile {
	candidates := ai.CandidateSearch
	candidates.TopK = searchCfg.TopK

	return map[string]ai.Profile{
		"/job-description": ai.JobDescription,
		"/action-plan":     ai.ActionPlan,
		"/candidates":      candidates,
	}
}

func newAIService(ctx context.Context, cfg *config.Config) (*ai.Service, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	var opts []ai.Option
	searchService, err := newSearchService(ctx, cfg.Search)
	if err != nil {
		observability.Logger().Warn("candidate search unavailable", "error", err)
	} else {
		opts = append(opts, ai.WithRetriever(searchService))
	}

	return ai.NewService(ctx, chatModel, opts...)
}

// newSearchService uses Qdrant when configured; otherwise it loads the
// candidate corpus into memory.
func newSearchService(ctx context.Context, searchCfg config.SearchConfig) (*search.Service, error) {
	if searchCfg.VectorEnabled() {
		embedder := search.NewOllamaEmbedder(searchCfg.OllamaURL, searchCfg.EmbedModel)
		index := search.NewQdrantIndex(searchCfg.QdrantURL, searchCfg.Collection, embedder)
		return search.NewService(index, nil), nil
	}

	if searchCfg.CandidatesSource == "" {
		return nil, errors.New("neither QDRANT_URL nor CANDIDATES_SOURCE is set")
	}

	var loader *search.Loader
	if searchCfg.S3.Enabled() {
		client, err := searchCfg.S3.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		loader = search.NewLoader(client)
	} else {
		loader = search.NewLoader(nil)
	}

	doc, err := loader.Load(ctx, searchCfg.CandidatesSource)
	if err != nil {
		return nil, err
	}

	svc := search.NewService(search.NewMemoryIndex(), nil)
	ids, err := svc.Ingest(ctx, doc)
	if err != nil {
		return nil, err
	}
	observability.Logger().Info("candidate corpus loaded", "source", doc.Name, "chunks", len(ids))
	return svc, nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	observability.Logger().Info("hirestream backend listening", "addr", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
