package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/inkwell-blog/apiserver/config"
	"github.com/inkwell-blog/apiserver/internal/auth"
	"github.com/inkwell-blog/apiserver/internal/cache"
	"github.com/inkwell-blog/apiserver/internal/db"
	"github.com/inkwell-blog/apiserver/internal/handlers"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/inkwell-blog/apiserver/internal/mq"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/storage"
	"github.com/inkwell-blog/apiserver/internal/store"
)

const (
	requestTimeout = 60 * time.Second
	defaultPort    = 8080
)

// Server wraps the HTTP server, router and every backend it opened.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        logging.Logger
	closers    []namedCloser
}

type namedCloser struct {
	name  string
	close func(context.Context) error
}

type repositories struct {
	users services.UserRepository
	posts services.PostRepository
}

// New opens the configured backends and builds the router. Anything opened
// before a failure is closed again.
func New(ctx context.Context, cfg config.Config, log logging.Logger) (_ *Server, err error) {
	s := &Server{log: log}
	defer func() {
		if err != nil {
			_ = s.closeAll(context.Background())
		}
	}()

	tokens, err := auth.NewTokenIssuer([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("JWT_SECRET: %w", err)
	}

	repos, err := s.openRepositories(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bucket, err := storage.OpenBucket(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open asset bucket: %w", err)
	}
	if bucket != nil {
		s.track("bucket", func(context.Context) error { return bucket.Close() })
	}
	placer, err := storage.NewPlacer(cfg.Storage, bucket)
	if err != nil {
		return nil, err
	}

	var postOpts []services.PostServiceOption
	if strings.TrimSpace(cfg.Redis.Addr) != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, err
		}
		s.track("redis", func(context.Context) error { return rdb.Close() })
		postOpts = append(postOpts, services.WithPostCache(cache.NewPostCache(rdb, cfg.Redis.TTL)))
	}

	backend, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}
	if backend != nil {
		s.track("mq", func(context.Context) error { return backend.Close() })
		postOpts = append(postOpts, services.WithEventPublisher(mq.NewPublisher(backend, cfg.MQ.Channel)))
	}

	userService, err := services.NewUserService(repos.users, auth.NewPasswordHasher(cfg.Auth.BcryptCost), tokens, cfg.StoreTimeout)
	if err != nil {
		return nil, err
	}
	postService := services.NewPostService(repos.posts, placer, log, cfg.StoreTimeout, postOpts...)

	s.router = newRouter(cfg, log, userService, postService, placer)

	port := cfg.ServerPort
	if port == 0 {
		port = defaultPort
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Info(ctx, "server configured",
		"port", port,
		"db_driver", cfg.Database.Driver,
		"storage_driver", cfg.Storage.Driver,
		"cache", cfg.Redis.Addr != "",
		"mq_driver", cfg.MQ.Driver,
	)
	return s, nil
}

func (s *Server) openRepositories(ctx context.Context, cfg config.Config) (repositories, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Database.Driver)) {
	case "", "postgres":
		conn, err := db.Open(ctx, cfg.Database)
		if err != nil {
			return repositories{}, err
		}
		s.track("postgres", func(context.Context) error { return conn.Close() })
		return repositories{
			users: store.NewUserRepository(conn),
			posts: store.NewPostRepository(conn),
		}, nil

	case "mongo", "mongodb":
		client, database, err := db.OpenMongo(ctx, cfg.Mongo)
		if err != nil {
			return repositories{}, err
		}
		s.track("mongo", client.Disconnect)

		users := store.NewMongoUserRepository(database)
		posts := store.NewMongoPostRepository(database, users)
		if err := users.EnsureIndexes(ctx); err != nil {
			return repositories{}, err
		}
		if err := posts.EnsureIndexes(ctx); err != nil {
			return repositories{}, err
		}
		return repositories{users: users, posts: posts}, nil

	case "memory":
		s.log.Warn(ctx, "using in-memory store, data is lost on restart")
		mem := store.NewMemory()
		return repositories{users: mem.Users(), posts: mem.Posts()}, nil

	default:
		return repositories{}, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

func newRouter(cfg config.Config, log logging.Logger, users *services.UserService, posts *services.PostService, assets handlers.AssetOpener) *chi.Mux {
	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(requestTimeout),
		cors.Handler(cors.Options{
			AllowedOrigins:   splitOrigins(cfg.ClientOrigin),
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)

	authHandler := handlers.NewAuthHandler(users, log, cfg.Auth.CookieSecure)

	router.Get("/healthz", handlers.Healthz)
	handlers.AuthRouter(router, authHandler)
	router.Route("/post", func(r chi.Router) {
		handlers.PostRouter(r, handlers.NewPostHandler(posts, log), authHandler.RequireSession)
	})
	handlers.AssetRouter(router, assets, log)

	return router
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Router exposes the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info(context.Background(), "listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the backends in reverse
// order of opening.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http: %w", err))
		}
	}
	if err := s.closeAll(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) track(name string, close func(context.Context) error) {
	s.closers = append(s.closers, namedCloser{name: name, close: close})
}

func (s *Server) closeAll(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(ctx); err != nil {
			s.log.Warn(ctx, "close failed", "backend", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
