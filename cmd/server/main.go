package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/desvo/klab-feed/internal/auth"
	"github.com/desvo/klab-feed/internal/config"
	"github.com/desvo/klab-feed/internal/docs"
	"github.com/desvo/klab-feed/internal/feed"
	"github.com/desvo/klab-feed/internal/friends"
	"github.com/desvo/klab-feed/internal/logger"
	"github.com/desvo/klab-feed/internal/middleware"
	"github.com/desvo/klab-feed/internal/profile"
	"github.com/desvo/klab-feed/internal/session"
	"github.com/desvo/klab-feed/internal/store"
	"github.com/desvo/klab-feed/internal/web"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()
	ctx := context.Background()

	// ── MongoDB ──────────────────────────────────────────────
	// Blocks (with retries) until the store answers; nothing is served
	// before the first successful ping.
	mongoClient, err := store.ConnectMongo(ctx, cfg.MongoURI, log)
	if err != nil {
		log.Fatal("mongo connect", zap.Error(err))
	}
	defer mongoClient.Disconnect(ctx)
	db := mongoClient.Database(cfg.MongoDB)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		log.Fatal("mongo indexes", zap.Error(err))
	}
	users := store.NewUserStore(db)
	feedStore := store.NewFeedStore(db)

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()
	sessions := session.NewStore(rdb, cfg.SessionTTL)

	// ── MinIO ────────────────────────────────────────────────
	avatars, err := store.NewAvatarStore(
		ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
	)
	if err != nil {
		log.Fatal("minio connect", zap.Error(err))
	}

	// ── Templates ────────────────────────────────────────────
	render, err := web.NewRenderer()
	if err != nil {
		log.Fatal("templates", zap.Error(err))
	}

	// ── Handlers ─────────────────────────────────────────────
	authHandler := auth.NewHandler(users, sessions, render, cfg.SessionTTL, log)
	feedHandler := feed.NewHandler(feedStore, users, sessions, render, log)
	friendsHandler := friends.NewHandler(users, sessions, render, log)
	profileHandler := profile.NewHandler(users, feedStore, avatars, sessions, render, log)
	docsHandler := docs.NewHandler(cfg.DocsDir, cfg.DocsDirES, sessions, render)

	// ── Router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:4000"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Static assets
	static := web.Static()
	r.Handle("/css/*", static)
	r.Handle("/js/*", static)

	// Public routes
	r.Get("/", authHandler.Index)
	r.Post("/login", authHandler.Login)
	r.Get("/logout", authHandler.Logout)
	r.Get("/register", authHandler.RegisterForm)
	r.Post("/register", authHandler.Register)
	r.Get("/docs", docsHandler.Page)
	r.Get("/avatars/{username}", profileHandler.ServeAvatar)

	// Authenticated pages
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequirePage(sessions))
		r.Get("/posts", feedHandler.PostsPage)
		r.Post("/posts", feedHandler.CreatePost)
		r.Post("/posts/{uuid}/comments", feedHandler.AddComment)
		r.Get("/write", feedHandler.WritePage)
		r.Post("/write", feedHandler.WriteSubmit)
		r.Get("/profile", profileHandler.ProfilePage)
		r.Get("/profile/avatar", profileHandler.AvatarPage)
		r.Post("/profile/avatar", profileHandler.UploadAvatar)
		r.Post("/profile/avatar/delete", profileHandler.DeleteAvatar)
		r.Get("/friends/list", friendsHandler.ListPage)
		r.Get("/friends/search", friendsHandler.SearchPage)
		r.Post("/friends/search", friendsHandler.SearchPage)
		r.Post("/friends/add", friendsHandler.Add)
	})

	// The like toggle answers JSON and must not redirect on auth failure.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJSON(sessions))
		r.Post("/posts/{uuid}/like", feedHandler.ToggleLike)
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	srv.Shutdown(shutCtx)
}
