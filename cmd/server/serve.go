package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	"lowcode-backend/internal/admin"
	"lowcode-backend/internal/auth"
	"lowcode-backend/internal/config"
	"lowcode-backend/internal/engine"
	"lowcode-backend/internal/logging"
	"lowcode-backend/internal/metadata"
	"lowcode-backend/internal/publish"
	"lowcode-backend/internal/session"
	"lowcode-backend/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.SetLevel(cfg.Log.Level)
	logging.Infof("Config loaded (port: %d, driver: %s, models: %s)", cfg.Server.Port, cfg.Database.ResolvedDriver(), cfg.Models.Dir)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	logging.Infof("Database connected (%s)", db.Dialect.Name())

	// 3. Session store, plus the recovery pool for the persistent store
	sessions, closeSessions, err := buildSessions(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 4. Catalog, registry and route table
	catalog := metadata.NewCatalog(cfg.Models.Dir)
	migrator := store.NewMigrator(db)
	authz := auth.NewAuthorizer(catalog)
	routes := engine.NewRouteTable(engine.NewHandler(db), authz.Guards()...)
	registrar := engine.NewRegistrar(metadata.NewRegistry(), routes, migrator)

	// 5. Load and register every definition on disk
	defs, err := catalog.LoadAll()
	if err != nil {
		return fmt.Errorf("load models: %w", err)
	}
	for _, def := range defs {
		registrar.Register(def)
	}
	registrar.Wait()

	// 6. Watch the models directory
	if cfg.Models.Watch {
		w, err := metadata.NewWatcher(catalog.Dir(), registrar.WatchHandlers(cfg.Models.UnmountOnRemove))
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				logging.Errorf("model watcher stopped: %v", err)
			}
		}()
		logging.Infof("Watching %s for model changes", catalog.Dir())
	}

	// 7. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler,
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 8. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "models": routes.Models()})
	})

	// 9. Identity: session cookie first, then bearer token
	app.Use(sessions.Middleware())
	app.Use(auth.TokenMiddleware(cfg.Auth.JWTSecret))

	// 10. Login and logout
	authHandler := auth.NewAuthHandler(sessions, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.LoginPasswordHash)
	auth.RegisterAuthRoutes(app, authHandler)

	// 11. Model admin
	var adminGuards []fiber.Handler
	if cfg.Auth.ProtectAdmin {
		adminGuards = append(adminGuards, auth.RequireAdmin())
	} else {
		logging.Warnf("Model admin endpoints are not protected")
	}
	publisher := publish.New(cfg.Publish.SchemaFile, cfg.Publish.Command, cfg.Publish.Timeout)
	admin.RegisterAdminRoutes(app, admin.NewHandler(catalog, registrar, migrator, publisher), adminGuards...)

	// 12. Dynamic model routes
	engine.RegisterDynamicRoutes(app, cfg.Server.APIPrefix, routes)

	// 13. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logging.Infof("Starting server on %s", addr)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logging.Errorf("shutdown: %v", err)
	}
	registrar.Wait()
	return nil
}

func buildSessions(ctx context.Context, cfg *config.Config, db *store.Store) (*session.Manager, func(), error) {
	opts := session.Options{
		Secret:     cfg.Session.Secret,
		CookieName: cfg.Session.CookieName,
		MaxAge:     cfg.Session.MaxAge,
		Secure:     cfg.Session.Secure,
	}

	if !cfg.Session.Persistent {
		logging.Warnf("Using in-memory session store; sessions are lost on restart")
		return session.NewManager(session.NewMemoryStore(cfg.Session.MaxAge), opts, nil), func() {}, nil
	}

	sqlStore := session.NewSQLStore(db, cfg.Session.Table, cfg.Session.MaxAge)
	if err := sqlStore.EnsureTable(ctx); err != nil {
		return nil, nil, err
	}

	recoveryDB, err := store.NewWithPoolSize(ctx, cfg.Database, cfg.Database.RecoveryPoolSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open session recovery pool: %w", err)
	}
	recoverer := session.NewRecoverer(recoveryDB, cfg.Session.Table, cfg.Session.Secret)
	logging.Infof("Session store ready (table %s, recovery pool %d)", cfg.Session.Table, cfg.Database.RecoveryPoolSize)
	return session.NewManager(sqlStore, opts, recoverer), recoveryDB.Close, nil
}
