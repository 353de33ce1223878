package api

import (
	"context"
	"fmt"

	"github.com/garnizeh/recruit/internal/blob"
	"github.com/garnizeh/recruit/internal/config"
	"github.com/garnizeh/recruit/internal/db"
	"github.com/garnizeh/recruit/internal/documents"
	"github.com/garnizeh/recruit/internal/lifecycle"
	"github.com/garnizeh/recruit/internal/repository/sqlite"
	"github.com/garnizeh/recruit/internal/validation"
	"github.com/garnizeh/recruit/pkg/repository"
	"github.com/gorilla/mux"
)

// Services are the collaborators the HTTP handlers call into.
type Services struct {
	Users     repository.UserRepo
	Engine    *lifecycle.Engine
	Documents *documents.Registry
	Schemas   *validation.Loader
	DB        Pinger
}

// SetupRoutes builds the services on top of the sqlite repository and returns the router.
func SetupRoutes(ctx context.Context, cfg *config.Config, version, buildTime string, d *db.DB, store blob.Store, cleaner lifecycle.Cleaner) (*mux.Router, error) {
	repo := sqlite.New(d, logger)

	schemas, err := validation.NewLoader(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}

	svc := Services{
		Users:  repo,
		Engine: lifecycle.New(repo, cleaner, logger),
		Documents: documents.New(repo, repo, store, cleaner, documents.Config{
			MaxBytes:          cfg.Upload.MaxBytes,
			AllowedExtensions: cfg.Upload.AllowedExtensions,
		}, logger),
		Schemas: schemas,
		DB:      d.GetConn(),
	}
	return NewRouter(cfg, version, buildTime, svc), nil
}

func NewRouter(cfg *config.Config, version, buildTime string, svc Services) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{DB: svc.DB}
	authHandler := NewAuthHandler(svc.Users, cfg.JWTSecret, cfg.TokenDuration)
	appsHandler := NewApplicationsHandler(svc.Engine, svc.Schemas)
	docsHandler := NewDocumentsHandler(svc.Documents, cfg.Upload.MaxBytes)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/auth/signup", authHandler.Signup).Methods("POST")
	r.HandleFunc("/auth/signin", authHandler.Signin).Methods("POST")

	authMW := JWTAuthMiddlewareWithSecret(cfg.JWTSecret)

	me := r.PathPrefix("/auth").Subrouter()
	me.Use(authMW)
	me.HandleFunc("/me", authHandler.Me).Methods("GET")
	me.HandleFunc("/signout", authHandler.Signout).Methods("POST")

	// Protected routes
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(authMW)

	protected.HandleFunc("/applications", appsHandler.Create).Methods("POST")
	protected.HandleFunc("/applications", appsHandler.List).Methods("GET")
	protected.HandleFunc("/applications/{id:[0-9]+}", appsHandler.Get).Methods("GET")
	protected.HandleFunc("/applications/{id:[0-9]+}", appsHandler.Update).Methods("PUT")
	protected.HandleFunc("/applications/{id:[0-9]+}/stage", appsHandler.AdvanceStage).Methods("PUT")
	protected.HandleFunc("/applications/{id:[0-9]+}", appsHandler.Delete).Methods("DELETE")

	protected.HandleFunc("/documents/upload", docsHandler.Upload).Methods("POST")
	protected.HandleFunc("/documents/application/{applicationId:[0-9]+}", docsHandler.ListForApplication).Methods("GET")
	protected.HandleFunc("/documents/{id:[0-9]+}/verify", docsHandler.Verify).Methods("PUT")
	protected.HandleFunc("/documents/{id:[0-9]+}/file", docsHandler.File).Methods("GET")
	protected.HandleFunc("/documents/{id:[0-9]+}", docsHandler.Delete).Methods("DELETE")

	return r
}
