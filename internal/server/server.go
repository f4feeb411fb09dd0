// Package server wires repositories, services, handlers and middleware into
// the HTTP handler served by cmd/api.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"fp-innova/internal/auth"
	"fp-innova/internal/config"
	"fp-innova/internal/database"
	"fp-innova/internal/email"
	"fp-innova/internal/middleware"
	"fp-innova/internal/rbac"
	"fp-innova/internal/realtime"
	"fp-innova/internal/repository"
	"fp-innova/internal/scheduler"
	"fp-innova/internal/service"
	"fp-innova/internal/storage"
	"fp-innova/internal/vault"
)

// Services groups the application services
type Services struct {
	Audit         *service.AuditService
	Settings      *service.SettingsService
	Notifications *service.NotificationService
	Auth          *service.AuthService
	Users         *service.UserService
	MasterData    *service.MasterDataService
	Convocatorias *service.ConvocatoriaService
	Projects      *service.ProjectService
	Reviews       *service.ReviewService
	Amendments    *service.AmendmentService
	Assignments   *service.AssignmentService
	Messaging     *service.MessagingService
}

// Server is the assembled application
type Server struct {
	Handler   http.Handler
	Hub       *realtime.Hub
	Scheduler *scheduler.Scheduler
	Services  *Services
	Policy    *rbac.Policy

	limiters []*middleware.RateLimiter
}

// Deps are the external resources the server is built on
type Deps struct {
	DB     *database.Database
	Cipher vault.Cipher
	Mailer email.Sender
}

// New builds the server. Settings are loaded from the database before any
// route is served so the stored permission table is in effect.
func New(ctx context.Context, cfg *config.Config, deps Deps) (*Server, error) {
	db := deps.DB.DB
	tx := database.NewTxManager(db)
	policy := rbac.NewPolicy()

	// Repositories
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	codeRepo := repository.NewVerificationCodeRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	convocatoriaRepo := repository.NewConvocatoriaRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	amendmentRepo := repository.NewAmendmentRepository(db)
	chatRepo := repository.NewChatRepository(db)

	files, err := storage.NewLocalStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadSize)
	if err != nil {
		return nil, err
	}

	mailer := deps.Mailer
	if mailer == nil {
		mailer = email.NewSender(&cfg.Email)
	}
	emailService := email.NewService(&cfg.Email, mailer)
	hub := realtime.NewHub(cfg.CORS.AllowedOrigins)
	authSvc := auth.NewService(&cfg.JWT)

	// Services
	audit := service.NewAuditService(auditRepo)
	settings := service.NewSettingsService(settingsRepo, policy, audit)
	if err := settings.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	notifications := service.NewNotificationService(notificationRepo, userRepo, settings, emailService, hub)

	svc := &Services{
		Audit:         audit,
		Settings:      settings,
		Notifications: notifications,
		Auth:          service.NewAuthService(tx, userRepo, sessionRepo, codeRepo, audit, authSvc, deps.Cipher, cfg.TwoFactor),
		Users:         service.NewUserService(userRepo, audit, authSvc),
		MasterData: service.NewMasterDataService(
			repository.NewCenterRepository(db),
			repository.NewFamilyRepository(db),
			repository.NewCycleRepository(db),
			repository.NewCourseRepository(db),
			repository.NewDepartmentRepository(db),
			userRepo,
			audit,
		),
		Convocatorias: service.NewConvocatoriaService(tx, convocatoriaRepo, audit),
		Projects:      service.NewProjectService(tx, projectRepo, convocatoriaRepo, reviewRepo, files, notifications, policy, audit),
		Reviews:       service.NewReviewService(tx, projectRepo, reviewRepo, settings, policy, notifications, audit),
		Amendments:    service.NewAmendmentService(tx, amendmentRepo, projectRepo, reviewRepo, userRepo, files, policy, notifications, emailService, audit),
		Assignments:   service.NewAssignmentService(tx, projectRepo, reviewRepo, userRepo, settings, policy, notifications, audit),
		Messaging:     service.NewMessagingService(tx, chatRepo, userRepo, settings, files, hub, notifications),
	}

	s := &Server{
		Hub:       hub,
		Scheduler: scheduler.NewScheduler(svc.Amendments, svc.Auth, &cfg.Scheduler),
		Services:  svc,
		Policy:    policy,
	}
	s.Handler = s.routes(cfg, deps.DB)
	return s, nil
}

// Close releases background resources owned by the handler chain
func (s *Server) Close() {
	for _, l := range s.limiters {
		l.Stop()
	}
}

// NewCipher returns the Vault transit cipher when Vault is enabled and the
// local cipher otherwise
func NewCipher(ctx context.Context, cfg *config.Config) (vault.Cipher, error) {
	if cfg.Vault.Enabled {
		client, err := vault.NewClient(ctx, &vault.Config{
			Address:      cfg.Vault.Address,
			Token:        cfg.Vault.Token,
			TransitMount: cfg.Vault.TransitMount,
		})
		if err != nil {
			return nil, err
		}
		cipher, err := vault.NewTransitCipher(ctx, client, cfg.Vault.KeyName)
		if err != nil {
			return nil, err
		}
		slog.Info("Using Vault transit encryption", "address", cfg.Vault.Address, "key", cfg.Vault.KeyName)
		return cipher, nil
	}

	key := cfg.Vault.LocalKey
	if key == "" {
		key = cfg.JWT.Secret
	}
	cipher, err := vault.NewLocalCipher([]byte(key))
	if err != nil {
		return nil, err
	}
	slog.Warn("Vault disabled, two-factor secrets are encrypted with a local key")
	return cipher, nil
}
