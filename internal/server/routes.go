package server

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"

	"fp-innova/internal/config"
	"fp-innova/internal/database"
	"fp-innova/internal/handlers"
	"fp-innova/internal/middleware"
	"fp-innova/internal/rbac"
)

func (s *Server) routes(cfg *config.Config, db *database.Database) http.Handler {
	svc := s.Services
	dev := cfg.App.IsDevelopment()
	maxUpload := cfg.Storage.MaxUploadSize

	// Middleware
	authMw := middleware.NewAuthMiddleware(svc.Auth, cfg.Session.CookieName)
	rbacMw := middleware.NewRBACMiddleware(s.Policy)
	auditMw := middleware.NewAuditMiddleware(svc.Audit)
	corsMw := middleware.NewCORSMiddleware(&cfg.CORS)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit.Enabled, cfg.RateLimit.Requests, cfg.RateLimit.Duration)
	// separate, stricter budget for credential and second-factor endpoints
	authLimiter := middleware.NewRateLimiter(cfg.RateLimit.Enabled, cfg.TwoFactor.Requests, cfg.TwoFactor.Duration)
	s.limiters = append(s.limiters, rateLimiter, authLimiter)

	// Handlers
	configHandler := handlers.NewConfigHandler(cfg, db)
	authHandler := handlers.NewAuthHandler(svc.Auth, authMw, cfg)
	sessionHandler := handlers.NewSessionHandler(svc.Auth, dev)
	userHandler := handlers.NewUserHandler(svc.Users, svc.Auth, dev)
	auditHandler := handlers.NewAuditHandler(svc.Audit, dev)
	masterHandler := handlers.NewMasterDataHandler(svc.MasterData, maxUpload, dev)
	convocatoriaHandler := handlers.NewConvocatoriaHandler(svc.Convocatorias, s.Policy, dev)
	projectHandler := handlers.NewProjectHandler(svc.Projects, svc.Assignments, maxUpload, dev)
	reviewHandler := handlers.NewReviewHandler(svc.Reviews, svc.Amendments, maxUpload, dev)
	messagingHandler := handlers.NewMessagingHandler(svc.Messaging, maxUpload, dev)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications, dev)
	settingsHandler := handlers.NewSettingsHandler(svc.Settings, dev)

	mux := http.NewServeMux()

	// authed wraps h in authentication
	authed := func(h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(h)
	}
	// allowed wraps h in authentication and a permission check
	allowed := func(action, resource string, h http.HandlerFunc) http.Handler {
		return authMw.Authenticate(rbacMw.RequirePermission(action, resource)(h))
	}

	// Public
	mux.HandleFunc("GET /health", configHandler.Health)
	mux.HandleFunc("GET /api/config/app", configHandler.GetAppConfig)
	mux.Handle("GET /swagger/", httpSwagger.WrapHandler)

	// Authentication
	mux.Handle("POST /api/auth/login", authLimiter.Limit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/auth/register", authLimiter.Limit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/2fa/login", authLimiter.Limit(http.HandlerFunc(authHandler.CompleteTwoFactorLogin)))
	mux.Handle("POST /api/auth/2fa/recovery", authLimiter.Limit(http.HandlerFunc(authHandler.UseRecoveryCode)))
	mux.Handle("POST /api/auth/logout", authMw.OptionalAuth(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/auth/me", authed(authHandler.Me))
	mux.Handle("PUT /api/auth/me", authed(userHandler.UpdateProfile))
	mux.Handle("PUT /api/auth/password", authLimiter.Limit(authed(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/2fa/setup", authed(authHandler.SetupTwoFactor))
	mux.Handle("POST /api/auth/2fa/verify", authLimiter.Limit(authed(authHandler.VerifyTwoFactorSetup)))
	mux.Handle("POST /api/auth/2fa/disable", authLimiter.Limit(authed(authHandler.DisableTwoFactor)))
	mux.Handle("GET /api/auth/sessions", authed(sessionHandler.ListSessions))
	mux.Handle("DELETE /api/auth/sessions", authed(sessionHandler.RevokeOtherSessions))
	mux.Handle("DELETE /api/auth/sessions/{id}", authed(sessionHandler.RevokeSession))

	// Users and verification codes
	mux.Handle("GET /api/users", allowed(rbac.ActionView, rbac.ResourceUsers, userHandler.ListUsers))
	mux.Handle("POST /api/users", allowed(rbac.ActionCreate, rbac.ResourceUsers, userHandler.CreateUser))
	mux.Handle("GET /api/users/{id}", allowed(rbac.ActionView, rbac.ResourceUsers, userHandler.GetUser))
	mux.Handle("PUT /api/users/{id}", allowed(rbac.ActionEdit, rbac.ResourceUsers, userHandler.UpdateUser))
	mux.Handle("PATCH /api/users/{id}/status", allowed(rbac.ActionEdit, rbac.ResourceUsers, userHandler.SetUserStatus))
	mux.Handle("GET /api/verification-codes", allowed(rbac.ActionManageCodes, rbac.ResourceSystem, userHandler.ListVerificationCodes))
	mux.Handle("POST /api/verification-codes", allowed(rbac.ActionManageCodes, rbac.ResourceSystem, userHandler.CreateVerificationCode))
	mux.Handle("DELETE /api/verification-codes/{id}", allowed(rbac.ActionManageCodes, rbac.ResourceSystem, userHandler.RevokeVerificationCode))
	mux.Handle("GET /api/audit-logs", allowed(rbac.ActionView, rbac.ResourceSystem, auditHandler.ListAuditLogs))

	// Master data
	mux.Handle("GET /api/master-data/{type}", authed(masterHandler.List))
	mux.Handle("GET /api/master-data/{type}/{id}", authed(masterHandler.Get))
	mux.Handle("POST /api/master-data/{type}", allowed(rbac.ActionManageMasterData, rbac.ResourceSystem, masterHandler.Create))
	mux.Handle("POST /api/master-data/{type}/import", allowed(rbac.ActionManageMasterData, rbac.ResourceSystem, masterHandler.Import))
	mux.Handle("PUT /api/master-data/{type}/{id}", allowed(rbac.ActionManageMasterData, rbac.ResourceSystem, masterHandler.Update))
	mux.Handle("PATCH /api/master-data/{type}/{id}/status", allowed(rbac.ActionManageMasterData, rbac.ResourceSystem, masterHandler.SetActive))
	mux.Handle("DELETE /api/master-data/{type}/{id}", allowed(rbac.ActionManageMasterData, rbac.ResourceSystem, masterHandler.Delete))

	// Convocatorias
	mux.Handle("GET /api/convocatorias", authed(convocatoriaHandler.List))
	mux.Handle("POST /api/convocatorias", allowed(rbac.ActionCreate, rbac.ResourceConvocatorias, convocatoriaHandler.Create))
	mux.Handle("GET /api/convocatorias/{id}", authed(convocatoriaHandler.Get))
	mux.Handle("PUT /api/convocatorias/{id}", allowed(rbac.ActionEdit, rbac.ResourceConvocatorias, convocatoriaHandler.Update))
	mux.Handle("DELETE /api/convocatorias/{id}", allowed(rbac.ActionDelete, rbac.ResourceConvocatorias, convocatoriaHandler.Delete))
	mux.Handle("PATCH /api/convocatorias/{id}/status", allowed(rbac.ActionEdit, rbac.ResourceConvocatorias, convocatoriaHandler.ChangeStatus))
	mux.Handle("GET /api/convocatorias/{id}/categories", authed(convocatoriaHandler.ListCategories))
	mux.Handle("PUT /api/convocatorias/{id}/categories", allowed(rbac.ActionEdit, rbac.ResourceConvocatorias, convocatoriaHandler.ReplaceCategories))

	// Projects. The services check project permissions against ownership
	// and assignment, so routes only require a session.
	mux.Handle("GET /api/projects", authed(projectHandler.ListProjects))
	mux.Handle("POST /api/projects", authed(projectHandler.CreateProject))
	mux.Handle("GET /api/projects/{id}", authed(projectHandler.GetProject))
	mux.Handle("PUT /api/projects/{id}", authed(projectHandler.UpdateProject))
	mux.Handle("DELETE /api/projects/{id}", authed(projectHandler.DeleteProject))
	mux.Handle("POST /api/projects/{id}/submit", authed(projectHandler.SubmitProject))
	mux.Handle("POST /api/projects/{id}/approve", authed(projectHandler.ApproveProject))
	mux.Handle("POST /api/projects/{id}/reject", authed(projectHandler.RejectProject))
	mux.Handle("POST /api/projects/{id}/reopen", authed(projectHandler.ReopenProject))
	mux.Handle("GET /api/projects/{id}/documents", authed(projectHandler.ListDocuments))
	mux.Handle("POST /api/projects/{id}/documents", authed(projectHandler.UploadDocument))
	mux.Handle("GET /api/projects/{id}/documents/{docId}",
		authMw.Authenticate(auditMw.Log("download", "project_documents")(http.HandlerFunc(projectHandler.DownloadDocument))))
	mux.Handle("PATCH /api/projects/{id}/documents/{docId}/status", authed(projectHandler.SetDocumentStatus))
	mux.Handle("DELETE /api/projects/{id}/documents/{docId}", authed(projectHandler.DeleteDocument))
	mux.Handle("GET /api/projects/{id}/reviewer-candidates", authed(projectHandler.ListReviewerCandidates))
	mux.Handle("PUT /api/projects/{id}/reviewers", authed(projectHandler.AssignReviewers))

	// Reviews and amendments
	mux.Handle("GET /api/projects/{id}/reviews", authed(reviewHandler.ListProjectReviews))
	mux.Handle("POST /api/projects/{id}/reviews", authed(reviewHandler.SaveReview))
	mux.Handle("GET /api/projects/{id}/review-status", authed(reviewHandler.GetReviewStatus))
	mux.Handle("GET /api/reviews/mine", authed(reviewHandler.ListMyReviews))
	mux.Handle("GET /api/reviews/{id}", authed(reviewHandler.GetReview))
	mux.Handle("DELETE /api/reviews/{id}", authed(reviewHandler.DeleteReview))
	mux.Handle("GET /api/projects/{id}/amendments", authed(reviewHandler.ListProjectAmendments))
	mux.Handle("POST /api/projects/{id}/amendments", authed(reviewHandler.RequestAmendments))
	mux.Handle("GET /api/amendments/mine", authed(reviewHandler.ListMyAmendments))
	mux.Handle("GET /api/amendments/{id}", authed(reviewHandler.GetAmendment))
	mux.Handle("POST /api/amendments/{id}/documents/{docId}", authed(reviewHandler.UploadAmendment))

	// Messaging
	mux.Handle("GET /api/chats", authed(messagingHandler.ListChats))
	mux.Handle("POST /api/chats", authed(messagingHandler.CreateChat))
	mux.Handle("GET /api/chats/{id}", authed(messagingHandler.GetChat))
	mux.Handle("GET /api/chats/{id}/messages", authed(messagingHandler.ListMessages))
	mux.Handle("POST /api/chats/{id}/messages", authed(messagingHandler.SendMessage))
	mux.Handle("POST /api/chats/{id}/files", authed(messagingHandler.UploadAttachment))
	mux.Handle("GET /api/chats/{id}/files/{key}", authed(messagingHandler.DownloadAttachment))
	mux.Handle("POST /api/chats/{id}/read", authed(messagingHandler.MarkRead))

	// Notifications
	mux.Handle("GET /api/notifications", authed(notificationHandler.ListNotifications))
	mux.Handle("GET /api/notifications/unread-count", authed(notificationHandler.UnreadCount))
	mux.Handle("POST /api/notifications/read-all", authed(notificationHandler.MarkAllRead))
	mux.Handle("GET /api/notifications/preferences", authed(notificationHandler.GetPreferences))
	mux.Handle("PUT /api/notifications/preferences", authed(notificationHandler.UpdatePreferences))
	mux.Handle("POST /api/notifications/{id}/read", authed(notificationHandler.MarkRead))
	mux.Handle("DELETE /api/notifications/{id}", authed(notificationHandler.DeleteNotification))

	// Settings. Write permission depends on the key and is checked by the service.
	mux.Handle("GET /api/settings", authed(settingsHandler.GetAllSettings))
	mux.Handle("GET /api/settings/{key}", authed(settingsHandler.GetSettings))
	mux.Handle("PUT /api/settings/{key}", authed(settingsHandler.UpdateSettings))

	// Realtime
	mux.Handle("GET /api/ws", authMw.Authenticate(s.Hub.Handler(middleware.GetUserID)))

	// request id → recover → access log → security headers → CORS → rate limit
	var handler http.Handler = mux
	handler = rateLimiter.Limit(handler)
	handler = corsMw.Handler(handler)
	handler = middleware.SecurityHeaders(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.Recover(handler)
	handler = middleware.RequestID(handler)
	return handler
}
