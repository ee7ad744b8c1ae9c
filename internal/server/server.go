package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/parlorhq/parlor/internal/backup"
	"github.com/parlorhq/parlor/internal/email"
	"github.com/parlorhq/parlor/internal/handler"
	"github.com/parlorhq/parlor/internal/kvstore"
	"github.com/parlorhq/parlor/internal/middleware"
	"github.com/parlorhq/parlor/internal/model"
	"github.com/parlorhq/parlor/internal/push"
	"github.com/parlorhq/parlor/internal/store"
	ws "github.com/parlorhq/parlor/internal/websocket"
)

// Config carries everything main resolves from the environment.
type Config struct {
	BaseURL   string
	JWTSecret string

	// Origin patterns accepted for websocket upgrades, e.g. "parlor.example.com".
	WSOrigins []string

	Push   push.Config
	Backup backup.Config
}

type Server struct {
	db  *sql.DB
	hub *ws.Hub

	puzzleH  *handler.PuzzleHandler
	authH    *handler.AuthHandler
	postH    *handler.PostHandler
	commentH *handler.CommentHandler
	socialH  *handler.SocialHandler
	pageH    *handler.PageHandler
	bannerH  *handler.BannerHandler
	adminH   *handler.AdminHandler
	backupH  *handler.BackupHandler
	pushH    *handler.PushHandler

	userStore         *store.UserStore
	sessionStore      *store.SessionStore
	verificationStore *store.VerificationStore
	pushStore         *store.PushStore

	kv            *kvstore.DBStore
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	wsOrigins     []string
	logger        *slog.Logger
}

func New(db *sql.DB, emailClient *email.Client, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db)
	verificationStore := store.NewVerificationStore(db)
	puzzleStore := store.NewPuzzleStore(db)
	postStore := store.NewPostStore(db)
	commentStore := store.NewCommentStore(db)
	reactionStore := store.NewReactionStore(db)
	shareStore := store.NewShareStore(db)
	bannerStore := store.NewBannerStore(db)
	pushStore := store.NewPushStore(db)
	backupStore := store.NewBackupStore(db)

	kv := kvstore.NewDBStore(db)

	var pushSvc *push.Service
	var notifier *push.Notifier
	var pushH *handler.PushHandler
	if cfg.Push.VAPIDPublicKey != "" && cfg.Push.VAPIDPrivateKey != "" {
		pushSvc = push.NewService(cfg.Push.VAPIDPublicKey, cfg.Push.VAPIDPrivateKey)
		notifier = push.NewNotifier(pushSvc, pushStore, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushStore, pushSvc, []byte(cfg.JWTSecret), cfg.BaseURL, logger.With("component", "push_handler"))
	}

	backupMgr := backup.NewManager(cfg.Backup, db, backupStore, logger.With("component", "backup"))

	return &Server{
		db:       db,
		hub:      hub,
		puzzleH:  handler.NewPuzzleHandler(puzzleStore, logger.With("component", "puzzle")),
		authH:    handler.NewAuthHandler(userStore, sessionStore, verificationStore, emailClient, kv, logger.With("component", "auth")),
		postH:    handler.NewPostHandler(postStore, userStore, hub, notifier, logger.With("component", "post")),
		commentH: handler.NewCommentHandler(commentStore, postStore, hub, notifier, logger.With("component", "comment")),
		socialH:  handler.NewSocialHandler(reactionStore, shareStore, postStore, hub, cfg.BaseURL, logger.With("component", "social")),
		pageH:    handler.NewPageHandler(postStore, shareStore, logger.With("component", "page")),
		bannerH:  handler.NewBannerHandler(bannerStore, hub, logger.With("component", "banner")),
		adminH:   handler.NewAdminHandler(postStore, commentStore, userStore, sessionStore, emailClient, notifier, hub, logger.With("component", "admin")),
		backupH:  handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup_handler")),
		pushH:    pushH,

		userStore:         userStore,
		sessionStore:      sessionStore,
		verificationStore: verificationStore,
		pushStore:         pushStore,

		kv:            kv,
		rateLimiter:   middleware.NewRateLimiter(kv),
		backupManager: backupMgr,
		wsOrigins:     cfg.WSOrigins,
		logger:        logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// VerificationStore returns the verification code store for cleanup tasks.
func (s *Server) VerificationStore() *store.VerificationStore {
	return s.verificationStore
}

// KV returns the TTL store for cleanup tasks.
func (s *Server) KV() *kvstore.DBStore {
	return s.kv
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	requireAuth := middleware.RequireAuth(s.sessionStore, s.userStore)
	optionalAuth := middleware.OptionalAuth(s.sessionStore, s.userStore)

	handle := func(pattern string, mw func(http.Handler) http.Handler, h http.HandlerFunc) {
		mux.Handle(pattern, mw(h))
	}
	perm := func(p string) func(http.Handler) http.Handler {
		rp := middleware.RequirePermission(p)
		return func(next http.Handler) http.Handler {
			return requireAuth(rp(next))
		}
	}

	mux.HandleFunc("GET /health", s.healthHandler)

	// Auth. Credential endpoints sit behind the IP rate limiter.
	mux.Handle("POST /api/auth/register", s.rateLimited(s.authH.Register))
	mux.Handle("POST /api/auth/verify", s.rateLimited(s.authH.Verify))
	mux.Handle("POST /api/auth/login", s.rateLimited(s.authH.Login))
	mux.Handle("POST /api/auth/refresh", s.rateLimited(s.authH.Refresh))
	mux.Handle("POST /api/auth/reset-request", s.rateLimited(s.authH.RequestPasswordReset))
	mux.Handle("POST /api/auth/reset", s.rateLimited(s.authH.ResetPassword))
	handle("POST /api/auth/logout", requireAuth, s.authH.Logout)
	handle("GET /api/auth/me", requireAuth, s.authH.Me)

	// Puzzle.
	handle("GET /api/puzzle/check-played", optionalAuth, s.puzzleH.CheckPlayed)
	handle("POST /api/puzzle/start", requireAuth, s.puzzleH.Start)
	handle("POST /api/puzzle/progress", requireAuth, s.puzzleH.Progress)
	handle("POST /api/puzzle/score", requireAuth, s.puzzleH.Score)
	mux.HandleFunc("GET /api/puzzle/leaderboard", s.puzzleH.Leaderboard)
	mux.HandleFunc("GET /api/puzzle/levels", s.puzzleH.Levels)

	// Posts and comments.
	handle("POST /api/posts", perm(model.PermCreatePost), s.postH.Create)
	handle("GET /api/posts", optionalAuth, s.postH.List)
	handle("GET /api/posts/{id}", optionalAuth, s.postH.Get)
	handle("PUT /api/posts/{id}", requireAuth, s.postH.Update)
	handle("DELETE /api/posts/{id}", requireAuth, s.postH.Delete)
	handle("GET /api/posts/{id}/comments", optionalAuth, s.commentH.List)
	handle("POST /api/posts/{id}/comments", requireAuth, s.commentH.Create)
	handle("DELETE /api/comments/{id}", requireAuth, s.commentH.Delete)

	// Reactions and shares.
	handle("POST /api/posts/{id}/reactions", requireAuth, s.socialH.React)
	handle("GET /api/posts/{id}/reactions", optionalAuth, s.socialH.ReactionCounts)
	handle("POST /api/posts/{id}/shares", optionalAuth, s.socialH.Share)

	// Banners.
	mux.HandleFunc("GET /api/banners", s.bannerH.Active)
	handle("GET /api/admin/banners", perm(model.PermManageBanners), s.bannerH.List)
	handle("POST /api/admin/banners", perm(model.PermManageBanners), s.bannerH.Create)
	handle("PUT /api/admin/banners/{id}", perm(model.PermManageBanners), s.bannerH.Update)
	handle("DELETE /api/admin/banners/{id}", perm(model.PermManageBanners), s.bannerH.Delete)

	// Moderation and user management.
	handle("GET /api/admin/posts", perm(model.PermModerateContent), s.adminH.ListPosts)
	handle("POST /api/admin/posts/{id}/hide", perm(model.PermModerateContent), s.adminH.HidePost)
	handle("POST /api/admin/posts/{id}/unhide", perm(model.PermModerateContent), s.adminH.UnhidePost)
	handle("POST /api/admin/comments/{id}/hide", perm(model.PermModerateContent), s.adminH.HideComment)
	handle("POST /api/admin/comments/{id}/unhide", perm(model.PermModerateContent), s.adminH.UnhideComment)
	handle("GET /api/admin/users", perm(model.PermManageUsers), s.adminH.ListUsers)
	handle("PUT /api/admin/users/{id}/role", perm(model.PermManageUsers), s.adminH.SetRole)
	handle("POST /api/admin/users/{id}/suspend", perm(model.PermManageUsers), s.adminH.Suspend)
	handle("POST /api/admin/users/{id}/unsuspend", perm(model.PermManageUsers), s.adminH.Unsuspend)

	// Backups.
	handle("GET /api/admin/backups", perm(model.PermManageBackups), s.backupH.List)
	handle("POST /api/admin/backups", perm(model.PermManageBackups), s.backupH.Run)
	handle("POST /api/admin/backups/{id}/restore", perm(model.PermManageBackups), s.backupH.Restore)
	handle("GET /api/admin/backups/{id}/download", perm(model.PermManageBackups), s.backupH.Download)

	// Push notifications, only when VAPID keys are configured.
	if s.pushH != nil {
		handle("POST /api/push/subscribe", requireAuth, s.pushH.Subscribe)
		handle("DELETE /api/push/subscriptions/{id}", requireAuth, s.pushH.Unsubscribe)
		handle("GET /api/push/subscriptions", requireAuth, s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		handle("GET /api/push/preferences", requireAuth, s.pushH.Preferences)
		handle("PUT /api/push/preferences", requireAuth, s.pushH.UpdatePreferences)
		mux.HandleFunc("GET /api/push/unsubscribe", s.pushH.UnsubscribeByToken)
	}

	// Server-rendered pages.
	mux.HandleFunc("GET /p/{slug}", s.pageH.Post)
	mux.HandleFunc("GET /s/{slug}", s.pageH.Share)

	// WebSocket.
	mux.HandleFunc("GET /ws", ws.Handle(s.hub, s.logger.With("component", "websocket"), s.wsOrigins))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimited(h http.HandlerFunc) http.Handler {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	return rl(h)
}
