package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler
	HealthChecker     HealthChecker
	SessionSource     middleware.SessionSource
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ドメインサービス
	EventService        EventServiceInterface
	RegistrationService RegistrationServiceInterface
	SeatCounter         SeatCounter
	AttendanceService   AttendanceServiceInterface
	SessionService      SessionServiceInterface
	AuthService         AuthServiceInterface

	// BaseURL はチェックインQRコードに埋め込むURLの基点。
	BaseURL string
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General)
//
// /health と /metrics はセッションとレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	eventHandler := NewEventHandler(deps.EventService, deps.SeatCounter)
	regHandler := NewRegistrationHandler(deps.RegistrationService)
	attHandler := NewAttendanceHandler(deps.AttendanceService, deps.BaseURL, deps.Logger)
	sessionHandler := NewSessionHandler(deps.SessionService, deps.AuthService)

	// --- セッション不要のルート ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// --- APIルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionSource))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// イベントカタログ
		r.Route("/api/events", func(r chi.Router) {
			r.Get("/", eventHandler.ListEvents)
			r.Get("/categories", eventHandler.ListCategories)
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", eventHandler.GetEvent)
				r.Get("/registrations", regHandler.ListByEvent)
				r.Get("/registrations/stats", regHandler.Statistics)
			})
		})

		// 参加登録
		r.Route("/api/registrations", func(r chi.Router) {
			// POST /api/registrations - 参加登録（送信専用レート制限を追加）
			r.With(deps.RateLimiter.SubmissionMiddleware()).Post("/", regHandler.Submit)
			r.Get("/", regHandler.ListByEmail)
			r.Get("/{registrationID}", regHandler.Get)
			r.Post("/{registrationID}/cancel", regHandler.Cancel)
		})

		// 出欠（サインイン必須）
		r.Route("/api/attendance", func(r chi.Router) {
			r.Use(middleware.NewRequireAuth())
			r.Get("/history", attHandler.History)
			r.Get("/summaries", attHandler.AllSummaries)
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", attHandler.GetRecord)
				r.Get("/status", attHandler.GetStatus)
				r.Get("/summary", attHandler.EventSummary)
				r.Get("/ticket.png", attHandler.Ticket)
				r.Post("/register", attHandler.Register)
				r.Post("/checkin", attHandler.CheckIn)
				r.Post("/checkout", attHandler.CheckOut)
				r.Post("/cancel", attHandler.Cancel)
			})
		})

		// セッション
		r.Route("/api/session", func(r chi.Router) {
			r.Get("/", sessionHandler.Get)
			r.Delete("/", sessionHandler.Clear)
			r.Post("/new", sessionHandler.StartNew)
			r.Post("/login", sessionHandler.Login)
			r.Post("/logout", sessionHandler.Logout)
			r.Put("/preferences", sessionHandler.UpdatePreferences)
			r.Put("/preferences/{key}", sessionHandler.UpdatePreference)
			r.Get("/state/{key}", sessionHandler.GetState)
			r.Put("/state/{key}", sessionHandler.UpdateState)
			r.Post("/visits", sessionHandler.TrackPageVisit)
			r.Post("/views/{eventID}", sessionHandler.TrackEventView)
			r.Get("/bookmarks/{eventID}", sessionHandler.IsBookmarked)
			r.Post("/bookmarks/{eventID}", sessionHandler.ToggleBookmark)
			r.Put("/search", sessionHandler.SetLastSearch)
			r.Put("/category", sessionHandler.SetCategory)
			r.Put("/current-event", sessionHandler.SetCurrentEvent)
			r.Put("/unsaved", sessionHandler.SetUnsavedChanges)
		})

		// 管理者
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireRole(adminRole))
			r.Post("/attendance/{eventID}/absent", attHandler.MarkAbsent)
			r.Post("/attendance/{eventID}/checkin", attHandler.CheckInUser)
			r.Delete("/attendance", attHandler.Clear)
		})
	})

	return r
}
