package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/eventease/internal/attendance"
	"github.com/hitoshi/eventease/internal/auth"
	"github.com/hitoshi/eventease/internal/catalog"
	"github.com/hitoshi/eventease/internal/config"
	"github.com/hitoshi/eventease/internal/database"
	"github.com/hitoshi/eventease/internal/handler"
	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/registration"
	"github.com/hitoshi/eventease/internal/repository"
	"github.com/hitoshi/eventease/internal/security"
	"github.com/hitoshi/eventease/internal/session"
)

// catalogComponents はストレージとイベントカタログのみの依存関係。
// importはセッションや申込の状態に触れないようこれだけを構築する。
type catalogComponents struct {
	db       *sql.DB // memoryストレージの場合はnil
	registry *prometheus.Registry
	metrics  *metrics.Collector
	text     security.TextSanitizer
	catalog  *catalog.Service
}

// components はserveで使うワイヤリング済みの依存関係。
type components struct {
	*catalogComponents
	sessions    *session.Store
	coordinator *registration.Coordinator
	tracker     *attendance.Tracker
	tokens      *auth.TokenService
}

// openStorage はSTORAGE_DRIVERに応じたKVStoreを開く。
// SQLiteとPostgreSQLの場合は接続も返す（呼び出し側でCloseすること）。
func openStorage(ctx context.Context, cfg *config.Config) (repository.KVStore, *sql.DB, error) {
	switch cfg.StorageDriver {
	case config.StorageMemory:
		return repository.NewMemoryKVStore(), nil, nil

	case config.StoragePostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		slog.Info("database connection established")
		return repository.NewPostgresKVStore(db), db, nil

	default:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		kv, err := repository.NewSQLiteKVStore(ctx, db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		slog.Info("sqlite storage opened", slog.String("path", cfg.SQLitePath))
		return kv, db, nil
	}
}

// openCatalog はストレージを開き、イベントカタログを読み込む。
func openCatalog(ctx context.Context, cfg *config.Config) (*catalogComponents, repository.KVStore, error) {
	kv, db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	registry := prometheus.NewRegistry()
	mc := metrics.NewCollector(registry)
	events := catalog.NewService(repository.NewKVEventRepo(kv), mc, slog.Default())
	events.Load(ctx)

	return &catalogComponents{
		db:       db,
		registry: registry,
		metrics:  mc,
		text:     security.NewTextSanitizer(),
		catalog:  events,
	}, kv, nil
}

// buildComponents はストレージを開き、ドメインコンポーネントを生成して保存済みの状態を読み込む。
func buildComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	tokens, err := auth.NewTokenService(cfg.LoginTokenSecret, auth.DefaultTokenConfig())
	if err != nil {
		return nil, err
	}

	cc, kv, err := openCatalog(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := slog.Default()
	sessions := session.NewStore(repository.NewKVSessionRepo(kv), cc.metrics, log, session.DefaultConfig())
	coordinator := registration.NewCoordinator(
		repository.NewKVRegistrationRepo(kv), cc.catalog, cc.text, cc.metrics, log, registration.DefaultConfig(),
	)
	// 出欠記録の本人はセッションのユーザーとする
	tracker := attendance.NewTracker(
		repository.NewKVAttendanceRepo(kv), sessions, cc.catalog, cc.text, cc.metrics, log, attendance.DefaultConfig(),
	)

	sessions.Expired.Subscribe(func(expired model.UserSession) {
		log.Info("セッションが失効しました",
			slog.String("session_id", expired.SessionID),
			slog.Time("last_activity", expired.LastActivity),
		)
	})

	sessions.Initialize(ctx)
	coordinator.Initialize(ctx)
	tracker.Initialize(ctx)

	return &components{
		catalogComponents: cc,
		sessions:          sessions,
		coordinator:       coordinator,
		tracker:           tracker,
		tokens:            tokens,
	}, nil
}

// newImporter はSSRF対策済みのカタログ取り込みを生成する。
func (c *catalogComponents) newImporter() *catalog.Importer {
	return catalog.NewImporter(
		c.catalog,
		security.NewSSRFGuard(),
		c.text,
		security.NewDescriptionSanitizer(),
		slog.Default(),
	)
}

// newRouter はHTTP APIのルーターを構築する。
func (c *components) newRouter(cfg *config.Config, rateLimiter *middleware.RateLimiter) http.Handler {
	deps := &handler.RouterDeps{
		Logger:            slog.Default(),
		Metrics:           c.metrics,
		MetricsHandler:    metrics.Handler(c.registry),
		SessionSource:     c.sessions,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		EventService:        c.catalog,
		RegistrationService: c.coordinator,
		SeatCounter:         c.coordinator,
		AttendanceService:   c.tracker,
		SessionService:      c.sessions,
		AuthService:         auth.NewService(c.tokens, c.sessions, slog.Default()),
		BaseURL:             cfg.BaseURL,
	}
	// nilの*sql.DBをインターフェースに入れるとnil判定できないため接続がある場合のみ設定する
	if c.db != nil {
		deps.HealthChecker = c.db
	}
	return handler.NewRouter(deps)
}

// Close はストレージ接続を閉じる。
func (c *catalogComponents) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}
