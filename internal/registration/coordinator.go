// Package registration はイベント申込の受付、定員配分、ウェイトリスト、取消を扱う。
//
// 確定済み（Confirmed）申込の参加人数合計がイベント定員を超えないことを
// Coordinatorのロックの内側で保証する。残席が0のときの申込はウェイトリストに入り、
// 残席が1以上かつ不足しているときの申込は拒否する。
// 取消で空いた席をウェイトリストへ自動で割り当てることはしない。
package registration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"

	"github.com/hitoshi/eventease/internal/metrics"
	"github.com/hitoshi/eventease/internal/model"
	"github.com/hitoshi/eventease/internal/repository"
	"github.com/hitoshi/eventease/internal/security"
)

// EventLookup はイベント情報の参照インターフェース。
// catalog.Serviceが実装する。
type EventLookup interface {
	GetByID(ctx context.Context, id int) (model.Event, bool)
}

// Config はCoordinatorの動作パラメータ。
type Config struct {
	// Now は現在時刻の取得関数。
	Now func() time.Time
}

// DefaultConfig はデフォルトのCoordinator設定を返す。
func DefaultConfig() Config {
	return Config{
		Now: func() time.Time { return time.Now().UTC() },
	}
}

// Coordinator はイベント申込を排他的に所有する。
type Coordinator struct {
	mu            sync.Mutex
	repo          repository.RegistrationRepository
	events        EventLookup
	sanitizer     security.TextSanitizer
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	config        Config
	registrations []model.Registration
	nextID        int
	initialized   bool
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
func NewCoordinator(
	repo repository.RegistrationRepository,
	events EventLookup,
	sanitizer security.TextSanitizer,
	mc metrics.MetricsCollector,
	logger *slog.Logger,
	config Config,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	if config.Now == nil {
		config.Now = DefaultConfig().Now
	}

	return &Coordinator{
		repo:      repo,
		events:    events,
		sanitizer: sanitizer,
		metrics:   mc,
		logger:    logger,
		config:    config,
		nextID:    1,
	}
}

// Initialize は保存済みの申込を読み込む。読み込みに失敗した場合は空の状態で開始する。
func (c *Coordinator) Initialize(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(ctx)
}

func (c *Coordinator) loadLocked(ctx context.Context) {
	c.initialized = true
	registrations, err := c.repo.LoadAll(ctx)
	if err != nil {
		c.storageFailed("load", err)
		registrations = nil
	}
	if registrations == nil {
		registrations = []model.Registration{}
	}
	c.registrations = registrations

	c.nextID = 1
	for _, r := range registrations {
		if r.ID >= c.nextID {
			c.nextID = r.ID + 1
		}
	}
	c.logger.Info("申込を読み込みました", slog.Int("count", len(registrations)))
}

func (c *Coordinator) ensureLoadedLocked(ctx context.Context) {
	if !c.initialized {
		c.loadLocked(ctx)
	}
}

func (c *Coordinator) persistLocked(ctx context.Context) {
	if err := c.repo.SaveAll(ctx, c.registrations); err != nil {
		c.storageFailed("save", err)
	}
}

func (c *Coordinator) storageFailed(op string, err error) {
	c.metrics.RecordStorageFailure(repository.KeyRegistrations, op)
	c.logger.Warn("申込の永続化に失敗しました。メモリ上の状態で処理を継続します",
		slog.String("op", op),
		slog.String("error", model.NewStorageError(repository.KeyRegistrations, err).Error()),
	)
}

// foldEmail は大文字小文字を区別しない比較用にメールアドレスを正規化する。
func foldEmail(email string) string {
	return cases.Fold().String(strings.TrimSpace(email))
}

// confirmedAttendeesLocked はイベントの確定済み参加人数の合計を返す。
func (c *Coordinator) confirmedAttendeesLocked(eventID int) int {
	total := 0
	for _, r := range c.registrations {
		if r.EventID == eventID && r.Status == model.RegistrationStatusConfirmed {
			total += r.NumberOfAttendees
		}
	}
	return total
}

func (c *Coordinator) isDuplicateLocked(eventID int, email string) bool {
	folded := foldEmail(email)
	for _, r := range c.registrations {
		if r.EventID == eventID && r.IsActive() && foldEmail(r.Email) == folded {
			return true
		}
	}
	return false
}

func (c *Coordinator) reject(err *model.APIError, reg model.Registration) model.RegistrationResult {
	c.metrics.RecordRegistration(metrics.OutcomeRejected)
	c.logger.Info("申込を受け付けませんでした",
		slog.Int("event_id", reg.EventID),
		slog.String("code", err.Code),
	)
	return model.RegistrationRejected(err)
}

// Submit は申込を検証し、確定またはウェイトリストとして受け付ける。
// 検証順序: フィールド検証 → 重複申込 → イベントの存在 → 残席。
func (c *Coordinator) Submit(ctx context.Context, reg model.Registration) model.RegistrationResult {
	c.sanitize(&reg)
	if errs := validate(&reg); len(errs) > 0 {
		return c.reject(model.NewValidationError(errs), reg)
	}

	c.mu.Lock()
	c.ensureLoadedLocked(ctx)

	if c.isDuplicateLocked(reg.EventID, reg.Email) {
		c.mu.Unlock()
		return c.reject(model.NewDuplicateRegistrationError(), reg)
	}

	event, ok := c.events.GetByID(ctx, reg.EventID)
	if !ok {
		c.mu.Unlock()
		return c.reject(model.NewEventNotFoundError(reg.EventID), reg)
	}

	available := event.Capacity - c.confirmedAttendeesLocked(reg.EventID)
	status := model.RegistrationStatusConfirmed
	if reg.NumberOfAttendees > available {
		if available > 0 {
			c.mu.Unlock()
			return c.reject(model.NewCapacityExceededError(available), reg)
		}
		status = model.RegistrationStatusWaitList
	}

	reg.ID = c.nextID
	c.nextID++
	reg.RegistrationDate = c.config.Now()
	reg.Status = status
	reg.EventPrice = event.Price
	c.registrations = append(c.registrations, reg)
	c.persistLocked(ctx)
	c.mu.Unlock()

	outcome := metrics.OutcomeConfirmed
	message := fmt.Sprintf("Registration confirmed for %s! Confirmation details have been sent to %s.", event.Name, reg.Email)
	if status == model.RegistrationStatusWaitList {
		outcome = metrics.OutcomeWaitlist
		message = fmt.Sprintf("You have been added to the waitlist for %s. We'll notify you if spots become available.", event.Name)
	}
	c.metrics.RecordRegistration(outcome)
	c.logger.Info("申込を受け付けました",
		slog.Int("registration_id", reg.ID),
		slog.Int("event_id", reg.EventID),
		slog.Int("attendees", reg.NumberOfAttendees),
		slog.String("status", string(status)),
	)

	id := reg.ID
	return model.RegistrationAccepted(message, &id, status)
}

// Cancel は申込を取り消す。未登録のIDと取消済みの申込は失敗する。
// 空いた席はウェイトリストに割り当てず、次の申込時に再計算される。
func (c *Coordinator) Cancel(ctx context.Context, registrationID int) model.RegistrationResult {
	c.mu.Lock()
	c.ensureLoadedLocked(ctx)

	idx := -1
	for i := range c.registrations {
		if c.registrations[i].ID == registrationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return model.RegistrationRejected(model.NewRegistrationNotFoundError(registrationID))
	}
	if c.registrations[idx].Status == model.RegistrationStatusCancelled {
		c.mu.Unlock()
		return model.RegistrationRejected(model.NewAlreadyCancelledError())
	}

	c.registrations[idx].Status = model.RegistrationStatusCancelled
	eventID := c.registrations[idx].EventID
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.metrics.RecordCancellation()
	c.logger.Info("申込を取り消しました",
		slog.Int("registration_id", registrationID),
		slog.Int("event_id", eventID),
	)

	id := registrationID
	return model.RegistrationAccepted("Registration cancelled successfully.", &id, model.RegistrationStatusCancelled)
}
