package registration

import (
	"context"

	"github.com/hitoshi/eventease/internal/model"
)

// Statistics はイベント単位の申込集計を返す。
func (c *Coordinator) Statistics(ctx context.Context, eventID int) model.RegistrationStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)

	stats := model.RegistrationStatistics{EventID: eventID}
	for _, r := range c.registrations {
		if r.EventID != eventID {
			continue
		}
		stats.TotalRegistrations++
		switch r.Status {
		case model.RegistrationStatusConfirmed:
			stats.ConfirmedRegistrations++
			stats.TotalAttendees += r.NumberOfAttendees
		case model.RegistrationStatusWaitList:
			stats.WaitlistRegistrations++
		case model.RegistrationStatusCancelled:
			stats.CancelledRegistrations++
		}
	}
	return stats
}

// AvailableSeats はイベントの残席数を返す。イベントが存在しない場合はfalseを返す。
func (c *Coordinator) AvailableSeats(ctx context.Context, eventID int) (int, bool) {
	event, ok := c.events.GetByID(ctx, eventID)
	if !ok {
		return 0, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)

	available := event.Capacity - c.confirmedAttendeesLocked(eventID)
	if available < 0 {
		available = 0
	}
	return available, true
}

// Get はIDで申込を取得する。
func (c *Coordinator) Get(ctx context.Context, registrationID int) (model.Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)

	for _, r := range c.registrations {
		if r.ID == registrationID {
			return r, true
		}
	}
	return model.Registration{}, false
}

// ListByEvent はイベントの全申込を受付順で返す。
func (c *Coordinator) ListByEvent(ctx context.Context, eventID int) []model.Registration {
	return c.filter(ctx, func(r model.Registration) bool { return r.EventID == eventID })
}

// ListByEmail はメールアドレスの全申込を受付順で返す。大文字小文字は区別しない。
func (c *Coordinator) ListByEmail(ctx context.Context, email string) []model.Registration {
	folded := foldEmail(email)
	return c.filter(ctx, func(r model.Registration) bool { return foldEmail(r.Email) == folded })
}

func (c *Coordinator) filter(ctx context.Context, match func(model.Registration) bool) []model.Registration {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureLoadedLocked(ctx)

	result := []model.Registration{}
	for _, r := range c.registrations {
		if match(r) {
			result = append(result, r)
		}
	}
	return result
}
