package attendance

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/hitoshi/eventease/internal/model"
)

// IsRegistered は取消されていない記録があるかどうかを返す。
// userIDが空の場合は現在のセッションのユーザーを対象にする。
func (t *Tracker) IsRegistered(ctx context.Context, eventID int, userID string) bool {
	rec, ok := t.GetRecord(ctx, eventID, userID)
	return ok && rec.Status != model.AttendanceStatusCancelled
}

// GetRecord は(eventID, userID)の記録を返す。取消済みの記録も返す。
func (t *Tracker) GetRecord(ctx context.Context, eventID int, userID string) (model.AttendanceRecord, bool) {
	userID = t.resolveUser(ctx, userID)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ensureLoadedLocked(ctx)

	i := t.indexLocked(eventID, userID)
	if i < 0 {
		return model.AttendanceRecord{}, false
	}
	return t.records[i], true
}

// GetStatus は出欠状態を返す。記録がない場合はRegisteredを返す。
func (t *Tracker) GetStatus(ctx context.Context, eventID int, userID string) model.AttendanceStatus {
	rec, ok := t.GetRecord(ctx, eventID, userID)
	if !ok {
		return model.AttendanceStatusRegistered
	}
	return rec.Status
}

// UserHistory はユーザーの取消されていない記録を登録日時の新しい順で返す。
func (t *Tracker) UserHistory(ctx context.Context, userID string) []model.AttendanceRecord {
	userID = t.resolveUser(ctx, userID)

	t.mu.Lock()
	t.ensureLoadedLocked(ctx)
	history := []model.AttendanceRecord{}
	for _, rec := range t.records {
		if rec.UserID == userID && rec.Status != model.AttendanceStatusCancelled {
			history = append(history, rec)
		}
	}
	t.mu.Unlock()

	slices.SortStableFunc(history, func(a, b model.AttendanceRecord) int {
		return b.RegisteredAt.Compare(a.RegisteredAt)
	})
	return history
}

// UserHistorySummary はユーザーの出欠履歴と出席率を返す。
func (t *Tracker) UserHistorySummary(ctx context.Context, userID string) model.UserAttendanceHistory {
	userID = t.resolveUser(ctx, userID)
	records := t.UserHistory(ctx, userID)

	h := model.UserAttendanceHistory{
		UserID:                userID,
		Records:               records,
		TotalEventsRegistered: len(records),
	}
	for _, rec := range records {
		if h.UserName == "" {
			h.UserName = rec.UserName
		}
		if rec.IsPresent() {
			h.TotalEventsAttended++
		}
	}
	if h.TotalEventsRegistered > 0 {
		h.AttendanceRate = float64(h.TotalEventsAttended) / float64(h.TotalEventsRegistered) * 100
	}
	return h
}

// EventSummary はイベント単位の出欠集計を返す。
// Attendeesには取消済みを含む全記録が入り、TotalRegisteredは取消以外の件数。
func (t *Tracker) EventSummary(ctx context.Context, eventID int) model.EventAttendanceSummary {
	t.mu.Lock()
	t.ensureLoadedLocked(ctx)
	var records []model.AttendanceRecord
	for _, rec := range t.records {
		if rec.EventID == eventID {
			records = append(records, rec)
		}
	}
	t.mu.Unlock()

	return summarize(eventID, t.eventName(ctx, eventID), records)
}

// AllEventsSummaries は記録のある全イベントの集計をTotalRegisteredの多い順で返す。
func (t *Tracker) AllEventsSummaries(ctx context.Context) []model.EventAttendanceSummary {
	t.mu.Lock()
	t.ensureLoadedLocked(ctx)
	byEvent := make(map[int][]model.AttendanceRecord)
	var order []int
	for _, rec := range t.records {
		if _, ok := byEvent[rec.EventID]; !ok {
			order = append(order, rec.EventID)
		}
		byEvent[rec.EventID] = append(byEvent[rec.EventID], rec)
	}
	t.mu.Unlock()

	summaries := make([]model.EventAttendanceSummary, 0, len(order))
	for _, id := range order {
		summaries = append(summaries, summarize(id, t.eventName(ctx, id), byEvent[id]))
	}
	slices.SortStableFunc(summaries, func(a, b model.EventAttendanceSummary) int {
		return cmp.Compare(b.TotalRegistered, a.TotalRegistered)
	})
	return summaries
}

// eventName はカタログ上のイベント名を返す。見つからない場合は "Event N"。
func (t *Tracker) eventName(ctx context.Context, eventID int) string {
	if t.events != nil {
		if e, ok := t.events.GetByID(ctx, eventID); ok && e.Name != "" {
			return e.Name
		}
	}
	return fmt.Sprintf("Event %d", eventID)
}

func summarize(eventID int, name string, records []model.AttendanceRecord) model.EventAttendanceSummary {
	s := model.EventAttendanceSummary{
		EventID:   eventID,
		EventName: name,
		Attendees: records,
	}
	if s.Attendees == nil {
		s.Attendees = []model.AttendanceRecord{}
	}
	for _, rec := range records {
		switch rec.Status {
		case model.AttendanceStatusPresent:
			s.TotalPresent++
		case model.AttendanceStatusAbsent:
			s.TotalAbsent++
		case model.AttendanceStatusCheckedOut:
			s.TotalCheckedOut++
		}
		if rec.Status != model.AttendanceStatusCancelled {
			s.TotalRegistered++
		}
	}
	s.AttendanceRate = s.Rate()
	return s
}
