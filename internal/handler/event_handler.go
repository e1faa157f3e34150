package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/model"
)

// EventServiceInterface はイベントハンドラーが必要とするカタログ操作。
type EventServiceInterface interface {
	GetAll(ctx context.Context) []model.Event
	GetByID(ctx context.Context, id int) (model.Event, bool)
	Search(ctx context.Context, criteria model.SearchCriteria) []model.Event
	Categories(ctx context.Context) []string
}

// SeatCounter はイベントの残席数を返す。
type SeatCounter interface {
	AvailableSeats(ctx context.Context, eventID int) (int, bool)
}

// EventHandler はイベントカタログのHTTPハンドラー。
type EventHandler struct {
	events EventServiceInterface
	seats  SeatCounter
}

// NewEventHandler はEventHandlerを生成する。
func NewEventHandler(events EventServiceInterface, seats SeatCounter) *EventHandler {
	return &EventHandler{events: events, seats: seats}
}

// eventResponse は残席数付きのイベント情報。
type eventResponse struct {
	model.Event
	AvailableSeats int `json:"availableSeats"`
}

func (h *EventHandler) withSeats(ctx context.Context, events []model.Event) []eventResponse {
	resp := make([]eventResponse, 0, len(events))
	for _, e := range events {
		seats, _ := h.seats.AvailableSeats(ctx, e.ID)
		resp = append(resp, eventResponse{Event: e, AvailableSeats: seats})
	}
	return resp
}

// ListEvents はイベント一覧を返す。クエリ指定時は検索結果を返す。
// GET /api/events?name=&location=&category=&date=YYYY-MM-DD
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := model.SearchCriteria{
		EventName: strings.TrimSpace(q.Get("name")),
		Location:  strings.TrimSpace(q.Get("location")),
		Category:  strings.TrimSpace(q.Get("category")),
	}
	if raw := strings.TrimSpace(q.Get("date")); raw != "" {
		d, err := time.Parse(time.DateOnly, raw)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				newInvalidRequestError("Invalid date: expected YYYY-MM-DD."))
			return
		}
		// 暦日比較でタイムゾーン差により日付がずれないよう正午を指定する
		noon := d.Add(12 * time.Hour)
		criteria.Date = &noon
	}

	var events []model.Event
	if criteria == (model.SearchCriteria{}) {
		events = h.events.GetAll(r.Context())
	} else {
		events = h.events.Search(r.Context(), criteria)
	}

	writeJSON(w, http.StatusOK, h.withSeats(r.Context(), events))
}

// GetEvent は1件のイベントを残席数付きで返す。
// GET /api/events/{eventID}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}

	event, found := h.events.GetByID(r.Context(), eventID)
	if !found {
		handleServiceError(w, model.NewEventNotFoundError(eventID))
		return
	}

	writeJSON(w, http.StatusOK, h.withSeats(r.Context(), []model.Event{event})[0])
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/events/categories
func (h *EventHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories := h.events.Categories(r.Context())
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, http.StatusOK, categories)
}
