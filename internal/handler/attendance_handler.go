package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/eventease/internal/attendance"
	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/model"
)

// adminRole は管理操作に必要なロール名。
const adminRole = "admin"

// AttendanceServiceInterface は出欠ハンドラーが必要とする操作。
// userIDが空の場合は現在のセッションユーザーを対象とする。
type AttendanceServiceInterface interface {
	Register(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error)
	CheckIn(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error)
	CheckOut(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error)
	CancelRegistration(ctx context.Context, eventID int) (model.AttendanceRecord, error)
	CheckInUser(ctx context.Context, eventID int, userID, notes string) (model.AttendanceRecord, error)
	MarkAbsent(ctx context.Context, eventID int, userID string) (model.AttendanceRecord, error)
	GetRecord(ctx context.Context, eventID int, userID string) (model.AttendanceRecord, bool)
	GetStatus(ctx context.Context, eventID int, userID string) model.AttendanceStatus
	UserHistorySummary(ctx context.Context, userID string) model.UserAttendanceHistory
	EventSummary(ctx context.Context, eventID int) model.EventAttendanceSummary
	AllEventsSummaries(ctx context.Context) []model.EventAttendanceSummary
	ClearAttendanceData(ctx context.Context)
}

// AttendanceHandler は出欠管理のHTTPハンドラー。
type AttendanceHandler struct {
	service AttendanceServiceInterface
	baseURL string
	logger  *slog.Logger
}

// NewAttendanceHandler はAttendanceHandlerを生成する。
// baseURLはチェックインQRコードに埋め込むURLの基点。
func NewAttendanceHandler(service AttendanceServiceInterface, baseURL string, logger *slog.Logger) *AttendanceHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttendanceHandler{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// notesRequest は出欠操作に添える備考。
type notesRequest struct {
	Notes string `json:"notes"`
}

// markAbsentRequest は欠席登録の対象ユーザー。
type markAbsentRequest struct {
	UserID string `json:"userId"`
}

// statusResponse は出欠状態の照会結果。
type statusResponse struct {
	EventID int                    `json:"eventId"`
	UserID  string                 `json:"userId,omitempty"`
	Status  model.AttendanceStatus `json:"status"`
}

// targetUser はクエリパラメータuserで指定されたユーザーIDを返す。
// 他人を指定できるのは管理者のみで、自分自身または未指定は空文字（現在のユーザー）を返す。
func targetUser(r *http.Request) (string, *model.APIError) {
	requested := strings.TrimSpace(r.URL.Query().Get("user"))
	if requested == "" {
		return "", nil
	}
	user, _ := middleware.UserFromContext(r.Context())
	if requested == user.UserID {
		return "", nil
	}
	if !user.IsAuthenticated || !user.HasRole(adminRole) {
		return "", model.NewForbiddenError(adminRole)
	}
	return requested, nil
}

type recordAction func(ctx context.Context, eventID int, notes string) (model.AttendanceRecord, error)

func (h *AttendanceHandler) handleAction(w http.ResponseWriter, r *http.Request, action recordAction, successStatus int) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	var req notesRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	record, err := action(r.Context(), eventID, req.Notes)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, successStatus, record)
}

// Register は現在のユーザーをイベントの出欠対象として登録する。
// POST /api/attendance/{eventID}/register
func (h *AttendanceHandler) Register(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.Register, http.StatusCreated)
}

// CheckIn は現在のユーザーをチェックインさせる。
// POST /api/attendance/{eventID}/checkin
func (h *AttendanceHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.CheckIn, http.StatusOK)
}

// CheckOut は現在のユーザーをチェックアウトさせる。
// POST /api/attendance/{eventID}/checkout
func (h *AttendanceHandler) CheckOut(w http.ResponseWriter, r *http.Request) {
	h.handleAction(w, r, h.service.CheckOut, http.StatusOK)
}

// Cancel は現在のユーザーの出欠登録を取り消す。
// POST /api/attendance/{eventID}/cancel
func (h *AttendanceHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	record, err := h.service.CancelRegistration(r.Context(), eventID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetRecord は出欠記録を返す。取消済みの記録も返す。
// GET /api/attendance/{eventID}?user=
func (h *AttendanceHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	userID, apiErr := targetUser(r)
	if apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}
	record, found := h.service.GetRecord(r.Context(), eventID, userID)
	if !found {
		handleServiceError(w, model.NewAttendanceNotFoundError(eventID))
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// GetStatus は出欠状態を返す。記録がない場合はRegisteredを返す。
// GET /api/attendance/{eventID}/status?user=
func (h *AttendanceHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	userID, apiErr := targetUser(r)
	if apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		EventID: eventID,
		UserID:  userID,
		Status:  h.service.GetStatus(r.Context(), eventID, userID),
	})
}

// History はユーザーの出欠履歴と集計を返す。
// GET /api/attendance/history?user=
func (h *AttendanceHandler) History(w http.ResponseWriter, r *http.Request) {
	userID, apiErr := targetUser(r)
	if apiErr != nil {
		handleServiceError(w, apiErr)
		return
	}
	writeJSON(w, http.StatusOK, h.service.UserHistorySummary(r.Context(), userID))
}

// EventSummary はイベントの出欠集計を返す。
// GET /api/attendance/{eventID}/summary
func (h *AttendanceHandler) EventSummary(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.EventSummary(r.Context(), eventID))
}

// AllSummaries は記録のある全イベントの出欠集計を登録数の多い順に返す。
// GET /api/attendance/summaries
func (h *AttendanceHandler) AllSummaries(w http.ResponseWriter, r *http.Request) {
	summaries := h.service.AllEventsSummaries(r.Context())
	if summaries == nil {
		summaries = []model.EventAttendanceSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// Ticket は現在のユーザーのチェックイン用QRコード（PNG）を返す。
// GET /api/attendance/{eventID}/ticket.png
func (h *AttendanceHandler) Ticket(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	user, _ := middleware.UserFromContext(r.Context())
	if !user.IsAuthenticated || user.UserID == "" {
		handleServiceError(w, model.NewUnauthorizedError("sign-in required"))
		return
	}

	png, err := attendance.TicketQRCode(h.baseURL, eventID, user.UserID)
	if err != nil {
		h.logger.Error("QRコードの生成に失敗しました",
			slog.Int("event_id", eventID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// MarkAbsent は指定ユーザーを欠席にする（管理者）。
// POST /api/admin/attendance/{eventID}/absent
func (h *AttendanceHandler) MarkAbsent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	var req markAbsentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handleServiceError(w, model.NewValidationError([]string{"User ID is required"}))
		return
	}
	record, err := h.service.MarkAbsent(r.Context(), eventID, strings.TrimSpace(req.UserID))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// CheckInUser はチケットのQRコードが指すユーザーをチェックインさせる（管理者）。
// POST /api/admin/attendance/{eventID}/checkin?user=
func (h *AttendanceHandler) CheckInUser(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		handleServiceError(w, model.NewValidationError([]string{"User ID is required"}))
		return
	}
	var req notesRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	record, err := h.service.CheckInUser(r.Context(), eventID, userID, req.Notes)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Clear は全ての出欠記録を削除する（管理者）。
// DELETE /api/admin/attendance
func (h *AttendanceHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.service.ClearAttendanceData(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
