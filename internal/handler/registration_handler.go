package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/model"
)

// RegistrationServiceInterface は参加登録ハンドラーが必要とする操作。
type RegistrationServiceInterface interface {
	Submit(ctx context.Context, reg model.Registration) model.RegistrationResult
	Cancel(ctx context.Context, registrationID int) model.RegistrationResult
	Get(ctx context.Context, registrationID int) (model.Registration, bool)
	ListByEvent(ctx context.Context, eventID int) []model.Registration
	ListByEmail(ctx context.Context, email string) []model.Registration
	Statistics(ctx context.Context, eventID int) model.RegistrationStatistics
}

// RegistrationHandler は参加登録のHTTPハンドラー。
type RegistrationHandler struct {
	service RegistrationServiceInterface
}

// NewRegistrationHandler はRegistrationHandlerを生成する。
func NewRegistrationHandler(service RegistrationServiceInterface) *RegistrationHandler {
	return &RegistrationHandler{service: service}
}

// registrationRequest は参加登録フォームの送信内容。
type registrationRequest struct {
	EventID               int    `json:"eventId"`
	FirstName             string `json:"firstName"`
	LastName              string `json:"lastName"`
	Email                 string `json:"email"`
	PhoneNumber           string `json:"phoneNumber"`
	Company               string `json:"company"`
	JobTitle              string `json:"jobTitle"`
	NumberOfAttendees     int    `json:"numberOfAttendees"`
	SpecialRequirements   string `json:"specialRequirements"`
	Comments              string `json:"comments"`
	AgreeToTerms          bool   `json:"agreeToTerms"`
	SubscribeToNewsletter bool   `json:"subscribeToNewsletter"`
}

func (req registrationRequest) toModel() model.Registration {
	return model.Registration{
		EventID:               req.EventID,
		FirstName:             req.FirstName,
		LastName:              req.LastName,
		Email:                 req.Email,
		PhoneNumber:           req.PhoneNumber,
		Company:               req.Company,
		JobTitle:              req.JobTitle,
		NumberOfAttendees:     req.NumberOfAttendees,
		SpecialRequirements:   req.SpecialRequirements,
		Comments:              req.Comments,
		AgreeToTerms:          req.AgreeToTerms,
		SubscribeToNewsletter: req.SubscribeToNewsletter,
	}
}

// registrationResponse は参加登録の詳細。
type registrationResponse struct {
	model.Registration
	FullName  string  `json:"fullName"`
	TotalCost float64 `json:"totalCost"`
}

func toRegistrationResponse(reg model.Registration) registrationResponse {
	return registrationResponse{
		Registration: reg,
		FullName:     reg.FullName(),
		TotalCost:    reg.TotalCost(),
	}
}

func toRegistrationResponses(regs []model.Registration) []registrationResponse {
	resp := make([]registrationResponse, 0, len(regs))
	for _, reg := range regs {
		resp = append(resp, toRegistrationResponse(reg))
	}
	return resp
}

// writeResult は申込・取消結果を書き込む。拒否された場合は統一エラー形式で返す。
func writeResult(w http.ResponseWriter, result model.RegistrationResult, successStatus int) {
	if !result.Accepted {
		if result.Err == nil {
			middleware.WriteInternalServerError(w)
			return
		}
		middleware.WriteErrorResponse(w, middleware.StatusForError(result.Err), result.Err)
		return
	}
	writeJSON(w, successStatus, result)
}

// Submit は参加登録を受け付ける。
// POST /api/registrations
func (h *RegistrationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req registrationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeResult(w, h.service.Submit(r.Context(), req.toModel()), http.StatusCreated)
}

// Cancel は参加登録を取り消す。
// POST /api/registrations/{registrationID}/cancel
func (h *RegistrationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "registrationID")
	if !ok {
		return
	}
	writeResult(w, h.service.Cancel(r.Context(), id), http.StatusOK)
}

// Get は参加登録を1件返す。
// GET /api/registrations/{registrationID}
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "registrationID")
	if !ok {
		return
	}
	reg, found := h.service.Get(r.Context(), id)
	if !found {
		handleServiceError(w, model.NewRegistrationNotFoundError(id))
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponse(reg))
}

// ListByEmail はメールアドレスに一致する参加登録を返す。
// GET /api/registrations?email=
func (h *RegistrationHandler) ListByEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("Query parameter email is required."))
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponses(h.service.ListByEmail(r.Context(), email)))
}

// ListByEvent はイベントの参加登録一覧を返す。
// GET /api/events/{eventID}/registrations
func (h *RegistrationHandler) ListByEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRegistrationResponses(h.service.ListByEvent(r.Context(), eventID)))
}

// Statistics はイベントの参加登録集計を返す。
// GET /api/events/{eventID}/registrations/stats
func (h *RegistrationHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	eventID, ok := intParam(w, r, "eventID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.service.Statistics(r.Context(), eventID))
}
