// Package handler はEventEaseのJSON APIを提供するHTTPハンドラーを実装する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/eventease/internal/middleware"
	"github.com/hitoshi/eventease/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（1MB）。
const maxRequestBodySize = 1 << 20

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	middleware.WriteError(w, err)
}

// newInvalidRequestError はリクエストボディ・パラメータの解析失敗を表すAPIErrorを返す。
func newInvalidRequestError(message string) *model.APIError {
	return &model.APIError{
		Code:     model.ErrCodeValidationFailed,
		Message:  message,
		Category: "validation",
		Action:   "Please check the request and try again.",
	}
}

// decodeJSON はリクエストボディをdstにデコードする。空ボディは許可しない。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		msg := "Request body must be valid JSON."
		if errors.Is(err, io.EOF) {
			msg = "Request body is required."
		}
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError(msg))
		return false
	}
	return true
}

// decodeOptionalJSON は空ボディを許可してデコードする。
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, newInvalidRequestError("Request body must be valid JSON."))
		return false
	}
	return true
}

// intParam はURLパラメータを正の整数として読み取る。
// 不正な値の場合は400を書き込んでfalseを返す。
func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || v <= 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			newInvalidRequestError("Invalid "+name+": must be a positive integer."))
		return 0, false
	}
	return v, true
}
