package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/healthtrack/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はドメインのエラー型をHTTPステータスと統一エラーフォーマットに変換して書き込む。
//
//   - *model.ValidationError: 400
//   - *model.AuthError: 401
//   - *model.RemoteError: バックエンドの401は401、それ以外は502
//   - その他: 500（詳細はログのみ）
func WriteAPIError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	var ae *model.AuthError
	var re *model.RemoteError

	switch {
	case errors.As(err, &ve):
		WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError(ve.Message))
	case errors.As(err, &ae):
		apiErr := model.NewUnauthenticatedError()
		apiErr.Message = ae.Message
		WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
	case errors.As(err, &re):
		if re.StatusCode == http.StatusUnauthorized {
			WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
			return
		}
		WriteErrorResponse(w, http.StatusBadGateway, model.NewRemoteFailedError(re.Message))
	default:
		slog.Error("unhandled API error", slog.String("error", err.Error()))
		WriteInternalServerError(w)
	}
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
