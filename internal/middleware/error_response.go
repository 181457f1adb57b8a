package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/tokenbridge/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスのフォーマット。
type ErrorResponseBody struct {
	Detail string `json:"detail"`
}

// WriteErrorResponse は {"detail": ...} 形式でHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Detail: apiErr.Detail})
}

// WriteBearerChallenge は WWW-Authenticate: Bearer を付与して認証エラーを書き込む。
func WriteBearerChallenge(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteErrorResponse(w, statusCode, apiErr)
}

// WriteInternalServerError は内部サーバーエラーのレスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
