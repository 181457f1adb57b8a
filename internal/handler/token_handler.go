// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/hitoshi/tokenbridge/internal/middleware"
	"github.com/hitoshi/tokenbridge/internal/model"
)

// maxRequestBodyBytes はPOST /tokenで受け付けるリクエストボディの上限。
const maxRequestBodyBytes = 64 << 10

// AuthServiceInterface はトークンハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Exchange(ctx context.Context, req model.ExchangeRequest) (*model.IssuedToken, error)
	Validate(token string) (*model.SessionClaims, error)
	ResolveUser(ctx context.Context, externalID, sessionToken string) (*model.UserView, error)
}

// TokenHandler はトークン交換・検証・ユーザー解決のHTTPハンドラー。
type TokenHandler struct {
	service AuthServiceInterface
}

// NewTokenHandler はTokenHandlerを生成する。
func NewTokenHandler(service AuthServiceInterface) *TokenHandler {
	return &TokenHandler{service: service}
}

// tokenRequest はPOST /tokenのリクエストボディ。
type tokenRequest struct {
	IDToken string `json:"id_token"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// Validate はリクエストボディを検証する。
func (r tokenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.IDToken, validation.Required),
	)
}

// tokenResponse はPOST /tokenのレスポンス。
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Token はIDトークンをセッショントークンに交換する。
// POST /token
func (h *TokenHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(&req); err != nil || req.Validate() != nil {
		middleware.WriteErrorResponse(w, http.StatusUnprocessableEntity, model.NewInvalidRequestError("id_token is required"))
		return
	}

	issued, err := h.service.Exchange(r.Context(), model.ExchangeRequest{
		IDToken: req.IDToken,
		Email:   req.Email,
		Name:    req.Name,
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidIdentityToken):
			middleware.WriteBearerChallenge(w, http.StatusUnauthorized, model.NewInvalidIDTokenError())
		case errors.Is(err, model.ErrEmailNotVerified):
			middleware.WriteBearerChallenge(w, http.StatusUnauthorized, model.NewEmailNotVerifiedError())
		default:
			slog.Error("token exchange failed", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
		}
		return
	}

	middleware.SetSubject(r.Context(), issued.Claims.ID)
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: issued.AccessToken,
		TokenType:   issued.TokenType,
		ExpiresAt:   issued.ExpiresAt.Unix(),
	})
}

// Validate はセッショントークンを検証する。成功時は空のボディで200を返す。
// 期限切れと不正は区別せず、いずれも401を返す。
// GET /validate?access_token=xxx
func (h *TokenHandler) Validate(w http.ResponseWriter, r *http.Request) {
	token := accessTokenFromRequest(r)
	if token == "" {
		middleware.WriteBearerChallenge(w, http.StatusUnauthorized, model.NewCredentialsInvalidError())
		return
	}

	claims, err := h.service.Validate(token)
	if err != nil {
		middleware.WriteBearerChallenge(w, http.StatusUnauthorized, model.NewCredentialsInvalidError())
		return
	}

	middleware.SetSubject(r.Context(), claims.ID)
	w.WriteHeader(http.StatusOK)
}

// User は外部IDまたはセッショントークンからユーザー情報を返す。
// 両方指定された場合は外部IDを優先する。
// GET /user?firebase_id=xxx または GET /user?access_token=xxx
func (h *TokenHandler) User(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	externalID := strings.TrimSpace(query.Get("firebase_id"))
	token := accessTokenFromRequest(r)

	// firebase_idが指定されていれば空でも外部IDとして扱う。空の外部IDを持つユーザーは存在しない
	if query.Has("firebase_id") && externalID == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		return
	}

	view, err := h.service.ResolveUser(r.Context(), externalID, token)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrMissingIdentifier):
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewIdentifierNotProvidedError())
		case errors.Is(err, model.ErrExpiredSessionToken):
			middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewExpiredTokenError())
		case errors.Is(err, model.ErrInvalidSessionToken):
			middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewInvalidTokenError())
		case errors.Is(err, model.ErrUserNotFound):
			middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewUserNotFoundError())
		default:
			slog.Error("user resolution failed", slog.String("error", err.Error()))
			middleware.WriteInternalServerError(w)
		}
		return
	}

	middleware.SetSubject(r.Context(), view.ID)
	writeJSON(w, http.StatusOK, view)
}

// accessTokenFromRequest はクエリのaccess_tokenを返す。
// クエリにない場合は Authorization: Bearer ヘッダーを参照する。
func accessTokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.URL.Query().Get("access_token")); token != "" {
		return token
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
