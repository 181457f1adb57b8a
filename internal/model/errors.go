// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 認証・トークン処理のエラー分類。
// 各層は fmt.Errorf("...: %w", err) でラップし、HTTP境界で errors.Is により判定する。
var (
	ErrInvalidIdentityToken = errors.New("invalid identity token")
	ErrEmailNotVerified     = errors.New("email not verified")
	ErrInvalidSessionToken  = errors.New("invalid session token")
	ErrExpiredSessionToken  = errors.New("expired session token")
	ErrUserNotFound         = errors.New("user not found")
	ErrMissingIdentifier    = errors.New("identifier not provided")
	ErrStoreUnavailable     = errors.New("user store unavailable")

	// ErrSigningKeyMissing は署名鍵が未設定の場合の構成エラー。起動を中止させる。
	ErrSigningKeyMissing = errors.New("session signing key is empty")
)

// APIError はHTTPレスポンスとして返すエラーを表す。
// Detailは外部に公開する固定文字列。
type APIError struct {
	Code   string // エラーコード（ログ・メトリクス用）
	Detail string // レスポンスのdetail
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Detail)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidIDToken        = "INVALID_ID_TOKEN"
	ErrCodeEmailNotVerified      = "EMAIL_NOT_VERIFIED"
	ErrCodeInvalidRequest        = "INVALID_REQUEST"
	ErrCodeCredentialsInvalid    = "CREDENTIALS_INVALID"
	ErrCodeIdentifierNotProvided = "IDENTIFIER_NOT_PROVIDED"
	ErrCodeExpiredToken          = "EXPIRED_TOKEN"
	ErrCodeInvalidToken          = "INVALID_TOKEN"
	ErrCodeUserNotFound          = "USER_NOT_FOUND"
	ErrCodeInternal              = "INTERNAL_ERROR"
)

// NewInvalidIDTokenError はIDトークン検証失敗のエラーを生成する。
func NewInvalidIDTokenError() *APIError {
	return &APIError{Code: ErrCodeInvalidIDToken, Detail: "Invalid id token"}
}

// NewEmailNotVerifiedError はメール未確認のエラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{Code: ErrCodeEmailNotVerified, Detail: "Must verify email"}
}

// NewInvalidRequestError はリクエスト本文が不正な場合のエラーを生成する。
func NewInvalidRequestError(detail string) *APIError {
	return &APIError{Code: ErrCodeInvalidRequest, Detail: detail}
}

// NewCredentialsInvalidError は/validateで返すエラーを生成する。
// 期限切れと不正を区別しない。
func NewCredentialsInvalidError() *APIError {
	return &APIError{Code: ErrCodeCredentialsInvalid, Detail: "Could not validate credentials"}
}

// NewIdentifierNotProvidedError は識別子が指定されていない場合のエラーを生成する。
func NewIdentifierNotProvidedError() *APIError {
	return &APIError{Code: ErrCodeIdentifierNotProvided, Detail: "Identifier not provided"}
}

// NewExpiredTokenError はセッショントークン期限切れのエラーを生成する。
func NewExpiredTokenError() *APIError {
	return &APIError{Code: ErrCodeExpiredToken, Detail: "Expired token"}
}

// NewInvalidTokenError はセッショントークン不正のエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{Code: ErrCodeInvalidToken, Detail: "Invalid token"}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{Code: ErrCodeUserNotFound, Detail: "Invalid user id"}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{Code: ErrCodeInternal, Detail: "Internal server error"}
}
