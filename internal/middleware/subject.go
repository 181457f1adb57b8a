package middleware

import (
	"context"
	"sync"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var subjectContextKey = contextKey("subject")

// subjectHolder はハンドラーが解決したsubject（外部ID）を外側のミドルウェアへ渡す入れ物。
type subjectHolder struct {
	mu    sync.Mutex
	value string
}

// ContextWithSubjectHolder はsubjectを記録できるコンテキストを返す。
// 既に入れ物があればそのまま返す。
func ContextWithSubjectHolder(ctx context.Context) context.Context {
	if _, ok := ctx.Value(subjectContextKey).(*subjectHolder); ok {
		return ctx
	}
	return context.WithValue(ctx, subjectContextKey, &subjectHolder{})
}

// SetSubject はリクエストで解決したsubjectを記録する。入れ物がなければ何もしない。
func SetSubject(ctx context.Context, subject string) {
	if h, ok := ctx.Value(subjectContextKey).(*subjectHolder); ok {
		h.mu.Lock()
		h.value = subject
		h.mu.Unlock()
	}
}

// SubjectFromContext は記録されたsubjectを返す。未記録の場合は空文字列。
func SubjectFromContext(ctx context.Context) string {
	h, ok := ctx.Value(subjectContextKey).(*subjectHolder)
	if !ok {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}
