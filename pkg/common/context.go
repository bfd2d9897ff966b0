package common

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey represents a context key type
type ContextKey string

const (
	ContextKeyRequestID ContextKey = "request_id"
	ContextKeyRunID     ContextKey = "run_id"
	ContextKeySubject   ContextKey = "subject"
)

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyRequestID).(string)
	return id, ok && id != ""
}

// WithRunID tags ctx with the id of a sync, migration or snapshot run.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// GetRunID extracts the run id from context
func GetRunID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ContextKeyRunID).(string)
	return id, ok && id != ""
}

// StartRun tags ctx with a fresh run id.
func StartRun(ctx context.Context) (context.Context, string) {
	runID := uuid.NewString()
	return WithRunID(ctx, runID), runID
}

// WithSubject records the authenticated caller of the admin API.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}

// GetSubject extracts the authenticated caller from context
func GetSubject(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(ContextKeySubject).(string)
	return s, ok && s != ""
}
