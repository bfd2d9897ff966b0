package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tattoo-datasync/pkg/common"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrorResponse is the JSON body returned by the admin API on failure.
type ErrorResponse struct {
	Error     bool                   `json:"error"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// ErrorHandler renders service errors for the admin API.
type ErrorHandler struct {
	logger *zap.Logger
	debug  bool
}

// NewErrorHandler creates an error handler. debug exposes raw messages of
// unexpected errors and AppError stack traces.
func NewErrorHandler(logger *zap.Logger, debug bool) *ErrorHandler {
	return &ErrorHandler{logger: logger, debug: debug}
}

// Handle writes err as a JSON error response.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}
	status, resp := h.render(err)
	resp.RequestID = common.ExtractRequestID(r)

	fields := []zap.Field{
		zap.String("error_type", resp.Type),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.String("request_id", resp.RequestID),
		zap.Error(err),
	}
	if resp.Code != "" {
		fields = append(fields, zap.String("error_code", resp.Code))
	}
	level := zapcore.WarnLevel
	if status >= http.StatusInternalServerError {
		level = zapcore.ErrorLevel
	}
	h.logger.Log(level, "Admin request failed", fields...)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		h.logger.Error("Failed to encode error response", zap.Error(encErr))
	}
}

func (h *ErrorHandler) render(err error) (int, ErrorResponse) {
	appErr := GetAppError(err)
	if appErr == nil {
		msg := "An internal error occurred"
		if h.debug {
			msg = err.Error()
		}
		return http.StatusInternalServerError, ErrorResponse{
			Error:   true,
			Type:    string(ErrorTypeInternal),
			Message: msg,
		}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	resp := ErrorResponse{
		Error:   true,
		Type:    string(appErr.Type),
		Message: appErr.Message,
		Code:    appErr.Code,
	}
	if len(appErr.Details) > 0 {
		resp.Details = make(map[string]interface{}, len(appErr.Details)+1)
		for k, v := range appErr.Details {
			resp.Details[k] = v
		}
	}
	if h.debug && appErr.StackTrace != "" {
		if resp.Details == nil {
			resp.Details = map[string]interface{}{}
		}
		resp.Details["stack_trace"] = appErr.StackTrace
	}
	return status, resp
}

// Middleware turns a panicking handler into an internal error response.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				h.Handle(w, r, NewInternalError(fmt.Sprintf("panic: %v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
