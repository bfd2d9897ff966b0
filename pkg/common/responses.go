package common

import (
	"encoding/json"
	"net/http"
	"time"
)

// APIResponse is the envelope for every successful admin API response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

// MetaInfo carries run metadata alongside the payload.
type MetaInfo struct {
	RequestID string `json:"request_id,omitempty"`
	RunID     string `json:"run_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Duration  string `json:"duration,omitempty"`
}

// RespondJSON sends data wrapped in the standard envelope.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	RespondWithMeta(w, status, data, nil)
}

// RespondWithMeta sends data and metadata wrapped in the standard envelope.
func RespondWithMeta(w http.ResponseWriter, status int, data interface{}, meta *MetaInfo) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    meta,
	})
}

// RunMeta builds response metadata for a finished run started at start.
func RunMeta(r *http.Request, start time.Time) *MetaInfo {
	runID, _ := GetRunID(r.Context())
	return &MetaInfo{
		RequestID: ExtractRequestID(r),
		RunID:     runID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
}

// ExtractRequestID returns the request id set by the request id middleware
// or an upstream proxy.
func ExtractRequestID(r *http.Request) string {
	if id, ok := GetRequestID(r.Context()); ok {
		return id
	}
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return r.Header.Get("X-Amzn-Trace-Id")
}
