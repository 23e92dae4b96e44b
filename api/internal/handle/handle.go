package handle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mind-lens/api/internal/analysis"
	"mind-lens/api/internal/store"
)

// LogStore — то, что хендлерам нужно от хранилища analysis_logs.
type LogStore interface {
	Append(ctx context.Context, persona string, result json.RawMessage) (store.AnalysisLog, error)
	Get(ctx context.Context, id int64) (store.AnalysisLog, error)
	Recent(ctx context.Context, limit, offset int) ([]store.AnalysisLog, error)
	Count(ctx context.Context) (int64, error)
}

type Options struct {
	Timeout        time.Duration
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type Handle struct {
	engine    analysis.Engine
	logs      LogStore
	log       *slog.Logger
	timeout   time.Duration
	maxUpload int64
}

func New(engine analysis.Engine, logs LogStore, opt Options) *Handle {
	h := &Handle{
		engine:    engine,
		logs:      logs,
		log:       opt.Logger,
		timeout:   opt.Timeout,
		maxUpload: opt.MaxUploadBytes,
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	if h.timeout <= 0 {
		h.timeout = 120 * time.Second
	}
	if h.maxUpload <= 0 {
		h.maxUpload = 32 << 20
	}
	return h
}

// HTTPError — ошибка с уже выбранным статусом.
type HTTPError struct {
	Code   int
	Detail string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return e.Detail + ": " + e.Err.Error()
	}
	return e.Detail
}

func (e *HTTPError) Unwrap() error { return e.Err }

func httpErr(code int, detail string, err error) error {
	return &HTTPError{Code: code, Detail: detail, Err: err}
}

type HandlerFunc func(http.ResponseWriter, *http.Request) error

// Wrap переводит ошибку хендлера в HTTP-ответ {"detail": ...}.
func (h *Handle) Wrap(fn HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := fn(w, r)
		if err == nil {
			return
		}
		code, detail := statusFor(err)
		if code >= http.StatusInternalServerError {
			h.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", code, "err", err)
		} else {
			h.log.WarnContext(r.Context(), "request rejected", "path", r.URL.Path, "status", code, "err", err)
		}
		writeJSON(w, code, map[string]string{"detail": detail})
	}
}

func statusFor(err error) (int, string) {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code, he.Error()
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "analysis timed out"
	case errors.Is(err, analysis.ErrInvalidInput):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, analysis.ErrSchemaMismatch):
		return http.StatusBadGateway, "analysis error: " + err.Error()
	case errors.Is(err, analysis.ErrExternalCall):
		return http.StatusBadGateway, "analysis error: " + err.Error()
	case errors.Is(err, store.ErrPersistence):
		return http.StatusInternalServerError, "storage error"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeJSON: если v не сериализуется, ответ — 500 {"detail": "internal error"}.
func writeJSON(w http.ResponseWriter, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		body = []byte(`{"detail":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(body, '\n'))
}
