// Package middleware validates JSON request bodies with a flowi validator at the
// HTTP boundary.
package middleware

import (
	"context"
	"errors"
	"net/http"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/reoring/flowi"
	"github.com/reoring/flowi/source"
)

// DefaultMaxBodyBytes bounds request bodies unless WithMaxBodyBytes is used.
const DefaultMaxBodyBytes = 1 << 20

// ctxKeyValue is the context key of the validated value.
type ctxKeyValue struct{}

// ContextWithValue attaches a validated value to the context.
func ContextWithValue(ctx context.Context, v any) context.Context {
	return context.WithValue(ctx, ctxKeyValue{}, v)
}

// ValueFromContext retrieves the value stored by Validate.
func ValueFromContext(ctx context.Context) (any, bool) {
	v := ctx.Value(ctxKeyValue{})
	return v, v != nil
}

// ErrorBody is the wire shape of a rejected request.
type ErrorBody struct {
	Message string       `json:"message"`
	Key     string       `json:"key,omitempty"`
	Label   string       `json:"label,omitempty"`
	Code    string       `json:"code,omitempty"`
	Status  flowi.Status `json:"status"`
}

// ErrorPayload shapes a ValidationError for JSON responses.
func ErrorPayload(ve *flowi.ValidationError) map[string]any {
	return map[string]any{"error": ErrorBody{
		Message: ve.Message,
		Key:     ve.Key,
		Label:   ve.Label,
		Code:    ve.Code,
		Status:  ve.Status,
	}}
}

// StatusCode maps a ValidationError status to an HTTP status code.
func StatusCode(ve *flowi.ValidationError) int {
	if ve.Status == flowi.StatusUnavailable {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

type config struct {
	logger       *zap.Logger
	metrics      *metrics
	validateOpts []flowi.Option
	maxBytes     int64
}

// Option configures Validate.
type Option func(*config)

// WithLogger logs rejected requests at Info and internal failures at Warn.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithValidateOptions passes per-call options (for example flowi.WithStrip) to
// every validation.
func WithValidateOptions(opts ...flowi.Option) Option {
	return func(c *config) { c.validateOpts = append(c.validateOpts, opts...) }
}

// WithMaxBodyBytes bounds the request body size.
func WithMaxBodyBytes(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.maxBytes = n
		}
	}
}

// Validate decodes the JSON body, validates it with v and stores the resulting
// value in the request context. Invalid requests get a JSON error payload.
func Validate(v flowi.Validator, opts ...Option) func(http.Handler) http.Handler {
	cfg := config{logger: zap.NewNop(), maxBytes: DefaultMaxBodyBytes}
	for _, o := range opts {
		o(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			body, err := source.JSONReader(http.MaxBytesReader(w, r.Body, cfg.maxBytes))
			if err != nil {
				cfg.metrics.observe(resultMalformed)
				cfg.logger.Info("malformed request body", zap.String("path", r.URL.Path), zap.Error(err))
				code := http.StatusBadRequest
				var mbe *http.MaxBytesError
				if errors.As(err, &mbe) {
					code = http.StatusRequestEntityTooLarge
				}
				writeJSON(w, code, map[string]any{"error": ErrorBody{
					Message: err.Error(),
					Code:    "parse_error",
					Status:  flowi.StatusBadInput,
				}})
				return
			}

			out, err := v.ValidateAsync(ctx, body, cfg.validateOpts...).Await(ctx)
			if err != nil {
				cfg.metrics.observe(resultError)
				cfg.logger.Warn("validation did not complete", zap.String("path", r.URL.Path), zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": ErrorBody{
					Message: "validation did not complete",
					Status:  flowi.StatusUnavailable,
				}})
				return
			}
			if out.Err != nil {
				cfg.metrics.observe(resultInvalid)
				cfg.logger.Info("request rejected",
					zap.String("path", r.URL.Path),
					zap.String("key", out.Err.Key),
					zap.String("code", out.Err.Code),
				)
				writeJSON(w, StatusCode(out.Err), ErrorPayload(out.Err))
				return
			}
			cfg.metrics.observe(resultValid)
			next.ServeHTTP(w, r.WithContext(ContextWithValue(ctx, out.Value)))
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	b, err := gojson.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
}
