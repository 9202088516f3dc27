package rate

import (
	"net/http"

	"go.uber.org/zap"
)

// NewTransport returns a RoundTripper that waits for rl before every request
// and feeds every response header back into it. Headers rl cannot use are
// logged to logger, which may be nil.
func NewTransport(rl AdjustableLimiter, transport http.RoundTripper, logger *zap.Logger) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &rateLimitingTransport{
		wrappedTransport: transport,
		ratelimiter:      rl,
		logger:           logger,
	}
}

type rateLimitingTransport struct {
	wrappedTransport http.RoundTripper
	ratelimiter      AdjustableLimiter
	logger           *zap.Logger
}

func (r *rateLimitingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if err := r.ratelimiter.Wait(request.Context()); err != nil {
		return nil, err
	}
	response, err := r.wrappedTransport.RoundTrip(request)
	if err != nil {
		return response, err
	}
	// a malformed header must not fail an otherwise good response
	if err := r.ratelimiter.AdjustLimit(response.Header); err != nil {
		r.logger.Warn("Error adjusting rate limit", zap.String("url", request.URL.String()), zap.Error(err))
	}
	return response, nil
}
