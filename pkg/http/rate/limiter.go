package rate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoLimitHeaders is returned by LimitFromHeader when the response carries
// no rate limit information at all.
var ErrNoLimitHeaders = errors.New("no rate limit headers")

type Limiter interface {
	Wait(context.Context) error
}

// AdjustableLimiter learns its limit from API responses.
type AdjustableLimiter interface {
	Limiter
	AdjustLimit(http.Header) error
}

type HeaderKeys struct {
	LimitKey string
	// UsedKey takes precedence over RemainingKey when both are present.
	UsedKey        string
	RemainingKey   string
	ResetsAfterKey string
}

var DefaultHeaderKeys = HeaderKeys{
	LimitKey:       "X-RateLimit-Limit",
	RemainingKey:   "X-RateLimit-Remaining",
	ResetsAfterKey: "X-RateLimit-Reset",
}

type Limit struct {
	Limit             int
	Remaining         int
	ResetAfterSeconds int
}

func LimitFromHeader(header http.Header, keys HeaderKeys) (Limit, error) {
	var l Limit
	rawLimit := header.Get(keys.LimitKey)
	if rawLimit == "" {
		return l, ErrNoLimitHeaders
	}
	limit, err := strconv.Atoi(rawLimit)
	if err != nil {
		return l, fmt.Errorf("error parsing limit: %w", err)
	}
	remaining := limit
	if used := header.Get(keys.UsedKey); keys.UsedKey != "" && used != "" {
		u, err := strconv.Atoi(used)
		if err != nil {
			return l, fmt.Errorf("error parsing used: %w", err)
		}
		remaining = limit - u
	} else if rem := header.Get(keys.RemainingKey); rem != "" {
		remaining, err = strconv.Atoi(rem)
		if err != nil {
			return l, fmt.Errorf("error parsing remaining: %w", err)
		}
	}
	var resetAfter int
	if reset := header.Get(keys.ResetsAfterKey); reset != "" {
		resetAfter, err = strconv.Atoi(reset)
		if err != nil {
			return l, fmt.Errorf("error parsing reset: %w", err)
		}
	}
	return Limit{
		Limit:             limit,
		Remaining:         remaining,
		ResetAfterSeconds: resetAfter,
	}, nil
}

// PerMinute allows n requests per minute, spaced evenly.
func PerMinute(n int) AdjustableLimiter {
	return &fixedLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)}
}

type fixedLimiter struct {
	*rate.Limiter
}

func (f *fixedLimiter) AdjustLimit(http.Header) error {
	return nil
}

// FromHeader returns a limiter that is unlimited until the first response
// with rate limit headers arrives. From then on the remaining requests are
// spread across the time until the limit resets.
func FromHeader(keys HeaderKeys) *HeaderLimiter {
	return &HeaderLimiter{keys: keys}
}

type HeaderLimiter struct {
	keys    HeaderKeys
	mutex   sync.Mutex
	limiter *rate.Limiter
}

func (h *HeaderLimiter) Wait(ctx context.Context) error {
	h.mutex.Lock()
	limiter := h.limiter
	h.mutex.Unlock()
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

func (h *HeaderLimiter) AdjustLimit(header http.Header) error {
	limit, err := LimitFromHeader(header, h.keys)
	if errors.Is(err, ErrNoLimitHeaders) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error adjusting limit by header: %w", err)
	}
	every := time.Duration(limit.ResetAfterSeconds) * time.Second
	if limit.Remaining > 0 {
		every /= time.Duration(limit.Remaining)
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if h.limiter == nil {
		h.limiter = rate.NewLimiter(rate.Every(every), 1)
	} else {
		h.limiter.SetLimit(rate.Every(every))
	}
	if limit.Remaining <= 0 {
		// exhausted: the next request waits for the reset
		h.limiter.Reserve()
	}
	return nil
}
