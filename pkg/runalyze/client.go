package runalyze

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL = "https://runalyze.com/api/v1"
	TokenHeader    = "token"
)

type Options struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// Transport is used for every request when set, typically a chain of
	// rate limiting, logging and instrumentation round trippers.
	Transport http.RoundTripper
	Logger    *zap.Logger
}

// Client posts metric bodies to the Runalyze personal API.
type Client struct {
	http   *resty.Client
	logger *zap.Logger
}

func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(0).
		SetHeader(TokenHeader, opts.Token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetLogger(logger.Sugar())
	if opts.Transport != nil {
		client.SetTransport(opts.Transport)
	}
	return &Client{
		http:   client,
		logger: logger,
	}
}

// Send posts body to the endpoint of kind. Only 201 Created and 200 OK count
// as accepted.
func (c *Client) Send(ctx context.Context, kind MetricKind, body interface{}) error {
	path, err := kind.Path()
	if err != nil {
		return errors.Wrap(err, "error resolving endpoint")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(path)
	if err != nil {
		return &NetworkError{Kind: kind, Err: err}
	}
	switch resp.StatusCode() {
	case http.StatusCreated, http.StatusOK:
		c.logger.Debug("Metric accepted",
			zap.String("kind", string(kind)),
			zap.Int("status_code", resp.StatusCode()),
		)
		return nil
	}
	return &StatusError{
		Kind:       kind,
		StatusCode: resp.StatusCode(),
		Body:       resp.String(),
	}
}
