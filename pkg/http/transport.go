package http

import (
	"net/http"
	"net/http/httputil"

	"go.uber.org/zap"
)

// LogTransport dumps every request and response at debug level. Values of
// the redacted headers are masked in the dump.
func LogTransport(transport http.RoundTripper, logger *zap.Logger, redactedHeaders ...string) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &logTransport{
		transport: transport,
		logger:    logger,
		redacted:  redactedHeaders,
	}
}

type logTransport struct {
	transport http.RoundTripper
	logger    *zap.Logger
	redacted  []string
}

func (l *logTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if ce := l.logger.Check(zap.DebugLevel, "Sending request"); ce != nil {
		ce.Write(zap.ByteString("request", l.dumpRequest(request)))
	}
	response, err := l.transport.RoundTrip(request)
	if err != nil {
		l.logger.Debug("Error sending request", zap.String("url", request.URL.String()), zap.Error(err))
		return response, err
	}
	if ce := l.logger.Check(zap.DebugLevel, "Received response"); ce != nil {
		dump, dumpErr := httputil.DumpResponse(response, true)
		if dumpErr != nil {
			l.logger.Debug("Error dumping response", zap.Error(dumpErr))
		}
		ce.Write(zap.ByteString("response", dump))
	}
	return response, nil
}

// dumpRequest dumps a clone of request. The body is only included when it
// can be replayed through GetBody, so the request itself is never touched.
func (l *logTransport) dumpRequest(request *http.Request) []byte {
	clone := request.Clone(request.Context())
	for _, key := range l.redacted {
		if clone.Header.Get(key) != "" {
			clone.Header.Set(key, "REDACTED")
		}
	}
	withBody := false
	if request.GetBody != nil {
		body, err := request.GetBody()
		if err != nil {
			l.logger.Debug("Error copying request body", zap.Error(err))
		} else {
			clone.Body = body
			withBody = true
		}
	}
	dump, err := httputil.DumpRequestOut(clone, withBody)
	if err != nil {
		l.logger.Debug("Error dumping request", zap.Error(err))
	}
	return dump
}
