// Package delivery sends every payload of the processed-record store that
// has not been accepted yet and records each acceptance.
//
// A payload is only flagged as delivered after the API confirmed it. Rejected
// or unreachable deliveries keep their flag unset and are retried by the next
// run; there is no retry within a run.
package delivery

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

// Sender delivers a single payload. *runalyze.Client implements it.
type Sender interface {
	Send(ctx context.Context, kind runalyze.MetricKind, body interface{}) error
}

type Report struct {
	Attempted   int `json:"attempted"`
	Delivered   int `json:"delivered"`
	Rejected    int `json:"rejected"`
	Unreachable int `json:"unreachable"`
}

type Syncer struct {
	store  *store.Store
	sender Sender
	logger *zap.Logger
}

func NewSyncer(s *store.Store, sender Sender, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		store:  s,
		sender: sender,
		logger: logger,
	}
}

// SyncAll attempts every pending payload once and saves the store after the
// pass. Only cancellation and store failures are returned as errors.
func (s *Syncer) SyncAll(ctx context.Context) (Report, error) {
	var report Report
	for _, p := range s.store.Pending() {
		if ctx.Err() != nil {
			break
		}
		report.Attempted++
		log := s.logger.With(
			zap.String("identity", p.Identity),
			zap.String("kind", string(p.Kind)),
		)
		err := s.sender.Send(ctx, p.Kind, p.Body)
		if err != nil {
			var netErr *runalyze.NetworkError
			if errors.As(err, &netErr) {
				report.Unreachable++
			} else {
				report.Rejected++
			}
			log.Warn("Failed to send data", zap.Error(err))
			continue
		}
		if err := s.store.MarkDelivered(p.Identity, p.Kind); err != nil {
			return report, err
		}
		report.Delivered++
		log.Info("Data sent successfully")
	}
	if err := s.store.Save(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}
