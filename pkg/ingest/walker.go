// Package ingest turns raw RR interval files into processed records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mitch000001/hrv-sync/pkg/hrv"
	"github.com/mitch000001/hrv-sync/pkg/record"
	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

// ErrAlreadyProcessed is returned for files whose identity is already in the
// store. Nothing is recomputed for them.
var ErrAlreadyProcessed = errors.New("already processed")

type Options struct {
	// Extension raw data files end with, e.g. ".txt".
	Extension string
	// SkipPrefix excludes files whose name starts with it. Empty disables.
	SkipPrefix      string
	MeasurementType string
	// Location the file name timestamps are read in.
	Location *time.Location
}

type Summary struct {
	Discovered int `json:"discovered"`
	Ingested   int `json:"ingested"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

type Walker struct {
	store  *store.Store
	opts   Options
	logger *zap.Logger
}

func NewWalker(s *store.Store, opts Options, logger *zap.Logger) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Walker{
		store:  s,
		opts:   opts,
		logger: logger,
	}
}

// Discover yields the raw data files below root. Walk errors are yielded
// with the offending path and the walk continues where possible.
func (w *Walker) Discover(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if !yield(path, err) {
					return filepath.SkipAll
				}
				return nil
			}
			if d.IsDir() || !w.matches(d.Name()) {
				return nil
			}
			if !yield(path, nil) {
				return filepath.SkipAll
			}
			return nil
		})
	}
}

func (w *Walker) matches(name string) bool {
	if !strings.HasSuffix(name, w.opts.Extension) {
		return false
	}
	return w.opts.SkipPrefix == "" || !strings.HasPrefix(name, w.opts.SkipPrefix)
}

// IngestFile computes both metrics for the file at path and persists them.
// It returns the record identity, also alongside ErrAlreadyProcessed.
func (w *Walker) IngestFile(path string) (string, error) {
	id, err := record.Parse(path, w.opts.Location)
	if err != nil {
		return "", err
	}
	if w.store.Has(id.Identity) {
		return id.Identity, ErrAlreadyProcessed
	}
	intervals, err := readIntervals(path)
	if err != nil {
		return id.Identity, err
	}
	rmssd, err := hrv.RMSSD(intervals)
	if err != nil {
		return id.Identity, err
	}
	restingHR, err := hrv.RestingHR(intervals)
	if err != nil {
		return id.Identity, err
	}
	dateTime := id.DateTime()
	w.store.Upsert(id.Identity, store.Record{
		HRV: store.HRVPayload{HRV: runalyze.HRV{
			DateTime:        dateTime,
			MeasurementType: w.opts.MeasurementType,
			RMSSD:           rmssd,
		}},
		RestingHR: store.RestingHRPayload{HeartRateRest: runalyze.HeartRateRest{
			DateTime:  dateTime,
			HeartRate: restingHR,
		}},
	})
	if err := w.store.Save(); err != nil {
		return id.Identity, err
	}
	w.logger.Info("Processed recording",
		zap.String("identity", id.Identity),
		zap.String("date_time", dateTime),
		zap.Int("intervals", len(intervals)),
		zap.Float64("rmssd", rmssd),
		zap.Int("resting_hr", restingHR),
	)
	return id.Identity, nil
}

// Run ingests every file below root. Per file failures are logged and
// counted; only store write failures and cancellation stop the walk.
func (w *Walker) Run(ctx context.Context, root string) (Summary, error) {
	var summary Summary
	for path, err := range w.Discover(root) {
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
		if err != nil {
			summary.Failed++
			w.logger.Warn("Error walking raw data", zap.String("path", path), zap.Error(err))
			continue
		}
		summary.Discovered++
		identity, err := w.IngestFile(path)
		switch {
		case err == nil:
			summary.Ingested++
		case errors.Is(err, ErrAlreadyProcessed):
			summary.Skipped++
			w.logger.Debug("File already processed, skipping",
				zap.String("path", path),
				zap.String("identity", identity),
			)
		case errors.Is(err, store.ErrStoreIO):
			return summary, err
		default:
			summary.Failed++
			w.logger.Warn("Error processing file", zap.String("path", path), zap.Error(err))
		}
	}
	return summary, nil
}

func readIntervals(path string) ([]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "error reading %s", path)
	}
	var intervals []int
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %q is not an integer", hrv.ErrMalformedIntervalData, i+1, line)
		}
		intervals = append(intervals, v)
	}
	return intervals, nil
}
