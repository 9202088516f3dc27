package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mitch000001/hrv-sync/pkg/config"
	"github.com/mitch000001/hrv-sync/pkg/delivery"
	hrvhttp "github.com/mitch000001/hrv-sync/pkg/http"
	"github.com/mitch000001/hrv-sync/pkg/http/rate"
	"github.com/mitch000001/hrv-sync/pkg/ingest"
	"github.com/mitch000001/hrv-sync/pkg/logging"
	"github.com/mitch000001/hrv-sync/pkg/runalyze"
	"github.com/mitch000001/hrv-sync/pkg/store"
)

var (
	configPath      string
	metricsTextfile string
)

var rootCmd = &cobra.Command{
	Use:   "hrv-sync",
	Short: "Upload HRV and resting heart rate from RR interval recordings to Runalyze",
	Long: `hrv-sync extracts an exported archive of RR interval recordings, computes
RMSSD and resting heart rate for every recording not processed before and
uploads all results Runalyze has not accepted yet.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(a *app) error {
			if a.cfg.Configuration.ZipPath != "" {
				if err := a.extract(); err != nil {
					a.logger.Error("Error extracting archive, continuing with existing raw data", zap.Error(err))
				}
			}
			if err := a.ingest(cmd.Context()); err != nil {
				return err
			}
			return a.sync(cmd.Context())
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file after the run")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

type app struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// withApp loads configuration and store, runs fn and writes the metrics
// textfile afterwards regardless of fn's outcome.
func withApp(cmd *cobra.Command, fn func(*app) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return errors.Wrap(err, "error initializing logger")
	}
	defer logger.Sync()
	logger = logger.With(zap.String("run_id", uuid.NewString()), zap.String("command", cmd.Name()))

	s, err := store.Load(cfg.Configuration.ProcessedDataLogPath)
	if err != nil {
		logger.Error("Error loading processed-record store", zap.Error(err))
		return err
	}
	logger.Debug("Loaded processed-record store",
		zap.String("path", s.Path()),
		zap.Int("records", s.Len()),
	)

	a := &app{cfg: cfg, logger: logger, store: s}
	runErr := fn(a)
	observeStore(s)
	if err := writeMetrics(metricsTextfile); err != nil {
		logger.Warn("Error writing metrics textfile", zap.String("path", metricsTextfile), zap.Error(err))
	}
	if runErr != nil {
		logger.Error("Run failed", zap.Error(runErr))
	}
	return runErr
}

func (a *app) extract() error {
	c := a.cfg.Configuration
	if c.ZipPath == "" {
		return errors.New("configuration.zip_path is not set")
	}
	_, err := ingest.Extract(c.ZipPath, c.RawDataPath, a.logger)
	return err
}

func (a *app) ingest(ctx context.Context) error {
	c := a.cfg.Configuration
	loc, err := c.Location()
	if err != nil {
		return err
	}
	walker := ingest.NewWalker(a.store, ingest.Options{
		Extension:       c.RawDataExtension,
		SkipPrefix:      c.SkipPrefix,
		MeasurementType: c.DefaultMeasurementState,
		Location:        loc,
	}, a.logger)
	summary, err := walker.Run(ctx, c.RawDataPath)
	observeIngest(summary)
	a.logger.Info("Ingestion finished",
		zap.String("root", c.RawDataPath),
		zap.Int("discovered", summary.Discovered),
		zap.Int("ingested", summary.Ingested),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
	)
	return err
}

func (a *app) sync(ctx context.Context) error {
	c := a.cfg.Configuration
	if err := c.ValidateDelivery(); err != nil {
		return err
	}
	syncer := delivery.NewSyncer(a.store, a.client(), a.logger)
	report, err := syncer.SyncAll(ctx)
	observeDelivery(report)
	a.logger.Info("Sync finished",
		zap.Int("attempted", report.Attempted),
		zap.Int("delivered", report.Delivered),
		zap.Int("rejected", report.Rejected),
		zap.Int("unreachable", report.Unreachable),
	)
	return err
}

func (a *app) client() *runalyze.Client {
	c := a.cfg.Configuration
	var limiter rate.AdjustableLimiter = rate.FromHeader(rate.DefaultHeaderKeys)
	if c.RequestsPerMinute > 0 {
		limiter = rate.PerMinute(c.RequestsPerMinute)
	}
	transport := hrvhttp.LogTransport(http.DefaultTransport, a.logger, runalyze.TokenHeader)
	transport = rate.NewTransport(limiter, transport, a.logger)
	transport = instrumentTransport(rate.DefaultHeaderKeys, a.logger)(transport)
	return runalyze.NewClient(runalyze.Options{
		BaseURL:   c.APIEndpoint,
		Token:     c.APIToken,
		Timeout:   c.RequestTimeout,
		Transport: transport,
		Logger:    a.logger,
	})
}
