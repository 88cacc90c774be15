// Package app wires the replay session together and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/api"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/buffer"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/candle"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/config"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/logging"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/model"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/profile"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/report"
	"github.com/luciferkid9/PUNPORT-REPLAY-sub000/internal/source"
)

// autosaveProfile is the profile slot written on shutdown and restored
// on the next start of the same config.
const autosaveProfile = "autosave"

// App is the application lifecycle manager.
type App struct {
	cfg *config.Config
}

// New creates a new App instance.
func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Run starts the full application: data source, session, API, and
// signal handling. Blocks until shutdown.
func (a *App) Run() error {
	log, err := logging.Build(logging.Options{
		Level:      a.cfg.App.LogLevel,
		File:       a.cfg.App.LogFile,
		MaxSizeMB:  a.cfg.App.LogMaxSizeMB,
		MaxBackups: a.cfg.App.LogMaxBackups,
		MaxAgeDays: a.cfg.App.LogMaxAgeDays,
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting replayd",
		zap.String("version", "0.1.0"),
		zap.String("symbol", a.cfg.Data.Symbol),
		zap.String("timeframe", a.cfg.Data.Timeframe),
	)

	src, closeSrc, err := openSource(a.cfg, log)
	if err != nil {
		return err
	}
	defer closeSrc()

	var store *profile.Store
	if a.cfg.Profile.DSN != "" {
		store, err = profile.NewStore(a.cfg.Profile.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := NewSession(a.cfg, src, log)
	defer session.Close()

	if err := a.startSession(ctx, session, store, src, log); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	if a.cfg.API.Enabled {
		srv := api.NewServer(a.cfg.API.ListenAddress, session, log)
		go func() {
			errCh <- srv.Run(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error("fatal_error", zap.Error(err))
		}
	}
	cancel()

	a.shutdown(session, store, log)
	log.Info("replayd stopped")
	return nil
}

// startSession positions the session, preferring the autosaved profile
// over a fresh start at the newest bar.
func (a *App) startSession(ctx context.Context, session *Session, store *profile.Store, src buffer.Source, log *zap.Logger) error {
	if store != nil {
		snap, err := store.Load(ctx, autosaveProfile)
		switch {
		case err == nil && snap.Symbol == a.cfg.Data.Symbol:
			log.Info("profile_restored",
				zap.String("profile", autosaveProfile),
				zap.Int64("sim_time", snap.SimTime),
			)
			return session.Restore(ctx, snap)
		case err != nil && !errors.Is(err, profile.ErrNotFound):
			return err
		}
	}

	anchor := time.Now().Unix()
	last, err := src.FetchLast(ctx, a.cfg.Data.Symbol, model.Timeframe(a.cfg.Data.Timeframe))
	if err != nil {
		return err
	}
	if last != nil {
		anchor = last.Time
	}
	return session.Start(ctx, anchor)
}

// shutdown autosaves the session and prints the closing report.
func (a *App) shutdown(session *Session, store *profile.Store, log *zap.Logger) {
	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Save(ctx, autosaveProfile, session.Snapshot()); err != nil {
			log.Warn("profile_save_failed", zap.Error(err))
		}
	}

	report.WriteTradeHistory(os.Stdout, session.Trades(model.StatusClosed))
	report.WriteAccountSummary(os.Stdout, session.Account(), session.TimeInvested())
}

// openSource opens the configured candle source. A DSN of "demo" runs
// against generated in-memory data.
func openSource(cfg *config.Config, log *zap.Logger) (buffer.Source, func(), error) {
	if cfg.Data.DSN == "" || cfg.Data.DSN == "demo" {
		log.Info("seeding demo candle data", zap.String("symbol", cfg.Data.Symbol))
		mem := source.NewMemory()
		seedDemoCandles(mem, cfg.Data.Symbol)
		return mem, func() {}, nil
	}

	db, err := source.OpenSQLite(cfg.Data.DSN)
	if err != nil {
		return nil, nil, err
	}
	log.Info("candle_store_opened", zap.String("dsn", cfg.Data.DSN))
	return db, func() { db.Close() }, nil
}

// seedDemoCandles fills the memory source with a year of random-walk
// M1 bars for the symbol, resampled into every coarser timeframe.
// Fixed seed so demo sessions repeat.
func seedDemoCandles(mem *source.Memory, symbol string) {
	const days = 365
	rng := rand.New(rand.NewSource(1))

	start := time.Now().UTC().AddDate(0, 0, -days).Truncate(24 * time.Hour).Unix()
	n := days * 24 * 60

	price := 1.08000
	fine := make([]model.Candle, 0, n)
	for i := 0; i < n; i++ {
		drift := (rng.Float64() - 0.5) * 0.00030
		wave := math.Sin(float64(i)/900.0) * 0.00008
		open := price
		price += drift + wave
		high := math.Max(open, price) + rng.Float64()*0.00010
		low := math.Min(open, price) - rng.Float64()*0.00010
		fine = append(fine, model.Candle{
			Time:   start + int64(i)*60,
			Open:   round5(open),
			High:   round5(high),
			Low:    round5(low),
			Close:  round5(price),
			Volume: float64(50 + rng.Intn(200)),
		})
	}

	mem.Put(symbol, model.TFM1, fine)
	for _, tf := range model.Timeframes[1:] {
		mem.Put(symbol, tf, candle.Resample(fine, tf.Seconds()))
	}
}

func round5(v float64) float64 {
	return math.Round(v*1e5) / 1e5
}
