package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/mechbank/internal/bank"
	"github.com/roach88/mechbank/internal/config"
	"github.com/roach88/mechbank/internal/mechanism"
	"github.com/roach88/mechbank/internal/query"
	"github.com/roach88/mechbank/internal/schema"
	"github.com/roach88/mechbank/internal/store"
	"github.com/roach88/mechbank/internal/telemetry"
	"github.com/roach88/mechbank/internal/versioning"
)

// session is everything a command needs for one invocation.
type session struct {
	cfg   config.Config
	flags config.Flags
	out   *OutputFormatter

	store *store.Store
	bank  *bank.Bank
	query *query.Facade

	shutdownTracing telemetry.ShutdownFunc
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// loadSettings reads config and flags and installs the logger. Commands
// that never touch the store stop here.
func loadSettings(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, failWith(out, ErrCodeConfig, ExitCommandError, err, nil)
	}
	if opts.DBPath != "" {
		cfg.Database.Path = opts.DBPath
	}

	var flags config.Flags
	if opts.Flags != nil {
		flags = *opts.Flags
	} else if flags, err = config.ParseFlags(); err != nil {
		return nil, failWith(out, ErrCodeConfig, ExitCommandError, err, nil)
	}

	configureLogging(cmd.ErrOrStderr(), cfg, opts.Verbose)
	return &session{cfg: cfg, flags: flags, out: out}, nil
}

// openSession loads settings and opens the bank over the configured store.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	s, err := loadSettings(opts, cmd)
	if err != nil {
		return nil, err
	}

	shutdown, err := telemetry.SetupTracing(ctx, cmd.ErrOrStderr(), s.flags.Tracing, Version)
	if err != nil {
		return nil, failWith(s.out, ErrCodeConfig, ExitCommandError, err, nil)
	}
	s.shutdownTracing = shutdown

	st, err := store.Open(s.cfg.Database.Path)
	if err != nil {
		_ = shutdown(ctx)
		return nil, failWith(s.out, ErrCodeDatabase, ExitCommandError, err, nil)
	}
	s.store = st

	s.bank = bank.New(st, append(bankOptions(s.cfg), opts.BankOptions...)...)
	s.query = query.New(st, queryOptions(s.cfg)...)
	slog.Debug("session opened", "db", s.cfg.Database.Path)

	if s.flags.VerifyOnOpen {
		found, err := s.bank.Verify(ctx)
		if err != nil {
			s.Close(ctx)
			return nil, fail(s.out, err)
		}
		if len(found) > 0 {
			slog.Warn("inconsistent changelogs quarantined", "count", len(found))
		}
	}
	return s, nil
}

// Close flushes telemetry and releases the store.
func (s *session) Close(ctx context.Context) {
	if s.flags.MetricsTextfile != "" {
		if err := telemetry.WriteMetrics(s.flags.MetricsTextfile, nil); err != nil {
			slog.Warn("metrics not written", "error", err)
		}
	}
	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			slog.Warn("tracing shutdown failed", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}
}

func newValidator(cfg config.Config) *schema.Validator {
	return schema.New(schema.WithExtraCategories(cfg.Schema.ExtraCategories...))
}

func bankOptions(cfg config.Config) []bank.Option {
	return []bank.Option{
		bank.WithValidator(newValidator(cfg)),
		bank.WithClassifier(versioning.New(
			versioning.WithMajorThreshold(cfg.Versioning.MajorThreshold),
			versioning.WithZeroEpsilon(cfg.Versioning.ZeroEpsilon),
		)),
	}
}

func queryOptions(cfg config.Config) []query.Option {
	weights := make(map[mechanism.Grade]float64, len(cfg.Query.GradeWeights))
	for g, w := range cfg.Query.GradeWeights {
		weights[mechanism.Grade(g)] = w
	}
	return []query.Option{
		query.WithLimits(cfg.Query.DefaultLimit, cfg.Query.MaxLimit),
		query.WithGradeWeights(weights),
	}
}

// configureLogging installs the process logger. Logs always go to w
// (stderr) so structured stdout stays parseable.
func configureLogging(w io.Writer, cfg config.Config, verbose bool) {
	level := cfg.LogLevel()
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Log.Format == "json" {
		h = slog.NewJSONHandler(w, handlerOpts)
	} else {
		h = slog.NewTextHandler(w, handlerOpts)
	}
	slog.SetDefault(slog.New(h))
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close(ctx)
	return fn(ctx, s)
}

var errNoDocuments = errors.New("no mechanism documents found")
