package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jacentio/refguard/config"
	"github.com/jacentio/refguard/dao"
	"github.com/jacentio/refguard/entities"
	"github.com/jacentio/refguard/internal/backend"
	"github.com/jacentio/refguard/refindex"
	"github.com/jacentio/refguard/store"
)

// session is everything a data command needs for one invocation.
type session struct {
	logger   *slog.Logger
	backend  *backend.Backend
	set      *entities.Set
	registry *prometheus.Registry
	out      *Output

	printMetrics bool
	metricsOut   io.Writer
}

func (o *RootOptions) openSession(cmd *cobra.Command) (*session, error) {
	if err := config.LoadEnvFile(o.EnvFile, cmd.Flags().Changed("env-file")); err != nil {
		return nil, WrapExitError(ExitCommandError, "env file", err)
	}
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}

	logger, err := newLogger(cfg.Log, o.Verbose, cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "config", err)
	}

	b, err := o.open(cmd.Context(), cfg.Storage, logger)
	if err != nil {
		code := ExitCommandError
		if errors.Is(err, store.ErrTransient) {
			code = ExitUnavailable
		}
		return nil, WrapExitError(code, "storage", err)
	}

	metrics := dao.NewMetrics()
	registry := prometheus.NewRegistry()
	if err := metrics.Register(registry); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	set := entities.New(b.Adapter, dao.Options{
		Logger:  logger,
		Metrics: metrics,
		Index:   refindex.Config{HashKeys: cfg.Index.HashKeys},
	})

	return &session{
		logger:       logger,
		backend:      b,
		set:          set,
		registry:     registry,
		out:          &Output{Format: o.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()},
		printMetrics: o.Metrics,
		metricsOut:   cmd.ErrOrStderr(),
	}, nil
}

// withSession opens a session, runs fn and closes the session.
func (o *RootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) (err error) {
	s, err := o.openSession(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s)
}

func (s *session) close() error {
	if s.printMetrics {
		if err := writeMetrics(s.metricsOut, s.registry); err != nil {
			s.logger.Warn("failed to write metrics", "error", err)
		}
	}
	return s.backend.Close()
}

func (s *session) collection(entityType string) (dao.Collection, error) {
	c, ok := s.set.Registry.Collection(entityType)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown entity type %q (known: %s)",
			entityType, strings.Join(s.set.Registry.Types(), ", ")))
	}
	return c, nil
}

func newLogger(cfg config.Log, verbose bool, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h), nil
}

// writeMetrics prints counters, and histogram sample counts, one per line.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetHistogram() != nil:
				name += "_count"
				value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}

			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+strconv.Quote(lp.GetValue()))
			}
			if _, err := fmt.Fprintf(w, "%s{%s} %g\n", name, strings.Join(labels, ","), value); err != nil {
				return err
			}
		}
	}
	return nil
}
