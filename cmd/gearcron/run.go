package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/config"
	"github.com/sstent/gearcron/internal/cron"
	"github.com/sstent/gearcron/internal/db"
	"github.com/sstent/gearcron/internal/deps"
	"github.com/sstent/gearcron/internal/fetch"
	"github.com/sstent/gearcron/internal/gear"
	"github.com/sstent/gearcron/internal/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch today's gear changes once",
	Long: `Runs the daily gear fetch for today's Melbourne date and records it in
logs/gear_cron.<date>.log. Meant to be launched by cron or a systemd timer;
the exit status reports success (0) or failure.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		inv, cleanup, err := buildInvoker(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer cleanup()

		return inv.Run(cmd.Context())
	},
}

// buildInvoker wires the configured fetch capability into a cron invoker. The
// returned cleanup releases the snapshot database, if one was opened.
func buildInvoker(cfg *config.Config, stdout, stderr io.Writer) (*cron.Invoker, func(), error) {
	loc, err := calendar.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, nil, err
	}

	inv := &cron.Invoker{
		LogDir:   cfg.LogDir,
		Location: loc,
		Clock:    calendar.SystemClock{},
		Runtime: deps.Requirement{
			Name:        "fetch runtime",
			Path:        cfg.RuntimeRequirement(),
			Description: "Program the gear fetch runs under",
		},
		Lock:   cfg.Lock,
		Level:  logging.ParseLevel(cfg.LogLevel),
		Stdout: stdout,
		Stderr: stderr,
	}
	cleanup := func() {}

	switch cfg.FetchMode {
	case config.FetchModeCommand:
		command, err := fetch.NewCommand(cfg.FetchCommand)
		if err != nil {
			return nil, nil, err
		}
		inv.Capability = command
	default:
		// Used only outside a run; during a run the invoker's logger arrives
		// through the context.
		logger, err := newLogger(cfg, stderr)
		if err != nil {
			return nil, nil, err
		}
		var store gear.SnapshotStore
		if cfg.DatabasePath != "" {
			lazy := &lazyStore{cfg: cfg}
			store = lazy
			cleanup = func() {
				if err := lazy.Close(); err != nil {
					fmt.Fprintf(stderr, "gear_cron: close database: %v\n", err)
				}
			}
		}
		inv.Capability = newGearService(cfg, logger).Capability(store, inv.Clock)
	}
	return inv, cleanup, nil
}

// lazyStore opens the snapshot database on the first save, so a run that
// stops before fetching never creates or migrates it.
type lazyStore struct {
	cfg *config.Config

	mu       sync.Mutex
	database *db.SQLiteDatabase
}

func (s *lazyStore) SaveSnapshot(ctx context.Context, date string, fetchedAt time.Time, meetings, runners int, payload []byte) (db.SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.database == nil {
		database, err := openStore(s.cfg)
		if err != nil {
			return db.SyncResult{}, err
		}
		s.database = database
	}
	return s.database.SaveSnapshot(ctx, date, fetchedAt, meetings, runners, payload)
}

func (s *lazyStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.database == nil {
		return nil
	}
	err := s.database.Close()
	s.database = nil
	return err
}

func init() {
	rootCmd.AddCommand(runCmd)
}
