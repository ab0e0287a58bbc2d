package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve gear reports over HTTP",
	Long: `Serves the gear API until interrupted:
- GET /healthz
- GET /gear/daily?date=YYYY-MM-DD
- GET /gear/today
- GET /gear/debug/meetings?date=YYYY-MM-DD
- GET /gear/debug/formcsv?meeting_id=N`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		listen, _ := cmd.Flags().GetString("listen")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if strings.TrimSpace(listen) == "" {
			listen = cfg.Listen
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		loc, err := calendar.LoadLocation(cfg.Timezone)
		if err != nil {
			return err
		}

		srv, err := server.New(listen, newGearService(cfg, logger), loc, calendar.SystemClock{}, logger)
		if err != nil {
			return err
		}
		return srv.Serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Address to listen on (default from config, 127.0.0.1:8080)")
	rootCmd.AddCommand(serveCmd)
}
