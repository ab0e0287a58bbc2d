package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/calendar"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Print the gear report for a date as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateFlag, _ := cmd.Flags().GetString("date")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		date, err := resolveDate(cfg, dateFlag, calendar.SystemClock{})
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		report, err := newGearService(cfg, logger).FetchGearForDate(cmd.Context(), date)
		if err != nil {
			return fmt.Errorf("failed to fetch gear for %s: %w", date, err)
		}
		return printJSON(cmd.OutOrStdout(), report)
	},
}

var meetingsCmd = &cobra.Command{
	Use:   "meetings",
	Short: "Show which meetings each discovery source returns for a date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dateFlag, _ := cmd.Flags().GetString("date")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		date, err := resolveDate(cfg, dateFlag, calendar.SystemClock{})
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		debug, err := newGearService(cfg, logger).DebugMeetings(cmd.Context(), date)
		if err != nil {
			return fmt.Errorf("failed to list meetings for %s: %w", date, err)
		}
		return printJSON(cmd.OutOrStdout(), debug)
	},
}

var formCSVCmd = &cobra.Command{
	Use:   "formcsv",
	Short: "Probe the form CSV of a meeting and show the raw response",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		meetingID, _ := cmd.Flags().GetInt("meeting-id")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := newLogger(cfg, cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		result, err := newGearService(cfg, logger).DebugFormCSV(cmd.Context(), meetingID)
		if err != nil {
			return fmt.Errorf("failed to probe form csv for meeting %d: %w", meetingID, err)
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	fetchCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today in Melbourne)")
	meetingsCmd.Flags().String("date", "", "Date as YYYY-MM-DD (default today in Melbourne)")
	formCSVCmd.Flags().Int("meeting-id", 0, "Punting Form meeting id")
	_ = formCSVCmd.MarkFlagRequired("meeting-id")

	rootCmd.AddCommand(fetchCmd, meetingsCmd, formCSVCmd)
}
