package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/calendar"
	"github.com/sstent/gearcron/internal/db"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored gear report snapshots",
	Long: `List snapshots saved by the daily run:
- All snapshots, newest first, a page at a time
- Everything at once with --page-size 0
- Snapshots for one date with --date`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.DatabasePath == "" {
			return errors.New("snapshots are disabled: database_path is empty")
		}
		database, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer database.Close()

		loc, err := calendar.LoadLocation(cfg.Timezone)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if date = strings.TrimSpace(date); date != "" {
			if _, err := calendar.ParseDate(date); err != nil {
				return err
			}
			snapshots, err := database.GetByDate(cmd.Context(), date)
			if err != nil {
				return fmt.Errorf("failed to get snapshots: %w", err)
			}
			if len(snapshots) == 0 {
				fmt.Fprintf(out, "No snapshots stored for %s\n", date)
				return nil
			}
			fmt.Fprintln(out, renderSnapshots(snapshots, loc))
			return nil
		}

		if pageSize < 1 {
			snapshots, err := database.GetAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get snapshots: %w", err)
			}
			if len(snapshots) == 0 {
				fmt.Fprintln(out, "No snapshots stored")
				return nil
			}
			fmt.Fprintln(out, renderSnapshots(snapshots, loc))
			fmt.Fprintf(out, "Total: %d snapshots shown\n", len(snapshots))
			return nil
		}

		in := bufio.NewReader(cmd.InOrStdin())
		page := 1
		totalShown := 0
		for {
			snapshots, err := database.GetAllPaginated(cmd.Context(), page, pageSize)
			if err != nil {
				return fmt.Errorf("failed to get snapshots: %w", err)
			}
			if len(snapshots) == 0 {
				if totalShown == 0 {
					fmt.Fprintln(out, "No snapshots stored")
				}
				break
			}
			fmt.Fprintln(out, renderSnapshots(snapshots, loc))
			totalShown += len(snapshots)

			// Only prompt if there might be more results
			if len(snapshots) < pageSize || !confirm(in, out, fmt.Sprintf("Page %d (%d snapshots shown) - Show more? (y/n): ", page, totalShown)) {
				fmt.Fprintf(out, "Total: %d snapshots shown\n", totalShown)
				break
			}
			page++
		}
		return nil
	},
}

func renderSnapshots(snapshots []db.Snapshot, loc *time.Location) string {
	rows := make([][]string, 0, len(snapshots))
	for _, s := range snapshots {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		rows = append(rows, []string{
			id,
			s.Date,
			s.FetchedAt.In(loc).Format("2006-01-02 15:04:05 MST"),
			strconv.Itoa(s.Meetings),
			strconv.Itoa(s.Runners),
		})
	}
	return renderTable(
		[]string{"ID", "Date", "Fetched", "Meetings", "Gear Changes"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func confirm(in *bufio.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, "\n"+prompt)
	response, _ := in.ReadString('\n')
	return strings.ToLower(strings.TrimSpace(response)) == "y"
}

func init() {
	historyCmd.Flags().String("date", "", "Only show snapshots for this date (YYYY-MM-DD)")
	historyCmd.Flags().Int("page-size", 20, "Snapshots per page; 0 lists everything without prompting")
	rootCmd.AddCommand(historyCmd)
}
