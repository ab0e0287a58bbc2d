package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sstent/gearcron/internal/config"
	"github.com/sstent/gearcron/internal/deps"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the daily run has what it needs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		statuses := deps.CheckAll(requirements(cfg))
		rows := make([][]string, 0, len(statuses))
		missing := 0
		for _, s := range statuses {
			state := "ok"
			if !s.Available {
				state = "missing"
				missing++
			}
			rows = append(rows, []string{s.Name, s.Path, state, s.Detail})
		}
		fmt.Fprintln(out, renderTable([]string{"Requirement", "Path", "Status", "Detail"}, rows, nil))

		fmt.Fprintf(out, "fetch mode: %s\n", cfg.FetchMode)
		if cfg.FetchMode == config.FetchModeBuiltin && cfg.PFAPIKey == "" {
			fmt.Fprintln(out, "PF_API_KEY: not set")
			missing++
		}
		if missing > 0 {
			return fmt.Errorf("%d requirement(s) missing", missing)
		}
		return nil
	},
}

func requirements(cfg *config.Config) []deps.Requirement {
	reqs := []deps.Requirement{{
		Name:        "fetch runtime",
		Path:        cfg.RuntimeRequirement(),
		Description: "Program the gear fetch runs under",
	}}
	if cfg.FetchMode == config.FetchModeCommand && cfg.RuntimePath != "" && len(cfg.FetchCommand) > 0 {
		reqs = append(reqs, deps.Requirement{
			Name:        "fetch command",
			Path:        cfg.FetchCommand[0],
			Description: "External gear fetcher",
		})
	}
	return reqs
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
