package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"ai-cycle-planner/internal/config"
	"ai-cycle-planner/internal/database"
	"ai-cycle-planner/internal/logging"
	"ai-cycle-planner/internal/metrics"
	"ai-cycle-planner/internal/planstore"

	"github.com/spf13/cobra"
)

func openDB(envFile string) (*database.DB, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.LogLevel, ""); err != nil {
		return nil, err
	}
	return database.NewDB(cfg.DatabasePath)
}

func migrateCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(*envFile)
			if err != nil {
				return err
			}
			return db.Close()
		},
	}
}

func usageCmd(envFile *string) *cobra.Command {
	var (
		userID string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Print recorded usage for one user or for all users by day",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(*envFile)
			if err != nil {
				return err
			}
			defer db.Close()

			tracker := metrics.NewTracker(db.SQL, nil)
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			if userID == "" {
				daily, err := tracker.GetDailyUsage(cmd.Context(), days)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "DATE\tCALLS\tCOST_USD\tPROMPT\tCOMPLETION")
				for _, d := range daily {
					fmt.Fprintf(w, "%s\t%d\t%.4f\t%d\t%d\n", d.Date, d.Calls, d.CostEstimate, d.PromptTokens, d.CompletionTokens)
				}
				return nil
			}

			records, err := tracker.UserUsage(cmd.Context(), userID, days)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "DATE\tFEATURE\tCOUNT\tCOST_USD")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.4f\n", r.Date, r.FeatureType, r.Count, r.CostEstimate)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id; all users when empty")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	return cmd
}

func usageCleanupCmd(envFile *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "usage-cleanup",
		Short: "Delete usage rows older than --days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			db, err := openDB(*envFile)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := metrics.NewTracker(db.SQL, nil).Cleanup(cmd.Context(), days)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d usage rows older than %d days.\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 90, "Keep this many days of usage")
	return cmd
}

func historyCmd(envFile *string) *cobra.Command {
	var (
		userID string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List a user's recent weekly plans and their adaptations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			db, err := openDB(*envFile)
			if err != nil {
				return err
			}
			defer db.Close()

			plans, err := planstore.NewPlanRepository(db.SQL).ListByUser(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			defer w.Flush()

			fmt.Fprintln(w, "WEEK\tPLAN_ID\tVERSION\tADAPTATIONS\tLAST_REASON")
			for _, p := range plans {
				reason := "-"
				if n := len(p.AdaptationHistory); n > 0 {
					reason = p.AdaptationHistory[n-1].Reason
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", p.WeekStartDate, p.PlanID, p.Version, len(p.AdaptationHistory), reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().IntVar(&limit, "limit", 8, "Number of weeks to list")
	return cmd
}
