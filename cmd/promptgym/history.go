package main

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/abdulachik/promptgym/internal/config"
	"github.com/abdulachik/promptgym/internal/db"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past attempts",
	Long:  `List stored attempts with their scores, newest first.`,
	RunE:  runHistory,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of attempts to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	attempts, err := store.ListAttempts(ctx, historyLimit)
	if err != nil {
		return fmt.Errorf("list attempts: %w", err)
	}

	if len(attempts) == 0 {
		fmt.Println("No attempts yet. Run 'promptgym play' to start.")
		return nil
	}

	total, err := store.CountAttempts(ctx)
	if err != nil {
		return fmt.Errorf("count attempts: %w", err)
	}

	fmt.Printf("=== Attempts (%d of %d) ===\n\n", len(attempts), total)
	for _, a := range attempts {
		label := a.Difficulty
		if a.Kind == db.KindUpload {
			label = "uploaded image"
		}
		fmt.Printf("#%d  %s  %3d/100  %s\n", a.ID, a.CreatedAt.Format("2006-01-02 15:04"), a.Score, label)
		fmt.Printf("    target: %s\n", truncate(a.TargetDescription, 80))
		fmt.Printf("    prompt: %s\n\n", truncate(a.UserPrompt, 80))
	}

	return nil
}

// truncate shortens s to at most n bytes, cutting on a rune boundary so a
// multi-byte character is never split.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
