package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lockwatch/internal/journal"
	"lockwatch/internal/lockstatus"
)

func newJournalCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var failedOnly bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent lock apply outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit, failedOnly)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), journalEntriesJSON(entries))
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No journal entries")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJournalTable(entries))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Show only failed applies")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit entries as JSON")

	cmd.AddCommand(newJournalSummaryCommand(ctx))
	return cmd
}

func newJournalSummaryCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show successful apply counts per classification",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openJournal()
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer store.Close()

			counts, err := store.CountByCategory(cmd.Context())
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}

			if jsonOutput {
				payload := make(map[string]int, len(counts))
				for category, count := range counts {
					payload[category.String()] = count
				}
				return writeJSON(cmd.OutOrStdout(), payload)
			}

			categories := make([]lockstatus.Category, 0, len(counts))
			for category := range counts {
				categories = append(categories, category)
			}
			sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })

			rows := make([][]string, 0, len(categories))
			for _, category := range categories {
				rows = append(rows, []string{
					category.String(),
					strconv.Itoa(category.Code()),
					strconv.Itoa(counts[category]),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Classification", "Code", "Count"},
				rows,
				map[int]bool{1: true, 2: true},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit counts as JSON")
	return cmd
}

func renderJournalTable(entries []journal.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		file := entry.Path
		if file == "" {
			file = strconv.FormatUint(entry.FileID, 10)
		}
		result := entry.Category.String()
		if entry.Failed() {
			result = "FAILED"
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			file,
			result,
			yesNo(entry.Mutated),
			strconv.Itoa(entry.Attempts),
			entry.RecordedAt.Local().Format(time.DateTime),
			entry.Error,
		})
	}
	return renderTable(
		[]string{"ID", "File", "Result", "Mutated", "Attempts", "Recorded", "Error"},
		rows,
		map[int]bool{0: true, 4: true},
	)
}

func journalEntriesJSON(entries []journal.Entry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"id":             entry.ID,
			"file_id":        entry.FileID,
			"path":           entry.Path,
			"category":       entry.Category.String(),
			"code":           entry.Category.Code(),
			"mutated":        entry.Mutated,
			"attempts":       entry.Attempts,
			"correlation_id": entry.CorrelationID,
			"recorded_at":    entry.RecordedAt.UTC().Format(time.RFC3339),
		}
		if entry.Failed() {
			item["error"] = entry.Error
		}
		out = append(out, item)
	}
	return out
}
