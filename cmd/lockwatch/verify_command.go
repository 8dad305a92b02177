package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lockwatch/internal/locker"
	"lockwatch/internal/lockstatus"
	"lockwatch/internal/qumulo"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	var record bool

	cmd := &cobra.Command{
		Use:   "verify <file-id|path>",
		Short: "Query a file's WORM lock state and exit with its classification code",
		Long: `Verify queries the cluster for the current lock state of one file and
classifies it. The process exit code is the classification code:

  1  legal hold and retention both set
  2  neither set
  3  legal hold only
  4  retention only
  255  the lock state could not be determined`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseFileRef(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.clusterClient()
			if err != nil {
				return err
			}

			res, queryErr := client.GetLock(cmd.Context(), ref)
			category := lockstatus.FromQuery(res, queryErr)
			deadline, hasDeadline := lockstatus.RetentionDeadline(res)

			if record {
				if err := recordVerification(cmd, ctx, client, ref, category, queryErr); err != nil {
					return err
				}
			}

			if jsonOutput {
				payload := map[string]any{
					"file":     ref.String(),
					"category": category.String(),
					"code":     category.Code(),
				}
				if queryErr == nil {
					payload["legal_hold"] = res.LegalHold
					if hasDeadline {
						payload["retention_period"] = deadline.UTC().Format(time.RFC3339)
					}
				} else {
					payload["error"] = queryErr.Error()
				}
				if err := writeJSON(cmd.OutOrStdout(), payload); err != nil {
					return err
				}
			} else {
				printVerifyResult(cmd, ref.String(), category, res.LegalHold, deadline, hasDeadline, queryErr)
			}

			ctx.exitCode = category.Code()
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the result as JSON")
	cmd.Flags().BoolVar(&record, "record", false, "Append the verification result to the outcome journal")
	return cmd
}

// recordVerification journals an out-of-band verification alongside the
// daemon's apply outcomes.
func recordVerification(cmd *cobra.Command, ctx *commandContext, client *qumulo.Client, ref qumulo.FileRef, category lockstatus.Category, queryErr error) error {
	outcome := locker.Outcome{
		Category:      category,
		Attempts:      1,
		FileID:        ref.ID,
		Path:          ref.Path,
		CorrelationID: uuid.NewString(),
	}
	if attr, err := client.FileInfo(cmd.Context(), ref); err == nil {
		outcome.FileID = attr.ID
		outcome.Path = attr.Path
	}

	store, err := ctx.openJournal()
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer store.Close()
	if err := store.RecordOutcome(cmd.Context(), outcome, queryErr); err != nil {
		return fmt.Errorf("record verification: %w", err)
	}
	return nil
}

func printVerifyResult(cmd *cobra.Command, file string, category lockstatus.Category, legalHold bool, deadline time.Time, hasDeadline bool, queryErr error) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "File: %s\n", file)
	if queryErr != nil {
		fmt.Fprintln(out, renderStatusLine("Lock query", statusError, queryErr.Error(), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("Legal hold", boolStatus(legalHold), yesNo(legalHold), colorize))
		retention := "none"
		if hasDeadline {
			retention = deadline.UTC().Format(time.RFC3339)
		}
		fmt.Fprintln(out, renderStatusLine("Retention", boolStatus(hasDeadline), retention, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Classification", categoryStatus(category),
		fmt.Sprintf("%s (%d)", category, category.Code()), colorize))
}

func boolStatus(set bool) statusKind {
	if set {
		return statusOK
	}
	return statusWarn
}

func categoryStatus(category lockstatus.Category) statusKind {
	switch category {
	case lockstatus.BothSet:
		return statusOK
	case lockstatus.InvalidResponse:
		return statusError
	default:
		return statusWarn
	}
}
