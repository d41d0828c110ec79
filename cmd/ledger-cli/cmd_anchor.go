package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/persistorai/ledger/client"
)

func newCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Anchor every settled entry not yet covered by a root",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Anchors.Checkpoint(context.Background())
			if err != nil {
				fatal("checkpoint", err)
			}
			quiet := ""
			if res.Root != nil {
				quiet = res.Root.RootHash
			}
			if flagFmt == "table" {
				printRoots(rootsOf(res.Root))
				return
			}
			output(res, quiet)
		},
	}
}

func newRootsCmd() *cobra.Command {
	var from, to int64
	var limit int

	cmd := &cobra.Command{
		Use:   "roots",
		Short: "List root checkpoints",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			roots, err := apiClient.Anchors.List(context.Background(), from, to, limit)
			if err != nil {
				fatal("roots", err)
			}
			switch flagFmt {
			case "table":
				printRoots(roots)
			case "quiet":
				for _, r := range roots {
					formatQuiet(strconv.FormatInt(r.ID, 10))
				}
			default:
				formatJSON(map[string]any{"roots": roots})
			}
		},
	}

	cmd.Flags().Int64Var(&from, "from-seq", 0, "Only roots ending at or after this seq")
	cmd.Flags().Int64Var(&to, "to-seq", 0, "Only roots starting at or before this seq")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	return cmd
}

func newVerifyRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-root <root-id>",
		Short: "Recompute a root from its window and compare it with the stored hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("root id must be a positive integer: %q", args[0])
			}

			res, err := apiClient.Anchors.Verify(context.Background(), id)
			if err != nil {
				fatal("verify-root", err)
			}
			output(res, strconv.FormatBool(res.OK))
			if !res.OK {
				fatal("verify-root", fmt.Errorf("root %d mismatch: %s", id, res.Reason))
			}
			return nil
		},
	}
}

func rootsOf(r *client.Root) []client.Root {
	if r == nil {
		return nil
	}
	return []client.Root{*r}
}

func printRoots(roots []client.Root) {
	headers := []string{"ID", "FIRST_SEQ", "LAST_SEQ", "ENTRIES", "ROOT_HASH", "CREATED_AT"}
	rows := make([][]string, 0, len(roots))
	for _, r := range roots {
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10), strconv.FormatInt(r.FirstSeq, 10), strconv.FormatInt(r.LastSeq, 10),
			strconv.FormatInt(r.EntryCount, 10), shortHash(r.RootHash), formatTime(r.CreatedAt),
		})
	}
	formatTable(headers, rows)
}
