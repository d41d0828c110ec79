package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/ledger/client"
)

func newListCmd() *cobra.Command {
	var opts client.ListOptions
	var since, until string

	cmd := &cobra.Command{
		Use:   "list <org-id>",
		Short: "List an organization's ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if opts.Since, err = parseTimeFlag("since", since); err != nil {
				return err
			}
			if opts.Until, err = parseTimeFlag("until", until); err != nil {
				return err
			}

			entries, more, err := apiClient.Ledger.List(context.Background(), args[0], &opts)
			if err != nil {
				fatal("list", err)
			}
			switch flagFmt {
			case "table":
				headers := []string{"SEQ", "EVENT", "TARGET", "SEVERITY", "OUTCOME", "ACTOR", "CREATED_AT", "HASH"}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{
						strconv.FormatInt(e.Seq, 10), e.EventName, e.TargetType + "/" + e.TargetID,
						e.Severity, e.Outcome, e.ActorID, formatTime(e.CreatedAt), shortHash(e.Hash),
					})
				}
				formatTable(headers, rows)
			case "quiet":
				for _, e := range entries {
					formatQuiet(strconv.FormatInt(e.Seq, 10))
				}
			default:
				formatJSON(map[string]any{"entries": entries, "has_more": more})
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Category, "category", "", "Filter by category")
	f.StringVar(&opts.Severity, "severity", "", "Filter by severity")
	f.StringVar(&opts.Outcome, "outcome", "", "Filter by outcome")
	f.StringVar(&opts.TargetType, "target-type", "", "Filter by target type")
	f.StringVar(&opts.TargetID, "target-id", "", "Filter by target ID")
	f.StringVar(&since, "since", "", "Only entries at or after this RFC 3339 time")
	f.StringVar(&until, "until", "", "Only entries before this RFC 3339 time")
	f.StringVar(&opts.Order, "order", "", "Sort order: asc|desc")
	f.IntVar(&opts.Limit, "limit", 0, "Max results")
	f.IntVar(&opts.Offset, "offset", 0, "Skip this many results")
	return cmd
}

func newAppendCmd() *cobra.Command {
	var req client.AppendRequest
	var meta string

	cmd := &cobra.Command{
		Use:   "append <org-id> <event-name> <target-type> [target-id]",
		Short: "Write an explicit ledger entry",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.EventName = args[1]
			req.TargetType = args[2]
			if len(args) == 4 {
				req.TargetID = args[3]
			}

			if meta != "" {
				if err := json.Unmarshal([]byte(meta), &req.Metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
			}

			entry, err := apiClient.Ledger.Append(context.Background(), args[0], req)
			if err != nil {
				fatal("append", err)
			}
			output(entry, strconv.FormatInt(entry.Seq, 10))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Category, "category", "", "operations|governance|access (default: classified by event)")
	f.StringVar(&req.Severity, "severity", "", "info|material|critical (default: classified by event)")
	f.StringVar(&req.Outcome, "outcome", "", "allowed|blocked")
	f.StringVar(&meta, "metadata", "", "Metadata as a JSON object")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	var from, to int64

	cmd := &cobra.Command{
		Use:   "verify <org-id>",
		Short: "Walk an organization's chain and report the first break",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			var fromSeq, toSeq *int64
			if cmd.Flags().Changed("from-seq") {
				fromSeq = &from
			}
			if cmd.Flags().Changed("to-seq") {
				toSeq = &to
			}

			res, err := apiClient.Ledger.Verify(context.Background(), args[0], fromSeq, toSeq)
			if err != nil {
				fatal("verify", err)
			}
			printVerification(res)
			if !res.OK {
				fatal("verify", fmt.Errorf("chain broken at seq %s: %s", seqString(res.BrokenAtSeq), res.Reason))
			}
		},
	}

	cmd.Flags().Int64Var(&from, "from-seq", 0, "First seq to verify")
	cmd.Flags().Int64Var(&to, "to-seq", 0, "Last seq to verify")
	return cmd
}

func newIntegrityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "integrity <org-id>",
		Short: "Show the latest integrity status of an organization's chain",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			res, err := apiClient.Ledger.Integrity(context.Background(), args[0])
			if err != nil {
				fatal("integrity", err)
			}
			printVerification(res)
		},
	}
}

func printVerification(res *client.VerificationResult) {
	switch flagFmt {
	case "table":
		formatTable(
			[]string{"ORG", "OK", "CHECKED", "LAST_SEQ", "BROKEN_AT", "REASON"},
			[][]string{{
				res.OrganizationID, strconv.FormatBool(res.OK), strconv.Itoa(res.EntriesChecked),
				strconv.FormatInt(res.LastSeq, 10), seqString(res.BrokenAtSeq), res.Reason,
			}},
		)
	default:
		output(res, strconv.FormatBool(res.OK))
	}
}

func parseTimeFlag(name, v string) (*time.Time, error) {
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be an RFC 3339 time: %w", name, err)
	}
	return &t, nil
}
