package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check server liveness, readiness and local configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results := runStatus()
			printChecks(results)
			for _, r := range results {
				if !r.Passed {
					return fmt.Errorf("%s check failed", r.Name)
				}
			}
			return nil
		},
	}
}

type checkResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
	Hint   string `json:"hint,omitempty"`
}

func runStatus() []checkResult {
	var results []checkResult

	if flagActor == "" {
		results = append(results, checkResult{
			Name: "Actor", Passed: false,
			Hint: "Writes need --actor, LEDGER_ACTOR, or actor_id in ~/.ledger/config.yaml",
		})
	} else {
		results = append(results, checkResult{Name: "Actor", Passed: true, Detail: flagActor})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := apiClient.Health(ctx)
	if err != nil {
		return append(results, checkResult{
			Name: "Server reachable", Passed: false, Detail: flagURL,
			Hint: fmt.Sprintf("Is ledgerd running? Error: %v", err),
		})
	}
	results = append(results, checkResult{
		Name: "Server reachable", Passed: true,
		Detail: fmt.Sprintf("v%s, up %s", health.Version, (time.Duration(health.UptimeSeconds) * time.Second).String()),
	})

	ready, err := apiClient.Ready(ctx)
	if err != nil {
		return append(results, checkResult{
			Name: "Server ready", Passed: false,
			Hint: fmt.Sprintf("Check database connectivity and migrations. Error: %v", err),
		})
	}

	keys := make([]string, 0, len(ready.Checks))
	for k := range ready.Checks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		results = append(results, checkResult{
			Name: "Ready: " + k, Passed: ready.Checks[k] == "ok", Detail: ready.Checks[k],
		})
	}

	return results
}

func printChecks(results []checkResult) {
	if flagFmt == "json" {
		formatJSON(results)
		return
	}
	for _, r := range results {
		mark := "ok  "
		if !r.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(os.Stdout, "[%s] %s", mark, r.Name)
		if r.Detail != "" {
			fmt.Fprintf(os.Stdout, ": %s", r.Detail)
		}
		fmt.Fprintln(os.Stdout)
		if r.Hint != "" {
			fmt.Fprintf(os.Stdout, "       %s\n", r.Hint)
		}
	}
}
