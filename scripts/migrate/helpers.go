package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"
)

var legacyTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

// parseTime parses a SQLite datetime string as UTC, truncated to microseconds.
func parseTime(s string) time.Time {
	for _, layout := range legacyTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Microsecond)
		}
	}
	slog.Warn("unparseable time, using epoch", "value", s)
	return time.Unix(0, 0).UTC()
}

// parseMetadata decodes a metadata column, keeping numbers exact. Invalid or
// non-object JSON is kept under "raw".
func parseMetadata(s sql.NullString) map[string]any {
	out := map[string]any{}
	if !s.Valid || s.String == "" {
		return out
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s.String)))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		slog.Warn("invalid JSON in metadata, keeping raw value", "value", s.String)
		return map[string]any{"raw": s.String}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// sanitizeURL removes credentials from a database URL for display.
func sanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "[unparseable URL]"
	}
	u.User = nil
	return u.String()
}

// envOr returns the environment variable value or a default.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// printReport outputs the final import summary.
func printReport(w io.Writer, r *report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Ledger Legacy Import Report ===")
	if r.DryRun {
		fmt.Fprintln(w, "MODE: DRY RUN (no changes made)")
	}
	fmt.Fprintf(w, "Source: %s\n", r.Source)
	fmt.Fprintf(w, "Target: %s\n", r.Target)
	fmt.Fprintf(w, "Rows: %d read, %d skipped, %d inserted (%d organizations)\n",
		r.RowsRead, r.RowsSkipped, r.RowsInserted, r.Organizations)
	if !r.DryRun {
		fmt.Fprintf(w, "Unchained rows awaiting backfill: %d\n", r.Unchained)
	}

	fmt.Fprintf(w, "\nDuration: %.1fs\n", r.Duration.Seconds())
	if r.Err != nil {
		fmt.Fprintf(w, "Status: FAILED: %v\n", r.Err)
		return
	}
	fmt.Fprintln(w, "Status: SUCCESS")
	if !r.DryRun && r.Unchained > 0 {
		fmt.Fprintln(w, "Next: ledger-cli db backfill")
	}
}
