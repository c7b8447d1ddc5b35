package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/dustin/go-humanize"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatTime renders a unix timestamp as RFC 3339 with a relative hint.
func formatTime(ts int64) string {
	t := time.Unix(ts, 0)
	return t.UTC().Format(time.RFC3339) + " (" + humanize.Time(t) + ")"
}

func formatSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
