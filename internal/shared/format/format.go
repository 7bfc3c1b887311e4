// Package format holds small presentation helpers shared by reply
// builders.
package format

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Size renders a byte count in human form (e.g. "4.2 MB").
func Size(n int64) string {
	return humanize.Bytes(uint64(n))
}

// ModTime renders a modification timestamp the way listings show it.
func ModTime(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// Uptime renders a duration without sub-second noise.
func Uptime(d time.Duration) string {
	return d.Truncate(time.Second).String()
}

// Percent renders a ratio as a fixed one-decimal percentage.
func Percent(used, total uint64) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(used)/float64(total)*100)
}

// TreeBranch returns the box-drawing prefix for a tree entry.
func TreeBranch(last bool) string {
	if last {
		return "└── "
	}
	return "├── "
}

// TreeIndent returns the continuation prefix below a tree entry.
func TreeIndent(last bool) string {
	if last {
		return "    "
	}
	return "│   "
}

// Lines joins reply rows, dropping empty trailing rows.
func Lines(rows ...string) string {
	for len(rows) > 0 && rows[len(rows)-1] == "" {
		rows = rows[:len(rows)-1]
	}
	return strings.Join(rows, "\n")
}
