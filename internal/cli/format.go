// Package cli provides formatting and rendering utilities for terminal
// output.
package cli

import (
	"fmt"
	"time"
)

// Missing is rendered for values the portal did not report.
const Missing = "—"

// FormatGB formats a data amount in gigabytes, two decimals.
func FormatGB(v *float64) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%.2f GB", *v)
}

// FormatPercent formats a percentage, two decimals.
func FormatPercent(v *float64) string {
	if v == nil {
		return Missing
	}
	return fmt.Sprintf("%.2f%%", *v)
}

// FormatBool renders a boolean as yes/no.
func FormatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// FormatAgo renders how long ago t was, coarsely.
func FormatAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
