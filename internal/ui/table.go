package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/light-rec/lr-ibcf/internal/recommend"
)

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// WriteMatches prints ranked matches. plain selects tab-separated rows with no
// header, for piping into other tools.
func WriteMatches(w io.Writer, matches []recommend.Match, plain bool) error {
	if plain {
		for _, m := range matches {
			if _, err := fmt.Fprintf(w, "%s\t%.6f\t%s\n", m.ID, m.Score, m.Title); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	bold := color.New(color.Bold)
	fmt.Fprintln(tw, bold.Sprint("#")+"\t"+bold.Sprint("ITEM")+"\t"+bold.Sprint("SCORE")+"\t"+bold.Sprint("TITLE"))
	for i, m := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, m.ID, scoreColor(m.Score).Sprintf("%.4f", m.Score), m.Title)
	}
	return tw.Flush()
}

// MatchIDs joins match IDs one per line
func MatchIDs(matches []recommend.Match) string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
	}
	return strings.Join(ids, "\n")
}

func scoreColor(score float64) *color.Color {
	switch {
	case score >= 0.75:
		return color.New(color.FgGreen)
	case score > 0:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgHiBlack)
	}
}

// FormatAge formats a time.Time as a relative phrase such as "5 minutes ago"
func FormatAge(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return "just now"
	} else if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	} else if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}

	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}
