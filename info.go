package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/n0madic/claude-chatmock/internal/auth"
	"github.com/n0madic/claude-chatmock/internal/limits"
)

type accountSource interface {
	Credentials(ctx context.Context) (accessToken, accountID string, err error)
	Identity(ctx context.Context) (auth.Identity, error)
}

var planNames = map[string]string{
	"plus":       "Plus",
	"pro":        "Pro",
	"free":       "Free",
	"team":       "Team",
	"enterprise": "Enterprise",
}

func planName(raw string) string {
	raw = strings.TrimSpace(raw)
	if name, ok := planNames[strings.ToLower(raw)]; ok {
		return name
	}
	if raw == "" {
		return "Unknown"
	}
	return strings.ToUpper(raw[:1]) + raw[1:]
}

func printAccount(ctx context.Context, w io.Writer, src accountSource) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "\U0001F464 Account")

	_, accountID, err := src.Credentials(ctx)
	if err != nil {
		fmt.Fprintln(w, "  • Not signed in")
		fmt.Fprintln(w, "  • Run: codex login")
		fmt.Fprintln(w)
		return
	}
	id, _ := src.Identity(ctx)
	email := id.Email
	if email == "" {
		email = "<unknown>"
	}
	if accountID == "" {
		accountID = id.AccountID
	}

	fmt.Fprintln(w, "  • Signed in with ChatGPT")
	fmt.Fprintf(w, "  • Login: %s\n", email)
	fmt.Fprintf(w, "  • Plan: %s\n", planName(id.PlanType))
	if accountID != "" {
		fmt.Fprintf(w, "  • Account ID: %s\n", accountID)
	}
	fmt.Fprintln(w)
}

func printUsageLimits(w io.Writer, stored *limits.Stored, now time.Time) {
	color.New(color.Bold).Fprintln(w, "\U0001F4CA Usage Limits")

	if stored == nil {
		fmt.Fprintln(w, "  No usage data available yet. Send a request through claude-chatmock first.")
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "Last updated: %s\n\n", formatLocalDateTime(stored.CapturedAt))

	type windowInfo struct {
		icon   string
		desc   string
		window *limits.Window
	}
	var windows []windowInfo
	if stored.Snapshot.Primary != nil {
		windows = append(windows, windowInfo{"⚡", "5 hour limit", stored.Snapshot.Primary})
	}
	if stored.Snapshot.Secondary != nil {
		windows = append(windows, windowInfo{"\U0001F4C5", "Weekly limit", stored.Snapshot.Secondary})
	}
	if len(windows) == 0 {
		fmt.Fprintln(w, "  Usage data was captured but no limit windows were provided.")
		fmt.Fprintln(w)
		return
	}

	for i, wi := range windows {
		if i > 0 {
			fmt.Fprintln(w)
		}
		pct := clampPercent(wi.window.UsedPercent)
		c := usageColor(pct)

		fmt.Fprintf(w, "%s %s\n", wi.icon, wi.desc)
		fmt.Fprintf(w, "%s %s | %5.1f%% left\n",
			c.Sprint(renderProgressBar(pct)),
			c.Sprintf("%5.1f%% used", pct),
			100-pct,
		)

		resetAt := limits.ResetAt(stored.CapturedAt, wi.window)
		var resetIn string
		if resetAt != nil {
			resetIn = formatResetDuration(resetAt.Sub(now))
		}
		switch {
		case resetAt != nil && resetAt.After(now):
			fmt.Fprintf(w, "    ⏳ Resets in: %s at %s\n", resetIn, formatLocalDateTime(*resetAt))
		case resetAt != nil:
			fmt.Fprintf(w, "    ⏳ Reset at: %s\n", formatLocalDateTime(*resetAt))
		}
	}
	fmt.Fprintln(w)
}

const barSegments = 30

func renderProgressBar(pct float64) string {
	ratio := clampPercent(pct) / 100
	filledExact := ratio * barSegments
	filled := int(filledExact)
	hasPartial := filledExact-float64(filled) > 0.5
	if hasPartial {
		filled++
	}
	filled = min(filled, barSegments)
	empty := barSegments - filled

	var bar string
	if hasPartial && filled > 0 {
		bar = strings.Repeat("█", filled-1) + "▓" + strings.Repeat("░", empty)
	} else {
		bar = strings.Repeat("█", filled) + strings.Repeat("░", empty)
	}
	return "[" + bar + "]"
}

func usageColor(pct float64) *color.Color {
	switch {
	case pct >= 90:
		return color.New(color.FgHiRed)
	case pct >= 75:
		return color.New(color.FgHiYellow)
	case pct >= 50:
		return color.New(color.FgHiBlue)
	default:
		return color.New(color.FgHiGreen)
	}
}

func clampPercent(v float64) float64 {
	return max(0, min(v, 100))
}

func formatLocalDateTime(t time.Time) string {
	local := t.Local()
	return local.Format("Jan 02, 2006 15:04") + " " + local.Format("MST")
}

func formatResetDuration(d time.Duration) string {
	v := max(int(d/time.Second), 0)
	days := v / 86400
	v %= 86400
	hours := v / 3600
	v %= 3600
	minutes := v / 60
	v %= 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if len(parts) == 0 && v > 0 {
		parts = append(parts, "under 1m")
	}
	if len(parts) == 0 {
		parts = append(parts, "0m")
	}
	return strings.Join(parts, " ")
}
