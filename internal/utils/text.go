package utils

import (
	"fmt"
	"strings"
	"time"
)

// ExtractReferralCode returns the code of a "ref_<code>" start parameter.
func ExtractReferralCode(startParam string) (string, bool) {
	code, ok := strings.CutPrefix(startParam, "ref_")
	if !ok || code == "" {
		return "", false
	}
	return code, true
}

// FormatTimeAgo renders t relative to now, e.g. "3 hours ago".
func FormatTimeAgo(t *time.Time, now time.Time) string {
	if t == nil {
		return "never"
	}
	d := now.Sub(*t)
	days := int(d.Hours() / 24)
	switch {
	case d < 0:
		return "just now"
	case days > 30:
		return plural(days/30, "month")
	case days > 0:
		return plural(days, "day")
	case d >= time.Hour:
		return plural(int(d.Hours()), "hour")
	case d >= time.Minute:
		return plural(int(d.Minutes()), "minute")
	default:
		return plural(int(d.Seconds()), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
