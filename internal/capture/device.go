package capture

import (
	"regexp"
	"strings"

	"portshare/internal/model"
)

var (
	mobileRe   = regexp.MustCompile(`Mobile|Tablet|iPad|iPhone|Android|KFAPWI`)
	platformRe = regexp.MustCompile(`\(([^)]+)\)`)
	browserRe  = regexp.MustCompile(`Edg|Chrome|Firefox|Safari|Edge|Opera|OPR|Trident`)
)

const unknown = "Unknown"

// ClassifyUserAgent derives a coarse device classification from a
// User-Agent header. It is a heuristic, not a parser.
func ClassifyUserAgent(ua string) model.DeviceInfo {
	if strings.TrimSpace(ua) == "" {
		return model.DeviceInfo{Device: unknown, OS: unknown, Browser: unknown}
	}

	info := model.DeviceInfo{Device: "Desktop", OS: unknown, Browser: unknown}
	if mobileRe.MatchString(ua) {
		info.Device = "Mobile"
	}
	if m := platformRe.FindStringSubmatch(ua); m != nil {
		if os := strings.TrimSpace(strings.Split(m[1], ";")[0]); os != "" {
			info.OS = os
		}
	}
	// Chromium-based browsers also advertise Chrome and Safari, so the more
	// specific token wins.
	tokens := browserRe.FindAllString(ua, -1)
	info.Browser = pickBrowser(tokens)
	return info
}

func pickBrowser(tokens []string) string {
	has := map[string]bool{}
	for _, t := range tokens {
		has[t] = true
	}
	switch {
	case has["Edg"] || has["Edge"]:
		return "Edge"
	case has["OPR"] || has["Opera"]:
		return "Opera"
	case has["Firefox"]:
		return "Firefox"
	case has["Chrome"]:
		return "Chrome"
	case has["Safari"]:
		return "Safari"
	case has["Trident"]:
		return "Trident"
	}
	return unknown
}
