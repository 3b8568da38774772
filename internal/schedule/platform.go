package schedule

import "strings"

// Platform identifies a social distribution target.
type Platform string

const (
	Instagram Platform = "instagram"
	TikTok    Platform = "tiktok"
	YouTube   Platform = "youtube"
	Facebook  Platform = "facebook"
	LinkedIn  Platform = "linkedin"
	Twitter   Platform = "twitter"
	Threads   Platform = "threads"
)

var allPlatforms = []Platform{Instagram, TikTok, YouTube, Facebook, LinkedIn, Twitter, Threads}

// Platforms returns every supported platform in a stable order.
func Platforms() []Platform {
	out := make([]Platform, len(allPlatforms))
	copy(out, allPlatforms)
	return out
}

// ParsePlatform converts a string into a Platform. "x" is accepted for Twitter.
func ParsePlatform(value string) (Platform, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "x" {
		return Twitter, true
	}
	for _, p := range allPlatforms {
		if string(p) == normalized {
			return p, true
		}
	}
	return "", false
}

// ParsePlatforms parses a list, dropping duplicates and reporting the first
// unknown entry.
func ParsePlatforms(values []string) ([]Platform, string, bool) {
	seen := make(map[Platform]struct{}, len(values))
	out := make([]Platform, 0, len(values))
	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		p, ok := ParsePlatform(raw)
		if !ok {
			return nil, raw, false
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out, "", true
}
