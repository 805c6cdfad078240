package inject

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/feedlens/relay/internal/feed"
)

// FormatCount abbreviates an engagement count: >= 1,000,000 renders as
// "X.xM", >= 1,000 as "X.xK", otherwise the integer. Missing or non-numeric
// counts already decoded to zero.
func FormatCount(n feed.Count) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	default:
		return strconv.FormatInt(int64(n), 10)
	}
}

// timestampLayouts are tried in order when parsing tweet timestamps.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RubyDate, // Twitter's classic created_at format
}

// ParseTimestamp parses a tweet timestamp, reporting success.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TimeAgo renders a timestamp as hours elapsed when under 24 hours old,
// otherwise as a calendar date.
func TimeAgo(t, now time.Time) string {
	elapsed := now.Sub(t)
	if elapsed < 0 {
		elapsed = 0
	}
	if hours := int(elapsed.Hours()); hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}
	return t.Format("Jan 2, 2006")
}

// videoHosts are CDN host patterns whose URLs always carry video.
var videoHosts = []string{"video.twimg.com"}

// videoExtensions are path suffixes classified as video.
var videoExtensions = []string{".mp4", ".m3u8", ".webm"}

// IsVideoURL classifies a media URL: video if its path ends in a video file
// extension or its host matches a known video CDN pattern, image otherwise.
func IsVideoURL(raw string) bool {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		path := strings.ToLower(u.Path)
		for _, ext := range videoExtensions {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
		for _, host := range videoHosts {
			if strings.Contains(u.Host, host) {
				return true
			}
		}
		return false
	}

	// Unparseable URLs fall back to raw substring checks.
	lower := strings.ToLower(raw)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	for _, host := range videoHosts {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}
