// Package caption turns raw scraped caption text into a cleaned,
// hashtag-deduplicated caption ready for publishing.
package caption

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultCaption is published when scraping yields nothing usable.
const DefaultCaption = "🔥 Reel of the day!\n\n#reels #viral"

// neutralCaption replaces captions polluted by UI chrome markers.
const neutralCaption = "here is video of the day"

// noiseMarkers identify scraped text that captured interface chrome instead
// of the author's caption.
var noiseMarkers = []string{
	"Liked by",
	"Contact Uploading & Non-Users",
}

// Normalize applies the pre-sanitization fallbacks: UI-chrome pollution is
// replaced by a neutral caption and an empty scrape by the default caption.
func Normalize(raw string) string {
	for _, marker := range noiseMarkers {
		if strings.Contains(raw, marker) {
			return neutralCaption
		}
	}
	if strings.TrimSpace(raw) == "" {
		return DefaultCaption
	}
	return raw
}

// Sanitize filters raw caption lines and aggregates hashtags. It is
// deterministic and stateless: lines that are empty, read "verified", look
// like relative timestamps, carry mentions or underscores, or are bare
// lowercase UI labels are dropped; hashtag lines feed a set rendered as a
// single sorted, space-joined final line separated from the body by one
// blank line. Malformed input never fails; unusable lines are simply dropped.
func Sanitize(raw string) string {
	var body []string
	tags := make(map[string]struct{})

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if dropLine(line) {
			continue
		}
		if strings.HasPrefix(line, "#") {
			for _, tag := range strings.Fields(line) {
				tags[tag] = struct{}{}
			}
			continue
		}
		body = append(body, line)
	}

	if len(tags) > 0 {
		if len(body) > 0 && body[len(body)-1] != "" {
			body = append(body, "")
		}
		sorted := make([]string, 0, len(tags))
		for tag := range tags {
			sorted = append(sorted, tag)
		}
		sort.Strings(sorted)
		body = append(body, strings.Join(sorted, " "))
	}

	return strings.Join(body, "\n")
}

func dropLine(line string) bool {
	if line == "" {
		return true
	}
	lower := strings.ToLower(line)
	if lower == "verified" {
		return true
	}
	// Relative-time stamps the UI renders next to posts ("3d", "2w", "16h").
	if strings.HasSuffix(lower, "d") || strings.HasSuffix(lower, "w") || strings.HasSuffix(lower, "h") {
		if !strings.HasPrefix(line, "#") {
			return true
		}
	}
	if strings.Contains(line, "@") {
		return true
	}
	if strings.Contains(line, "_") {
		return true
	}
	// A single all-lowercase word that is not a hashtag is almost always a
	// stray UI label ("more", "follow").
	if lower == line && !strings.HasPrefix(line, "#") && len(strings.Fields(line)) == 1 && hasLetter(line) {
		return true
	}
	return false
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
