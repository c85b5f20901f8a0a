package trigger

import (
	"regexp"
	"strconv"
)

var (
	richTextTag = regexp.MustCompile(`<[^>]*>`)

	// Tried in order; the first match wins.
	levelLogPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)_userSystem\.Level\s*(\d+)`),
		regexp.MustCompile(`(?i)Playing\s+cur\s+level\s*(\d+)`),
		regexp.MustCompile(`(?i)Level\s*(\d+)\s*ended\s*with\s*win`),
	}
)

// LevelFromLog extracts a reached level from a console line of the lite
// variant, for hosts that can only observe its log output.
//
// Rich text tags such as <color=#fff> are ignored. Returns false when the line
// carries no level or the level is not positive.
func LevelFromLog(line string) (int, bool) {
	text := richTextTag.ReplaceAllString(line, " ")

	for _, re := range levelLogPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}

		level, err := strconv.Atoi(m[1])
		if err != nil || level <= 0 {
			return 0, false
		}

		return level, true
	}

	return 0, false
}
