package workspace

import (
	"fmt"
	"regexp"
	"strings"
)

// Markdown patching. Markers are HTML comments naming a region:
//
//	<!-- notes -->
//	...replaced content...
//	<!-- /notes -->
//
// The closing marker is optional; without it the region ends at the
// next marker of any name, or at end of text. Section patches replace
// the body under a heading up to the next heading of any level.

var nextMarkerRe = regexp.MustCompile(`<!--\s*/?\s*[A-Za-z0-9:_-]+\s*(?:-->|>)`)
var nextHeadingRe = regexp.MustCompile(`(?m)^#{1,6}\s+`)

// PatchTextByMarker inserts content inside the named marker region.
// In strict mode a missing marker fails; in lenient mode the content
// is appended under the fallback heading (default "AI Notes").
func PatchTextByMarker(text, marker, content, mode, fallbackHeading string) (string, bool) {
	name := normalizeMarkerName(marker)
	start := findMarkerToken(text, name, false, 0)
	if start != nil {
		insertStart := start[1]
		insertEnd := len(text)
		if end := findMarkerToken(text, name, true, insertStart); end != nil {
			insertEnd = end[0]
		} else if loc := nextMarkerRe.FindStringIndex(text[insertStart:]); loc != nil {
			insertEnd = insertStart + loc[0]
		}
		var b strings.Builder
		b.WriteString(text[:insertStart])
		if insertStart >= len(text) || text[insertStart] != '\n' {
			b.WriteString("\n")
		}
		b.WriteString(ensureTrailingNewline(content))
		b.WriteString(text[insertEnd:])
		return b.String(), true
	}

	if mode == PatchModeStrict {
		return text, false
	}

	if fallbackHeading != "" {
		if patched, ok := PatchTextByHeading(text, fallbackHeading, content, PatchModeStrict); ok {
			return patched, true
		}
	}
	heading := fallbackHeading
	if heading == "" {
		heading = "AI Notes"
	}
	return appendHeading(text, heading, content), true
}

// PatchTextByHeading replaces the section body under the given heading.
// In strict mode a missing heading fails; in lenient mode a new section
// is appended.
func PatchTextByHeading(text, heading, content, mode string) (string, bool) {
	headingText := normalizeHeadingText(heading)
	headingRe := regexp.MustCompile(`(?m)^#{1,6}\s+` + regexp.QuoteMeta(headingText) + `\s*$`)
	loc := headingRe.FindStringIndex(text)
	if loc == nil {
		if mode == PatchModeStrict {
			return text, false
		}
		return appendHeading(text, headingText, content), true
	}

	sectionStart := len(text)
	if nl := strings.Index(text[loc[0]:], "\n"); nl >= 0 {
		sectionStart = loc[0] + nl + 1
	}
	sectionEnd := len(text)
	if next := nextHeadingRe.FindStringIndex(text[sectionStart:]); next != nil {
		sectionEnd = sectionStart + next[0]
	}

	return text[:sectionStart] + ensureTrailingNewline(content) + text[sectionEnd:], true
}

var markerOpenRe = regexp.MustCompile(`^<!--\s*`)
var markerCloseRe = regexp.MustCompile(`\s*(?:-->|>)\s*$`)

func normalizeMarkerName(marker string) string {
	trimmed := strings.TrimSpace(marker)
	stripped := markerOpenRe.ReplaceAllString(trimmed, "")
	stripped = markerCloseRe.ReplaceAllString(stripped, "")
	stripped = strings.TrimPrefix(stripped, "/")
	return strings.TrimSpace(stripped)
}

func normalizeHeadingText(heading string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(heading), "# "))
}

// findMarkerToken locates the opening or closing token of the named
// marker at or after start, returning its [begin, end) offsets.
func findMarkerToken(text, name string, isEnd bool, start int) []int {
	prefix := ""
	if isEnd {
		prefix = `/\s*`
	}
	re := regexp.MustCompile(`(?i)<!--\s*` + prefix + regexp.QuoteMeta(name) + `\s*(?:-->|>)`)
	loc := re.FindStringIndex(text[start:])
	if loc == nil {
		return nil
	}
	return []int{start + loc[0], start + loc[1]}
}

func ensureTrailingNewline(content string) string {
	if strings.HasSuffix(content, "\n") {
		return content
	}
	return content + "\n"
}

func appendHeading(text, heading, content string) string {
	prefix := text
	if !strings.HasSuffix(prefix, "\n") {
		prefix += "\n"
	}
	return fmt.Sprintf("%s\n## %s\n%s", prefix, normalizeHeadingText(heading), ensureTrailingNewline(content))
}
