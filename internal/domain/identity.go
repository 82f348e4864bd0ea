package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var (
	uuidPattern = regexp.MustCompile(`[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}`)

	slugStrip    = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugSeparate = regexp.MustCompile(`[-\s]+`)
)

// ExtractAlarmID returns the canonical uppercase UUID embedded in raw.
// Shortcuts report alarm ids like "<x-apple-alarm://UUID>"; strings without
// a UUID are returned unchanged.
func ExtractAlarmID(raw string) string {
	match := uuidPattern.FindString(raw)
	if match == "" {
		return raw
	}
	id, err := uuid.Parse(match)
	if err != nil {
		return raw
	}
	return strings.ToUpper(id.String())
}

// NormalizeAlarmID trims raw and canonicalises any embedded UUID, so callers
// can address an alarm by the same string the shortcut synced it with.
func NormalizeAlarmID(raw string) string {
	return ExtractAlarmID(strings.TrimSpace(raw))
}

// Slugify derives a phone id from a display name.
func Slugify(name string) string {
	s := strings.ToLower(name)
	s = slugStrip.ReplaceAllString(s, "")
	s = slugSeparate.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
