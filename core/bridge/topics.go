package bridge

import "strings"

const topicSubstitute = '_'

// SingleLevel collapses an arbitrary string into one valid topic level.
// Every rune outside [-_a-zA-Z0-9] is replaced by exactly one
// substitute character, so topic names keep a stable length across runs
// regardless of input encoding.
func SingleLevel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if allowedTopicRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte(topicSubstitute)
		}
	}
	return b.String()
}

func allowedTopicRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	case r == '-' || r == '_':
		return true
	default:
		return false
	}
}

// camelToSlug rewrites a camelCase attribute path to snake_case:
// "hvBattery.hvBatteryLevel" becomes "hv_battery.hv_battery_level".
func camelToSlug(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimLeft(b.String(), "_")
}

// joinTopic builds a topic from its levels.
func joinTopic(levels ...string) string {
	return strings.Join(levels, "/")
}
