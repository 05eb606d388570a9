// ABOUTME: Bus name helpers
// ABOUTME: Turns a free-form player name into a valid D-Bus name element
package mpris

import "strings"

// sanitize keeps [A-Za-z0-9_] and replaces everything else with '_'.
// An element may not start with a digit.
func sanitize(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "player"
	}
	return b.String()
}
