package installer

import (
	"strings"

	"gitlab.com/tinyland/lab/app-manager/internal/bundle"
)

// Slug derives a URL-safe slug from a display name: lower-cased,
// non-[a-z0-9] runs collapsed to a single underscore, leading/trailing
// underscores trimmed. Falls back to a sanitized basename when the result
// would be empty (spec.md §4.5 step 5).
func Slug(displayName, fallbackBasename string) string {
	lower := strings.ToLower(displayName)

	var b strings.Builder
	pendingUnderscore := false
	for _, r := range lower {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingUnderscore && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingUnderscore = false
			b.WriteRune(r)
		default:
			pendingUnderscore = true
		}
	}

	slug := b.String()
	if slug == "" {
		return strings.ToLower(bundle.SanitizeBasename(fallbackBasename))
	}
	return slug
}
