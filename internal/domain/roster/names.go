package roster

import (
	"regexp"
	"strings"
)

// nonWord is a Unicode-aware stand-in for \b, which RE2 only applies to ASCII.
const nonWord = `[^\p{L}\p{N}_]`

var (
	rankPrefix = regexp.MustCompile(`(?i)^\s*(Acting|Interim|Battalion Chief|Division Chief|Chief|BC|Captain|Capt|Lieutenant|Lt|Engineer|Eng|Firefighter|FF|Paramedic|Medic|Officer)\.?\s+`)
	suffix     = regexp.MustCompile(`(?i)(^|` + nonWord + `)(?:Jr|Sr|II|III|IV|V)\.?($|` + nonWord + `)`)
	spaces     = regexp.MustCompile(`\s{2,}`)
)

// NormalizeName rewrites a feed name into "Last, First". Leading rank words
// and generational suffixes are dropped, middle names are ignored.
//
//	"Capt. John Q. Public Jr." -> "Public, John"
//	"Public, John Q"           -> "Public, John"
func NormalizeName(raw string) string {
	n := strings.TrimSpace(raw)
	for {
		stripped := rankPrefix.ReplaceAllString(n, "")
		if stripped == n {
			break
		}
		n = stripped
	}
	for {
		stripped := suffix.ReplaceAllString(n, "${1}${2}")
		if stripped == n {
			break
		}
		n = stripped
	}
	n = strings.Trim(spaces.ReplaceAllString(n, " "), " ,")
	if n == "" {
		return ""
	}

	if last, rest, ok := strings.Cut(n, ","); ok {
		last = strings.TrimSpace(last)
		first := ""
		if f := strings.Fields(rest); len(f) > 0 {
			first = f[0]
		}
		return strings.Trim(last+", "+first, " ,")
	}

	parts := strings.Fields(n)
	if len(parts) >= 2 {
		return parts[len(parts)-1] + ", " + parts[0]
	}
	return n
}

// MatchesName reports whether text contains lastFirst, tolerating spacing
// around the comma and a trailing middle initial.
func MatchesName(text, lastFirst string) bool {
	last, first, ok := strings.Cut(lastFirst, ",")
	if !ok {
		return strings.Contains(strings.ToLower(text), strings.ToLower(strings.TrimSpace(lastFirst)))
	}
	pattern := `(?i)(?:^|` + nonWord + `)` + regexp.QuoteMeta(strings.TrimSpace(last)) +
		`\s*,\s*` + regexp.QuoteMeta(strings.TrimSpace(first)) + `(?:$|` + nonWord + `)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(text)
}
