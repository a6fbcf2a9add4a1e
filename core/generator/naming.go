package generator

import "strings"

// Common irregular singular/plural pairs seen in resource names.
var irregulars = map[string]string{
	"person": "people",
	"child":  "children",
	"status": "statuses",
	"index":  "indices",
	"medium": "media",
	"datum":  "data",
}

// pluralize returns the plural form of a resource name using simple
// English rules.
func pluralize(word string) string {
	if word == "" {
		return ""
	}
	lower := strings.ToLower(word)
	if plural, ok := irregulars[lower]; ok {
		return plural
	}

	switch {
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "z"), strings.HasSuffix(lower, "ch"),
		strings.HasSuffix(lower, "sh"):
		return word + "es"
	case strings.HasSuffix(lower, "y") && len(word) > 1 && !isVowel(lower[len(lower)-2]):
		return word[:len(word)-1] + "ies"
	default:
		return word + "s"
	}
}

// singularize returns the singular form of a resource name. Inverse
// of pluralize for the rules it applies.
func singularize(word string) string {
	if word == "" {
		return ""
	}
	lower := strings.ToLower(word)
	for singular, plural := range irregulars {
		if plural == lower {
			return singular
		}
	}

	switch {
	case strings.HasSuffix(lower, "ies"):
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(lower, "ses"), strings.HasSuffix(lower, "xes"),
		strings.HasSuffix(lower, "zes"), strings.HasSuffix(lower, "ches"),
		strings.HasSuffix(lower, "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss"):
		return word[:len(word)-1]
	default:
		return word
	}
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// title upper-cases the first letter.
func title(word string) string {
	if word == "" {
		return ""
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
