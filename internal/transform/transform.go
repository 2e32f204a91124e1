// Package transform implements the Field Transformer: the pure
// post-extraction value transforms the Manifest Extractor applies per
// FieldMapping.transform.
package transform

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"civicpipe/internal/model"
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var longFormDate = regexp.MustCompile(`(?i)^([a-z]+)\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})$`)
var shortFormDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2}|\d{4})$`)
var isoFormDate = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)

// Apply dispatches on t.Type and returns the transformed value. It
// never returns an error: every branch that can fail falls back to
// the original value per §4.6.
func Apply(t model.FieldTransform, value string, baseURL string) string {
	switch t.Type {
	case model.TransformTrim:
		return strings.TrimSpace(value)
	case model.TransformLowercase:
		return strings.ToLower(value)
	case model.TransformUppercase:
		return strings.ToUpper(value)
	case model.TransformStripHTML:
		return stripHTML(value)
	case model.TransformURLResolve:
		return resolveURL(value, baseURL)
	case model.TransformRegexReplace:
		return regexReplace(value, t.Params)
	case model.TransformNameFormat:
		return nameFormat(value)
	case model.TransformDateParse:
		return dateParse(value)
	default:
		return value
	}
}

// stripHTML removes anything between '<' and '>' by a linear scan,
// avoiding the catastrophic-backtracking risk of a tag-matching regex.
func stripHTML(value string) string {
	var sb strings.Builder
	depth := 0
	for _, r := range value {
		switch {
		case r == '<':
			depth++
		case r == '>':
			if depth > 0 {
				depth--
			}
		case depth == 0:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func resolveURL(value, baseURL string) string {
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		return value
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return value
	}
	ref, err := url.Parse(value)
	if err != nil {
		return value
	}
	return base.ResolveReference(ref).String()
}

func regexReplace(value string, params map[string]any) string {
	pattern, _ := params["pattern"].(string)
	if pattern == "" {
		return value
	}
	flags, _ := params["flags"].(string)
	if flags == "" {
		flags = "g"
	}
	replacement, _ := params["replacement"].(string)

	expr := pattern
	if strings.Contains(flags, "i") {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return value
	}
	goReplacement := strings.ReplaceAll(replacement, "$", "$$")
	if strings.Contains(flags, "g") {
		return re.ReplaceAllString(value, goReplacement)
	}
	replaced := false
	return re.ReplaceAllStringFunc(value, func(m string) string {
		if replaced {
			return m
		}
		replaced = true
		return re.ReplaceAllString(m, goReplacement)
	})
}

func nameFormat(value string) string {
	if idx := strings.Index(value, ","); idx >= 0 {
		last := strings.TrimSpace(value[:idx])
		first := strings.TrimSpace(value[idx+1:])
		if last != "" && first != "" {
			return normalizeWhitespace(first + " " + last)
		}
	}
	return normalizeWhitespace(value)
}

func normalizeWhitespace(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

func dateParse(value string) string {
	trimmed := strings.TrimSpace(value)

	if m := longFormDate.FindStringSubmatch(trimmed); m != nil {
		month, ok := monthNames[strings.ToLower(m[1])]
		if ok {
			day, derr := strconv.Atoi(m[2])
			year, yerr := strconv.Atoi(m[3])
			if derr == nil && yerr == nil {
				return isoMidnightUTC(year, month, day)
			}
		}
	}

	if m := shortFormDate.FindStringSubmatch(trimmed); m != nil {
		month, merr := strconv.Atoi(m[1])
		day, derr := strconv.Atoi(m[2])
		year, yerr := strconv.Atoi(m[3])
		if merr == nil && derr == nil && yerr == nil {
			if len(m[3]) == 2 {
				year += 2000
			}
			return isoMidnightUTC(year, time.Month(month), day)
		}
	}

	if m := isoFormDate.FindStringSubmatch(trimmed); m != nil {
		year, yerr := strconv.Atoi(m[1])
		month, merr := strconv.Atoi(m[2])
		day, derr := strconv.Atoi(m[3])
		if yerr == nil && merr == nil && derr == nil {
			return isoMidnightUTC(year, time.Month(month), day)
		}
	}

	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "01/02/2006", "2006/01/02"} {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return isoMidnightUTC(t.Year(), t.Month(), t.Day())
		}
	}

	return trimmed
}

func isoMidnightUTC(year int, month time.Month, day int) string {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return t.Format(time.RFC3339)
}
