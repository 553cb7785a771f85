// Package filter evaluates the keyword and duration predicates applied to
// remote candidates before an episode record is built.
//
// Expression grammar: comma separates OR groups; within a group, '+'
// separates AND terms. A text matches an expression when any group matches,
// and a group matches when all of its terms are case-insensitive substrings.
// Blank expressions impose no constraint.
package filter

import (
	"strconv"
	"strings"
)

// NotMatchesKeyword reports whether text fails the keyword policy: a
// non-empty contain expression it matches none of, or a non-empty exclude
// expression it matches any of.
func NotMatchesKeyword(text, containExpr, excludeExpr string) bool {
	normalized := normalize(text)

	containGroups := parseExpression(containExpr)
	if len(containGroups) > 0 && !matchesExpression(normalized, containGroups) {
		return true
	}

	excludeGroups := parseExpression(excludeExpr)
	return len(excludeGroups) > 0 && matchesExpression(normalized, excludeGroups)
}

// NotMatchesDuration reports whether an ISO 8601 duration falls outside
// [minMinutes, maxMinutes]. Either bound may be nil. An unparsable or blank
// duration is excluded whenever any bound is set.
func NotMatchesDuration(isoDuration string, minMinutes, maxMinutes *int) bool {
	if minMinutes == nil && maxMinutes == nil {
		return false
	}
	minutes, ok := ParseDurationMinutes(isoDuration)
	if !ok {
		return true
	}
	if minMinutes != nil && minutes < int64(*minMinutes) {
		return true
	}
	if maxMinutes != nil && minutes > int64(*maxMinutes) {
		return true
	}
	return false
}

// Excluded combines the keyword and duration predicates over a candidate's
// text field.
func Excluded(text, containExpr, excludeExpr string, minMinutes, maxMinutes *int, isoDuration string) bool {
	if NotMatchesKeyword(text, containExpr, excludeExpr) {
		return true
	}
	return NotMatchesDuration(isoDuration, minMinutes, maxMinutes)
}

// ParseDurationMinutes parses an ISO 8601 duration (PnDTnHnMnS) into whole
// minutes. It tolerates the YouTube subset: an optional day component and
// hour/minute/second components in order.
func ParseDurationMinutes(iso string) (int64, bool) {
	s := strings.TrimSpace(strings.ToUpper(iso))
	if s == "" || s[0] != 'P' {
		return 0, false
	}
	s = s[1:]

	var days, hours, minutes, seconds int64
	inTime := false
	num := ""
	seen := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			num += string(r)
		case r == 'T':
			if inTime || num != "" {
				return 0, false
			}
			inTime = true
		case r == 'D' || r == 'H' || r == 'M' || r == 'S':
			if num == "" {
				return 0, false
			}
			v, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, false
			}
			num = ""
			seen = true
			switch {
			case r == 'D' && !inTime:
				days = v
			case r == 'H' && inTime:
				hours = v
			case r == 'M' && inTime:
				minutes = v
			case r == 'S' && inTime:
				seconds = v
			default:
				return 0, false
			}
		default:
			return 0, false
		}
	}
	if num != "" || !seen {
		return 0, false
	}
	total := days*24*60*60 + hours*60*60 + minutes*60 + seconds
	return total / 60, true
}

func parseExpression(expression string) [][]string {
	if strings.TrimSpace(expression) == "" {
		return nil
	}

	var groups [][]string
	for _, rawGroup := range strings.Split(expression, ",") {
		if strings.TrimSpace(rawGroup) == "" {
			continue
		}
		var tokens []string
		for _, rawToken := range strings.Split(rawGroup, "+") {
			token := normalize(rawToken)
			if token != "" {
				tokens = append(tokens, token)
			}
		}
		if len(tokens) > 0 {
			groups = append(groups, tokens)
		}
	}
	return groups
}

func matchesExpression(normalizedText string, groups [][]string) bool {
	if normalizedText == "" || len(groups) == 0 {
		return false
	}
	for _, group := range groups {
		allMatched := true
		for _, token := range group {
			if !strings.Contains(normalizedText, token) {
				allMatched = false
				break
			}
		}
		if allMatched {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
