package rules

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Extraction failure kinds. A rule matched the snippet but no configured
// expression yielded a valid value.
var (
	ErrNoAmount = errors.New("no expression yielded a valid amount")
	ErrNoVendor = errors.New("no expression yielded a valid vendor")
)

// Select returns the first rule (in configured order) whose snippet
// substrings all match, or nil when no rule matches. Later rules are never
// evaluated once an earlier one matches.
func Select(rules []Rule, snippet string) *Rule {
	for i := range rules {
		if snippetMatches(&rules[i], snippet) {
			return &rules[i]
		}
	}
	return nil
}

func snippetMatches(rule *Rule, snippet string) bool {
	for _, sub := range rule.SnippetStrings {
		if !strings.Contains(snippet, sub) {
			return false
		}
	}
	return true
}

// Extract applies the rule's regex fallbacks to the normalized text and
// returns the amount and raw vendor string. The text is the full decoded body
// when available, not the snippet the rule was selected on.
func Extract(rule *Rule, text string) (cost float64, vendor string, err error) {
	costStr, ok := applyPatterns(text, rule.CostRegex, validCost)
	if !ok {
		return 0, "", ErrNoAmount
	}

	vendor, ok = applyPatterns(text, rule.VendorRegex, validVendor)
	if !ok {
		return 0, "", ErrNoVendor
	}

	cost, _ = strconv.ParseFloat(strings.ReplaceAll(costStr, ",", ""), 64)
	return cost, strings.TrimSpace(vendor), nil
}

// applyPatterns tries each expression in order and returns the first capture
// group that passes validation.
func applyPatterns(text string, patterns []*regexp.Regexp, valid func(string) bool) (string, bool) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if len(m) > 1 && m[1] != "" && valid(m[1]) {
			return m[1], true
		}
	}
	return "", false
}

func validCost(match string) bool {
	cost, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	return err == nil && cost > 0
}

func validVendor(match string) bool {
	return strings.TrimSpace(match) != ""
}
