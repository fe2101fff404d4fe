// Package rules loads versioned email-parsing rule configuration and applies
// it to normalized message text. A rule recognizes one notification format by
// substring pre-filters over the snippet and extracts the amount and
// counterparty through ordered regex fallbacks.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/avast/retry-go"
)

// Rule is one compiled parsing rule. Rules are evaluated in configured order
// and the first rule whose snippet substrings all match is used exclusively.
type Rule struct {
	// Type labels the transaction channel, e.g. "upi-debit", "credit-card".
	Type string
	// CostType is the money-flow direction this format implies.
	CostType string
	// SnippetStrings must all be present in the message snippet for the
	// rule to match. This is the cheap pre-filter before extraction.
	SnippetStrings []string
	// CostRegex are tried in order against the full normalized text; the
	// first whose capture group parses as a positive number wins.
	CostRegex []*regexp.Regexp
	// VendorRegex are tried in order; the first non-empty trimmed capture
	// group wins.
	VendorRegex []*regexp.Regexp
	// Ignore marks formats that are recognized but never produce an
	// expense, e.g. e-mandate notices.
	Ignore bool
}

// rawRule is the wire shape of one rule in emailParsingConfig.json.
type rawRule struct {
	Type           string   `json:"type"`
	CostType       string   `json:"costType"`
	SnippetStrings []string `json:"snippetStrings"`
	CostRegex      []string `json:"costRegex"`
	VendorRegex    []string `json:"vendorRegex"`
	Ignore         bool     `json:"ignore,omitempty"`
}

// versionedConfig is the top-level wire shape: rule lists keyed by version tag.
type versionedConfig map[string]struct {
	Config []rawRule `json:"config"`
}

// Parse decodes and compiles the rule list under the given version tag.
func Parse(data []byte, version string) ([]Rule, error) {
	var doc versionedConfig
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing rule config: %w", err)
	}

	section, ok := doc[version]
	if !ok {
		return nil, fmt.Errorf("rule config has no version %q", version)
	}
	if len(section.Config) == 0 {
		return nil, fmt.Errorf("rule config version %q is empty", version)
	}

	rules := make([]Rule, 0, len(section.Config))
	for i, raw := range section.Config {
		rule, err := compileRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, raw.Type, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func compileRule(raw rawRule) (Rule, error) {
	if raw.Type == "" {
		return Rule{}, fmt.Errorf("missing type")
	}
	if len(raw.SnippetStrings) == 0 {
		return Rule{}, fmt.Errorf("missing snippetStrings")
	}

	rule := Rule{
		Type:           raw.Type,
		CostType:       raw.CostType,
		SnippetStrings: raw.SnippetStrings,
		Ignore:         raw.Ignore,
	}

	if rule.Ignore {
		return rule, nil
	}

	if rule.CostType == "" {
		return Rule{}, fmt.Errorf("missing costType")
	}
	if len(raw.CostRegex) == 0 || len(raw.VendorRegex) == 0 {
		return Rule{}, fmt.Errorf("missing costRegex or vendorRegex")
	}

	for _, expr := range raw.CostRegex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Rule{}, fmt.Errorf("compiling costRegex %q: %w", expr, err)
		}
		rule.CostRegex = append(rule.CostRegex, re)
	}
	for _, expr := range raw.VendorRegex {
		re, err := regexp.Compile(expr)
		if err != nil {
			return Rule{}, fmt.Errorf("compiling vendorRegex %q: %w", expr, err)
		}
		rule.VendorRegex = append(rule.VendorRegex, re)
	}

	return rule, nil
}

// Loader produces the rule snapshot for one batch run. A load failure is
// fatal for the run; parsing without rules is meaningless.
type Loader func(ctx context.Context) ([]Rule, error)

// Static returns a Loader that always serves the same compiled rules.
func Static(rules []Rule) Loader {
	return func(context.Context) ([]Rule, error) {
		if len(rules) == 0 {
			return nil, fmt.Errorf("no rules configured")
		}
		return rules, nil
	}
}

// FromURL returns a Loader that fetches the versioned JSON rule document on
// every run. Transient fetch failures are retried before giving up.
func FromURL(client *http.Client, url, version string) Loader {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) ([]Rule, error) {
		var body []byte
		err := retry.Do(
			func() error {
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
				if err != nil {
					return err
				}
				resp, err := client.Do(req)
				if err != nil {
					return err
				}
				defer resp.Body.Close()

				if resp.StatusCode != http.StatusOK {
					return fmt.Errorf("rule config fetch: status %d", resp.StatusCode)
				}
				body, err = io.ReadAll(resp.Body)
				return err
			},
			retry.Attempts(3),
			retry.Delay(2*time.Second),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			return nil, fmt.Errorf("fetching rule config from %s: %w", url, err)
		}

		return Parse(body, version)
	}
}
