package rules

import (
	"errors"
	"regexp"
	"testing"
)

func mustRules(t *testing.T, data string) []Rule {
	t.Helper()
	rules, err := Parse([]byte(data), "v1")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return rules
}

const matchConfig = `{
  "v1": {
    "config": [
      {
        "type": "e-mandate",
        "snippetStrings": ["E-mandate"],
        "ignore": true
      },
      {
        "type": "credit-card",
        "costType": "debit",
        "snippetStrings": ["Thank you for using your HDFC Bank Credit Card"],
        "costRegex": ["for Rs[ .]?([\\d,]+\\.?\\d*) at"],
        "vendorRegex": ["\\bat (.+?) on \\d{2}-\\d{2}"]
      },
      {
        "type": "upi-debit",
        "costType": "debit",
        "snippetStrings": ["has been debited"],
        "costRegex": ["Rs\\.?\\s*([\\d,]+\\.?\\d*) has been debited"],
        "vendorRegex": ["to VPA (.+?) on \\d{2}-\\d{2}"]
      }
    ]
  }
}`

func TestSelect(t *testing.T) {
	rules := mustRules(t, matchConfig)

	tests := []struct {
		name     string
		snippet  string
		wantType string
	}{
		{
			name:     "credit card snippet",
			snippet:  "Thank you for using your HDFC Bank Credit Card ending 5667 for Rs 858.20 at ZOMATO on 09-02-2025 22:08:17.",
			wantType: "credit-card",
		},
		{
			name:     "upi debit snippet",
			snippet:  "Rs.120.50 has been debited to VPA zomato@paytm on 09-02-25",
			wantType: "upi-debit",
		},
		{
			name:     "ignore rule matches first",
			snippet:  "E-mandate has been debited setup for your account",
			wantType: "e-mandate",
		},
		{
			name:     "promotional mail matches nothing",
			snippet:  "Get 10% cashback on your next order!",
			wantType: "",
		},
		{
			name:     "all substrings required",
			snippet:  "Thank you for using your ICICI Bank Credit Card",
			wantType: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rule := Select(rules, tc.snippet)
			if tc.wantType == "" {
				if rule != nil {
					t.Errorf("expected no match, got rule %q", rule.Type)
				}
				return
			}
			if rule == nil {
				t.Fatalf("expected rule %q, got no match", tc.wantType)
			}
			if rule.Type != tc.wantType {
				t.Errorf("rule type: got %q, want %q", rule.Type, tc.wantType)
			}
		})
	}
}

// A snippet matching two rules must use only the earlier one, even if the
// later one would extract successfully.
func TestSelect_FirstMatchExclusive(t *testing.T) {
	rules := mustRules(t, `{
  "v1": {
    "config": [
      {
        "type": "first",
        "costType": "debit",
        "snippetStrings": ["debited"],
        "costRegex": ["nevermatches ([\\d.]+)"],
        "vendorRegex": ["nevermatches (.+)"]
      },
      {
        "type": "second",
        "costType": "debit",
        "snippetStrings": ["debited"],
        "costRegex": ["Rs\\.([\\d.]+)"],
        "vendorRegex": ["at (.+)"]
      }
    ]
  }
}`)

	snippet := "Rs.500 debited at ZOMATO"

	rule := Select(rules, snippet)
	if rule == nil || rule.Type != "first" {
		t.Fatalf("expected rule %q, got %+v", "first", rule)
	}

	// The selected rule cannot extract; that is a failure, not a fallthrough.
	if _, _, err := Extract(rule, snippet); !errors.Is(err, ErrNoAmount) {
		t.Errorf("expected ErrNoAmount, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	rules := mustRules(t, matchConfig)
	creditCard := &rules[1]

	text := "Thank you for using your HDFC Bank Credit Card ending 5667 for Rs 858.20 at ZOMATO on 09-02-2025 22:08:17."

	cost, vendor, err := Extract(creditCard, text)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if cost != 858.20 {
		t.Errorf("cost: got %v, want %v", cost, 858.20)
	}
	if vendor != "ZOMATO" {
		t.Errorf("vendor: got %q, want %q", vendor, "ZOMATO")
	}
}

func TestExtract_OrderedFallback(t *testing.T) {
	rule := &Rule{
		Type:     "test",
		CostType: "debit",
		CostRegex: []*regexp.Regexp{
			regexp.MustCompile(`INR ([\d,]+\.?\d*)`),
			regexp.MustCompile(`Rs\.([\d,]+\.?\d*)`),
		},
		VendorRegex: []*regexp.Regexp{
			regexp.MustCompile(`towards (.+?) ref`),
			regexp.MustCompile(`at (.+?) on`),
		},
	}

	cost, vendor, err := Extract(rule, "Rs.1,250.00 spent at BIG BAZAAR on 12-01")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if cost != 1250.00 {
		t.Errorf("cost: got %v, want %v", cost, 1250.00)
	}
	if vendor != "BIG BAZAAR" {
		t.Errorf("vendor: got %q, want %q", vendor, "BIG BAZAAR")
	}
}

func TestExtract_Failures(t *testing.T) {
	rule := &Rule{
		Type:        "test",
		CostType:    "debit",
		CostRegex:   []*regexp.Regexp{regexp.MustCompile(`Rs\.([\d,]+\.?\d*)`)},
		VendorRegex: []*regexp.Regexp{regexp.MustCompile(`at (\S+)`)},
	}

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{
			name:    "no amount in text",
			text:    "nothing to see at ZOMATO",
			wantErr: ErrNoAmount,
		},
		{
			name:    "zero amount rejected",
			text:    "Rs.0.00 at ZOMATO",
			wantErr: ErrNoAmount,
		},
		{
			name:    "no vendor in text",
			text:    "Rs.500 debited from account",
			wantErr: ErrNoVendor,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Extract(rule, tc.text)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("got error %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestExtract_CommaAmounts(t *testing.T) {
	rule := &Rule{
		Type:        "test",
		CostType:    "debit",
		CostRegex:   []*regexp.Regexp{regexp.MustCompile(`INR\s*([\d,]+\.?\d*)`)},
		VendorRegex: []*regexp.Regexp{regexp.MustCompile(`at\s+(\w+)`)},
	}

	cost, vendor, err := Extract(rule, "Transaction of INR 12,34,567.89 at FLIPKART")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if cost != 1234567.89 {
		t.Errorf("cost: got %v, want %v", cost, 1234567.89)
	}
	if vendor != "FLIPKART" {
		t.Errorf("vendor: got %q, want %q", vendor, "FLIPKART")
	}
}
