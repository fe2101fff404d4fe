package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	styleRe   = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	commentRe = regexp.MustCompile(`(?s)<!--.*?-->`)
	brRe      = regexp.MustCompile(`(?i)<br\s*/?>`)
	pOpenRe   = regexp.MustCompile(`(?i)<p[^>]*>`)
	pCloseRe  = regexp.MustCompile(`(?i)</p>`)
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	decRefRe  = regexp.MustCompile(`&#(\d+);`)
	hexRefRe  = regexp.MustCompile(`&#x([0-9a-fA-F]+);`)
	spaceRe   = regexp.MustCompile(`\s+`)
)

// entityReplacer decodes the fixed table of named entities seen in bank
// notification templates. Anything else is left as-is.
var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&apos;", "'",
	"&#39;", "'",
	"&nbsp;", " ",
	"&copy;", "©",
	"&reg;", "®",
	"&trade;", "™",
	"&mdash;", "—",
	"&ndash;", "–",
)

// ExtractPlainText strips an HTML body down to entity-decoded plain text with
// whitespace runs collapsed to single spaces.
func ExtractPlainText(html string) string {
	if html == "" {
		return ""
	}

	text := html

	text = styleRe.ReplaceAllString(text, "")
	text = scriptRe.ReplaceAllString(text, "")
	text = commentRe.ReplaceAllString(text, "")

	// Keep a trace of block structure before dropping the remaining tags.
	text = brRe.ReplaceAllString(text, "\n")
	text = pOpenRe.ReplaceAllString(text, "\n\n")
	text = pCloseRe.ReplaceAllString(text, "")

	text = tagRe.ReplaceAllString(text, "")

	text = entityReplacer.Replace(text)
	text = decRefRe.ReplaceAllStringFunc(text, func(ref string) string {
		code, err := strconv.ParseInt(ref[2:len(ref)-1], 10, 32)
		if err != nil {
			return ref
		}
		return string(rune(code))
	})
	text = hexRefRe.ReplaceAllStringFunc(text, func(ref string) string {
		code, err := strconv.ParseInt(ref[3:len(ref)-1], 16, 32)
		if err != nil {
			return ref
		}
		return string(rune(code))
	})

	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
