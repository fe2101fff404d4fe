package normalize

import "testing"

func TestExtractPlainText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "tags stripped and entity decoded",
			html: "<p>Hello <b>World</b></p><br>&amp;More",
			want: "Hello World &More",
		},
		{
			name: "style block removed",
			html: "<style type=\"text/css\">body { color: red; }</style>Balance alert",
			want: "Balance alert",
		},
		{
			name: "script block removed",
			html: "<script>window.track();</script>Rs.500 debited",
			want: "Rs.500 debited",
		},
		{
			name: "comment removed",
			html: "before<!-- tracking pixel -->after",
			want: "beforeafter",
		},
		{
			name: "multiline style with mixed case",
			html: "<STYLE>\n.a { x }\n</STYLE>text",
			want: "text",
		},
		{
			name: "br and p become whitespace",
			html: "line one<br/>line two<p>para</p>",
			want: "line one line two para",
		},
		{
			name: "named entities",
			html: "A &lt;= B &amp;&amp; B &gt;= C &quot;quoted&quot; &apos;x&apos; &#39;y&#39;",
			want: `A <= B && B >= C "quoted" 'x' 'y'`,
		},
		{
			name: "decimal character reference",
			html: "Amount: &#8377;500",
			want: "Amount: ₹500",
		},
		{
			name: "hex character reference",
			html: "Amount: &#x20B9;500",
			want: "Amount: ₹500",
		},
		{
			name: "nbsp collapses with surrounding space",
			html: "Dear&nbsp; Customer",
			want: "Dear Customer",
		},
		{
			name: "whitespace runs collapse and trim",
			html: "  \n\t Rs. 120.50   debited \n ",
			want: "Rs. 120.50 debited",
		},
		{
			name: "unknown entity left alone",
			html: "a &bogus; b",
			want: "a &bogus; b",
		},
		{
			name: "empty input",
			html: "",
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ExtractPlainText(tc.html)
			if got != tc.want {
				t.Errorf("ExtractPlainText(%q) = %q, want %q", tc.html, got, tc.want)
			}
		})
	}
}
