package stash

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "strips utm parameters",
			input:    "https://example.com/article?utm_source=newsletter&utm_medium=email",
			expected: "https://example.com/article",
		},
		{
			name:     "keeps meaningful parameters",
			input:    "https://example.com/search?q=golang&page=2",
			expected: "https://example.com/search?q=golang&page=2",
		},
		{
			name:     "mixed tracking and meaningful parameters",
			input:    "https://example.com/watch?v=abc123&utm_campaign=spring&t=42",
			expected: "https://example.com/watch?v=abc123&t=42",
		},
		{
			name:     "adds https scheme when missing",
			input:    "example.com/page",
			expected: "https://example.com/page",
		},
		{
			name:     "preserves explicit http scheme",
			input:    "http://example.com/page",
			expected: "http://example.com/page",
		},
		{
			name:     "lowercases host only",
			input:    "https://Example.COM/CaseSensitive/Path",
			expected: "https://example.com/CaseSensitive/Path",
		},
		{
			name:     "removes fragment",
			input:    "https://example.com/docs#section-3",
			expected: "https://example.com/docs",
		},
		{
			name:     "fbclid and gclid removed",
			input:    "https://example.com/?fbclid=xyz&gclid=abc",
			expected: "https://example.com/",
		},
		{
			name:     "all parameters tracking collapses query entirely",
			input:    "https://example.com/post?utm_source=a&utm_medium=b&utm_campaign=c",
			expected: "https://example.com/post",
		},
		{
			name:     "parameter order preserved",
			input:    "https://example.com/?b=2&utm_source=x&a=1",
			expected: "https://example.com/?b=2&a=1",
		},
		{
			name:     "ref and source removed",
			input:    "https://news.example.com/item?id=99&ref=homepage&source=share",
			expected: "https://news.example.com/item?id=99",
		},
		{
			name:     "bare key without value dropped",
			input:    "example.com?key",
			expected: "https://example.com",
		},
		{
			name:     "amazon affiliate parameters stripped",
			input:    "https://www.amazon.com/dp/B08N5WRWNW?tag=partner-20&linkId=abc123&pd_rd_r=xyz&pd_rd_w=uvw&pd_rd_wg=rst",
			expected: "https://www.amazon.com/dp/B08N5WRWNW",
		},
		{
			name:     "unparseable input returned as-is",
			input:    "https://exa mple.com/%zz",
			expected: "https://exa mple.com/%zz",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeURL(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeURL(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"https://example.com/article?utm_source=newsletter&q=test",
		"Example.com/Page#frag",
		"https://example.com/watch?v=abc&t=10",
	}

	for _, input := range inputs {
		once := NormalizeURL(input)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: first %q, second %q", input, once, twice)
		}
	}
}
