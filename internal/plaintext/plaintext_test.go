package plaintext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtract(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{name: "empty", content: "", want: ""},
		{name: "plain text", content: "  Hello   world \n", want: "Hello world"},
		{name: "markup fallback", content: "<p>Hello</p><p><b>big</b> world</p>", want: "Hello big world"},
		{
			name:    "sections blocks inlines",
			content: `{"sections":[{"blocks":[{"inlines":[{"text":"Hello"},{"text":"world"}]},{"inlines":[{"text":"again"}]}]}]}`,
			want:    "Hello world again",
		},
		{
			name:    "body container",
			content: `{"body":{"sections":[{"blocks":[{"inlines":[{"text":" spaced  out "}]}]}]}}`,
			want:    "spaced out",
		},
		{
			name:    "nested blocks in table cell",
			content: `{"blocks":[{"text":"Title"},{"blocks":[{"blocks":[{"inlines":[{"text":"cell"}]}]}]}]}`,
			want:    "Title cell",
		},
		{name: "top level array", content: `[{"text":"a"},{"inlines":[{"text":"b"}]}]`, want: "a b"},
		{name: "structured without text", content: `{"sections":[]}`, want: ""},
		{name: "invalid json falls back", content: `{"sections": [`, want: `{"sections": [`},
		{name: "json string scalar", content: `"hi there"`, want: "hi there"},
		{name: "json string with markup", content: `"<b>bold</b> move"`, want: "bold move"},
		{name: "quoted prose is plain text", content: `"quoted" words`, want: `"quoted" words`},
		{name: "json number is plain text", content: `42`, want: "42"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Extract(tc.content))
		})
	}
}

func TestCountsRoundTrip(t *testing.T) {
	cases := []struct {
		text  string
		words int
		chars int
	}{
		{text: "", words: 0, chars: 0},
		{text: "Hello world", words: 2, chars: 11},
		{text: "one two three four", words: 4, chars: 18},
		{text: "naïve café", words: 2, chars: 10},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			content := `{"sections":[{"blocks":[{"inlines":[{"text":"` + tc.text + `"}]}]}]}`
			words, chars := Counts(content)
			assert.Equal(t, tc.words, words)
			assert.Equal(t, tc.chars, chars)
		})
	}
}

func TestCountsOfJSONStringExcludeQuotes(t *testing.T) {
	words, chars := Counts(`"hi"`)
	assert.Equal(t, 1, words)
	assert.Equal(t, 2, chars)
}

func TestSimpleCountsUsesRawContent(t *testing.T) {
	words, chars := SimpleCounts(" Hello  world ")
	assert.Equal(t, 2, words)
	assert.Equal(t, 14, chars)
}
