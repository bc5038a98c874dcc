// Package plaintext derives readable text and word/character counts from stored
// document content.
//
// Structured content is JSON in which text lives under "text" keys and nests
// through "inlines" (runs), "blocks" (paragraphs, tables, lists), "sections" and a
// top-level "body". A top-level JSON string is its own text. Anything else is
// treated as markup or plain text.
package plaintext

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

var containerKeys = []string{"body", "sections", "blocks", "inlines"}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Extract returns the plain text of content with whitespace collapsed.
func Extract(content string) string {
	if text, ok := extractStructured(content); ok {
		return text
	}
	return collapse(tagPattern.ReplaceAllString(content, " "))
}

// Counts returns the word and character counts of the extracted text.
func Counts(content string) (words, chars int) {
	text := Extract(content)
	return WordCount(text), CharacterCount(text)
}

// SimpleCounts treats content as already-plain text.
func SimpleCounts(content string) (words, chars int) {
	return WordCount(content), CharacterCount(content)
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

func CharacterCount(text string) int {
	return utf8.RuneCountInString(text)
}

func extractStructured(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal([]byte(trimmed), &text); err != nil {
			return "", false
		}
		return collapse(tagPattern.ReplaceAllString(text, " ")), true
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return "", false
	}
	var root any
	if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
		return "", false
	}
	fragments := make([]string, 0, 16)
	walk(root, &fragments)
	return collapse(strings.Join(fragments, " ")), true
}

func walk(node any, fragments *[]string) {
	switch value := node.(type) {
	case []any:
		for _, child := range value {
			walk(child, fragments)
		}
	case map[string]any:
		if text, ok := value["text"].(string); ok && text != "" {
			*fragments = append(*fragments, text)
		}
		for _, key := range containerKeys {
			if child, ok := value[key]; ok {
				walk(child, fragments)
			}
		}
	}
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
