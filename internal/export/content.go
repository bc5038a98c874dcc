package export

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
)

// Structured document content: a "body" with "sections", each holding
// "blocks". Blocks carry "inlines" (text runs) or nested "blocks" for list
// items and table rows and cells.

// ContentToHTML renders stored content as an HTML fragment. Content that is
// not structured JSON is escaped and split into paragraphs on blank lines.
func ContentToHTML(content string) string {
	root, ok := parseStructured(content)
	if !ok {
		return plainToHTML(content)
	}
	var out strings.Builder
	for _, section := range sectionsOf(root) {
		out.WriteString("<section>\n")
		out.WriteString(renderBlocks(section["blocks"]))
		out.WriteString("</section>\n")
	}
	return out.String()
}

// ContentToText renders stored content as plain text with one block per
// paragraph.
func ContentToText(content string) string {
	root, ok := parseStructured(content)
	if !ok {
		return strings.TrimSpace(content)
	}
	lines := make([]string, 0, 16)
	for _, section := range sectionsOf(root) {
		collectText(section["blocks"], &lines, "")
	}
	return strings.Join(lines, "\n\n")
}

func parseStructured(content string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return nil, false
	}
	var root map[string]any
	if err := json.Unmarshal([]byte(trimmed), &root); err != nil {
		return nil, false
	}
	return root, true
}

func sectionsOf(root map[string]any) []map[string]any {
	if body, ok := root["body"].(map[string]any); ok {
		root = body
	}
	if _, ok := root["sections"]; !ok {
		return []map[string]any{root}
	}
	items, _ := root["sections"].([]any)
	sections := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if section, ok := item.(map[string]any); ok {
			sections = append(sections, section)
		}
	}
	return sections
}

func renderBlocks(value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	var out strings.Builder
	for _, item := range items {
		if block, ok := item.(map[string]any); ok {
			out.WriteString(renderBlock(block))
		}
	}
	return out.String()
}

func renderBlock(block map[string]any) string {
	blockType, _ := block["type"].(string)
	inlines := renderInlines(block["inlines"])

	switch blockType {
	case "heading":
		level := 1
		if lvl, ok := block["level"].(float64); ok && lvl >= 1 && lvl <= 6 {
			level = int(lvl)
		}
		return fmt.Sprintf("<h%d%s>%s</h%d>\n", level, alignAttr(block), inlines, level)
	case "quote":
		return fmt.Sprintf("<blockquote>%s</blockquote>\n", inlines)
	case "code":
		return fmt.Sprintf("<pre><code>%s</code></pre>\n", html.EscapeString(inlineText(block["inlines"])))
	case "list":
		tag := "ul"
		if ordered, _ := block["ordered"].(bool); ordered {
			tag = "ol"
		}
		return fmt.Sprintf("<%s>\n%s</%s>\n", tag, wrapChildren(block["blocks"], "li"), tag)
	case "table":
		var rows strings.Builder
		if items, ok := block["blocks"].([]any); ok {
			for _, item := range items {
				row, ok := item.(map[string]any)
				if !ok {
					continue
				}
				rows.WriteString("<tr>\n")
				rows.WriteString(wrapChildren(row["blocks"], "td"))
				rows.WriteString("</tr>\n")
			}
		}
		return fmt.Sprintf("<table>\n%s</table>\n", rows.String())
	case "rule":
		return "<hr>\n"
	default:
		return fmt.Sprintf("<p%s>%s</p>\n", alignAttr(block), inlines)
	}
}

func wrapChildren(value any, tag string) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	var out strings.Builder
	for _, item := range items {
		child, ok := item.(map[string]any)
		if !ok {
			continue
		}
		inner := renderInlines(child["inlines"])
		if nested := renderBlocks(child["blocks"]); nested != "" {
			inner += nested
		}
		fmt.Fprintf(&out, "<%s>%s</%s>\n", tag, inner, tag)
	}
	return out.String()
}

func alignAttr(block map[string]any) string {
	switch align, _ := block["alignment"].(string); align {
	case "center", "right", "justify":
		return fmt.Sprintf(` style="text-align: %s"`, align)
	default:
		return ""
	}
}

func renderInlines(value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	var out strings.Builder
	for _, item := range items {
		run, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out.WriteString(renderRun(run))
	}
	return out.String()
}

// renderRun renders a text run with its formatting flags, innermost first.
func renderRun(run map[string]any) string {
	text, _ := run["text"].(string)
	if text == "" {
		return ""
	}
	htmlText := strings.ReplaceAll(html.EscapeString(text), "\n", "<br>")

	if flag(run, "underline") {
		htmlText = fmt.Sprintf("<u>%s</u>", htmlText)
	}
	if flag(run, "italic") {
		htmlText = fmt.Sprintf("<em>%s</em>", htmlText)
	}
	if flag(run, "bold") {
		htmlText = fmt.Sprintf("<strong>%s</strong>", htmlText)
	}
	if flag(run, "code") {
		htmlText = fmt.Sprintf("<code>%s</code>", htmlText)
	}
	if href, _ := run["link"].(string); href != "" {
		htmlText = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(href), htmlText)
	}
	return htmlText
}

func flag(run map[string]any, key string) bool {
	value, _ := run[key].(bool)
	return value
}

func inlineText(value any) string {
	items, ok := value.([]any)
	if !ok {
		return ""
	}
	var out strings.Builder
	for _, item := range items {
		if run, ok := item.(map[string]any); ok {
			text, _ := run["text"].(string)
			out.WriteString(text)
		}
	}
	return out.String()
}

func collectText(value any, lines *[]string, prefix string) {
	items, ok := value.([]any)
	if !ok {
		return
	}
	for _, item := range items {
		block, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if text := strings.TrimSpace(inlineText(block["inlines"])); text != "" {
			*lines = append(*lines, prefix+text)
		}
		childPrefix := prefix
		if blockType, _ := block["type"].(string); blockType == "list" {
			childPrefix = prefix + "- "
		}
		collectText(block["blocks"], lines, childPrefix)
	}
}

func plainToHTML(content string) string {
	paragraphs := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")
	var out strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fmt.Fprintf(&out, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
	}
	return out.String()
}
