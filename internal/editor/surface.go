// Package editor defines the rich-text editing surface capability and an
// in-memory implementation that keeps the live serialized content of a workspace.
package editor

import (
	"encoding/json"
	"strings"
	"sync"
)

// Surface is the capability the document core needs from an editor widget.
type Surface interface {
	Serialize() string
	Open(serialized string)
	SelectAll()
	Delete()
	InsertText(text string)
	Selection() *Selection
}

// Selection exposes character and paragraph formatting toggles for the current
// selection.
type Selection struct {
	mu        sync.Mutex
	bold      bool
	italic    bool
	underline bool
	alignment string
}

type SelectionFormat struct {
	Bold      bool   `json:"bold"`
	Italic    bool   `json:"italic"`
	Underline bool   `json:"underline"`
	Alignment string `json:"alignment"`
}

func (s *Selection) ToggleBold()      { s.toggle(&s.bold) }
func (s *Selection) ToggleItalic()    { s.toggle(&s.italic) }
func (s *Selection) ToggleUnderline() { s.toggle(&s.underline) }

func (s *Selection) toggle(flag *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*flag = !*flag
}

// SetAlignment accepts left, center, right or justify; anything else resets to left.
func (s *Selection) SetAlignment(alignment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch alignment {
	case "left", "center", "right", "justify":
		s.alignment = alignment
	default:
		s.alignment = "left"
	}
}

func (s *Selection) Format() SelectionFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	alignment := s.alignment
	if alignment == "" {
		alignment = "left"
	}
	return SelectionFormat{Bold: s.bold, Italic: s.italic, Underline: s.underline, Alignment: alignment}
}

// Buffer is a Surface over a serialized string. Structured content keeps its
// shape when text is inserted: the text becomes a new paragraph block in the
// last section.
type Buffer struct {
	mu          sync.Mutex
	content     string
	allSelected bool
	selection   Selection
}

var _ Surface = (*Buffer)(nil)

func NewBuffer(content string) *Buffer {
	return &Buffer{content: content}
}

func (b *Buffer) Serialize() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content
}

func (b *Buffer) Open(serialized string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content = serialized
	b.allSelected = false
}

func (b *Buffer) SelectAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSelected = true
}

// Delete removes the selection. Without a select-all it is a no-op.
func (b *Buffer) Delete() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allSelected {
		b.content = ""
		b.allSelected = false
	}
}

func (b *Buffer) InsertText(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allSelected {
		b.content = ""
		b.allSelected = false
	}
	if text == "" {
		return
	}
	if next, ok := appendStructured(b.content, text, b.selection.Format()); ok {
		b.content = next
		return
	}
	if b.content == "" {
		b.content = text
		return
	}
	b.content = strings.TrimRight(b.content, "\n") + "\n" + text
}

func (b *Buffer) Selection() *Selection {
	return &b.selection
}

// ReplaceAll clears the surface and opens content in its place.
func ReplaceAll(s Surface, content string) {
	s.SelectAll()
	s.Delete()
	s.Open(content)
}

// appendStructured adds text as a paragraph carrying the active formatting.
func appendStructured(content, text string, format SelectionFormat) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return "", false
	}

	root := doc
	if body, ok := doc["body"].(map[string]any); ok {
		root = body
	}
	sections, ok := root["sections"].([]any)
	if !ok {
		return "", false
	}

	run := map[string]any{"text": text}
	if format.Bold {
		run["bold"] = true
	}
	if format.Italic {
		run["italic"] = true
	}
	if format.Underline {
		run["underline"] = true
	}
	paragraph := map[string]any{"inlines": []any{run}}
	if format.Alignment != "" && format.Alignment != "left" {
		paragraph["alignment"] = format.Alignment
	}
	if len(sections) == 0 {
		sections = append(sections, map[string]any{"blocks": []any{}})
	}
	last, ok := sections[len(sections)-1].(map[string]any)
	if !ok {
		return "", false
	}
	blocks, _ := last["blocks"].([]any)
	last["blocks"] = append(blocks, paragraph)
	sections[len(sections)-1] = last
	root["sections"] = sections

	encoded, err := json.Marshal(doc)
	if err != nil {
		return "", false
	}
	return string(encoded), true
}
