package editor

import (
	"testing"

	"inkwell/api/internal/plaintext"

	"github.com/stretchr/testify/assert"
)

func TestBufferReplaceAll(t *testing.T) {
	b := NewBuffer("old content")
	ReplaceAll(b, "new content")
	assert.Equal(t, "new content", b.Serialize())
}

func TestBufferDeleteRequiresSelection(t *testing.T) {
	b := NewBuffer("keep me")
	b.Delete()
	assert.Equal(t, "keep me", b.Serialize())

	b.SelectAll()
	b.Delete()
	assert.Empty(t, b.Serialize())
}

func TestBufferInsertTextPlain(t *testing.T) {
	b := NewBuffer("")
	b.InsertText("first")
	b.InsertText("second")
	assert.Equal(t, "first\nsecond", b.Serialize())

	b.SelectAll()
	b.InsertText("replaced")
	assert.Equal(t, "replaced", b.Serialize())
}

func TestBufferInsertTextStructured(t *testing.T) {
	b := NewBuffer(`{"sections":[{"blocks":[{"inlines":[{"text":"Hello"}]}]}]}`)
	b.InsertText("world")

	assert.Equal(t, "Hello world", plaintext.Extract(b.Serialize()))
}

func TestBufferInsertTextStructuredBody(t *testing.T) {
	b := NewBuffer(`{"body":{"sections":[]}}`)
	b.InsertText("only")

	assert.Equal(t, "only", plaintext.Extract(b.Serialize()))
}

func TestSelectionToggles(t *testing.T) {
	b := NewBuffer("")
	sel := b.Selection()
	sel.ToggleBold()
	sel.ToggleItalic()
	sel.ToggleItalic()
	sel.SetAlignment("center")

	format := sel.Format()
	assert.True(t, format.Bold)
	assert.False(t, format.Italic)
	assert.Equal(t, "center", format.Alignment)

	sel.SetAlignment("diagonal")
	assert.Equal(t, "left", sel.Format().Alignment)
}

func TestInsertedTextCarriesSelectionFormat(t *testing.T) {
	b := NewBuffer(`{"sections":[{"blocks":[]}]}`)
	b.Selection().ToggleBold()
	b.Selection().SetAlignment("right")
	b.InsertText("styled")

	assert.JSONEq(t,
		`{"sections":[{"blocks":[{"alignment":"right","inlines":[{"bold":true,"text":"styled"}]}]}]}`,
		b.Serialize())
}
