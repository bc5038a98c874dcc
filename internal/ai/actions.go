package ai

import (
	"fmt"
	"strings"
)

// Action names a text transformation.
type Action string

const (
	ActionChat      Action = "chat"
	ActionRewrite   Action = "rewrite"
	ActionSummarize Action = "summarize"
	ActionGrammar   Action = "grammar"
	ActionTranslate Action = "translate"
	ActionExpand    Action = "expand"
	ActionComplete  Action = "complete"
)

var actions = map[Action]string{
	ActionChat:      "You are a helpful writing assistant embedded in a document editor. Answer concisely.",
	ActionRewrite:   "Rewrite the user's text to improve clarity and flow while keeping its meaning.",
	ActionSummarize: "Summarize the user's text in a few sentences.",
	ActionGrammar:   "Correct spelling, grammar and punctuation in the user's text. Return only the corrected text.",
	ActionTranslate: "Translate the user's text into %s. Return only the translation.",
	ActionExpand:    "Expand the user's text with more detail and supporting points.",
	ActionComplete:  "Continue the user's text naturally from where it stops. Return only the continuation.",
}

func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// systemPrompt builds the instruction for req. req must hold a valid action.
func systemPrompt(req Request) string {
	prompt := actions[req.Action]
	if req.Action == ActionTranslate {
		lang := strings.TrimSpace(req.TargetLanguage)
		if lang == "" {
			lang = "English"
		}
		prompt = fmt.Sprintf(prompt, lang)
	}
	var extra []string
	if req.Tone != "" {
		extra = append(extra, "Use a "+req.Tone+" tone.")
	}
	if req.Style != "" {
		extra = append(extra, "Follow a "+req.Style+" style.")
	}
	if len(extra) > 0 {
		prompt += " " + strings.Join(extra, " ")
	}
	return prompt
}
