// Package ai relays text transformations to an OpenAI-compatible chat
// completions endpoint and records token usage per user.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"inkwell/api/internal/store"

	"github.com/sirupsen/logrus"
)

var (
	ErrUnsupportedAction = errors.New("unsupported ai action")
	ErrEmptyContent      = errors.New("content is required")
	ErrNotConfigured     = errors.New("ai provider not configured")
	ErrProvider          = errors.New("ai provider error")
)

const maxContentRunes = 20000

type Request struct {
	Action         Action `json:"action"`
	Content        string `json:"content"`
	Context        string `json:"context,omitempty"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
	Tone           string `json:"tone,omitempty"`
	Style          string `json:"style,omitempty"`
}

type Response struct {
	Result     string `json:"result"`
	TokensUsed int    `json:"tokensUsed"`
	Action     Action `json:"action"`
}

// UsageRecorder persists one usage row per successful call.
type UsageRecorder interface {
	InsertAIUsage(ctx context.Context, usage store.AIUsage) error
}

type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Service struct {
	cfg        Config
	httpClient *http.Client
	usage      UsageRecorder
}

func NewService(cfg Config, usage UsageRecorder) *Service {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		usage:      usage,
	}
}

func (s *Service) Configured() bool {
	return s.cfg.BaseURL != "" && s.cfg.APIKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transform runs req for userID. Usage logging failures are logged and do not
// fail the call.
func (s *Service) Transform(ctx context.Context, userID string, req Request) (Response, error) {
	if !req.Action.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrUnsupportedAction, req.Action)
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Response{}, ErrEmptyContent
	}
	if len([]rune(content)) > maxContentRunes {
		content = string([]rune(content)[:maxContentRunes])
	}
	if !s.Configured() {
		return Response{}, ErrNotConfigured
	}

	messages := []chatMessage{{Role: "system", Content: systemPrompt(req)}}
	if ctxText := strings.TrimSpace(req.Context); ctxText != "" {
		messages = append(messages, chatMessage{Role: "system", Content: "Document context:\n" + ctxText})
	}
	messages = append(messages, chatMessage{Role: "user", Content: content})

	completion, err := s.complete(ctx, chatRequest{Model: s.cfg.Model, Messages: messages})
	if err != nil {
		return Response{}, err
	}
	if len(completion.Choices) == 0 {
		return Response{}, fmt.Errorf("%w: empty completion", ErrProvider)
	}

	resp := Response{
		Result:     strings.TrimSpace(completion.Choices[0].Message.Content),
		TokensUsed: completion.Usage.TotalTokens,
		Action:     req.Action,
	}

	model := completion.Model
	if model == "" {
		model = s.cfg.Model
	}
	if s.usage != nil {
		if err := s.usage.InsertAIUsage(ctx, store.AIUsage{
			ID:         store.NewID(),
			UserID:     userID,
			ActionType: string(req.Action),
			TokensUsed: resp.TokensUsed,
			Model:      model,
			CreatedAt:  time.Now().UTC(),
		}); err != nil {
			logrus.WithError(err).WithField("user_id", userID).Warn("ai: record usage")
		}
	}
	return resp, nil
}

func (s *Service) complete(ctx context.Context, body chatRequest) (chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return chatResponse{}, fmt.Errorf("marshal completion request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return chatResponse{}, fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	res, err := s.httpClient.Do(req)
	if err != nil {
		return chatResponse{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return chatResponse{}, fmt.Errorf("%w: status=%d body=%s", ErrProvider, res.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out chatResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return chatResponse{}, fmt.Errorf("decode completion: %w", err)
	}
	if out.Error != nil {
		return chatResponse{}, fmt.Errorf("%w: %s", ErrProvider, out.Error.Message)
	}
	return out, nil
}
