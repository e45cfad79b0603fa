package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const summaryPrompt = `You are a meeting assistant.

From the following transcript, return a JSON object with:
- summary
- action_items (list)
- key_decisions (list)

Transcript:
%s`

// Config contains OpenAI summarizer configuration.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = openai.GPT4oMini
	}
	if c.Temperature <= 0 {
		c.Temperature = 0.3
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// OpenAISummarizer implements Summarizer using the OpenAI chat completions
// API.
type OpenAISummarizer struct {
	client *openai.Client
	config Config
}

// NewOpenAI creates an OpenAI-backed summarizer.
func NewOpenAI(cfg Config) (*OpenAISummarizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key cannot be empty")
	}
	cfg.applyDefaults()

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &OpenAISummarizer{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}, nil
}

// Summarize sends the transcript to the model and parses the structured
// reply.
func (s *OpenAISummarizer) Summarize(ctx context.Context, transcript string) (Result, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.config.Model,
		Temperature: s.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(summaryPrompt, transcript),
			},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("summarization request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, fmt.Errorf("summarization returned no choices")
	}

	return ParseResult(resp.Choices[0].Message.Content)
}

// ParseResult parses the model reply into a Result. Models often wrap JSON
// in a markdown code fence; the fence is stripped before parsing.
func ParseResult(content string) (Result, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Result{}, fmt.Errorf("failed to parse summarization reply: %w", err)
	}
	return result, nil
}
