package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonschema"
	"github.com/sashabaranov/go-openai"

	"github.com/bryanwahyu/docrisk/internal/domain/ai"
	"github.com/bryanwahyu/docrisk/internal/domain/document"
	"github.com/bryanwahyu/docrisk/internal/infra/ai/prompt"
)

const maxTokens = 1024

// Client implements ai.SemanticValidator and ai.VisualClassifier. It holds
// no per-call state and is shared across pipeline runs.
type Client struct {
	*openai.Client
	Model       string
	VisionModel string

	semantic *jsonschema.Schema
	visual   *jsonschema.Schema
}

var (
	_ ai.SemanticValidator = (*Client)(nil)
	_ ai.VisualClassifier  = (*Client)(nil)
)

// NewClient builds a client; baseURL may be empty for the public API.
func NewClient(apiKey, baseURL, model, visionModel string) (*Client, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	compiler := jsonschema.NewCompiler()
	semantic, err := compiler.Compile([]byte(prompt.SemanticSchema))
	if err != nil {
		return nil, fmt.Errorf("compile semantic schema: %w", err)
	}
	visual, err := compiler.Compile([]byte(prompt.VisualSchema))
	if err != nil {
		return nil, fmt.Errorf("compile visual schema: %w", err)
	}
	if visionModel == "" {
		visionModel = model
	}
	return &Client{
		Client:      openai.NewClientWithConfig(cfg),
		Model:       model,
		VisionModel: visionModel,
		semantic:    semantic,
		visual:      visual,
	}, nil
}

// Validate runs the consistency check over the extracted text.
func (c *Client) Validate(ctx context.Context, ext document.Extraction) (document.SemanticResult, error) {
	var out document.SemanticResult
	if strings.TrimSpace(ext.Text) == "" {
		return out, errors.New("semantic validation: no extracted text")
	}
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.SemanticSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, Content: prompt.SemanticUserPrompt(ext)},
	}
	if err := c.complete(ctx, c.Model, msgs, c.semantic, &out); err != nil {
		return document.SemanticResult{}, fmt.Errorf("semantic validation: %w", err)
	}
	return out, nil
}

// ClassifySynthetic returns the model's probability that img is generated.
func (c *Client) ClassifySynthetic(ctx context.Context, img document.ImageAsset) (float64, error) {
	url, err := dataURL(img)
	if err != nil {
		return 0, err
	}
	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt.VisualSystemPrompt()},
		{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: prompt.VisualUserPrompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailLow}},
		}},
	}
	var out struct {
		Probability float64 `json:"synthetic_probability"`
		Rationale   string  `json:"rationale"`
	}
	if err := c.complete(ctx, c.VisionModel, msgs, c.visual, &out); err != nil {
		return 0, fmt.Errorf("visual classification of image %d: %w", img.Index, err)
	}
	return out.Probability, nil
}

func (c *Client) complete(ctx context.Context, model string, msgs []openai.ChatCompletionMessage, schema *jsonschema.Schema, out any) error {
	req := openai.ChatCompletionRequest{
		Model: model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: msgs,
	}
	// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
	if isReasoning(model) {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		if quota(err) {
			return fmt.Errorf("%w: %v", ai.ErrQuotaExceeded, err)
		}
		return fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("%w: no choices", ai.ErrMalformedResponse)
	}
	content := []byte(strings.TrimSpace(resp.Choices[0].Message.Content))
	if res := schema.ValidateJSON(content); !res.IsValid() {
		return fmt.Errorf("%w: %v", ai.ErrMalformedResponse, res.Errors)
	}
	if err := json.Unmarshal(content, out); err != nil {
		return fmt.Errorf("%w: %v", ai.ErrMalformedResponse, err)
	}
	return nil
}

func isReasoning(model string) bool {
	for _, p := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

func quota(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	var reqErr *openai.RequestError
	return errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests
}

// dataURL inlines the image. JPEG and PNG go as stored; everything else is
// decoded and re-encoded as PNG.
func dataURL(img document.ImageAsset) (string, error) {
	mime := map[string]string{"jpeg": "image/jpeg", "png": "image/png"}[img.Encoding]
	data := img.Bytes()
	if mime == "" || len(data) == 0 {
		raster, err := img.Decode()
		if err != nil {
			return "", err
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, raster); err != nil {
			return "", fmt.Errorf("encode image %d: %w", img.Index, err)
		}
		mime, data = "image/png", buf.Bytes()
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
