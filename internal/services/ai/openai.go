package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/benvon/wte-api/internal/logger"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
	"go.uber.org/zap"
)

const (
	// DefaultModel is the default model to use
	DefaultModel = "qwen-plus"
	// DefaultVisionModel is the default model for image prompts
	DefaultVisionModel = "qwen-vl-max-latest"
	// DefaultBaseURL is the default OpenAI-compatible endpoint
	DefaultBaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	// DefaultTimeout is the default timeout for non-streaming calls
	DefaultTimeout = 60 * time.Second

	previewLength = 200

	// ErrNoChoicesInResponse is returned when the API response has no choices
	ErrNoChoicesInResponse = "no choices in response"
)

// OpenAIProvider implements Provider against an OpenAI-compatible chat completions API
type OpenAIProvider struct {
	client      openai.Client
	model       string
	visionModel string
	logger      *zap.Logger
	debugMode   bool
}

// NewOpenAIProvider creates a new provider. Empty baseURL and model fall back to the defaults.
func NewOpenAIProvider(apiKey, baseURL, model string, log *zap.Logger, debugMode bool) *OpenAIProvider {
	if model == "" {
		model = DefaultModel
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}

	// Streaming replies can outlive DefaultTimeout, so the deadline is applied per call instead
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(&http.Client{}),
	)

	return &OpenAIProvider{
		client:      client,
		model:       model,
		visionModel: DefaultVisionModel,
		logger:      log,
		debugMode:   debugMode,
	}
}

// SetVisionModel overrides the model used for image prompts. Empty keeps the default.
func (p *OpenAIProvider) SetVisionModel(model string) {
	if model != "" {
		p.visionModel = model
	}
}

// Model returns the configured model name
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends messages and returns the content of the first choice
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	p.logRequest("complete", messages)

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, p.params(messages))
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error",
			zap.String("operation", "complete"),
			zap.String("model", p.model),
			zap.String("error", logger.SanitizeError(err)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to complete chat: %w", apiErr)
		}
		return "", fmt.Errorf("failed to complete chat: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}
	content := resp.Choices[0].Message.Content

	if p.debugMode {
		p.logger.Debug("llm_api_response",
			zap.String("operation", "complete"),
			zap.String("model", p.model),
			zap.Int("response_length", len(content)),
			zap.String("response_preview", logger.SanitizeDebugContent(content)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
	}

	return content, nil
}

// CompleteImage sends the image inline as a data URL to the vision model
func (p *OpenAIProvider) CompleteImage(ctx context.Context, system, prompt string, image []byte, contentType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	if p.debugMode {
		p.logger.Debug("llm_api_request",
			zap.String("operation", "complete_image"),
			zap.String("model", p.visionModel),
			zap.String("content_type", contentType),
			zap.Int("image_bytes", len(image)),
		)
	}

	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.visionModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(prompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
			}),
		},
	}

	start := time.Now()
	resp, err := p.client.Chat.Completions.New(ctx, params)
	latency := time.Since(start)
	if err != nil {
		p.logger.Warn("llm_api_error",
			zap.String("operation", "complete_image"),
			zap.String("model", p.visionModel),
			zap.String("error", logger.SanitizeError(err)),
			zap.Int64("latency_ms", latency.Milliseconds()),
		)
		if apiErr := ExtractAPIError(err); apiErr != nil {
			return "", fmt.Errorf("failed to complete image prompt: %w", apiErr)
		}
		return "", fmt.Errorf("failed to complete image prompt: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New(ErrNoChoicesInResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the content deltas of the first choice
func (p *OpenAIProvider) CompleteStream(ctx context.Context, messages []Message) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)

	p.logRequest("complete_stream", messages)

	go func() {
		defer close(errs)
		defer close(chunks)

		stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(messages))
		defer func() {
			_ = stream.Close()
		}()

		start := time.Now()
		received := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			received += len(delta)
			select {
			case chunks <- delta:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}

		if err := stream.Err(); err != nil {
			p.logger.Warn("llm_stream_error",
				zap.String("model", p.model),
				zap.String("error", logger.SanitizeError(err)),
				zap.Int("received_bytes", received),
			)
			if apiErr := ExtractAPIError(err); apiErr != nil {
				errs <- fmt.Errorf("failed to stream chat: %w", apiErr)
				return
			}
			errs <- fmt.Errorf("failed to stream chat: %w", err)
			return
		}

		if p.debugMode {
			p.logger.Debug("llm_stream_completed",
				zap.String("model", p.model),
				zap.Int("response_length", received),
				zap.Int64("latency_ms", time.Since(start).Milliseconds()),
			)
		}
	}()

	return chunks, errs
}

func (p *OpenAIProvider) params(messages []Message) openai.ChatCompletionNewParams {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			converted = append(converted, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			converted = append(converted, openai.AssistantMessage(msg.Content))
		default:
			converted = append(converted, openai.UserMessage(msg.Content))
		}
	}

	// Temperature omitted - some compatible endpoints only accept their default
	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: converted,
	}
}

func (p *OpenAIProvider) logRequest(operation string, messages []Message) {
	if !p.debugMode {
		return
	}
	previews := make([]string, 0, len(messages))
	for _, msg := range messages {
		previews = append(previews, logger.SanitizeString(msg.Content, previewLength))
	}
	p.logger.Debug("llm_api_request",
		zap.String("operation", operation),
		zap.String("model", p.model),
		zap.Int("message_count", len(messages)),
		zap.Strings("message_previews", previews),
	)
}

var (
	_ Provider       = (*OpenAIProvider)(nil)
	_ VisionProvider = (*OpenAIProvider)(nil)
)
