package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/hirestream/backend/internal/model/chat"
	"github.com/zhouzirui/hirestream/backend/internal/observability"
)

var (
	ErrEmptyPrompt      = errors.New("prompt is empty")
	ErrRetrieverMissing = errors.New("profile requires retrieval but no retriever is configured")
	ErrEmptyResponse    = errors.New("model returned an empty response")
)

// Retriever supplies context passages for retrieval-backed profiles.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
}

// Option configures a Service.
type Option func(*Service)

// WithRetriever attaches the passage source used by retrieval profiles.
func WithRetriever(r Retriever) Option {
	return func(s *Service) {
		s.retriever = r
	}
}

// Service runs chat completions for a Profile through a compiled eino chain.
type Service struct {
	chatModel model.ChatModel
	chain     compose.Runnable[map[string]any, *schema.Message]
	retriever Retriever
}

// NewService creates a new AI service instance
func NewService(ctx context.Context, chatModel model.ChatModel, opts ...Option) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("turns", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	svc := &Service{
		chatModel: chatModel,
		chain:     runnable,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Generate returns the complete response for a payload.
func (s *Service) Generate(ctx context.Context, profile Profile, payload chat.Payload) (*schema.Message, error) {
	input, err := s.BuildInput(ctx, profile, payload)
	if err != nil {
		return nil, err
	}

	response, err := s.chain.Invoke(ctx, input, chatModelOptions(profile))
	if err != nil {
		return nil, fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return nil, ErrEmptyResponse
	}

	observability.LoggerFromContext(ctx).Info("generated response",
		"profile", profile.Name, "length", len(response.Content))
	return response, nil
}

// Stream opens an incremental response for a payload. The caller owns the
// returned reader and must Close it.
func (s *Service) Stream(ctx context.Context, profile Profile, payload chat.Payload) (*schema.StreamReader[*schema.Message], error) {
	input, err := s.BuildInput(ctx, profile, payload)
	if err != nil {
		return nil, err
	}

	stream, err := s.chain.Stream(ctx, input, chatModelOptions(profile))
	if err != nil {
		return nil, fmt.Errorf("failed to stream AI chain output: %w", err)
	}
	return stream, nil
}

// BuildInput renders the chain variables: the fixed instruction (plus any
// retrieved passages) and the user turns that follow it.
func (s *Service) BuildInput(ctx context.Context, profile Profile, payload chat.Payload) (map[string]any, error) {
	if payload.Empty() {
		return nil, ErrEmptyPrompt
	}

	var passages []string
	if profile.UsesRetrieval() {
		if s.retriever == nil {
			return nil, ErrRetrieverMissing
		}
		found, err := s.retriever.Retrieve(ctx, payload.Query(), profile.TopK)
		if err != nil {
			return nil, fmt.Errorf("retrieve context: %w", err)
		}
		passages = found
	}

	return map[string]any{
		"system": profile.systemPrompt(passages),
		"turns":  buildTurns(profile, payload),
	}, nil
}

func buildTurns(profile Profile, payload chat.Payload) []*schema.Message {
	if strings.TrimSpace(payload.Prompt) != "" {
		return []*schema.Message{schema.UserMessage(profile.frameQuery(payload.Prompt))}
	}

	turns := make([]*schema.Message, 0, len(payload.Messages))
	for _, msg := range payload.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case chat.RoleAssistant:
			turns = append(turns, schema.AssistantMessage(msg.Content, nil))
		default:
			turns = append(turns, schema.UserMessage(msg.Content))
		}
	}
	return turns
}

func chatModelOptions(profile Profile) compose.Option {
	params := profile.Params
	opts := []model.Option{
		model.WithTemperature(params.Temperature),
		model.WithTopP(params.TopP),
		WithPenalties(params.PresencePenalty, params.FrequencyPenalty),
	}
	if params.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(params.MaxTokens))
	}
	return compose.WithChatModelOption(opts...)
}
