package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"
)

type geminiOptions struct {
	PresencePenalty  *float32
	FrequencyPenalty *float32
}

// WithPenalties sets repetition penalties for models that support them.
// Models without the notion ignore it. Zero leaves a penalty unset.
func WithPenalties(presence, frequency float32) model.Option {
	return model.WrapImplSpecificOptFn(func(o *geminiOptions) {
		if presence != 0 {
			o.PresencePenalty = &presence
		}
		if frequency != 0 {
			o.FrequencyPenalty = &frequency
		}
	})
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiChatModel adapts the Gemini API to eino's chat model interface.
type GeminiChatModel struct {
	models    contentGenerator
	modelName string
}

// NewGeminiChatModel creates a Gemini-backed chat model using an API key.
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string) (*GeminiChatModel, error) {
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiChatModel{models: client.Models, modelName: modelName}, nil
}

// Generate implements model.BaseChatModel.
func (m *GeminiChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	contents, config := m.convert(input, opts...)

	resp, err := m.models.GenerateContent(ctx, m.modelName, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return nil, ErrEmptyResponse
	}

	return schema.AssistantMessage(resp.Text(), nil), nil
}

// Stream implements model.BaseChatModel. Closing the returned reader stops
// the underlying iteration.
func (m *GeminiChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	contents, config := m.convert(input, opts...)
	seq := m.models.GenerateContentStream(ctx, m.modelName, contents, config)

	sr, sw := schema.Pipe[*schema.Message](8)
	go func() {
		defer sw.Close()
		for resp, err := range seq {
			if err != nil {
				sw.Send(nil, fmt.Errorf("gemini stream: %w", err))
				return
			}
			if resp == nil {
				continue
			}
			if closed := sw.Send(schema.AssistantMessage(resp.Text(), nil), nil); closed {
				return
			}
		}
	}()

	return sr, nil
}

// BindTools is not supported; the relay never offers tools to the model.
func (m *GeminiChatModel) BindTools(tools []*schema.ToolInfo) error {
	if len(tools) == 0 {
		return nil
	}
	return errors.New("gemini chat model: tool binding unsupported")
}

func (m *GeminiChatModel) convert(input []*schema.Message, opts ...model.Option) ([]*genai.Content, *genai.GenerateContentConfig) {
	common := model.GetCommonOptions(&model.Options{}, opts...)
	specific := model.GetImplSpecificOptions(&geminiOptions{}, opts...)

	config := &genai.GenerateContentConfig{
		Temperature:      common.Temperature,
		TopP:             common.TopP,
		PresencePenalty:  specific.PresencePenalty,
		FrequencyPenalty: specific.FrequencyPenalty,
	}
	if common.MaxTokens != nil {
		config.MaxOutputTokens = int32(*common.MaxTokens)
	}

	var system []string
	contents := make([]*genai.Content, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, msg.Content)
		case schema.Assistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	return contents, config
}
