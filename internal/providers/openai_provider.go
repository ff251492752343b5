package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
)

// OpenAICompatProvider speaks the OpenAI chat-completions wire format. It
// backs openai, openrouter, deepseek, and groq — all of which expose an
// OpenAI-compatible endpoint differing only in base URL and model naming
// (spec.md §4.6 domain stack), generalizing the teacher's one-provider
// shape (ClaudeProvider) to the rest of the provider registry without
// inventing a second code path per vendor.
type OpenAICompatProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAICompatProvider(apiKey, baseURL, defaultModel string) *OpenAICompatProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &OpenAICompatProvider{client: &client, model: defaultModel}
}

func (p *OpenAICompatProvider) GetDefaultModel() string {
	return p.model
}

func (p *OpenAICompatProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) (*LLMResponse, error) {
	params := buildOpenAIParams(messages, tools, model, options)
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai-compatible API call: %w", err)
	}
	return parseOpenAIResponse(resp), nil
}

func (p *OpenAICompatProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, model string, options map[string]interface{}, onContent StreamCallback) (*LLMResponse, error) {
	params := buildOpenAIParams(messages, tools, model, options)
	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				onContent(delta)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai-compatible stream: %w", err)
	}
	return parseOpenAIResponse(&acc.ChatCompletion), nil
}

func buildOpenAIParams(messages []Message, tools []ToolDefinition, model string, options map[string]interface{}) openai.ChatCompletionNewParams {
	var oaMessages []openai.ChatCompletionMessageParamUnion

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			oaMessages = append(oaMessages, openai.SystemMessage(msg.Content))
		case "user":
			oaMessages = append(oaMessages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				assistantMsg := openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: param.NewOpt(msg.Content),
					},
				}
				for _, tc := range msg.ToolCalls {
					argsJSON, _ := json.Marshal(tc.Arguments)
					assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: tc.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      tc.Name,
								Arguments: string(argsJSON),
							},
						},
					})
				}
				oaMessages = append(oaMessages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})
			} else {
				oaMessages = append(oaMessages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			oaMessages = append(oaMessages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	maxTokens := int64(4096)
	if mt, ok := options["max_tokens"].(int); ok {
		maxTokens = int64(mt)
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(model),
		Messages:            oaMessages,
		MaxCompletionTokens: param.NewOpt(maxTokens),
	}
	if temp, ok := options["temperature"].(float64); ok {
		params.Temperature = param.NewOpt(temp)
	}
	if len(tools) > 0 {
		params.Tools = translateToolsForOpenAI(tools)
	}
	return params
}

func translateToolsForOpenAI(tools []ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Function.Name,
			Description: param.NewOpt(t.Function.Description),
			Parameters:  t.Function.Parameters,
		}))
	}
	return result
}

func parseOpenAIResponse(resp *openai.ChatCompletion) *LLMResponse {
	if len(resp.Choices) == 0 {
		return &LLMResponse{FinishReason: "stop"}
	}
	choice := resp.Choices[0]

	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]interface{}{"raw": tc.Function.Arguments}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
			Function:  &FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}

	finishReason := "stop"
	switch choice.FinishReason {
	case "tool_calls":
		finishReason = "tool_calls"
	case "length":
		finishReason = "length"
	}

	return &LLMResponse{
		Content:      choice.Message.Content,
		ToolCalls:    toolCalls,
		FinishReason: finishReason,
		Usage: &UsageInfo{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
}
