package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"resume-screener-go/internal/logger"
)

const (
	// DashScope的OpenAI兼容端点
	openAICompatibleQwenAPIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName       = "qwen-plus"
)

// OpenAIToolFunctionParamsProperty 工具参数中单个属性的schema
type OpenAIToolFunctionParamsProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// OpenAIToolFunctionParams 工具参数的整体schema，Type固定为"object"
type OpenAIToolFunctionParams struct {
	Type       string                                      `json:"type"`
	Properties map[string]OpenAIToolFunctionParamsProperty `json:"properties"`
	Required   []string                                    `json:"required,omitempty"`
}

// OpenAIFunction 函数定义
type OpenAIFunction struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Parameters  OpenAIToolFunctionParams `json:"parameters"`
}

// OpenAITool 工具定义，Type固定为"function"
type OpenAITool struct {
	Type     string         `json:"type"`
	Function OpenAIFunction `json:"function"`
}

// AliyunQwenChatModel 通过OpenAI兼容API与阿里云通义千问交互，
// 实现 model.ChatModel 与 model.ToolCallingChatModel 接口。
type AliyunQwenChatModel struct {
	apiKey           string
	modelName        string
	apiURL           string
	httpClient       *http.Client
	boundOpenAITools []OpenAITool
}

// NewAliyunQwenChatModel 创建一个新的通义千问模型客户端
func NewAliyunQwenChatModel(apiKey string, modelName string, apiURL string) (*AliyunQwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultQwenModelName
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = openAICompatibleQwenAPIURL
	}

	logger.Info().Str("api_url", url).Str("model", mn).Msg("初始化通义千问LLM客户端")

	return &AliyunQwenChatModel{
		apiKey:           apiKey,
		modelName:        mn,
		apiURL:           url,
		httpClient:       &http.Client{},
		boundOpenAITools: make([]OpenAITool, 0),
	}, nil
}

type openAIChatCompletionRequest struct {
	Model    string            `json:"model"`
	Messages []*schema.Message `json:"messages"`
	Tools    []OpenAITool      `json:"tools,omitempty"`
}

type openAIMessage struct {
	Role      string               `json:"role"`
	Content   *string              `json:"content"` // 有tool_calls时可能为null
	ToolCalls []openAIToolCallData `json:"tool_calls,omitempty"`
}

type openAIToolCallData struct {
	Id       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAIChatChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openAICompletionResponse struct {
	Id      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIChatChoice `json:"choices"`
}

// Generate 实现 model.ChatModel 接口
func (aq *AliyunQwenChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	for _, opt := range options {
		_ = opt // 工具配置经由WithTools完成，通用选项此处不处理
	}

	// 前一条assistant消息没有结构化tool_calls时，其后的tool消息
	// 来自ReAct文本解析，观察结果已在prompt中，不再发给API
	var llmMessagesForAPI []*schema.Message
	for i, currentMsg := range messages {
		if currentMsg.Role == schema.RoleType("tool") && i > 0 {
			prevMsg := messages[i-1]
			if prevMsg.Role == schema.RoleType("assistant") && len(prevMsg.ToolCalls) == 0 {
				logger.Debug().
					Str("tool_call_id", currentMsg.ToolCallID).
					Str("name", currentMsg.Name).
					Msg("跳过无对应tool_calls的工具消息")
				continue
			}
		}
		llmMessagesForAPI = append(llmMessagesForAPI, currentMsg)
	}

	reqPayload := openAIChatCompletionRequest{
		Model:    aq.modelName,
		Messages: llmMessagesForAPI,
	}
	if len(aq.boundOpenAITools) > 0 {
		reqPayload.Tools = aq.boundOpenAITools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, aq.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+aq.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := aq.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, string(bodyBytes))
	}

	var openAIResp openAICompletionResponse
	if err := json.Unmarshal(bodyBytes, &openAIResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}
	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(bodyBytes))
	}

	apiMessage := openAIResp.Choices[0].Message
	responseContent := ""
	if apiMessage.Content != nil {
		responseContent = *apiMessage.Content
	}

	resultMessage := &schema.Message{
		Role:    schema.RoleType(apiMessage.Role),
		Content: responseContent,
	}

	if len(apiMessage.ToolCalls) > 0 {
		resultMessage.ToolCalls = make([]schema.ToolCall, len(apiMessage.ToolCalls))
		for i, tc := range apiMessage.ToolCalls {
			resultMessage.ToolCalls[i] = schema.ToolCall{
				ID: tc.Id,
				Function: schema.FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	if resultMessage.Role == "" {
		resultMessage.Role = schema.RoleType("assistant")
	}

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口。OpenAI兼容模式下暂未实现流式输出。
func (aq *AliyunQwenChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AliyunQwenChatModel 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口。
// schema.ParamsOneOf 无法可靠导出内部参数映射，这里为已知工具
// 硬编码其OpenAI参数schema，未知工具退化为空对象。
func (aq *AliyunQwenChatModel) BindTools(tools []*schema.ToolInfo) error {
	aq.boundOpenAITools = make([]OpenAITool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}

		var params OpenAIToolFunctionParams
		switch toolInfo.Name {
		case "search_resumes":
			params = OpenAIToolFunctionParams{
				Type: "object",
				Properties: map[string]OpenAIToolFunctionParamsProperty{
					"query": {Type: "string", Description: "招聘需求的自然语言描述，例如：5年以上经验的高级Go后端工程师"},
					"limit": {Type: "integer", Description: "返回候选人的最大数量，默认为5"},
					"use_structured_search": {Type: "boolean", Description: "是否先将查询解析为结构化条件再检索，默认为true"},
				},
				Required: []string{"query"},
			}
		case "get_information":
			params = OpenAIToolFunctionParams{
				Type: "object",
				Properties: map[string]OpenAIToolFunctionParamsProperty{
					"question": {Type: "string", Description: "需要在简历库中检索的问题"},
					"limit":    {Type: "integer", Description: "返回文本片段的最大数量，默认为4"},
				},
				Required: []string{"question"},
			}
		default:
			logger.Warn().Str("tool", toolInfo.Name).Msg("工具参数schema未显式定义，使用空对象")
			params = OpenAIToolFunctionParams{Type: "object", Properties: map[string]OpenAIToolFunctionParamsProperty{}}
		}

		aq.boundOpenAITools = append(aq.boundOpenAITools, OpenAITool{
			Type: "function",
			Function: OpenAIFunction{
				Name:        toolInfo.Name,
				Description: toolInfo.Desc,
				Parameters:  params,
			},
		})
	}

	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口，内部复用 BindTools
func (aq *AliyunQwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := aq.BindTools(tools); err != nil {
		return nil, err
	}
	return aq, nil
}

var _ model.ChatModel = (*AliyunQwenChatModel)(nil)
var _ model.ToolCallingChatModel = (*AliyunQwenChatModel)(nil)
