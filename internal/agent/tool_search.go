package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/search"
)

// SearchResumesTool 把候选人检索流水线暴露为LLM可调用的工具，
// 供对话式筛选场景让模型自行决定何时触发检索。
type SearchResumesTool struct {
	searcher *search.Searcher
}

// NewSearchResumesTool 创建候选人检索工具
func NewSearchResumesTool(searcher *search.Searcher) *SearchResumesTool {
	return &SearchResumesTool{searcher: searcher}
}

// Info 返回工具的元信息，符合 tool.BaseTool 接口
func (t *SearchResumesTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "search_resumes",
		Desc: "按招聘需求检索候选人，返回带匹配度评估的排名结果。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     "string",
				Desc:     "招聘需求描述，例如：上海5年以上经验的高级Go后端工程师",
				Required: true,
			},
			"limit": {
				Type: "integer",
				Desc: "返回的候选人数量上限，默认5",
			},
			"use_structured_search": {
				Type: "boolean",
				Desc: "是否先将需求解析为结构化条件再检索，默认true",
			},
		}),
	}, nil
}

// InvokableRun 执行检索，结果以JSON字符串返回给模型
func (t *SearchResumesTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args struct {
		Query               string `json:"query"`
		Limit               int    `json:"limit,omitempty"`
		UseStructuredSearch *bool  `json:"use_structured_search,omitempty"`
	}

	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		// 模型偶尔会直接给出纯文本查询
		if strings.TrimSpace(argumentsInJSON) == "" {
			return "", fmt.Errorf("search_resumes 的输入为空: %w", err)
		}
		args.Query = argumentsInJSON
	}

	useStructured := true
	if args.UseStructuredSearch != nil {
		useStructured = *args.UseStructuredSearch
	}

	result, err := t.searcher.SearchWithStructured(ctx, args.Query, args.Limit, useStructured)
	if err != nil {
		return "", fmt.Errorf("候选人检索失败: %w", err)
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("序列化检索结果失败: %w", err)
	}

	logger.Debug().
		Str("query", args.Query).
		Int("results", result.TotalResults).
		Msg("search_resumes 工具执行完毕")
	return string(payload), nil
}

var _ tool.BaseTool = (*SearchResumesTool)(nil)
var _ tool.InvokableTool = (*SearchResumesTool)(nil)

// GetInformationTool 针对已入库简历内容的自由问答工具，
// 返回与问题最相关的简历片段而非排名候选人。
type GetInformationTool struct {
	searcher *search.Searcher
}

// NewGetInformationTool 创建简历内容问答工具
func NewGetInformationTool(searcher *search.Searcher) *GetInformationTool {
	return &GetInformationTool{searcher: searcher}
}

func (t *GetInformationTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "get_information",
		Desc: "在已入库的简历内容中查找与问题相关的片段，用于回答具体问题。",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"question": {
				Type:     "string",
				Desc:     "要查询的问题，例如：哪些候选人有Kubernetes生产经验？",
				Required: true,
			},
			"limit": {
				Type: "integer",
				Desc: "返回的片段数量上限，默认5",
			},
		}),
	}, nil
}

func (t *GetInformationTool) InvokableRun(ctx context.Context, argumentsInJSON string, opts ...tool.Option) (string, error) {
	var args struct {
		Question string `json:"question"`
		Limit    int    `json:"limit,omitempty"`
	}

	if err := json.Unmarshal([]byte(argumentsInJSON), &args); err != nil {
		if strings.TrimSpace(argumentsInJSON) == "" {
			return "", fmt.Errorf("get_information 的输入为空: %w", err)
		}
		args.Question = argumentsInJSON
	}

	docs, err := t.searcher.GetInformation(ctx, args.Question, args.Limit)
	if err != nil {
		return "", fmt.Errorf("简历内容查询失败: %w", err)
	}

	type fragment struct {
		Content string  `json:"content"`
		Score   float64 `json:"score"`
		Name    string  `json:"name,omitempty"`
	}
	fragments := make([]fragment, 0, len(docs))
	for _, doc := range docs {
		f := fragment{Content: doc.Content, Score: doc.Score}
		if name, ok := doc.Metadata["name"].(string); ok {
			f.Name = name
		}
		fragments = append(fragments, f)
	}

	payload, err := json.Marshal(fragments)
	if err != nil {
		return "", fmt.Errorf("序列化查询结果失败: %w", err)
	}
	return string(payload), nil
}

var _ tool.BaseTool = (*GetInformationTool)(nil)
var _ tool.InvokableTool = (*GetInformationTool)(nil)
