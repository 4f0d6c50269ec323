package handler

import (
	"context"

	"resume-screener-go/internal/search"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// SearchRequest 候选人检索请求
type SearchRequest struct {
	Query               string `json:"query"`
	Limit               int    `json:"limit,omitempty"`
	UseStructuredSearch *bool  `json:"use_structured_search,omitempty"`
}

// InformationRequest 简历内容问答请求
type InformationRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit,omitempty"`
}

// Fragment 简历片段命中
type Fragment struct {
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Name    string  `json:"name,omitempty"`
}

// SearchHandler 检索相关接口处理器
type SearchHandler struct {
	searcher *search.Searcher
}

// NewSearchHandler 创建检索处理器
func NewSearchHandler(searcher *search.Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

// HandleSearch 执行候选人检索
func (h *SearchHandler) HandleSearch(ctx context.Context, req *SearchRequest) (*types.SearchResult, error) {
	useStructured := true
	if req.UseStructuredSearch != nil {
		useStructured = *req.UseStructuredSearch
	}
	return h.searcher.SearchWithStructured(ctx, req.Query, req.Limit, useStructured)
}

// HandleInformation 查询与问题相关的简历片段
func (h *SearchHandler) HandleInformation(ctx context.Context, req *InformationRequest) ([]Fragment, error) {
	docs, err := h.searcher.GetInformation(ctx, req.Question, req.Limit)
	if err != nil {
		return nil, err
	}
	return toFragments(docs), nil
}

func toFragments(docs []storage.ScoredDocument) []Fragment {
	fragments := make([]Fragment, 0, len(docs))
	for _, doc := range docs {
		f := Fragment{Content: doc.Content, Score: doc.Score}
		if name, ok := doc.Metadata["name"].(string); ok {
			f.Name = name
		}
		fragments = append(fragments, f)
	}
	return fragments
}
