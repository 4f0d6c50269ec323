package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"resume-screener-go/internal/logger"
)

// PDFTextExtractor 基于 Eino PDF Parser 的文本提取器，用于上传链路
// 把PDF简历转成纯文本，核心入库流程只消费文本。
type PDFTextExtractor struct {
	parser  *pdf.PDFParser
	timeout time.Duration
}

// NewPDFTextExtractor 初始化PDF文本提取器。
// 不按页面分割，整个文档作为一个连续字符串返回。
func NewPDFTextExtractor(ctx context.Context) (*PDFTextExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false,
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}

	return &PDFTextExtractor{
		parser:  p,
		timeout: 30 * time.Second,
	}, nil
}

// ExtractText 从Reader中提取PDF全文
func (e *PDFTextExtractor) ExtractText(ctx context.Context, reader io.Reader, uri string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("PDF解析失败 (URI %s): %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF解析无结果 (URI %s)", uri)
	}

	// 理论上ToPages=false时只有一个文档，合并只是兜底
	var fullContent string
	for i, doc := range docs {
		fullContent += doc.Content
		if i < len(docs)-1 {
			fullContent += "\n\n"
		}
	}

	logger.Debug().
		Str("uri", uri).
		Int("chars", len(fullContent)).
		Dur("duration", time.Since(start)).
		Msg("PDF文本提取完成")

	return fullContent, nil
}

// ExtractTextFromBytes 从字节数组中提取PDF全文
func (e *PDFTextExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	return e.ExtractText(ctx, bytes.NewReader(data), uri)
}
