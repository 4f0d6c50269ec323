package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/parser"
	"resume-screener-go/internal/processor"
	"resume-screener-go/internal/storage"
)

// UploadResponse 异步上传的应答
type UploadResponse struct {
	CandidateID string `json:"candidate_id"`
	Status      string `json:"status"`
}

// IngestResponse 同步摄取的应答
type IngestResponse struct {
	CandidateID string            `json:"candidate_id"`
	Metadata    map[string]string `json:"metadata"`
}

// ResumeHandler 简历上传与摄取处理器
type ResumeHandler struct {
	storage      *storage.Storage
	ingestor     *processor.Ingestor
	pdfExtractor *parser.PDFTextExtractor
}

// NewResumeHandler 创建简历处理器
func NewResumeHandler(storageManager *storage.Storage, ingestor *processor.Ingestor, pdfExtractor *parser.PDFTextExtractor) *ResumeHandler {
	return &ResumeHandler{
		storage:      storageManager,
		ingestor:     ingestor,
		pdfExtractor: pdfExtractor,
	}
}

// CanQueue 判断异步上传链路（MinIO+RabbitMQ）是否可用
func (h *ResumeHandler) CanQueue() bool {
	return h.storage != nil && h.storage.MinIO != nil && h.storage.RabbitMQ != nil
}

// HandleAsyncUpload 接收原始简历文件：归档到MinIO后发布摄取事件，立即返回。
// 实际的文本提取与结构化解析由后台worker完成。
func (h *ResumeHandler) HandleAsyncUpload(ctx context.Context, reader io.Reader, fileSize int64, filename string) (*UploadResponse, error) {
	if !h.CanQueue() {
		return nil, fmt.Errorf("异步上传链路不可用（MinIO或RabbitMQ未配置）")
	}

	candidateID := uuid.NewString()
	fileExt := strings.ToLower(filepath.Ext(filename))

	objectKey, err := h.storage.MinIO.UploadOriginal(ctx, candidateID, fileExt, reader, fileSize)
	if err != nil {
		return nil, fmt.Errorf("归档原始简历失败: %w", err)
	}

	msg := &storage.ResumeUploadedMessage{
		CandidateID:       candidateID,
		OriginalObjectKey: objectKey,
		OriginalFilename:  filename,
		UploadedAt:        time.Now().UTC(),
	}
	if err := h.storage.RabbitMQ.PublishResumeUploaded(ctx, msg); err != nil {
		// 对象已归档但事件未发出，删除对象避免产生无人处理的孤儿文件
		if delErr := h.storage.MinIO.DeleteOriginal(ctx, objectKey); delErr != nil {
			logger.Warn().Err(delErr).Str("object_key", objectKey).Msg("清理孤儿简历文件失败")
		}
		return nil, fmt.Errorf("发布简历上传事件失败: %w", err)
	}

	logger.Info().
		Str("candidate_id", candidateID).
		Str("file_name", filename).
		Msg("简历已入队等待摄取")
	return &UploadResponse{CandidateID: candidateID, Status: "queued"}, nil
}

// HandleSyncIngest 同步摄取一段简历原文，阻塞直到候选人记录生成
func (h *ResumeHandler) HandleSyncIngest(ctx context.Context, rawContent string, extra map[string]string) (*IngestResponse, error) {
	record, err := h.ingestor.Ingest(ctx, rawContent, extra)
	if err != nil {
		return nil, err
	}
	return &IngestResponse{
		CandidateID: record.ID,
		Metadata:    record.Metadata,
	}, nil
}

// ProcessUploadedMessage 消费一条简历上传事件：下载原文、提取文本、执行摄取。
// 返回的error为nil时消息可Ack；校验类与重复类错误同样Ack（重试无意义），
// 其余错误Nack重新入队。
func (h *ResumeHandler) ProcessUploadedMessage(ctx context.Context, msg *storage.ResumeUploadedMessage) error {
	if h.storage == nil || h.storage.MinIO == nil {
		return fmt.Errorf("MinIO未配置，无法处理上传事件")
	}

	data, err := h.storage.MinIO.GetOriginal(ctx, msg.OriginalObjectKey)
	if err != nil {
		return fmt.Errorf("下载原始简历失败 (%s): %w", msg.OriginalObjectKey, err)
	}

	text, err := h.extractText(ctx, data, msg.OriginalFilename, msg.OriginalObjectKey)
	if err != nil {
		return fmt.Errorf("提取简历文本失败 (%s): %w", msg.OriginalObjectKey, err)
	}

	extra := map[string]string{
		"fileName":          msg.OriginalFilename,
		"originalObjectKey": msg.OriginalObjectKey,
	}
	for k, v := range msg.Metadata {
		extra[k] = v
	}

	_, err = h.ingestor.Ingest(ctx, text, extra)
	return err
}

// IsPermanentIngestError 判断摄取错误是否无法通过重试解决
func IsPermanentIngestError(err error) bool {
	return errors.Is(err, processor.ErrValidation) || errors.Is(err, processor.ErrDuplicate)
}

// extractText 按文件类型提取文本：PDF走解析器，其余按纯文本处理
func (h *ResumeHandler) extractText(ctx context.Context, data []byte, filename, uri string) (string, error) {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		if h.pdfExtractor == nil {
			return "", fmt.Errorf("未配置PDF解析器")
		}
		return h.pdfExtractor.ExtractTextFromBytes(ctx, data, uri)
	}
	return string(data), nil
}
