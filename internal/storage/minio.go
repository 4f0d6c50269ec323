package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadOriginal 上传原始简历文件，返回对象键
	UploadOriginal(ctx context.Context, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error)

	// UploadParsedText 上传清洗后的简历文本，返回对象键
	UploadParsedText(ctx context.Context, candidateID string, text string) (string, error)

	// GetOriginal 下载原始简历文件
	GetOriginal(ctx context.Context, objectKey string) ([]byte, error)

	// GetParsedText 下载清洗后的简历文本
	GetParsedText(ctx context.Context, objectKey string) (string, error)

	// GetPresignedURL 生成带时效的下载链接
	GetPresignedURL(ctx context.Context, bucketName, objectKey string, expiry time.Duration) (string, error)

	// DeleteOriginal 删除原始简历文件
	DeleteOriginal(ctx context.Context, objectKey string) error
}

var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能，原始简历与清洗后文本分桶存放
type MinIO struct {
	client           *minio.Client
	originalsBucket  string
	parsedTextBucket string
	location         string
}

// NewMinIO 创建MinIO客户端并确保所需的桶存在
func NewMinIO(cfg *config.MinIOConfig) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("MinIO端点不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client:           client,
		originalsBucket:  cfg.OriginalsBucket,
		parsedTextBucket: cfg.ParsedTextBucket,
		location:         cfg.Location,
	}

	for _, bucket := range []string{m.originalsBucket, m.parsedTextBucket} {
		if err := m.ensureBucketExists(bucket); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// ensureBucketExists 检查桶是否存在，不存在则创建
func (m *MinIO) ensureBucketExists(bucketName string) error {
	if bucketName == "" {
		return fmt.Errorf("桶名不能为空")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查桶 %s 是否存在失败: %w", bucketName, err)
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: m.location}); err != nil {
		return fmt.Errorf("创建桶 %s 失败: %w", bucketName, err)
	}
	logger.Info().Str("bucket", bucketName).Msg("已创建MinIO桶")
	return nil
}

// UploadOriginal 上传原始简历文件，对象键形如 {candidateID}/original{ext}
func (m *MinIO) UploadOriginal(ctx context.Context, candidateID, fileExt string, reader io.Reader, fileSize int64) (string, error) {
	if candidateID == "" {
		return "", fmt.Errorf("候选人ID不能为空")
	}
	if fileExt != "" && !strings.HasPrefix(fileExt, ".") {
		fileExt = "." + fileExt
	}

	objectKey := fmt.Sprintf("%s/original%s", candidateID, fileExt)
	contentType := getContentType(fileExt)

	_, err := m.client.PutObject(ctx, m.originalsBucket, objectKey, reader, fileSize, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("上传原始简历失败 (%s): %w", objectKey, err)
	}

	logger.Debug().
		Str("bucket", m.originalsBucket).
		Str("object_key", objectKey).
		Int64("size", fileSize).
		Msg("已上传原始简历文件")
	return objectKey, nil
}

// UploadParsedText 上传清洗后的简历文本，对象键形如 {candidateID}/parsed.txt
func (m *MinIO) UploadParsedText(ctx context.Context, candidateID string, text string) (string, error) {
	if candidateID == "" {
		return "", fmt.Errorf("候选人ID不能为空")
	}

	objectKey := fmt.Sprintf("%s/parsed.txt", candidateID)
	data := []byte(text)

	_, err := m.client.PutObject(ctx, m.parsedTextBucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "text/plain; charset=utf-8",
	})
	if err != nil {
		return "", fmt.Errorf("上传简历文本失败 (%s): %w", objectKey, err)
	}
	return objectKey, nil
}

// GetOriginal 下载原始简历文件
func (m *MinIO) GetOriginal(ctx context.Context, objectKey string) ([]byte, error) {
	return m.downloadObject(ctx, m.originalsBucket, objectKey)
}

// GetParsedText 下载清洗后的简历文本
func (m *MinIO) GetParsedText(ctx context.Context, objectKey string) (string, error) {
	data, err := m.downloadObject(ctx, m.parsedTextBucket, objectKey)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *MinIO) downloadObject(ctx context.Context, bucketName, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象失败 (%s/%s): %w", bucketName, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象内容失败 (%s/%s): %w", bucketName, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 生成带时效的下载链接
func (m *MinIO) GetPresignedURL(ctx context.Context, bucketName, objectKey string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	u, err := m.client.PresignedGetObject(ctx, bucketName, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成预签名URL失败 (%s/%s): %w", bucketName, objectKey, err)
	}
	return u.String(), nil
}

// DeleteOriginal 删除原始简历文件
func (m *MinIO) DeleteOriginal(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.originalsBucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象失败 (%s/%s): %w", m.originalsBucket, objectKey, err)
	}
	return nil
}

// OriginalsBucket 返回原始简历桶名
func (m *MinIO) OriginalsBucket() string { return m.originalsBucket }

// ParsedTextBucket 返回清洗后文本桶名
func (m *MinIO) ParsedTextBucket() string { return m.parsedTextBucket }

// getContentType 根据扩展名推断Content-Type
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	case ".md":
		return "text/markdown"
	default:
		return "application/octet-stream"
	}
}
