package processor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/parser"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/types"
)

// 摄取时对序列化文档使用的分块参数。比通用分块器默认值大得多，
// 贴着嵌入模型的输入上限走，减少单份简历的向量点数。
const (
	ingestChunkSize    = 20000
	ingestChunkOverlap = 150
)

// StructuredExtractor 从简历文本提取结构化数据
type StructuredExtractor interface {
	Extract(ctx context.Context, text string) (*types.StructuredResume, error)
}

// DedupGuard 内容指纹去重：登记返回是否已存在，失败时可移除以便重试
type DedupGuard interface {
	CheckAndAddContentMD5(ctx context.Context, md5Hex string) (bool, error)
	RemoveContentMD5(ctx context.Context, md5Hex string) error
}

// Ingestor 简历摄取服务：清洗文本、压缩超长内容、结构化提取、
// 写入向量库，并可选地登记去重、落库档案与归档文本。
type Ingestor struct {
	extractor StructuredExtractor
	store     storage.VectorStore

	// 可选依赖，未配置时对应步骤跳过
	dedup DedupGuard
	mysql *storage.MySQL
	minio *storage.MinIO

	chunkSize    int
	chunkOverlap int
}

// IngestorOption 摄取服务配置选项
type IngestorOption func(*Ingestor)

// WithDedup 启用内容MD5去重（生产环境传入Redis适配器）
func WithDedup(g DedupGuard) IngestorOption {
	return func(ing *Ingestor) {
		ing.dedup = g
	}
}

// WithCandidateDB 启用候选人档案落库
func WithCandidateDB(m *storage.MySQL) IngestorOption {
	return func(ing *Ingestor) {
		ing.mysql = m
	}
}

// WithObjectStorage 启用清洗后文本归档
func WithObjectStorage(m *storage.MinIO) IngestorOption {
	return func(ing *Ingestor) {
		ing.minio = m
	}
}

// WithIngestChunking 覆盖默认的摄取分块参数
func WithIngestChunking(size, overlap int) IngestorOption {
	return func(ing *Ingestor) {
		ing.chunkSize = size
		ing.chunkOverlap = overlap
	}
}

// NewIngestor 创建简历摄取服务
func NewIngestor(extractor StructuredExtractor, store storage.VectorStore, opts ...IngestorOption) *Ingestor {
	ing := &Ingestor{
		extractor:    extractor,
		store:        store,
		chunkSize:    ingestChunkSize,
		chunkOverlap: ingestChunkOverlap,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Ingest 摄取一份简历原文，返回完整的候选人记录。
// 结构化提取失败不会中断摄取（降级为占位简历），向量库写入失败则是致命错误。
func (ing *Ingestor) Ingest(ctx context.Context, rawContent string, extra map[string]string) (*types.CandidateRecord, error) {
	if strings.TrimSpace(rawContent) == "" {
		return nil, NewValidationError("input", "简历内容为空")
	}

	cleaned := sanitizeContent(rawContent)
	if cleaned == "" {
		return nil, NewValidationError("sanitize", "清洗后无有效内容")
	}

	// 内容去重（可选）
	contentMD5 := ""
	if ing.dedup != nil {
		sum := md5.Sum([]byte(cleaned))
		contentMD5 = hex.EncodeToString(sum[:])
		exists, err := ing.dedup.CheckAndAddContentMD5(ctx, contentMD5)
		if err != nil {
			// 去重服务故障不阻断摄取，只是放弃本次去重保护
			logger.Warn().Err(err).Msg("内容MD5去重检查失败，跳过去重")
			contentMD5 = ""
		} else if exists {
			return nil, NewDuplicateError(contentMD5)
		}
	}

	reduced := strings.ToValidUTF8(reduceForExtraction(cleaned), "")

	resume, err := ing.extractor.Extract(ctx, reduced)
	if err != nil || resume == nil {
		logger.Warn().Err(err).Msg("结构化提取失败，使用占位简历")
		resume = parser.PlaceholderResume()
	}

	// 元数据合并：AI派生的摘要字段 → 调用方元数据（冲突时调用方优先）→ 上传时间戳（不可覆盖）
	metadata := deriveSummaryFields(resume)
	for k, v := range extra {
		metadata[k] = v
	}
	if contentMD5 != "" {
		metadata["contentMD5"] = contentMD5
	}
	metadata["uploadedAt"] = time.Now().UTC().Format(time.RFC3339)

	candidateID := uuid.NewString()

	document, err := json.Marshal(resume)
	if err != nil {
		ing.rollbackDedup(ctx, contentMD5)
		return nil, NewSerializationError(candidateID, err.Error())
	}

	chunks := parser.ChunkText(string(document), ing.chunkSize, ing.chunkOverlap)

	pointIDs, err := ing.store.AddDocuments(ctx, candidateID, chunks, metadata)
	if err != nil {
		ing.rollbackDedup(ctx, contentMD5)
		return nil, NewRetrievalError(candidateID, err.Error())
	}

	record := &types.CandidateRecord{
		ID:       candidateID,
		Document: string(document),
		Metadata: metadata,
	}

	ing.persistSupplemental(ctx, record, resume, cleaned, pointIDs)

	logger.Info().
		Str("candidate_id", candidateID).
		Str("name", metadata["name"]).
		Int("chunks", len(chunks)).
		Msg("简历摄取完成")
	return record, nil
}

// rollbackDedup 摄取失败时移除已登记的MD5，允许调用方重试
func (ing *Ingestor) rollbackDedup(ctx context.Context, contentMD5 string) {
	if ing.dedup == nil || contentMD5 == "" {
		return
	}
	if err := ing.dedup.RemoveContentMD5(ctx, contentMD5); err != nil {
		logger.Warn().Err(err).Str("content_md5", contentMD5).Msg("回滚去重记录失败")
	}
}

// persistSupplemental 归档清洗后文本并写入候选人档案表，失败只告警不影响摄取结果
func (ing *Ingestor) persistSupplemental(ctx context.Context, record *types.CandidateRecord, resume *types.StructuredResume, cleaned string, pointIDs []string) {
	objectKeys := map[string]string{
		"original": record.Metadata["originalObjectKey"],
	}

	if ing.minio != nil {
		parsedKey, err := ing.minio.UploadParsedText(ctx, record.ID, cleaned)
		if err != nil {
			logger.Warn().Err(err).Str("candidate_id", record.ID).Msg("归档清洗后文本失败")
		} else {
			objectKeys["parsed"] = parsedKey
		}
	}

	if ing.mysql != nil {
		if err := ing.mysql.SaveCandidate(ctx, record, resume, objectKeys, pointIDs); err != nil {
			logger.Warn().Err(err).Str("candidate_id", record.ID).Msg("候选人档案落库失败")
		}
	}
}

// deriveSummaryFields 从结构化简历派生摘要元数据：姓名、最近职位、文本摘要
func deriveSummaryFields(resume *types.StructuredResume) map[string]string {
	metadata := map[string]string{
		"name": resume.PersonalInformation.Name,
	}

	title := ""
	if len(resume.Experiences) > 0 {
		title = resume.Experiences[0].Title
	}
	if title == "" && resume.PersonalInformation.Position != nil {
		title = resume.PersonalInformation.Position.Title
	}
	metadata["title"] = title

	var parts []string
	parts = append(parts, fmt.Sprintf("%d段工作经历", len(resume.Experiences)))
	if len(resume.Education) > 0 {
		var degrees []string
		for _, edu := range resume.Education {
			if edu.Field != "" {
				degrees = append(degrees, fmt.Sprintf("%s（%s）", edu.Degree, edu.Field))
			} else {
				degrees = append(degrees, edu.Degree)
			}
		}
		parts = append(parts, "学历: "+strings.Join(degrees, "、"))
	}
	metadata["summary"] = strings.Join(parts, "；")

	return metadata
}

// sanitizeContent 去除控制字符与Unicode替换字符，保留换行与制表符
func sanitizeContent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '�' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
