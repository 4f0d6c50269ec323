package models

import (
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人档案表。结构化简历与向量点ID以JSON列存储，
// 关系层只承担档案查询与审计，语义检索走向量库。
type Candidate struct {
	CandidateID       string         `gorm:"type:char(36);primaryKey"`
	Name              string         `gorm:"type:varchar(255);index:idx_candidates_name"`
	PositionTitle     string         `gorm:"type:varchar(255)"`
	Seniority         string         `gorm:"type:varchar(50)"`
	Location          string         `gorm:"type:varchar(255)"`
	OriginalFilename  string         `gorm:"type:varchar(255)"`
	OriginalObjectKey string         `gorm:"type:varchar(1024)"` // 原始文件在MinIO中的对象键
	ParsedObjectKey   string         `gorm:"type:varchar(1024)"` // 清洗后文本在MinIO中的对象键
	ContentMD5        string         `gorm:"type:char(32);index:idx_candidates_content_md5"`
	StructuredResume  datatypes.JSON `gorm:"type:json"` // 结构化简历全文
	VectorPointIDs    datatypes.JSON `gorm:"type:json"` // 向量库中该候选人的点ID列表
	UploadedAt        time.Time      `gorm:"type:datetime(6)"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// SearchLog 检索日志表，记录每次搜索的查询与结果规模，用于审计与调优
type SearchLog struct {
	LogID             uint64         `gorm:"primaryKey;autoIncrement"`
	Query             string         `gorm:"type:text;not null"`
	ParsedCriteria    datatypes.JSON `gorm:"type:json"` // 解析出的结构化条件，解析失败时为NULL
	ResultCount       int            `gorm:"not null"`
	AverageConfidence int            `gorm:"not null"`
	DurationMS        int64          `gorm:"not null"`
	CreatedAt         time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_search_logs_created_at"`
}

func (SearchLog) TableName() string {
	return "search_logs"
}
