package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/storage/models"
	"resume-screener-go/internal/types"
)

var mysqlTracer = otel.Tracer("resume-screener-go/storage/mysql")

type gormSpanKey struct{}

// GormTracingPlugin 是一个GORM插件，为数据库操作创建OpenTelemetry追踪点
type GormTracingPlugin struct {
	tracer trace.Tracer
	dbName string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		newCtx, span := p.tracer.Start(ctx, spanName,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		)

		// 将span保存在DB上下文中，供after回调使用
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		// ErrRecordNotFound 属于正常业务分支，不计为错误
		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer: mysqlTracer,
		dbName: dbName,
	}
}

// MySQL 提供候选人档案的关系存储
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.ConnectTimeoutSeconds)

	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = gormlogger.Silent
	case 2:
		logLevel = gormlogger.Error
	case 3:
		logLevel = gormlogger.Warn
	case 4:
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Warn
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormlogger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)

	m := &MySQL{db: db, cfg: cfg}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := db.AutoMigrate(&models.Candidate{}, &models.SearchLog{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	logger.Info().Str("database", cfg.Database).Msg("成功连接到MySQL并完成结构迁移")
	return m, nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// SaveCandidate 将摄取完成的候选人档案写入候选人表。
// 同一CandidateID重复写入时整行覆盖更新。
func (m *MySQL) SaveCandidate(ctx context.Context, record *types.CandidateRecord, resume *types.StructuredResume, objectKeys map[string]string, pointIDs []string) error {
	if record == nil || resume == nil {
		return fmt.Errorf("候选人记录不能为空")
	}

	structuredJSON, err := json.Marshal(resume)
	if err != nil {
		return fmt.Errorf("序列化结构化简历失败: %w", err)
	}
	pointIDsJSON, err := json.Marshal(pointIDs)
	if err != nil {
		return fmt.Errorf("序列化向量点ID失败: %w", err)
	}

	uploadedAt := time.Now()
	if ts, ok := record.Metadata["uploadedAt"]; ok {
		if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
			uploadedAt = parsed
		}
	}

	row := &models.Candidate{
		CandidateID:       record.ID,
		Name:              resume.PersonalInformation.Name,
		Location:          resume.PersonalInformation.Location,
		OriginalFilename:  record.Metadata["fileName"],
		OriginalObjectKey: objectKeys["original"],
		ParsedObjectKey:   objectKeys["parsed"],
		ContentMD5:        record.Metadata["contentMD5"],
		StructuredResume:  datatypes.JSON(structuredJSON),
		VectorPointIDs:    datatypes.JSON(pointIDsJSON),
		UploadedAt:        uploadedAt,
	}
	if resume.PersonalInformation.Position != nil {
		row.PositionTitle = resume.PersonalInformation.Position.Title
		row.Seniority = string(resume.PersonalInformation.Position.Seniority)
	}

	return m.db.WithContext(ctx).Save(row).Error
}

// GetCandidateByID 按ID查询候选人档案，未找到时返回gorm.ErrRecordNotFound
func (m *MySQL) GetCandidateByID(ctx context.Context, candidateID string) (*models.Candidate, error) {
	var row models.Candidate
	if err := m.db.WithContext(ctx).First(&row, "candidate_id = ?", candidateID).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// ListCandidates 按上传时间倒序分页列出候选人档案
func (m *MySQL) ListCandidates(ctx context.Context, offset, limit int) ([]models.Candidate, int64, error) {
	if limit <= 0 {
		limit = 20
	}

	var total int64
	if err := m.db.WithContext(ctx).Model(&models.Candidate{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Candidate
	err := m.db.WithContext(ctx).
		Order("uploaded_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// DeleteCandidate 删除候选人档案行
func (m *MySQL) DeleteCandidate(ctx context.Context, candidateID string) error {
	return m.db.WithContext(ctx).Delete(&models.Candidate{}, "candidate_id = ?", candidateID).Error
}

// RecordSearch 写入一条检索日志，失败仅记录告警不影响检索结果返回
func (m *MySQL) RecordSearch(ctx context.Context, query string, criteria *types.SearchCriteria, resultCount, averageConfidence int, duration time.Duration) {
	row := &models.SearchLog{
		Query:             query,
		ResultCount:       resultCount,
		AverageConfidence: averageConfidence,
		DurationMS:        duration.Milliseconds(),
	}
	if criteria != nil {
		if criteriaJSON, err := json.Marshal(criteria); err == nil {
			row.ParsedCriteria = datatypes.JSON(criteriaJSON)
		}
	}

	if err := m.db.WithContext(ctx).Create(row).Error; err != nil {
		logger.Warn().Err(err).Msg("写入检索日志失败")
	}
}
