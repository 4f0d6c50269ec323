package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"resume-screener-go/internal/agent"
	"resume-screener-go/internal/api/handler"
	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/parser"
	"resume-screener-go/internal/processor"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/tracing"
	"resume-screener-go/pkg/ratelimit"
)

// 摄取worker：消费简历上传事件，下载原文并完成结构化解析与向量化。
// 与HTTP服务分开部署，可按队列积压水平独立扩缩。
func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}

	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化Embedder失败")
	}

	storageManager, err := storage.NewStorage(ctx, cfg, embedder)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()

	if storageManager.RabbitMQ == nil || storageManager.MinIO == nil || storageManager.Qdrant == nil {
		logger.Fatal().Msg("摄取worker要求RabbitMQ、MinIO与Qdrant均已配置")
	}
	if err := storageManager.RabbitMQ.SetupIngestTopology(); err != nil {
		logger.Fatal().Err(err).Msg("声明摄取队列拓扑失败")
	}

	extractorModelName := cfg.GetModelForTask("resume_extraction")
	baseModel, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, extractorModelName, cfg.Aliyun.APIURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化LLM客户端失败")
	}
	extractorModel := ratelimit.WrapWithModelQPM(baseModel, extractorModelName,
		cfg.ModelQPMLimits, cfg.Extractor.QPM, cfg.Extractor.MaxRetries, time.Second)

	extractor := parser.NewResumeExtractor(extractorModel,
		parser.WithExtractionTimeout(config.GetDuration(cfg.Extractor.ExtractionTimeout, 90*time.Second)))

	ingestorOpts := []processor.IngestorOption{}
	if storageManager.Redis != nil {
		ingestorOpts = append(ingestorOpts, processor.WithDedup(storageManager.Redis))
	}
	if storageManager.MySQL != nil {
		ingestorOpts = append(ingestorOpts, processor.WithCandidateDB(storageManager.MySQL))
	}
	ingestorOpts = append(ingestorOpts, processor.WithObjectStorage(storageManager.MinIO))
	ingestor := processor.NewIngestor(extractor, storageManager.Qdrant, ingestorOpts...)

	pdfExtractor, err := parser.NewPDFTextExtractor(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化PDF解析器失败")
	}

	resumeHandler := handler.NewResumeHandler(storageManager, ingestor, pdfExtractor)

	stop, err := storageManager.RabbitMQ.StartConsumer(cfg.RabbitMQ.IngestQueue, cfg.RabbitMQ.PrefetchCount,
		func(body []byte) bool {
			var msg storage.ResumeUploadedMessage
			if err := json.Unmarshal(body, &msg); err != nil {
				logger.Error().Err(err).Msg("上传事件反序列化失败，丢弃消息")
				return true
			}

			if err := resumeHandler.ProcessUploadedMessage(ctx, &msg); err != nil {
				if handler.IsPermanentIngestError(err) {
					logger.Warn().Err(err).Str("candidate_id", msg.CandidateID).Msg("摄取失败且不可重试，确认消息")
					return true
				}
				logger.Error().Err(err).Str("candidate_id", msg.CandidateID).Msg("摄取失败，消息重新入队")
				return false
			}

			logger.Info().Str("candidate_id", msg.CandidateID).Msg("简历摄取完成")
			return true
		})
	if err != nil {
		logger.Fatal().Err(err).Msg("启动消费者失败")
	}

	logger.Info().Str("queue", cfg.RabbitMQ.IngestQueue).Msg("摄取worker已启动")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，停止消费")

	close(stop)
	cancel()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭链路追踪失败")
	}
	logger.Info().Msg("摄取worker已退出")
}
