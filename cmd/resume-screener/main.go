package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-screener-go/internal/agent"
	"resume-screener-go/internal/api/handler"
	"resume-screener-go/internal/api/router"
	"resume-screener-go/internal/config"
	"resume-screener-go/internal/logger"
	"resume-screener-go/internal/parser"
	"resume-screener-go/internal/processor"
	"resume-screener-go/internal/search"
	"resume-screener-go/internal/storage"
	"resume-screener-go/internal/tracing"
	"resume-screener-go/pkg/ratelimit"
)

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
	glog.SetLogger(hertzadapter.From(logger.Logger))

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

	if storageManager.RabbitMQ != nil {
		if err := storageManager.RabbitMQ.SetupIngestTopology(); err != nil {
			logger.Fatal().Err(err).Msg("声明摄取队列拓扑失败")
		}
	}

	extractorModel := newTaskModel(cfg, "resume_extraction", cfg.Extractor.QPM, cfg.Extractor.MaxRetries)
	parserModel := newTaskModel(cfg, "criteria_parsing", 0, 0)
	scorerModel := newTaskModel(cfg, "match_scoring", cfg.MatchScorer.QPM, cfg.MatchScorer.MaxRetries)

	extractor := parser.NewResumeExtractor(extractorModel,
		parser.WithExtractionTimeout(config.GetDuration(cfg.Extractor.ExtractionTimeout, 90*time.Second)))
	criteriaParser := parser.NewCriteriaParser(parserModel)
	scorer := parser.NewMatchScorer(scorerModel,
		parser.WithScoreTimeout(config.GetDuration(cfg.MatchScorer.ScoreTimeout, 45*time.Second)))

	if storageManager.Qdrant == nil {
		logger.Fatal().Msg("Qdrant未配置，检索服务无法启动")
	}

	ingestorOpts := []processor.IngestorOption{}
	if storageManager.Redis != nil {
		ingestorOpts = append(ingestorOpts, processor.WithDedup(storageManager.Redis))
	}
	if storageManager.MySQL != nil {
		ingestorOpts = append(ingestorOpts, processor.WithCandidateDB(storageManager.MySQL))
	}
	if storageManager.MinIO != nil {
		ingestorOpts = append(ingestorOpts, processor.WithObjectStorage(storageManager.MinIO))
	}
	ingestor := processor.NewIngestor(extractor, storageManager.Qdrant, ingestorOpts...)

	retriever := search.NewRetriever(storageManager.Qdrant, cfg.Qdrant.DefaultSearchLimit)
	searcherOpts := []search.SearcherOption{
		search.WithMaxConcurrency(cfg.MatchScorer.MaxConcurrency),
	}
	if storageManager.MySQL != nil {
		searcherOpts = append(searcherOpts, search.WithSearchLog(storageManager.MySQL))
	}
	searcher := search.NewSearcher(criteriaParser, retriever, scorer, searcherOpts...)

	pdfExtractor, err := parser.NewPDFTextExtractor(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化PDF解析器失败")
	}

	resumeHandler := handler.NewResumeHandler(storageManager, ingestor, pdfExtractor)
	searchHandler := handler.NewSearchHandler(searcher)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	router.RegisterRoutes(h, resumeHandler, searchHandler, cfg.Server.APIKey)

	go func() {
		logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器启动")
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("HTTP服务器异常退出")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("接收到终止信号，正在优雅退出")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("关闭链路追踪失败")
	}
	logger.Info().Msg("优雅退出完成")
}

// newTaskModel 为指定任务创建带QPM限流与重试的LLM客户端
func newTaskModel(cfg *config.Config, taskName string, customQPM, maxRetries int) model.ToolCallingChatModel {
	modelName := cfg.GetModelForTask(taskName)
	base, err := agent.NewAliyunQwenChatModel(cfg.Aliyun.APIKey, modelName, cfg.Aliyun.APIURL)
	if err != nil {
		logger.Fatal().Err(err).Str("task", taskName).Msg("初始化LLM客户端失败")
	}
	return ratelimit.WrapWithModelQPM(base, modelName, cfg.ModelQPMLimits, customQPM, maxRetries, time.Second)
}
