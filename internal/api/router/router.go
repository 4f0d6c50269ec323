package router

import (
	"context"
	"errors"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"resume-screener-go/internal/api/handler"
	"resume-screener-go/internal/processor"
)

// RegisterRoutes 注册API路由。apiKey非空时v1分组启用静态密钥认证。
func RegisterRoutes(h *server.Hertz, resumeHandler *handler.ResumeHandler, searchHandler *handler.SearchHandler, apiKey string) {
	api := h.Group("/api/v1")

	// 健康检查不要求认证
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	if apiKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return key == apiKey, nil
			}),
		))
	}

	api.POST("/resumes/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := resumeHandler.HandleAsyncUpload(c, file, fileHeader.Size, fileHeader.Filename)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	api.POST("/resumes/sync", func(c context.Context, ctx *app.RequestContext) {
		body := ctx.Request.Body()
		resp, err := resumeHandler.HandleSyncIngest(c, string(body), nil)
		if err != nil {
			ctx.JSON(ingestErrorStatus(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/search", func(c context.Context, ctx *app.RequestContext) {
		var req handler.SearchRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法JSON"})
			return
		}

		result, err := searchHandler.HandleSearch(c, &req)
		if err != nil {
			if errors.Is(err, processor.ErrValidation) {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
				return
			}
			// 致命检索错误：返回空候选人列表与说明
			ctx.JSON(consts.StatusBadGateway, utils.H{"error": err.Error(), "candidates": []struct{}{}})
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.POST("/information", func(c context.Context, ctx *app.RequestContext) {
		var req handler.InformationRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体不是合法JSON"})
			return
		}

		fragments, err := searchHandler.HandleInformation(c, &req)
		if err != nil {
			if errors.Is(err, processor.ErrValidation) {
				ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
				return
			}
			ctx.JSON(consts.StatusBadGateway, utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, utils.H{"fragments": fragments})
	})
}

// ingestErrorStatus 按错误类型映射同步摄取的HTTP状态码
func ingestErrorStatus(err error) int {
	switch {
	case errors.Is(err, processor.ErrValidation):
		return consts.StatusBadRequest
	case errors.Is(err, processor.ErrDuplicate):
		return consts.StatusConflict
	default:
		return consts.StatusInternalServerError
	}
}
