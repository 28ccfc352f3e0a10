package controller

import (
	"socratic_backend/internal/service"
	"socratic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type SimilarityController struct {
	SimilarityService *service.SimilarityService
}

func NewSimilarityController(similarityService *service.SimilarityService) *SimilarityController {
	return &SimilarityController{SimilarityService: similarityService}
}

// Analyze godoc
// @Summary 分析题目
// @Description 返回主题、难度、考查点等结构化分析
// @Tags 相似题
// @Accept  json
// @Produce  json
// @Param   body body service.AnalyzeRequest true "原题"
// @Success 200 {object} util.Response{data=service.AnalysisView} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 502 {object} util.Response "模型生成失败"
// @Router /api/v1/similar/analyze [post]
func (c *SimilarityController) Analyze(ctx *gin.Context) {
	var req service.AnalyzeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	view, err := c.SimilarityService.Analyze(ctx.Request.Context(), req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Generate godoc
// @Summary 生成相似题
// @Tags 相似题
// @Accept  json
// @Produce  json
// @Param   body body service.SimilarityRequest true "原题与数量"
// @Success 201 {object} util.Response{data=service.SimilarityResult} "生成成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 502 {object} util.Response "模型生成失败"
// @Router /api/v1/similar/generate [post]
func (c *SimilarityController) Generate(ctx *gin.Context) {
	var req service.SimilarityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SimilarityService.Generate(ctx.Request.Context(), req, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// Batch godoc
// @Summary 批量生成相似题
// @Tags 相似题
// @Accept  json
// @Produce  json
// @Param   body body service.BatchSimilarityRequest true "最多 5 道原题"
// @Success 201 {object} util.Response{data=service.BatchSimilarityResult} "生成成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Router /api/v1/similar/batch [post]
func (c *SimilarityController) Batch(ctx *gin.Context) {
	var req service.BatchSimilarityRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.SimilarityService.Batch(ctx.Request.Context(), req, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, result)
}
