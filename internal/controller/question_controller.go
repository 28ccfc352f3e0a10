package controller

import (
	"socratic_backend/internal/service"
	"socratic_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type QuestionController struct {
	QuestionService *service.QuestionService
}

func NewQuestionController(questionService *service.QuestionService) *QuestionController {
	return &QuestionController{QuestionService: questionService}
}

// ListQuestions godoc
// @Summary 我的题目列表
// @Tags 题目
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码" default(1)
// @Param   per_page query int false "每页数量，最大 100" default(20)
// @Param   session_id query string false "出题会话"
// @Param   question_type query string false "mcq 或 open_ended"
// @Param   difficulty query string false "难度"
// @Param   topic query string false "主题，模糊匹配"
// @Success 200 {object} util.Response{data=util.PageResponse{list=[]model.Question}} "成功"
// @Failure 401 {object} util.Response "未登录"
// @Router /api/v1/questions [get]
func (c *QuestionController) ListQuestions(ctx *gin.Context) {
	var query service.QuestionQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	page, err := c.QuestionService.List(actorFrom(ctx), query)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, page)
}

// GetQuestion godoc
// @Summary 题目详情
// @Tags 题目
// @Produce  json
// @Param   id path string true "题目 ID"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Failure 403 {object} util.Response "无权查看"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/v1/questions/{id} [get]
func (c *QuestionController) GetQuestion(ctx *gin.Context) {
	q, err := c.QuestionService.Get(ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// UpdateQuestion godoc
// @Summary 手动编辑题目
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "题目 ID"
// @Param   body body service.QuestionPatch true "需要修改的字段"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 403 {object} util.Response "无权修改"
// @Router /api/v1/questions/{id} [patch]
func (c *QuestionController) UpdateQuestion(ctx *gin.Context) {
	var patch service.QuestionPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	q, err := c.QuestionService.Patch(ctx.Param("id"), patch, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// DeleteQuestion godoc
// @Summary 删除题目
// @Tags 题目
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "题目 ID"
// @Success 200 {object} util.Response "已删除"
// @Failure 403 {object} util.Response "无权删除"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/v1/questions/{id} [delete]
func (c *QuestionController) DeleteQuestion(ctx *gin.Context) {
	if err := c.QuestionService.Delete(ctx.Param("id"), actorFrom(ctx)); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": 1})
}

// BulkDeleteQuestions godoc
// @Summary 批量删除题目
// @Description 只删除属于当前用户的题目，其余 id 忽略
// @Tags 题目
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.BulkDeleteRequest true "题目 ID 列表"
// @Success 200 {object} util.Response "实际删除数量"
// @Router /api/v1/questions/bulk-delete [post]
func (c *QuestionController) BulkDeleteQuestions(ctx *gin.Context) {
	var req service.BulkDeleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	deleted, err := c.QuestionService.BulkDelete(req, actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"deleted": deleted})
}
