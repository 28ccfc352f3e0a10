package controller

import (
	"time"

	"socratic_backend/internal/model"
	"socratic_backend/internal/service"
	"socratic_backend/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type RefinementController struct {
	RefinementService *service.RefinementService
}

func NewRefinementController(refinementService *service.RefinementService) *RefinementController {
	return &RefinementController{RefinementService: refinementService}
}

// RefineRequest question_id 与 question_state 二选一
// swagger:model RefineRequest
type RefineRequest struct {
	QuestionID     string               `json:"question_id"`
	QuestionState  *model.QuestionState `json:"question_state"`
	Instruction    string               `json:"instruction" binding:"required"`
	ConversationID string               `json:"conversation_id"`
}

// ConversationResponse 会话详情
type ConversationResponse struct {
	ConversationID string                   `json:"conversation_id"`
	QuestionID     *string                  `json:"question_id"`
	Turns          []model.ConversationTurn `json:"turns"`
	CurrentState   model.QuestionState      `json:"current_state"`
}

// HistoryItem 精修审计记录摘要
type HistoryItem struct {
	ID          string    `json:"id"`
	Instruction string    `json:"instruction"`
	ChangesMade string    `json:"changes_made"`
	CreatedAt   time.Time `json:"created_at"`
}

// Refine godoc
// @Summary 精修题目
// @Description 按自然语言指令修改题目，支持多轮会话。登录用户修改自己的题目时结果会入库
// @Tags 精修
// @Accept  json
// @Produce  json
// @Param   body body RefineRequest true "精修指令"
// @Success 200 {object} util.Response{data=service.RefinementResult} "成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 403 {object} util.Response "无权修改该题目"
// @Failure 404 {object} util.Response "题目不存在"
// @Failure 502 {object} util.Response "模型生成失败"
// @Router /api/v1/refine/refine [post]
func (c *RefinementController) Refine(ctx *gin.Context) {
	var req RefineRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	target, err := service.NewTarget(req.QuestionID, req.QuestionState)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	result, err := c.RefinementService.Refine(ctx.Request.Context(), service.RefineInput{
		Target:         target,
		Instruction:    req.Instruction,
		ConversationID: req.ConversationID,
		Actor:          actorFrom(ctx),
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// GetConversation godoc
// @Summary 获取精修会话
// @Tags 精修
// @Produce  json
// @Param   id path string true "会话 ID"
// @Success 200 {object} util.Response{data=ConversationResponse} "成功"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/v1/refine/conversation/{id} [get]
func (c *RefinementController) GetConversation(ctx *gin.Context) {
	conv, err := c.RefinementService.GetConversation(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	turns := conv.History
	if turns == nil {
		turns = []model.ConversationTurn{}
	}
	util.Success(ctx, ConversationResponse{
		ConversationID: conv.ID,
		QuestionID:     conv.QuestionID,
		Turns:          turns,
		CurrentState:   conv.CurrentState,
	})
}

// ResetConversation godoc
// @Summary 重置精修会话
// @Tags 精修
// @Produce  json
// @Param   id path string true "会话 ID"
// @Success 200 {object} util.Response "已重置"
// @Failure 404 {object} util.Response "会话不存在"
// @Router /api/v1/refine/conversation/{id}/reset [post]
func (c *RefinementController) ResetConversation(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := c.RefinementService.Reset(ctx.Request.Context(), id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"status": "reset", "conversation_id": id})
}

// QuestionHistory godoc
// @Summary 题目精修历史
// @Tags 精修
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "题目 ID"
// @Success 200 {object} util.Response{data=[]HistoryItem} "成功"
// @Failure 401 {object} util.Response "未登录"
// @Failure 403 {object} util.Response "不是题目所有者"
// @Failure 404 {object} util.Response "题目不存在"
// @Router /api/v1/refine/question/{id}/history [get]
func (c *RefinementController) QuestionHistory(ctx *gin.Context) {
	entries, err := c.RefinementService.QuestionHistory(ctx.Request.Context(), ctx.Param("id"), actorFrom(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Success(ctx, lo.Map(entries, func(e model.RefinementEntry, _ int) HistoryItem {
		return HistoryItem{
			ID:          e.ID,
			Instruction: e.Instruction,
			ChangesMade: e.ChangesMade,
			CreatedAt:   e.CreatedAt,
		}
	}))
}
