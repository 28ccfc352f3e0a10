package service

import (
	"errors"
	"strings"

	"socratic_backend/internal/model"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/logger"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuestionQuery 列表查询参数
type QuestionQuery struct {
	Page         int    `form:"page"`
	PerPage      int    `form:"per_page"`
	SessionID    string `form:"session_id"`
	QuestionType string `form:"question_type"`
	Difficulty   string `form:"difficulty"`
	Topic        string `form:"topic"`
}

// QuestionPatch 手动编辑，nil 字段保持不变
type QuestionPatch struct {
	QuestionText  *string            `json:"question_text"`
	QuestionType  *string            `json:"question_type"`
	Difficulty    *string            `json:"difficulty"`
	Topic         *string            `json:"topic"`
	Explanation   *string            `json:"explanation"`
	CorrectAnswer *string            `json:"correct_answer"`
	Options       *[]model.MCQOption `json:"options"`
}

type BulkDeleteRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type QuestionService struct {
	Repo *repository.QuestionRepository
}

func NewQuestionService(repo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{Repo: repo}
}

// List 只返回调用方自己的题目
func (s *QuestionService) List(actor *Actor, query QuestionQuery) (*util.PageResponse, error) {
	if actor == nil {
		return nil, util.UnauthorizedError("authentication required")
	}
	page, perPage := normalizePage(query.Page, query.PerPage)

	filter := repository.QuestionFilter{
		OwnerID:    actor.OwnerID(),
		SessionID:  strings.TrimSpace(query.SessionID),
		Difficulty: strings.ToLower(strings.TrimSpace(query.Difficulty)),
		Topic:      query.Topic,
	}
	if t := strings.TrimSpace(query.QuestionType); t != "" {
		filter.QuestionType = model.ParseQuestionType(t)
	}

	questions, total, err := s.Repo.List(filter, page, perPage)
	if err != nil {
		return nil, util.InternalError(err, "failed to list questions")
	}
	if questions == nil {
		questions = []model.Question{}
	}
	resp := util.NewPageResponse(questions, total, page, perPage)
	return &resp, nil
}

// Get 无主题目对所有人可见
func (s *QuestionService) Get(id string, actor *Actor) (*model.Question, error) {
	q, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if q.OwnerID != nil && (actor == nil || !q.OwnedBy(actor.UserID)) {
		return nil, util.ForbiddenError("not authorized to view this question")
	}
	return q, nil
}

// Patch 与精修入库同样的权限规则：有主题目仅所有者可改
func (s *QuestionService) Patch(id string, patch QuestionPatch, actor *Actor) (*model.Question, error) {
	if actor == nil {
		return nil, util.UnauthorizedError("authentication required")
	}
	q, err := s.find(id)
	if err != nil {
		return nil, err
	}
	if q.OwnerID != nil && !q.OwnedBy(actor.UserID) {
		return nil, util.ForbiddenError("not authorized to edit this question")
	}

	if patch.QuestionText != nil {
		if strings.TrimSpace(*patch.QuestionText) == "" {
			return nil, util.InvalidRequest("question_text cannot be empty")
		}
		q.QuestionText = *patch.QuestionText
	}
	if patch.QuestionType != nil {
		q.QuestionType = model.ParseQuestionType(*patch.QuestionType)
	}
	if patch.Difficulty != nil {
		d := strings.ToLower(strings.TrimSpace(*patch.Difficulty))
		if !lo.Contains([]string{"easy", "medium", "hard"}, d) {
			return nil, util.InvalidRequest("difficulty must be one of easy, medium, hard")
		}
		q.Difficulty = d
	}
	if patch.Topic != nil {
		q.Topic = strings.TrimSpace(*patch.Topic)
	}
	if patch.Explanation != nil {
		q.Explanation = *patch.Explanation
	}
	if patch.CorrectAnswer != nil {
		q.CorrectAnswer = *patch.CorrectAnswer
	}
	if patch.Options != nil {
		q.Options = *patch.Options
	}
	if q.QuestionType == model.QuestionTypeOpenEnded {
		q.Options = nil
	}
	if err := checkOptions(string(q.QuestionType), q.Options, q.CorrectAnswer); err != nil {
		return nil, util.InvalidRequest("%s", err.Error())
	}

	if err := s.Repo.Update(q); err != nil {
		return nil, util.InternalError(err, "failed to update question")
	}
	logger.Log.Info("Question edited", zap.String("question_id", q.ID), zap.Uint("user_id", actor.UserID))
	return q, nil
}

// Delete 仅所有者可删除，精修记录一并删除
func (s *QuestionService) Delete(id string, actor *Actor) error {
	if actor == nil {
		return util.UnauthorizedError("authentication required")
	}
	q, err := s.find(id)
	if err != nil {
		return err
	}
	if !q.OwnedBy(actor.UserID) {
		return util.ForbiddenError("not authorized to delete this question")
	}
	if err := s.Repo.Delete(id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NotFoundError("question not found")
		}
		return util.InternalError(err, "failed to delete question")
	}
	logger.Log.Info("Question deleted", zap.String("question_id", id), zap.Uint("user_id", actor.UserID))
	return nil
}

// BulkDelete 不属于调用方的 id 被静默忽略
func (s *QuestionService) BulkDelete(req BulkDeleteRequest, actor *Actor) (int64, error) {
	if actor == nil {
		return 0, util.UnauthorizedError("authentication required")
	}
	ids := lo.Uniq(lo.Filter(req.IDs, func(id string, _ int) bool { return strings.TrimSpace(id) != "" }))
	if len(ids) == 0 {
		return 0, util.InvalidRequest("ids is required")
	}
	deleted, err := s.Repo.BulkDelete(ids, actor.UserID)
	if err != nil {
		return 0, util.InternalError(err, "failed to delete questions")
	}
	logger.Log.Info("Questions bulk deleted",
		zap.Uint("user_id", actor.UserID),
		zap.Int("requested", len(ids)),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func (s *QuestionService) find(id string) (*model.Question, error) {
	q, err := s.Repo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NotFoundError("question not found")
	}
	if err != nil {
		return nil, util.InternalError(err, "failed to load question")
	}
	return q, nil
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = util.DefaultPage
	}
	if perPage < 1 {
		perPage = util.DefaultPerPage
	}
	if perPage > util.MaxPerPage {
		perPage = util.MaxPerPage
	}
	return page, perPage
}
