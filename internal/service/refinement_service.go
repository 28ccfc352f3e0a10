package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"socratic_backend/internal/model"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/logger"
	"socratic_backend/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Actor 调用方身份，nil 表示匿名
type Actor struct {
	UserID uint
}

// ActorFromClaims 未登录时返回 nil
func ActorFromClaims(claims *util.Claims) *Actor {
	if claims == nil {
		return nil
	}
	return &Actor{UserID: claims.UserID}
}

// OwnerID 匿名调用方没有所有者
func (a *Actor) OwnerID() *uint {
	if a == nil {
		return nil
	}
	id := a.UserID
	return &id
}

// Target 精修对象：已入库的题目，或调用方直接给出的题目状态
type Target interface {
	targetKind() string
}

type PersistedTarget struct {
	QuestionID string
}

type InlineTarget struct {
	State model.QuestionState
}

func (PersistedTarget) targetKind() string { return "persisted" }
func (InlineTarget) targetKind() string    { return "inline" }

// NewTarget 两者必须且只能提供一个
func NewTarget(questionID string, state *model.QuestionState) (Target, error) {
	questionID = strings.TrimSpace(questionID)
	switch {
	case questionID != "" && state != nil:
		return nil, util.InvalidRequest("provide either question_id or question_state, not both")
	case questionID != "":
		return PersistedTarget{QuestionID: questionID}, nil
	case state != nil:
		if strings.TrimSpace(state.QuestionText) == "" {
			return nil, util.InvalidRequest("question_state.question_text is required")
		}
		return InlineTarget{State: state.Normalize()}, nil
	default:
		return nil, util.InvalidRequest("provide either question_id or question_state")
	}
}

type QuestionFinder interface {
	FindByID(id string) (*model.Question, error)
}

type RefinementRecorder interface {
	ApplyRefinement(entry *model.RefinementEntry, question *model.Question) error
	ListByQuestion(questionID string) ([]model.RefinementEntry, error)
}

type QuestionRefiner interface {
	RefineQuestion(ctx context.Context, state model.QuestionState, instruction string, history []model.ConversationTurn) (*RefinedQuestion, error)
}

type RefineInput struct {
	Target         Target
	Instruction    string
	ConversationID string
	Actor          *Actor
}

// QuestionView 响应中的题目，未入库时 ID 为一次性随机值
type QuestionView struct {
	ID string `json:"id"`
	model.QuestionState
}

type RefinementResult struct {
	ConversationID  string       `json:"conversation_id"`
	Question        QuestionView `json:"refined_question"`
	ChangesMade     string       `json:"changes_made"`
	ConfidenceScore float64      `json:"confidence_score"`
	TurnNumber      int          `json:"turn_number"`
	Persisted       bool         `json:"persisted"`
}

// RefinementService 多轮精修会话
type RefinementService struct {
	Generator   QuestionRefiner
	Questions   QuestionFinder
	Refinements RefinementRecorder
	Store       ConversationStore

	minInstruction int
	locks          *util.KeyedMutex
	now            func() time.Time
}

func NewRefinementService(generator QuestionRefiner, questions QuestionFinder, refinements RefinementRecorder, store ConversationStore, minInstruction int) *RefinementService {
	return &RefinementService{
		Generator:      generator,
		Questions:      questions,
		Refinements:    refinements,
		Store:          store,
		minInstruction: minInstruction,
		locks:          util.NewKeyedMutex(),
		now:            time.Now,
	}
}

// Refine 应用一条指令。同一会话的调用串行执行，生成失败时会话保持不变。
func (s *RefinementService) Refine(ctx context.Context, in RefineInput) (*RefinementResult, error) {
	if in.Target == nil {
		return nil, util.InvalidRequest("provide either question_id or question_state")
	}
	instruction := strings.TrimSpace(in.Instruction)
	if len([]rune(instruction)) < s.minInstruction {
		return nil, util.InvalidRequest("instruction must be at least %d characters", s.minInstruction)
	}

	fresh := in.ConversationID == ""
	conversationID := in.ConversationID
	if fresh {
		conversationID = model.GenerateUUID()
	}

	unlock := s.locks.Lock(conversationID)
	defer unlock()

	kind := in.Target.targetKind()
	result, err := s.refineLocked(ctx, in, instruction, conversationID, fresh)
	if err != nil {
		monitoring.RefinementTurns.WithLabelValues(kind, util.KindOf(err).Code()).Inc()
		return nil, err
	}
	monitoring.RefinementTurns.WithLabelValues(kind, "ok").Inc()
	return result, nil
}

func (s *RefinementService) refineLocked(ctx context.Context, in RefineInput, instruction, conversationID string, fresh bool) (*RefinementResult, error) {
	var (
		question *model.Question
		state    model.QuestionState
	)

	switch t := in.Target.(type) {
	case PersistedTarget:
		q, err := s.findQuestion(t.QuestionID)
		if err != nil {
			return nil, err
		}
		if in.Actor != nil && q.OwnerID != nil && !q.OwnedBy(in.Actor.UserID) {
			return nil, util.ForbiddenError("not allowed to refine this question")
		}
		question = q
		state = q.State()
	case InlineTarget:
		state = t.State.Normalize()
	default:
		return nil, util.InvalidRequest("unsupported refinement target")
	}

	var conv *model.Conversation
	if !fresh {
		existing, err := s.Store.Get(ctx, conversationID)
		switch {
		case errors.Is(err, ErrConversationNotFound):
			// 未知或已重置的 id 视为新会话，沿用调用方给出的 id
			fresh = true
		case err != nil:
			return nil, util.InternalError(err, "failed to load conversation")
		default:
			conv = existing
		}
	}
	if fresh {
		now := s.now()
		conv = &model.Conversation{ID: conversationID, CreatedAt: now, UpdatedAt: now}
		if question != nil {
			conv.QuestionID = &question.ID
		}
	} else {
		if question != nil && conv.QuestionID != nil && *conv.QuestionID != question.ID {
			return nil, util.InvalidRequest("conversation belongs to a different question")
		}
		// 会话中的快照优先于调用方重新提交的状态
		state = conv.CurrentState.Normalize()
		if question != nil && conv.QuestionID == nil {
			conv.QuestionID = &question.ID
		}
	}
	turn := conv.TurnNumber()

	refined, err := s.Generator.RefineQuestion(ctx, state, instruction, conv.History)
	if err != nil {
		logger.Log.Warn("Refinement generation failed",
			zap.String("conversation_id", conversationID),
			zap.Int("turn", turn),
			zap.Error(err),
		)
		return nil, err
	}
	next := RefinedState(state, refined)

	var previous *model.Conversation
	if !fresh {
		previous = conv.Clone()
	}
	updated := conv.Clone()
	updated.History = append(updated.History,
		model.ConversationTurn{Role: model.TurnRoleUser, Content: instruction},
		model.ConversationTurn{Role: model.TurnRoleAssistant, Content: "Changes: " + refined.ChangesMade},
	)
	updated.CurrentState = next
	updated.UpdatedAt = s.now()
	if err := s.Store.Put(ctx, updated); err != nil {
		return nil, util.InternalError(err, "failed to save conversation")
	}

	persisted := false
	if question != nil && in.Actor != nil {
		entry := BuildRefinementEntry(question.ID, instruction, refined.ChangesMade, state, next)
		ApplyRefinedState(question, next)
		if err := s.Refinements.ApplyRefinement(entry, question); err != nil {
			s.rollback(ctx, conversationID, previous)
			return nil, util.InternalError(err, "failed to save refinement")
		}
		persisted = true
	}

	viewID := model.GenerateUUID()
	if question != nil {
		viewID = question.ID
	}

	logger.Log.Info("Question refined",
		zap.String("conversation_id", conversationID),
		zap.Int("turn", turn),
		zap.Bool("persisted", persisted),
	)

	return &RefinementResult{
		ConversationID:  conversationID,
		Question:        QuestionView{ID: viewID, QuestionState: next},
		ChangesMade:     refined.ChangesMade,
		ConfidenceScore: refined.ConfidenceScore,
		TurnNumber:      turn,
		Persisted:       persisted,
	}, nil
}

// rollback 入库失败时恢复会话到本轮之前，新会话直接删除
func (s *RefinementService) rollback(ctx context.Context, conversationID string, previous *model.Conversation) {
	var err error
	if previous == nil {
		err = s.Store.Delete(ctx, conversationID)
	} else {
		err = s.Store.Put(ctx, previous)
	}
	if err != nil {
		logger.Log.Error("Failed to roll back conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

func (s *RefinementService) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.Store.Get(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		return nil, util.NotFoundError("conversation not found")
	}
	if err != nil {
		return nil, util.InternalError(err, "failed to load conversation")
	}
	return conv, nil
}

// Reset 删除会话，不存在时返回 NotFound
func (s *RefinementService) Reset(ctx context.Context, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	err := s.Store.Delete(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		return util.NotFoundError("conversation not found")
	}
	if err != nil {
		return util.InternalError(err, "failed to reset conversation")
	}
	logger.Log.Info("Conversation reset", zap.String("conversation_id", id))
	return nil
}

// QuestionHistory 仅题目所有者可查看
func (s *RefinementService) QuestionHistory(ctx context.Context, questionID string, actor *Actor) ([]model.RefinementEntry, error) {
	if actor == nil {
		return nil, util.UnauthorizedError("authentication required")
	}
	q, err := s.findQuestion(questionID)
	if err != nil {
		return nil, err
	}
	if !q.OwnedBy(actor.UserID) {
		return nil, util.ForbiddenError("not authorized to view this question's history")
	}
	entries, err := s.Refinements.ListByQuestion(questionID)
	if err != nil {
		return nil, util.InternalError(err, "failed to load refinement history")
	}
	return entries, nil
}

func (s *RefinementService) findQuestion(id string) (*model.Question, error) {
	q, err := s.Questions.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NotFoundError("question not found")
	}
	if err != nil {
		return nil, util.InternalError(err, "failed to load question")
	}
	return q, nil
}
