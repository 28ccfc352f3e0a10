package service

import (
	"context"
	"strings"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/logger"
	"socratic_backend/pkg/monitoring"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	minSimilarityTextLength = 10
	defaultNumSimilar       = 3
)

type AnalyzeRequest struct {
	QuestionText string            `json:"question_text" binding:"required"`
	Options      []model.MCQOption `json:"options"`
}

type SimilarityRequest struct {
	QuestionText string            `json:"question_text" binding:"required"`
	Options      []model.MCQOption `json:"options"`
	NumSimilar   int               `json:"num_similar"`
	Title        string            `json:"title"`
}

type BatchSimilarityRequest struct {
	Questions []SimilarityRequest `json:"questions" binding:"required,min=1,dive"`
}

type SimilarityResult struct {
	SessionID         string           `json:"session_id"`
	OriginalAnalysis  AnalysisView     `json:"original_analysis"`
	SimilarQuestions  []model.Question `json:"similar_questions"`
	GenerationSummary string           `json:"generation_summary"`
}

type BatchSimilarityResult struct {
	Results []SimilarityResult `json:"results"`
	Total   int                `json:"total_generated"`
}

// SimilarityService 先分析原题，再按分析结果生成相似题
type SimilarityService struct {
	Generator *QuestionGeneratorService
	Sessions  *repository.GenerationSessionRepository
	Cfg       config.GenerationConfig
}

func NewSimilarityService(generator *QuestionGeneratorService, sessions *repository.GenerationSessionRepository, cfg config.GenerationConfig) *SimilarityService {
	return &SimilarityService{Generator: generator, Sessions: sessions, Cfg: cfg}
}

func (s *SimilarityService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalysisView, error) {
	if err := checkSimilarityText(req.QuestionText); err != nil {
		return nil, err
	}
	analysis, err := s.Generator.AnalyzeQuestion(ctx, req.QuestionText, req.Options)
	if err != nil {
		return nil, err
	}
	view := analysis.View()
	return &view, nil
}

func (s *SimilarityService) Generate(ctx context.Context, req SimilarityRequest, actor *Actor) (*SimilarityResult, error) {
	if err := checkSimilarityText(req.QuestionText); err != nil {
		return nil, err
	}
	if req.NumSimilar == 0 {
		req.NumSimilar = defaultNumSimilar
	}
	if req.NumSimilar < 1 || req.NumSimilar > s.Cfg.MaxSimilar {
		return nil, util.InvalidRequest("num_similar must be between 1 and %d", s.Cfg.MaxSimilar)
	}

	analysis, err := s.Generator.AnalyzeQuestion(ctx, req.QuestionText, req.Options)
	if err != nil {
		return nil, err
	}
	out, err := s.Generator.GenerateSimilar(ctx, req.QuestionText, analysis, req.NumSimilar, req.Options)
	if err != nil {
		return nil, err
	}

	session := &model.GenerationSession{
		Title:                 req.Title,
		SourceType:            model.SourceSimilarity,
		SourceContent:         truncate(req.QuestionText, similarityPreviewChars),
		NumQuestionsRequested: req.NumSimilar,
		Summary:               out.GenerationSummary,
		Status:                model.SessionCompleted,
		OwnerID:               actor.OwnerID(),
	}
	questions := lo.Map(out.Questions, func(g GeneratedQuestion, _ int) model.Question {
		return NewQuestionFromGenerated(g, truncate(req.QuestionText, sourceContextChars))
	})
	if err := s.Sessions.CreateWithQuestions(session, questions); err != nil {
		return nil, util.InternalError(err, "failed to save similar questions")
	}

	monitoring.QuestionsGenerated.WithLabelValues(string(model.SourceSimilarity)).Add(float64(len(questions)))
	logger.Log.Info("Similar questions generated",
		zap.String("session_id", session.ID),
		zap.String("topic", analysis.Analysis.Topic),
		zap.Int("count", len(questions)),
	)

	return &SimilarityResult{
		SessionID:         session.ID,
		OriginalAnalysis:  analysis.View(),
		SimilarQuestions:  session.Questions,
		GenerationSummary: out.GenerationSummary,
	}, nil
}

// Batch 逐个处理，任一失败则整体失败，已生成的会话保留
func (s *SimilarityService) Batch(ctx context.Context, req BatchSimilarityRequest, actor *Actor) (*BatchSimilarityResult, error) {
	if len(req.Questions) == 0 {
		return nil, util.InvalidRequest("at least one question is required")
	}
	if s.Cfg.MaxBatch > 0 && len(req.Questions) > s.Cfg.MaxBatch {
		return nil, util.InvalidRequest("at most %d questions per batch", s.Cfg.MaxBatch)
	}

	result := &BatchSimilarityResult{Results: make([]SimilarityResult, 0, len(req.Questions))}
	for _, item := range req.Questions {
		r, err := s.Generate(ctx, item, actor)
		if err != nil {
			return nil, err
		}
		result.Results = append(result.Results, *r)
		result.Total += len(r.SimilarQuestions)
	}
	return result, nil
}

func checkSimilarityText(text string) error {
	if len([]rune(strings.TrimSpace(text))) < minSimilarityTextLength {
		return util.InvalidRequest("question_text must be at least %d characters", minSimilarityTextLength)
	}
	return nil
}
