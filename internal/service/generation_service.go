package service

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/document"
	"socratic_backend/pkg/llm"
	"socratic_backend/pkg/logger"
	"socratic_backend/pkg/monitoring"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 预览长度
const (
	textPreviewChars       = 1000
	similarityPreviewChars = 500
	sourceContextChars     = 500
)

// DocumentExtractor PDF 文本提取
type DocumentExtractor interface {
	ExtractPDF(data []byte) (*document.PDFDocument, error)
}

// GenerationOptions 文本、PDF、图片出题共用的参数
type GenerationOptions struct {
	NumQuestions  int      `json:"num_questions" form:"num_questions"`
	QuestionTypes []string `json:"question_types" form:"question_types"`
	Difficulty    string   `json:"difficulty" form:"difficulty"`
	TopicFocus    string   `json:"topic_focus" form:"topic_focus"`
	Title         string   `json:"title" form:"title"`
}

type TextGenerationRequest struct {
	Content string `json:"content" binding:"required"`
	GenerationOptions
}

// Upload 上传的文件内容
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// GenerationResult 一次出题会话的响应
type GenerationResult struct {
	SessionID         string           `json:"session_id"`
	Questions         []model.Question `json:"questions"`
	GenerationSummary string           `json:"generation_summary"`
	SourceType        string           `json:"source_type"`
	PageCount         *int             `json:"page_count,omitempty"`
	Truncated         bool             `json:"truncated,omitempty"`
}

type GenerationService struct {
	Generator *QuestionGeneratorService
	Sessions  *repository.GenerationSessionRepository
	Storage   *StorageService
	Extractor DocumentExtractor
	Cfg       *config.Config
}

func NewGenerationService(generator *QuestionGeneratorService, sessions *repository.GenerationSessionRepository, storage *StorageService, extractor DocumentExtractor, cfg *config.Config) *GenerationService {
	return &GenerationService{
		Generator: generator,
		Sessions:  sessions,
		Storage:   storage,
		Extractor: extractor,
		Cfg:       cfg,
	}
}

func (s *GenerationService) GenerateFromText(ctx context.Context, req TextGenerationRequest, actor *Actor) (*GenerationResult, error) {
	opts := s.withDefaults(req.GenerationOptions)
	content, truncated, err := s.fitContent(req.Content)
	if err != nil {
		return nil, err
	}

	out, err := s.Generator.GenerateFromDocument(ctx, DocumentRequest{
		Content:       content,
		NumQuestions:  opts.NumQuestions,
		QuestionTypes: ParseQuestionTypes(opts.QuestionTypes),
		Difficulty:    opts.Difficulty,
		TopicFocus:    opts.TopicFocus,
	})
	if err != nil {
		return nil, err
	}

	session := &model.GenerationSession{
		Title:                 opts.Title,
		SourceType:            model.SourceText,
		SourceContent:         truncate(req.Content, textPreviewChars),
		NumQuestionsRequested: opts.NumQuestions,
		Summary:               out.GenerationSummary,
		Status:                model.SessionCompleted,
		OwnerID:               actor.OwnerID(),
	}
	result, err := s.persist(session, out, truncate(req.Content, sourceContextChars))
	if err != nil {
		return nil, err
	}
	result.Truncated = truncated
	return result, nil
}

func (s *GenerationService) GenerateFromPDF(ctx context.Context, upload Upload, opts GenerationOptions, actor *Actor) (*GenerationResult, error) {
	if !util.HasPDFExtension(upload.Filename) {
		return nil, util.InvalidRequest("file must be a PDF document")
	}
	opts = s.withDefaults(opts)

	doc, err := s.Extractor.ExtractPDF(upload.Data)
	if err != nil {
		return nil, util.ExtractionError(err, "failed to parse PDF")
	}
	if len([]rune(strings.TrimSpace(doc.Text))) < s.Cfg.Generation.MinContentLength {
		return nil, util.ExtractionError(nil, "PDF contains insufficient text content for question generation")
	}

	content, truncated, err := s.fitContent(doc.Text)
	if err != nil {
		return nil, err
	}

	out, err := s.Generator.GenerateFromDocument(ctx, DocumentRequest{
		Content:       content,
		NumQuestions:  opts.NumQuestions,
		QuestionTypes: ParseQuestionTypes(opts.QuestionTypes),
		Difficulty:    opts.Difficulty,
		TopicFocus:    opts.TopicFocus,
	})
	if err != nil {
		return nil, err
	}

	pages := doc.PageCount
	session := &model.GenerationSession{
		Title:                 opts.Title,
		SourceType:            model.SourcePDF,
		SourceContent:         "PDF: " + util.SafeFilename(upload.Filename),
		NumQuestionsRequested: opts.NumQuestions,
		PageCount:             &pages,
		Summary:               out.GenerationSummary,
		Status:                model.SessionCompleted,
		OwnerID:               actor.OwnerID(),
	}
	session.ID = model.GenerateUUID()
	session.SourceObjectKey = s.Storage.ArchiveSource(ctx, session.ID, upload.Filename, upload.Data, util.MimePDF)

	result, err := s.persist(session, out, truncate(doc.Text, sourceContextChars))
	if err != nil {
		return nil, err
	}
	result.PageCount = &pages
	result.Truncated = truncated
	return result, nil
}

func (s *GenerationService) GenerateFromImages(ctx context.Context, uploads []Upload, opts GenerationOptions, actor *Actor) (*GenerationResult, error) {
	if len(uploads) == 0 {
		return nil, util.InvalidRequest("at least one image is required")
	}
	if max := s.Cfg.Document.MaxImages; max > 0 && len(uploads) > max {
		return nil, util.InvalidRequest("at most %d images are allowed", max)
	}
	opts = s.withDefaults(opts)

	images := make([]llm.Image, 0, len(uploads))
	for _, up := range uploads {
		img, err := document.PrepareImage(bytes.NewReader(up.Data), up.ContentType, s.Cfg.Document.ImageMaxSide)
		if err != nil {
			return nil, util.ExtractionError(err, "failed to read image %s", util.SafeFilename(up.Filename))
		}
		images = append(images, img)
	}

	out, err := s.Generator.GenerateFromImages(ctx, ImageRequest{
		Images:        images,
		NumQuestions:  opts.NumQuestions,
		QuestionTypes: ParseQuestionTypes(opts.QuestionTypes),
		Difficulty:    opts.Difficulty,
		TopicFocus:    opts.TopicFocus,
	})
	if err != nil {
		return nil, err
	}

	names := lo.Map(uploads, func(up Upload, _ int) string { return util.SafeFilename(up.Filename) })
	session := &model.GenerationSession{
		Title:                 opts.Title,
		SourceType:            model.SourceImage,
		SourceContent:         truncate("Images: "+strings.Join(names, ", "), textPreviewChars),
		NumQuestionsRequested: opts.NumQuestions,
		Summary:               out.GenerationSummary,
		Status:                model.SessionCompleted,
		OwnerID:               actor.OwnerID(),
	}
	session.ID = model.GenerateUUID()
	// 多张图片时以第一张的对象键作为代表
	for i, up := range uploads {
		key := s.Storage.ArchiveSource(ctx, session.ID, up.Filename, up.Data, up.ContentType)
		if i == 0 {
			session.SourceObjectKey = key
		}
	}

	return s.persist(session, out, "")
}

// GetSession 有所有者的会话只允许所有者查看
func (s *GenerationService) GetSession(ctx context.Context, id string, actor *Actor) (*GenerationResult, error) {
	session, err := s.Sessions.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, util.NotFoundError("generation session not found")
	}
	if err != nil {
		return nil, util.InternalError(err, "failed to load generation session")
	}
	if session.OwnerID != nil && (actor == nil || *session.OwnerID != actor.UserID) {
		return nil, util.ForbiddenError("not authorized to view this session")
	}
	return sessionResult(session), nil
}

func (s *GenerationService) persist(session *model.GenerationSession, out *GeneratedQuestions, sourceContext string) (*GenerationResult, error) {
	questions := lo.Map(out.Questions, func(g GeneratedQuestion, _ int) model.Question {
		return NewQuestionFromGenerated(g, sourceContext)
	})
	if err := s.Sessions.CreateWithQuestions(session, questions); err != nil {
		return nil, util.InternalError(err, "failed to save generated questions")
	}

	monitoring.QuestionsGenerated.WithLabelValues(string(session.SourceType)).Add(float64(len(questions)))
	logger.Log.Info("Questions generated",
		zap.String("session_id", session.ID),
		zap.String("source", string(session.SourceType)),
		zap.Int("count", len(questions)),
	)
	return sessionResult(session), nil
}

// fitContent 超长文本按块截断到配置上限
func (s *GenerationService) fitContent(content string) (string, bool, error) {
	if len([]rune(strings.TrimSpace(content))) < s.Cfg.Generation.MinContentLength {
		return "", false, util.InvalidRequest("content must be at least %d characters", s.Cfg.Generation.MinContentLength)
	}
	fitted, truncated, err := document.Fit(content, s.Cfg.Document.MaxChars)
	if err != nil {
		return "", false, util.InternalError(err, "failed to split content")
	}
	if truncated {
		logger.Log.Info("Source content truncated",
			zap.Int("original_chars", len([]rune(content))),
			zap.Int("max_chars", s.Cfg.Document.MaxChars),
		)
	}
	return fitted, truncated, nil
}

func (s *GenerationService) withDefaults(opts GenerationOptions) GenerationOptions {
	if opts.NumQuestions == 0 {
		opts.NumQuestions = s.Cfg.Generation.DefaultQuestions
	}
	if strings.TrimSpace(opts.Difficulty) == "" {
		opts.Difficulty = difficultyMixed
	}
	return opts
}

func sessionResult(session *model.GenerationSession) *GenerationResult {
	questions := session.Questions
	if questions == nil {
		questions = []model.Question{}
	}
	return &GenerationResult{
		SessionID:         session.ID,
		Questions:         questions,
		GenerationSummary: session.Summary,
		SourceType:        string(session.SourceType),
		PageCount:         session.PageCount,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
