package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"
	"socratic_backend/internal/repository"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/database"
	"socratic_backend/pkg/llm"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		JWT: config.JWTConfig{Secret: "test-secret-test-secret-test-secret", ExpireTime: time.Hour},
		Storage: config.StorageConfig{
			Type:      util.StorageLocal,
			LocalPath: t.TempDir(),
		},
		Generation: config.GenerationConfig{
			MinContentLength:     50,
			MaxQuestions:         20,
			DefaultQuestions:     5,
			MaxSimilar:           10,
			MaxBatch:             5,
			MinInstructionLength: 3,
		},
		Document: config.DocumentConfig{
			MaxChars:     20000,
			MaxImages:    5,
			ImageMaxSide: 256,
		},
	}
}

// scriptedBackend 依次返回预设的响应，最后一条重复使用
type scriptedBackend struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []llm.Request
}

func (b *scriptedBackend) Complete(ctx context.Context, req llm.Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return "", b.err
	}
	if len(b.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := b.responses[0]
	if len(b.responses) > 1 {
		b.responses = b.responses[1:]
	}
	return resp, nil
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.requests)
}

func newTestGenerator(t *testing.T, backend llm.Backend) *QuestionGeneratorService {
	t.Helper()
	engine := llm.NewEngine(backend, llm.Options{Model: "test-model", Temperature: 0.7, MaxTokens: 1000, MaxRetries: 3})
	return NewQuestionGeneratorService(engine, testConfig(t).Generation)
}

func uintPtr(v uint) *uint { return &v }

func mcqState() model.QuestionState {
	return model.QuestionState{
		QuestionText:  "What is 2 + 2?",
		QuestionType:  model.QuestionTypeMCQ,
		Difficulty:    "easy",
		Topic:         "arithmetic",
		Explanation:   "2 + 2 = 4",
		CorrectAnswer: "A",
		Options: []model.MCQOption{
			{Label: "A", Text: "4", IsCorrect: true},
			{Label: "B", Text: "5"},
			{Label: "C", Text: "6"},
			{Label: "D", Text: "3"},
		},
		ConfidenceScore: 0.9,
	}
}

func seedQuestion(t *testing.T, db *gorm.DB, owner *uint) *model.Question {
	t.Helper()
	s := mcqState()
	score := s.ConfidenceScore
	q := &model.Question{
		QuestionText:    s.QuestionText,
		QuestionType:    s.QuestionType,
		Difficulty:      s.Difficulty,
		Topic:           s.Topic,
		Explanation:     s.Explanation,
		CorrectAnswer:   s.CorrectAnswer,
		Options:         datatypes.JSONSlice[model.MCQOption](s.Options),
		ConfidenceScore: &score,
		OwnerID:         owner,
	}
	if err := db.Create(q).Error; err != nil {
		t.Fatalf("seed question: %v", err)
	}
	return q
}

func newRepos(db *gorm.DB) (*repository.QuestionRepository, *repository.RefinementRepository, *repository.GenerationSessionRepository) {
	return repository.NewQuestionRepository(db), repository.NewRefinementRepository(db), repository.NewGenerationSessionRepository(db)
}

func wantKind(t *testing.T, err error, kind util.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("err = nil, want %s", kind.Code())
	}
	if got := util.KindOf(err); got != kind {
		t.Fatalf("kind = %s, want %s (err %v)", got.Code(), kind.Code(), err)
	}
}
