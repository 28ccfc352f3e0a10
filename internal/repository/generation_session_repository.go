package repository

import (
	"socratic_backend/internal/model"

	"gorm.io/gorm"
)

type GenerationSessionRepository struct {
	DB *gorm.DB
}

func NewGenerationSessionRepository(db *gorm.DB) *GenerationSessionRepository {
	return &GenerationSessionRepository{DB: db}
}

// CreateWithQuestions 会话与题目在同一事务中写入
func (r *GenerationSessionRepository) CreateWithQuestions(session *model.GenerationSession, questions []model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Questions").Create(session).Error; err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		for i := range questions {
			questions[i].SessionID = &session.ID
			questions[i].OwnerID = session.OwnerID
		}
		if err := tx.Create(&questions).Error; err != nil {
			return err
		}
		session.Questions = questions
		return nil
	})
}

func (r *GenerationSessionRepository) FindByID(id string) (*model.GenerationSession, error) {
	var session model.GenerationSession
	err := r.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC")
	}).Where("id = ?", id).First(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GenerationSessionRepository) UpdateObjectKey(id, key string) error {
	return r.DB.Model(&model.GenerationSession{}).
		Where("id = ?", id).
		Update("source_object_key", key).
		Error
}
