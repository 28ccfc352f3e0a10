package repository

import (
	"socratic_backend/internal/model"

	"gorm.io/gorm"
)

type RefinementRepository struct {
	DB *gorm.DB
}

func NewRefinementRepository(db *gorm.DB) *RefinementRepository {
	return &RefinementRepository{DB: db}
}

// ApplyRefinement 写入审计记录并更新题目，两者要么都成功要么都不生效
func (r *RefinementRepository) ApplyRefinement(entry *model.RefinementEntry, question *model.Question) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		result := tx.Model(&model.Question{}).
			Where("id = ?", question.ID).
			Select("question_text", "question_type", "difficulty", "topic",
				"explanation", "correct_answer", "options", "confidence_score", "updated_at").
			Updates(question)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

func (r *RefinementRepository) ListByQuestion(questionID string) ([]model.RefinementEntry, error) {
	var entries []model.RefinementEntry
	err := r.DB.Where("question_id = ?", questionID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
