package repository

import (
	"strings"

	"socratic_backend/internal/model"

	"gorm.io/gorm"
)

// QuestionFilter 题目列表筛选条件，零值表示不过滤
type QuestionFilter struct {
	OwnerID      *uint
	SessionID    string
	QuestionType model.QuestionType
	Difficulty   string
	Topic        string // 子串匹配，不区分大小写
}

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) FindByID(id string) (*model.Question, error) {
	var question model.Question
	err := r.DB.Where("id = ?", id).First(&question).Error
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (r *QuestionRepository) List(filter QuestionFilter, page, perPage int) ([]model.Question, int64, error) {
	query := r.DB.Model(&model.Question{})

	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.SessionID != "" {
		query = query.Where("session_id = ?", filter.SessionID)
	}
	if filter.QuestionType != "" {
		query = query.Where("question_type = ?", filter.QuestionType)
	}
	if filter.Difficulty != "" {
		query = query.Where("difficulty = ?", filter.Difficulty)
	}
	if topic := strings.TrimSpace(filter.Topic); topic != "" {
		query = query.Where("LOWER(topic) LIKE ?", "%"+strings.ToLower(topic)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var questions []model.Question
	err := query.Order("created_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&questions).Error
	return questions, total, err
}

func (r *QuestionRepository) ListBySession(sessionID string) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) Update(question *model.Question) error {
	return r.DB.Save(question).Error
}

// Delete 先删精修记录再删题目，不依赖数据库外键也能级联
func (r *QuestionRepository) Delete(id string) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("question_id = ?", id).Delete(&model.RefinementEntry{}).Error; err != nil {
			return err
		}
		result := tx.Where("id = ?", id).Delete(&model.Question{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// BulkDelete 只删除属于 ownerID 的题目，返回实际删除数量
func (r *QuestionRepository) BulkDelete(ids []string, ownerID uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64
	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var owned []string
		if err := tx.Model(&model.Question{}).
			Where("id IN ? AND owner_id = ?", ids, ownerID).
			Pluck("id", &owned).Error; err != nil {
			return err
		}
		if len(owned) == 0 {
			return nil
		}
		if err := tx.Where("question_id IN ?", owned).Delete(&model.RefinementEntry{}).Error; err != nil {
			return err
		}
		result := tx.Where("id IN ?", owned).Delete(&model.Question{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}
