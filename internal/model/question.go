package model

import (
	"strings"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	QuestionTypeMCQ       QuestionType = "mcq"
	QuestionTypeOpenEnded QuestionType = "open_ended"
)

// ParseQuestionType 除 mcq 以外一律视为开放题
func ParseQuestionType(s string) QuestionType {
	if strings.EqualFold(strings.TrimSpace(s), string(QuestionTypeMCQ)) {
		return QuestionTypeMCQ
	}
	return QuestionTypeOpenEnded
}

// MCQOption 选择题选项
type MCQOption struct {
	Label     string `json:"label" validate:"required" jsonschema:"description=Option label (A, B, C, or D)"`
	Text      string `json:"text" validate:"required" jsonschema:"description=The option text content"`
	IsCorrect bool   `json:"is_correct" jsonschema:"description=Whether this option is the correct answer"`
}

// swagger:model Question
type Question struct {
	UUIDBase
	QuestionText    string                         `gorm:"type:text;not null" json:"question_text"`
	QuestionType    QuestionType                   `gorm:"size:20;not null;index" json:"question_type"`
	Difficulty      string                         `gorm:"size:20;default:'medium';index" json:"difficulty"`
	Topic           string                         `gorm:"size:255;index" json:"topic"`
	Explanation     string                         `gorm:"type:text" json:"explanation"`
	CorrectAnswer   string                         `gorm:"type:text" json:"correct_answer"`
	Options         datatypes.JSONSlice[MCQOption] `json:"options"`
	SourceContext   string                         `gorm:"type:text" json:"source_context,omitempty"`
	ConfidenceScore *float64                       `json:"confidence_score"`
	SessionID       *string                        `gorm:"type:varchar(36);index" json:"session_id"`
	OwnerID         *uint                          `gorm:"index" json:"owner_id"`

	RefinementHistory []RefinementEntry `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Question) TableName() string {
	return "questions"
}

// State 导出题目当前的可编辑状态
func (q *Question) State() QuestionState {
	state := QuestionState{
		QuestionText:  q.QuestionText,
		QuestionType:  q.QuestionType,
		Difficulty:    q.Difficulty,
		Topic:         q.Topic,
		Explanation:   q.Explanation,
		CorrectAnswer: q.CorrectAnswer,
	}
	if len(q.Options) > 0 {
		state.Options = append([]MCQOption(nil), q.Options...)
	}
	if q.ConfidenceScore != nil {
		state.ConfidenceScore = *q.ConfidenceScore
	}
	return state.Normalize()
}

// OwnedBy 无主题目不属于任何用户
func (q *Question) OwnedBy(userID uint) bool {
	return q.OwnerID != nil && *q.OwnerID == userID
}
