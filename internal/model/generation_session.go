package model

type GenerationSource string

const (
	SourceText       GenerationSource = "text"
	SourcePDF        GenerationSource = "pdf"
	SourceImage      GenerationSource = "image"
	SourceSimilarity GenerationSource = "similarity"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionArchived  SessionStatus = "archived"
)

// GenerationSession 一次生成请求产生的题目批次
// swagger:model GenerationSession
type GenerationSession struct {
	UUIDBase
	Title                 string           `gorm:"size:255" json:"title,omitempty"`
	SourceType            GenerationSource `gorm:"size:20;not null;index" json:"source_type"`
	SourceContent         string           `gorm:"type:text" json:"source_content"`
	SourceObjectKey       string           `gorm:"size:512" json:"source_object_key,omitempty"`
	NumQuestionsRequested int              `gorm:"not null" json:"num_questions_requested"`
	PageCount             *int             `json:"page_count,omitempty"`
	Summary               string           `gorm:"type:text" json:"generation_summary"`
	Status                SessionStatus    `gorm:"size:20;default:'completed'" json:"status"`
	OwnerID               *uint            `gorm:"index" json:"owner_id"`

	Questions []Question `gorm:"foreignKey:SessionID;constraint:OnDelete:SET NULL" json:"questions,omitempty"`
}

func (GenerationSession) TableName() string {
	return "generation_sessions"
}
