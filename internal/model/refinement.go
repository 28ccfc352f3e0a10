package model

import (
	"time"

	"gorm.io/datatypes"
)

// RefinementEntry 精修审计记录，写入后不再修改
// swagger:model RefinementEntry
type RefinementEntry struct {
	UUIDBase
	QuestionID    string                            `gorm:"type:varchar(36);not null;index" json:"question_id"`
	Instruction   string                            `gorm:"type:text;not null" json:"instruction"`
	ChangesMade   string                            `gorm:"type:text" json:"changes_made"`
	PreviousState datatypes.JSONType[QuestionState] `json:"previous_state"`
	NewState      datatypes.JSONType[QuestionState] `json:"new_state"`
}

func (RefinementEntry) TableName() string {
	return "refinement_entries"
}

const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
)

// ConversationTurn 对话历史中的一条记录
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Conversation 精修会话，存放在会话存储中而不是数据库
type Conversation struct {
	ID           string             `json:"id"`
	QuestionID   *string            `json:"question_id,omitempty"`
	History      []ConversationTurn `json:"history"`
	CurrentState QuestionState      `json:"current_state"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// TurnNumber 每轮包含一条用户指令和一条助手总结
func (c *Conversation) TurnNumber() int {
	return len(c.History)/2 + 1
}

// Clone 深拷贝，避免存储与调用方共享切片
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	if c.QuestionID != nil {
		id := *c.QuestionID
		out.QuestionID = &id
	}
	out.History = append([]ConversationTurn(nil), c.History...)
	if c.CurrentState.Options != nil {
		out.CurrentState.Options = append([]MCQOption(nil), c.CurrentState.Options...)
	}
	return &out
}
