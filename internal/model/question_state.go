package model

import (
	"fmt"
	"strings"
)

const (
	DefaultDifficulty = "medium"
)

// QuestionState 生成与精修过程中题目的规范表示
// swagger:model QuestionState
type QuestionState struct {
	QuestionText    string       `json:"question_text" binding:"required"`
	QuestionType    QuestionType `json:"question_type"`
	Difficulty      string       `json:"difficulty"`
	Topic           string       `json:"topic,omitempty"`
	Explanation     string       `json:"explanation"`
	CorrectAnswer   string       `json:"correct_answer"`
	Options         []MCQOption  `json:"options,omitempty"`
	ConfidenceScore float64      `json:"confidence_score,omitempty"`
}

// Normalize 补齐默认值，开放题不携带选项
func (s QuestionState) Normalize() QuestionState {
	if s.QuestionType == "" {
		s.QuestionType = QuestionTypeMCQ
	} else {
		s.QuestionType = ParseQuestionType(string(s.QuestionType))
	}
	if strings.TrimSpace(s.Difficulty) == "" {
		s.Difficulty = DefaultDifficulty
	}
	if s.QuestionType == QuestionTypeOpenEnded {
		s.Options = nil
	} else if len(s.Options) == 0 {
		s.Options = nil
	}
	return s
}

// CorrectOptions 返回被标记为正确的选项标签
func (s QuestionState) CorrectOptions() []string {
	var labels []string
	for _, opt := range s.Options {
		if opt.IsCorrect {
			labels = append(labels, opt.Label)
		}
	}
	return labels
}

// Render 把题目状态渲染为提示词中的文本
func (s QuestionState) Render() string {
	s = s.Normalize()

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", s.QuestionText)
	fmt.Fprintf(&b, "Type: %s\n", s.QuestionType)
	fmt.Fprintf(&b, "Difficulty: %s\n", s.Difficulty)
	if s.Topic != "" {
		fmt.Fprintf(&b, "Topic: %s\n", s.Topic)
	}

	if len(s.Options) > 0 {
		b.WriteString("\nOptions:\n")
		for _, opt := range s.Options {
			marker := ""
			if opt.IsCorrect {
				marker = " (correct)"
			}
			fmt.Fprintf(&b, "  %s. %s%s\n", opt.Label, opt.Text, marker)
		}
	}

	fmt.Fprintf(&b, "\nCorrect Answer: %s\n", s.CorrectAnswer)
	fmt.Fprintf(&b, "\nExplanation: %s", s.Explanation)
	return b.String()
}
