package service

import (
	"strings"

	"socratic_backend/internal/model"

	"gorm.io/datatypes"
)

// RefinedState 精修结果转为新的题目状态，结果未给出主题时沿用原主题
func RefinedState(prev model.QuestionState, refined *RefinedQuestion) model.QuestionState {
	topic := strings.TrimSpace(refined.Topic)
	if topic == "" {
		topic = prev.Topic
	}
	return model.QuestionState{
		QuestionText:    refined.QuestionText,
		QuestionType:    model.ParseQuestionType(refined.QuestionType),
		Difficulty:      refined.Difficulty,
		Topic:           topic,
		Explanation:     refined.Explanation,
		CorrectAnswer:   refined.CorrectAnswer,
		Options:         refined.Options,
		ConfidenceScore: refined.ConfidenceScore,
	}.Normalize()
}

// BuildRefinementEntry 生成一条审计记录
func BuildRefinementEntry(questionID, instruction, changes string, prev, next model.QuestionState) *model.RefinementEntry {
	return &model.RefinementEntry{
		QuestionID:    questionID,
		Instruction:   instruction,
		ChangesMade:   changes,
		PreviousState: datatypes.NewJSONType(prev),
		NewState:      datatypes.NewJSONType(next),
	}
}

// ApplyRefinedState 把精修后的状态写回题目，与审计记录的 new_state 一致
func ApplyRefinedState(q *model.Question, next model.QuestionState) {
	q.QuestionText = next.QuestionText
	q.QuestionType = next.QuestionType
	q.Difficulty = next.Difficulty
	q.Topic = next.Topic
	q.Explanation = next.Explanation
	q.CorrectAnswer = next.CorrectAnswer
	q.Options = next.Options
	score := next.ConfidenceScore
	q.ConfidenceScore = &score
}

// NewQuestionFromGenerated 生成结果转为待入库的题目
func NewQuestionFromGenerated(g GeneratedQuestion, sourceContext string) model.Question {
	state := g.State()
	score := state.ConfidenceScore
	return model.Question{
		QuestionText:    state.QuestionText,
		QuestionType:    state.QuestionType,
		Difficulty:      state.Difficulty,
		Topic:           state.Topic,
		Explanation:     state.Explanation,
		CorrectAnswer:   state.CorrectAnswer,
		Options:         state.Options,
		SourceContext:   sourceContext,
		ConfidenceScore: &score,
	}
}
