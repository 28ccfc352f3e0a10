package service

import (
	"errors"
	"fmt"
	"strings"

	"socratic_backend/internal/model"

	"github.com/samber/lo"
)

// 以下结构体同时作为大模型工具调用的 JSON Schema 与校验规则

// GeneratedQuestion 单道生成题目
type GeneratedQuestion struct {
	QuestionText    string            `json:"question_text" validate:"required" jsonschema:"description=The complete question text"`
	QuestionType    string            `json:"question_type" validate:"required" jsonschema:"enum=mcq,enum=open_ended,description=Type of question"`
	Difficulty      string            `json:"difficulty" validate:"required" jsonschema:"description=Difficulty level: easy, medium, or hard"`
	Topic           string            `json:"topic" jsonschema:"description=The topic or subject area of the question"`
	Explanation     string            `json:"explanation" validate:"required" jsonschema:"description=Detailed step-by-step solution and explanation"`
	Options         []model.MCQOption `json:"options,omitempty" validate:"omitempty,dive" jsonschema:"description=List of 4 options for MCQ questions. Omit for open-ended questions."`
	CorrectAnswer   string            `json:"correct_answer" validate:"required" jsonschema:"description=The correct answer. For MCQ the option label (A/B/C/D). For open-ended a model answer."`
	ConfidenceScore float64           `json:"confidence_score" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1,description=Confidence in question quality (0.0 to 1.0)"`
}

func (q GeneratedQuestion) State() model.QuestionState {
	return model.QuestionState{
		QuestionText:    q.QuestionText,
		QuestionType:    model.ParseQuestionType(q.QuestionType),
		Difficulty:      q.Difficulty,
		Topic:           q.Topic,
		Explanation:     q.Explanation,
		CorrectAnswer:   q.CorrectAnswer,
		Options:         q.Options,
		ConfidenceScore: q.ConfidenceScore,
	}.Normalize()
}

// GeneratedQuestions 批量生成结果
type GeneratedQuestions struct {
	Questions         []GeneratedQuestion `json:"questions" validate:"required,dive" jsonschema:"description=List of generated questions"`
	GenerationSummary string              `json:"generation_summary" jsonschema:"description=Brief summary of the generation (topics covered and difficulty distribution)"`
}

// QuestionAnalysis 相似题生成前对原题的分析
type QuestionAnalysis struct {
	Topic                  string   `json:"topic" validate:"required" jsonschema:"description=The main topic or subject of the question"`
	Subtopic               string   `json:"subtopic" jsonschema:"description=More specific subtopic if applicable"`
	Difficulty             string   `json:"difficulty" validate:"required" jsonschema:"description=Estimated difficulty: easy, medium, or hard"`
	QuestionType           string   `json:"question_type" validate:"required" jsonschema:"enum=mcq,enum=open_ended,description=Type of question"`
	KeyConcepts            []string `json:"key_concepts" validate:"required,min=1" jsonschema:"description=Key concepts tested by this question"`
	MathematicalOperations []string `json:"mathematical_operations,omitempty" jsonschema:"description=Mathematical operations involved (if applicable)"`
	FormatStyle            string   `json:"format_style" validate:"required" jsonschema:"description=Description of the question format and style"`
}

type SimilarityAnalysis struct {
	Analysis             QuestionAnalysis `json:"analysis" jsonschema:"description=Analysis of the input question"`
	VariationSuggestions []string         `json:"variation_suggestions" jsonschema:"description=Suggestions for how to create variations"`
}

// AnalysisView 扁平化的分析结果，直接返回给客户端
type AnalysisView struct {
	Topic                  string   `json:"topic"`
	Subtopic               string   `json:"subtopic"`
	Difficulty             string   `json:"difficulty"`
	QuestionType           string   `json:"question_type"`
	KeyConcepts            []string `json:"key_concepts"`
	MathematicalOperations []string `json:"mathematical_operations"`
	FormatStyle            string   `json:"format_style"`
	VariationSuggestions   []string `json:"variation_suggestions"`
}

func (a *SimilarityAnalysis) View() AnalysisView {
	return AnalysisView{
		Topic:                  a.Analysis.Topic,
		Subtopic:               a.Analysis.Subtopic,
		Difficulty:             a.Analysis.Difficulty,
		QuestionType:           a.Analysis.QuestionType,
		KeyConcepts:            a.Analysis.KeyConcepts,
		MathematicalOperations: a.Analysis.MathematicalOperations,
		FormatStyle:            a.Analysis.FormatStyle,
		VariationSuggestions:   a.VariationSuggestions,
	}
}

// RefinedQuestion 精修后的完整题目与修改说明
type RefinedQuestion struct {
	QuestionText    string            `json:"question_text" validate:"required" jsonschema:"description=The refined question text"`
	QuestionType    string            `json:"question_type" validate:"required" jsonschema:"enum=mcq,enum=open_ended,description=Type of question"`
	Difficulty      string            `json:"difficulty" validate:"required" jsonschema:"description=Difficulty level"`
	Topic           string            `json:"topic,omitempty" jsonschema:"description=Topic if changed"`
	Explanation     string            `json:"explanation" validate:"required" jsonschema:"description=Updated explanation"`
	Options         []model.MCQOption `json:"options,omitempty" validate:"omitempty,dive" jsonschema:"description=Updated options for MCQ"`
	CorrectAnswer   string            `json:"correct_answer" validate:"required" jsonschema:"description=The correct answer"`
	ChangesMade     string            `json:"changes_made" validate:"required" jsonschema:"description=Summary of what was changed based on the instruction"`
	ConfidenceScore float64           `json:"confidence_score" validate:"gte=0,lte=1" jsonschema:"minimum=0,maximum=1,description=Confidence in the refinement quality"`
}

var errSingleCorrectOption = errors.New("multiple-choice questions need exactly one option with is_correct=true")

var errMissingOptions = errors.New("multiple-choice questions must include their options")

// checkOptions 选择题必须带选项且恰好一个正确选项，正确答案与该选项标签一致
func checkOptions(questionType string, options []model.MCQOption, correctAnswer string) error {
	if model.ParseQuestionType(questionType) != model.QuestionTypeMCQ {
		return nil
	}
	if len(options) == 0 {
		return errMissingOptions
	}
	correct := lo.Filter(options, func(opt model.MCQOption, _ int) bool { return opt.IsCorrect })
	if len(correct) != 1 {
		return fmt.Errorf("%w, got %d", errSingleCorrectOption, len(correct))
	}
	if answer := strings.TrimSpace(correctAnswer); len(answer) <= 2 && !strings.EqualFold(strings.TrimSuffix(answer, "."), correct[0].Label) {
		return fmt.Errorf("correct_answer %q does not match the option marked correct (%s)", correctAnswer, correct[0].Label)
	}
	return nil
}

func checkQuestionCount(want int) func(*GeneratedQuestions) error {
	return func(out *GeneratedQuestions) error {
		if len(out.Questions) != want {
			return fmt.Errorf("expected exactly %d questions, got %d", want, len(out.Questions))
		}
		for i, q := range out.Questions {
			if err := checkOptions(q.QuestionType, q.Options, q.CorrectAnswer); err != nil {
				return fmt.Errorf("questions[%d]: %w", i, err)
			}
		}
		return nil
	}
}

func checkRefined(out *RefinedQuestion) error {
	return checkOptions(out.QuestionType, out.Options, out.CorrectAnswer)
}
