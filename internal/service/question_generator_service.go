package service

import (
	"context"
	"fmt"
	"strings"

	"socratic_backend/internal/config"
	"socratic_backend/internal/model"
	"socratic_backend/internal/util"
	"socratic_backend/pkg/llm"

	"github.com/samber/lo"
)

const documentSystemPrompt = `You are an expert educational content creator who writes high-quality assessment questions.

Generate questions from the educational content you are given, following these rules:

1. Question quality
   - Test understanding rather than recall.
   - Follow the requested difficulty distribution.
   - Every question must be clear, unambiguous and self-contained.

2. Multiple choice questions
   - Provide exactly 4 options labeled A, B, C and D.
   - Exactly ONE option is correct; set correct_answer to its label.
   - Distractors must be plausible yet clearly wrong.
   - Never use "all of the above" or "none of the above".

3. Open-ended questions
   - Require an analytical or explanatory answer.
   - Give a comprehensive model answer in correct_answer.

4. Explanations
   - Every question MUST include a detailed explanation of why the answer is correct.
   - For multiple choice, also explain why each distractor is wrong.

5. Confidence score
   - Rate your confidence in each question between 0.0 and 1.0.
   - Use lower scores for questions that may be ambiguous.

The questions must be suitable for academic assessment.`

const analysisSystemPrompt = `You are an expert at analyzing educational questions to understand their structure, difficulty and key characteristics.

For the given question identify:
1. The main topic and the subtopic
2. The key concepts being tested
3. The difficulty level (easy, medium or hard)
4. The question format and style
5. Any mathematical operations involved
6. Suggestions for creating variations

Be precise and detailed.`

const similaritySystemPrompt = `You are an expert at writing new educational questions that keep the style, difficulty and format of an original question while varying its specific content.

Using the analysis of the original question, write new questions that:
1. Test the SAME concepts and skills
2. Have the SAME difficulty level
3. Follow the SAME format and style
4. Use DIFFERENT values, contexts or scenarios
5. Are equally clear and well structured

Math questions: change the numbers but keep the answers clean (whole numbers or simple fractions) where appropriate.
Conceptual questions: change the context or scenario while testing the same understanding.

Every question must include a complete explanation.`

const refinementSystemPrompt = `You are an expert question editor helping a teacher refine an assessment question.

Each request gives you the current state of a question and a natural language instruction describing how to change it.

Apply the requested change while you:
1. Keep the question clear and of high quality
2. Keep the question valid and answerable
3. Update the explanation so it matches every change
4. Keep the same format unless the instruction says otherwise

Typical requests change the correct answer, make distractors more or less confusing, adjust the difficulty, change numerical values or reword for clarity.

When the question is multiple choice, exactly one option must have is_correct set, and correct_answer must be that option's label.

Always describe what you changed in the changes_made field.`

// 各类调用的采样温度
var (
	documentTemperature   = llm.Float32(0.7)
	analysisTemperature   = llm.Float32(0.3)
	similarityTemperature = llm.Float32(0.8)
	refinementTemperature = llm.Float32(0.5)
)

const difficultyMixed = "mixed"

// DocumentRequest 文档出题参数
type DocumentRequest struct {
	Content       string
	NumQuestions  int
	QuestionTypes []model.QuestionType
	Difficulty    string
	TopicFocus    string
}

// ImageRequest 图片出题参数
type ImageRequest struct {
	Images        []llm.Image
	NumQuestions  int
	QuestionTypes []model.QuestionType
	Difficulty    string
	TopicFocus    string
}

// QuestionGeneratorService 出题、分析与精修的大模型调用
type QuestionGeneratorService struct {
	Engine *llm.Engine
	Limits config.GenerationConfig
}

func NewQuestionGeneratorService(engine *llm.Engine, limits config.GenerationConfig) *QuestionGeneratorService {
	return &QuestionGeneratorService{Engine: engine, Limits: limits}
}

func (s *QuestionGeneratorService) GenerateFromDocument(ctx context.Context, req DocumentRequest) (*GeneratedQuestions, error) {
	content := strings.TrimSpace(req.Content)
	if len([]rune(content)) < s.Limits.MinContentLength {
		return nil, util.InvalidRequest("content must be at least %d characters", s.Limits.MinContentLength)
	}
	if err := s.checkCount(req.NumQuestions, s.Limits.MaxQuestions); err != nil {
		return nil, err
	}
	difficulty, err := normalizeDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Based on the following educational content, generate %d high-quality questions.

%s
%s
%s

=== CONTENT ===
%s
=== END CONTENT ===

Generate %d questions with complete explanations.`,
		req.NumQuestions,
		typeInstruction(req.QuestionTypes),
		difficultyInstruction(difficulty, req.NumQuestions),
		topicInstruction(req.TopicFocus),
		req.Content,
		req.NumQuestions,
	)

	out, err := llm.Generate(ctx, s.Engine, llm.Call{
		Name:        "generated_questions",
		Description: "Return the generated questions and a short generation summary.",
		System:      documentSystemPrompt,
		Prompt:      prompt,
		Temperature: documentTemperature,
	}, checkQuestionCount(req.NumQuestions))
	if err != nil {
		return nil, generationError(err)
	}
	return out, nil
}

func (s *QuestionGeneratorService) GenerateFromImages(ctx context.Context, req ImageRequest) (*GeneratedQuestions, error) {
	if len(req.Images) == 0 {
		return nil, util.InvalidRequest("at least one image is required")
	}
	if err := s.checkCount(req.NumQuestions, s.Limits.MaxQuestions); err != nil {
		return nil, err
	}
	difficulty, err := normalizeDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf(`Analyze the provided document images and generate %d high-quality educational questions based on the content you see.

%s
%s
%s

Read and understand all the content in the images, then generate %d questions with complete explanations.`,
		req.NumQuestions,
		typeInstruction(req.QuestionTypes),
		difficultyInstruction(difficulty, req.NumQuestions),
		topicInstruction(req.TopicFocus),
		req.NumQuestions,
	)

	out, err := llm.Generate(ctx, s.Engine, llm.Call{
		Name:        "generated_questions",
		Description: "Return the generated questions and a short generation summary.",
		System:      documentSystemPrompt,
		Prompt:      prompt,
		Images:      req.Images,
		Temperature: documentTemperature,
	}, checkQuestionCount(req.NumQuestions))
	if err != nil {
		return nil, generationError(err)
	}
	return out, nil
}

func (s *QuestionGeneratorService) AnalyzeQuestion(ctx context.Context, questionText string, options []model.MCQOption) (*SimilarityAnalysis, error) {
	if strings.TrimSpace(questionText) == "" {
		return nil, util.InvalidRequest("question_text is required")
	}

	prompt := fmt.Sprintf(`Analyze this question in detail:

%s%s

Provide a comprehensive analysis for generating similar questions.`,
		questionText,
		renderOptions("Options", options),
	)

	out, err := llm.Generate[SimilarityAnalysis](ctx, s.Engine, llm.Call{
		Name:        "similarity_analysis",
		Description: "Return the structured analysis of the question.",
		System:      analysisSystemPrompt,
		Prompt:      prompt,
		Temperature: analysisTemperature,
	})
	if err != nil {
		return nil, generationError(err)
	}
	return out, nil
}

// GenerateSimilar 分析结果作为硬性约束写入提示词
func (s *QuestionGeneratorService) GenerateSimilar(ctx context.Context, original string, analysis *SimilarityAnalysis, count int, options []model.MCQOption) (*GeneratedQuestions, error) {
	if analysis == nil {
		return nil, util.InvalidRequest("analysis is required")
	}
	if err := s.checkCount(count, s.Limits.MaxSimilar); err != nil {
		return nil, err
	}

	a := analysis.Analysis
	prompt := fmt.Sprintf(`Generate %d questions similar to the following:

=== ORIGINAL QUESTION ===
%s%s

=== ANALYSIS ===
Topic: %s
Subtopic: %s
Difficulty: %s
Key Concepts: %s
Format Style: %s
Variation Suggestions: %s

Generate %d new questions that are logically similar but use different values or contexts.
Keep the same difficulty level and format.`,
		count,
		original,
		renderOptions("Original Options", options),
		a.Topic,
		a.Subtopic,
		a.Difficulty,
		strings.Join(a.KeyConcepts, ", "),
		a.FormatStyle,
		strings.Join(analysis.VariationSuggestions, ", "),
		count,
	)

	out, err := llm.Generate(ctx, s.Engine, llm.Call{
		Name:        "generated_questions",
		Description: "Return the similar questions and a short generation summary.",
		System:      similaritySystemPrompt,
		Prompt:      prompt,
		Temperature: similarityTemperature,
	}, checkQuestionCount(count))
	if err != nil {
		return nil, generationError(err)
	}
	return out, nil
}

// RefineQuestion 历史对话在前，当前状态与指令作为最后一轮用户消息
func (s *QuestionGeneratorService) RefineQuestion(ctx context.Context, state model.QuestionState, instruction string, history []model.ConversationTurn) (*RefinedQuestion, error) {
	messages := lo.Map(history, func(turn model.ConversationTurn, _ int) llm.Message {
		return llm.Message{Role: turn.Role, Content: turn.Content}
	})

	prompt := fmt.Sprintf(`Current question state:

%s

=== REFINEMENT INSTRUCTION ===
%s

Apply the requested changes and provide the updated question.`,
		state.Render(),
		instruction,
	)

	out, err := llm.Generate(ctx, s.Engine, llm.Call{
		Name:        "refined_question",
		Description: "Return the full refined question and a summary of the changes.",
		System:      refinementSystemPrompt,
		Messages:    messages,
		Prompt:      prompt,
		Temperature: refinementTemperature,
	}, checkRefined)
	if err != nil {
		return nil, generationError(err)
	}
	return out, nil
}

func (s *QuestionGeneratorService) checkCount(n, max int) error {
	if n < 1 || (max > 0 && n > max) {
		return util.InvalidRequest("number of questions must be between 1 and %d", max)
	}
	return nil
}

func typeInstruction(types []model.QuestionType) string {
	hasMCQ := lo.Contains(types, model.QuestionTypeMCQ)
	hasOpen := lo.Contains(types, model.QuestionTypeOpenEnded)
	switch {
	case hasMCQ && !hasOpen:
		return "Generate only Multiple Choice Questions (MCQ) with 4 options each."
	case hasOpen && !hasMCQ:
		return "Generate only Open-Ended questions requiring explanatory answers."
	default:
		return "Generate a mix of Multiple Choice Questions (MCQ) and Open-Ended questions."
	}
}

func difficultyInstruction(difficulty string, count int) string {
	if difficulty == difficultyMixed {
		return fmt.Sprintf("Include a mix of easy, medium, and hard questions across the %d questions.", count)
	}
	return fmt.Sprintf("All questions should be %s difficulty level.", difficulty)
}

func topicInstruction(topic string) string {
	if topic = strings.TrimSpace(topic); topic == "" {
		return ""
	}
	return "\nFocus specifically on: " + topic
}

func renderOptions(heading string, options []model.MCQOption) string {
	if len(options) == 0 {
		return ""
	}
	lines := lo.Map(options, func(opt model.MCQOption, _ int) string {
		return opt.Label + ". " + opt.Text
	})
	return "\n\n" + heading + ":\n" + strings.Join(lines, "\n")
}

// normalizeDifficulty 空值视为 mixed
func normalizeDifficulty(d string) (string, error) {
	d = strings.ToLower(strings.TrimSpace(d))
	if d == "" {
		return difficultyMixed, nil
	}
	if !lo.Contains(util.AllowedDifficulties, d) {
		return "", util.InvalidRequest("difficulty must be one of %s", strings.Join(util.AllowedDifficulties, ", "))
	}
	return d, nil
}

// ParseQuestionTypes 解析逗号分隔或列表形式的题型，空输入表示两种都要
func ParseQuestionTypes(values []string) []model.QuestionType {
	var types []model.QuestionType
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				types = append(types, model.ParseQuestionType(part))
			}
		}
	}
	return lo.Uniq(types)
}

func generationError(err error) error {
	if util.KindOf(err) != util.KindInternal {
		return err
	}
	return util.GenerationFailure(err, "question generation failed")
}
