package model

import (
	"reflect"
	"strings"
	"testing"
)

func TestQuestionStateNormalize(t *testing.T) {
	tests := []struct {
		name     string
		in       QuestionState
		wantType QuestionType
		wantDiff string
		wantOpts int
	}{
		{
			name:     "defaults to mcq and medium",
			in:       QuestionState{QuestionText: "What is 2+2?"},
			wantType: QuestionTypeMCQ,
			wantDiff: DefaultDifficulty,
		},
		{
			name: "open ended drops options",
			in: QuestionState{
				QuestionText: "Explain photosynthesis.",
				QuestionType: "OPEN_ENDED",
				Difficulty:   "hard",
				Options:      []MCQOption{{Label: "A", Text: "x", IsCorrect: true}},
			},
			wantType: QuestionTypeOpenEnded,
			wantDiff: "hard",
		},
		{
			name: "mcq keeps options",
			in: QuestionState{
				QuestionText: "Pick one",
				QuestionType: "MCQ",
				Options: []MCQOption{
					{Label: "A", Text: "a"},
					{Label: "B", Text: "b", IsCorrect: true},
				},
			},
			wantType: QuestionTypeMCQ,
			wantDiff: DefaultDifficulty,
			wantOpts: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.QuestionType != tt.wantType {
				t.Errorf("type = %q, want %q", got.QuestionType, tt.wantType)
			}
			if got.Difficulty != tt.wantDiff {
				t.Errorf("difficulty = %q, want %q", got.Difficulty, tt.wantDiff)
			}
			if len(got.Options) != tt.wantOpts {
				t.Errorf("options = %d, want %d", len(got.Options), tt.wantOpts)
			}
			if again := got.Normalize(); !reflect.DeepEqual(again, got) {
				t.Errorf("normalize is not idempotent: %+v vs %+v", again, got)
			}
		})
	}
}

func TestQuestionStateRender(t *testing.T) {
	state := QuestionState{
		QuestionText:  "A store sells apples for $2 each. How much do 5 cost?",
		QuestionType:  QuestionTypeMCQ,
		Difficulty:    "easy",
		CorrectAnswer: "B",
		Explanation:   "5 x $2 = $10",
		Options: []MCQOption{
			{Label: "A", Text: "$7"},
			{Label: "B", Text: "$10", IsCorrect: true},
		},
	}

	out := state.Render()
	for _, want := range []string{
		"Question: A store sells apples",
		"Type: mcq",
		"Difficulty: easy",
		"  B. $10 (correct)",
		"Correct Answer: B",
		"Explanation: 5 x $2 = $10",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "A. $7 (correct)") {
		t.Errorf("incorrect option marked as correct:\n%s", out)
	}
}

func TestConversationTurnNumberAndClone(t *testing.T) {
	qid := "q-1"
	conv := &Conversation{ID: "c-1", QuestionID: &qid}
	if got := conv.TurnNumber(); got != 1 {
		t.Fatalf("empty conversation turn = %d, want 1", got)
	}

	conv.History = append(conv.History,
		ConversationTurn{Role: TurnRoleUser, Content: "make it harder"},
		ConversationTurn{Role: TurnRoleAssistant, Content: "Changes: harder"},
	)
	conv.CurrentState.Options = []MCQOption{{Label: "A", Text: "a"}}
	if got := conv.TurnNumber(); got != 2 {
		t.Fatalf("turn after one exchange = %d, want 2", got)
	}

	clone := conv.Clone()
	clone.History[0].Content = "mutated"
	clone.CurrentState.Options[0].Text = "mutated"
	*clone.QuestionID = "other"

	if conv.History[0].Content != "make it harder" {
		t.Error("clone shares history with original")
	}
	if conv.CurrentState.Options[0].Text != "a" {
		t.Error("clone shares options with original")
	}
	if *conv.QuestionID != "q-1" {
		t.Error("clone shares question id with original")
	}
}

func TestQuestionStateFromModel(t *testing.T) {
	score := 0.8
	owner := uint(7)
	q := &Question{
		QuestionText:    "Explain gravity",
		QuestionType:    QuestionTypeOpenEnded,
		Difficulty:      "",
		ConfidenceScore: &score,
		OwnerID:         &owner,
	}

	state := q.State()
	if state.Difficulty != DefaultDifficulty {
		t.Errorf("difficulty = %q, want default", state.Difficulty)
	}
	if state.ConfidenceScore != score {
		t.Errorf("confidence = %v, want %v", state.ConfidenceScore, score)
	}
	if !q.OwnedBy(7) || q.OwnedBy(8) {
		t.Error("OwnedBy mismatch")
	}
	if (&Question{}).OwnedBy(7) {
		t.Error("question without owner must not be owned")
	}
}
