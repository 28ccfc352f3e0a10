package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"socratic_backend/internal/model"
	"socratic_backend/internal/util"
)

// fakeRefiner 记录收到的状态与历史，默认把正确答案改为 B
type fakeRefiner struct {
	mu        sync.Mutex
	err       error
	states    []model.QuestionState
	histories [][]model.ConversationTurn
}

func (f *fakeRefiner) RefineQuestion(ctx context.Context, state model.QuestionState, instruction string, history []model.ConversationTurn) (*RefinedQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
	f.histories = append(f.histories, append([]model.ConversationTurn(nil), history...))
	if f.err != nil {
		return nil, f.err
	}

	options := make([]model.MCQOption, len(state.Options))
	for i, opt := range state.Options {
		opt.IsCorrect = opt.Label == "B"
		options[i] = opt
	}
	return &RefinedQuestion{
		QuestionText:    state.QuestionText,
		QuestionType:    string(state.QuestionType),
		Difficulty:      state.Difficulty,
		Explanation:     "B is now the intended answer",
		Options:         options,
		CorrectAnswer:   "B",
		ChangesMade:     "Changed the correct answer to B",
		ConfidenceScore: 0.8,
	}, nil
}

func (f *fakeRefiner) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}

// failingRecorder 模拟入库失败
type failingRecorder struct {
	RefinementRecorder
}

func (failingRecorder) ApplyRefinement(entry *model.RefinementEntry, question *model.Question) error {
	return errors.New("disk full")
}

func newInlineService(refiner QuestionRefiner) (*RefinementService, *MemoryConversationStore) {
	store := NewMemoryConversationStore()
	return NewRefinementService(refiner, nil, nil, store, 3), store
}

func inlineInput(conversationID string) RefineInput {
	return RefineInput{
		Target:         InlineTarget{State: mcqState()},
		Instruction:    "Change the correct answer to B",
		ConversationID: conversationID,
	}
}

func TestNewTarget(t *testing.T) {
	state := mcqState()
	empty := model.QuestionState{}

	tests := []struct {
		name       string
		questionID string
		state      *model.QuestionState
		wantKind   string
		wantErr    bool
	}{
		{name: "persisted", questionID: "q-1", wantKind: "persisted"},
		{name: "inline", state: &state, wantKind: "inline"},
		{name: "both", questionID: "q-1", state: &state, wantErr: true},
		{name: "neither", wantErr: true},
		{name: "blank id", questionID: "   ", wantErr: true},
		{name: "inline without text", state: &empty, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := NewTarget(tt.questionID, tt.state)
			if tt.wantErr {
				wantKind(t, err, util.KindInvalidRequest)
				return
			}
			if err != nil {
				t.Fatalf("NewTarget: %v", err)
			}
			if target.targetKind() != tt.wantKind {
				t.Errorf("kind = %s, want %s", target.targetKind(), tt.wantKind)
			}
		})
	}
}

func TestRefineValidatesInput(t *testing.T) {
	svc, _ := newInlineService(&fakeRefiner{})
	ctx := context.Background()

	_, err := svc.Refine(ctx, RefineInput{Instruction: "make it harder"})
	wantKind(t, err, util.KindInvalidRequest)

	in := inlineInput("")
	in.Instruction = "  a "
	_, err = svc.Refine(ctx, in)
	wantKind(t, err, util.KindInvalidRequest)
}

func TestRefineInlineConversation(t *testing.T) {
	refiner := &fakeRefiner{}
	svc, store := newInlineService(refiner)
	ctx := context.Background()

	first, err := svc.Refine(ctx, inlineInput(""))
	if err != nil {
		t.Fatalf("first refine: %v", err)
	}
	if first.TurnNumber != 1 {
		t.Errorf("turn = %d, want 1", first.TurnNumber)
	}
	if first.ConversationID == "" || first.Question.ID == "" {
		t.Fatalf("missing ids: %+v", first)
	}
	if first.Persisted {
		t.Error("inline refinement must not be persisted")
	}
	if first.Question.CorrectAnswer != "B" || first.ChangesMade == "" {
		t.Errorf("refined question = %+v", first.Question)
	}
	if got := first.Question.CorrectOptions(); len(got) != 1 || got[0] != "B" {
		t.Errorf("correct options = %v", got)
	}
	if first.Question.Topic != "arithmetic" {
		t.Errorf("topic = %q, want previous topic kept", first.Question.Topic)
	}

	conv, err := store.Get(ctx, first.ConversationID)
	if err != nil {
		t.Fatalf("conversation not stored: %v", err)
	}
	if len(conv.History) != 2 {
		t.Fatalf("history = %d turns, want 2", len(conv.History))
	}
	if conv.History[0].Role != model.TurnRoleUser || conv.History[0].Content != "Change the correct answer to B" {
		t.Errorf("user turn = %+v", conv.History[0])
	}
	if conv.History[1].Role != model.TurnRoleAssistant || !strings.HasPrefix(conv.History[1].Content, "Changes: ") {
		t.Errorf("assistant turn = %+v", conv.History[1])
	}

	// 第二轮提交不同的状态，应以会话快照为准
	second := inlineInput(first.ConversationID)
	second.Target = InlineTarget{State: model.QuestionState{QuestionText: "Something else entirely"}}
	second.Instruction = "Make the distractors more confusing"
	res, err := svc.Refine(ctx, second)
	if err != nil {
		t.Fatalf("second refine: %v", err)
	}
	if res.TurnNumber != 2 {
		t.Errorf("turn = %d, want 2", res.TurnNumber)
	}
	if got := refiner.states[1].QuestionText; got != "What is 2 + 2?" {
		t.Errorf("second call saw question %q, want snapshot", got)
	}
	if got := refiner.states[1].CorrectAnswer; got != "B" {
		t.Errorf("second call saw answer %q, want snapshot B", got)
	}
	if len(refiner.histories[1]) != 2 {
		t.Errorf("second call history = %d, want 2", len(refiner.histories[1]))
	}

	conv, _ = store.Get(ctx, first.ConversationID)
	if len(conv.History) != 4 {
		t.Errorf("history = %d turns, want 4", len(conv.History))
	}
	if conv.TurnNumber() != 3 {
		t.Errorf("next turn = %d, want 3", conv.TurnNumber())
	}
}

func TestRefineUnknownConversation(t *testing.T) {
	refiner := &fakeRefiner{}
	svc, store := newInlineService(refiner)
	ctx := context.Background()

	res, err := svc.Refine(ctx, inlineInput("does-not-exist"))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if res.ConversationID != "does-not-exist" {
		t.Errorf("conversation id = %q, want the caller's id", res.ConversationID)
	}
	if res.TurnNumber != 1 {
		t.Errorf("turn = %d, want 1", res.TurnNumber)
	}
	if len(refiner.histories[0]) != 0 {
		t.Errorf("history sent = %d turns, want 0", len(refiner.histories[0]))
	}
	conv, err := store.Get(ctx, "does-not-exist")
	if err != nil {
		t.Fatalf("conversation not stored: %v", err)
	}
	if len(conv.History) != 2 {
		t.Errorf("history = %d turns, want 2", len(conv.History))
	}

	// 生成失败时不留下新会话
	refiner.err = util.GenerationFailure(errors.New("exhausted"), "question generation failed")
	_, err = svc.Refine(ctx, inlineInput("also-unknown"))
	wantKind(t, err, util.KindGenerationFailure)
	if _, err := store.Get(ctx, "also-unknown"); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("store.Get after failure = %v, want ErrConversationNotFound", err)
	}
}

func TestResetThenReuseStartsFresh(t *testing.T) {
	refiner := &fakeRefiner{}
	svc, _ := newInlineService(refiner)
	ctx := context.Background()

	first, err := svc.Refine(ctx, inlineInput(""))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if _, err := svc.Refine(ctx, inlineInput(first.ConversationID)); err != nil {
		t.Fatalf("second refine: %v", err)
	}
	if err := svc.Reset(ctx, first.ConversationID); err != nil {
		t.Fatalf("reset: %v", err)
	}

	_, err = svc.GetConversation(ctx, first.ConversationID)
	wantKind(t, err, util.KindNotFound)
	wantKind(t, svc.Reset(ctx, first.ConversationID), util.KindNotFound)

	res, err := svc.Refine(ctx, inlineInput(first.ConversationID))
	if err != nil {
		t.Fatalf("refine after reset: %v", err)
	}
	if res.ConversationID != first.ConversationID || res.TurnNumber != 1 {
		t.Errorf("result = %+v, want turn 1 under the same id", res)
	}
	if refiner.calls() != 3 {
		t.Errorf("generator called %d times, want 3", refiner.calls())
	}
	if len(refiner.histories[2]) != 0 {
		t.Errorf("history after reset = %d turns, want 0", len(refiner.histories[2]))
	}
	conv, err := svc.GetConversation(ctx, first.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if len(conv.History) != 2 {
		t.Errorf("history = %d turns, want 2", len(conv.History))
	}
}

func TestGetConversation(t *testing.T) {
	svc, _ := newInlineService(&fakeRefiner{})
	ctx := context.Background()

	_, err := svc.GetConversation(ctx, "missing")
	wantKind(t, err, util.KindNotFound)

	res, err := svc.Refine(ctx, inlineInput(""))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	conv, err := svc.GetConversation(ctx, res.ConversationID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv.CurrentState.CorrectAnswer != "B" || conv.QuestionID != nil {
		t.Errorf("conversation = %+v", conv)
	}
}

func TestRefineGenerationFailureLeavesStateUntouched(t *testing.T) {
	db := newTestDB(t)
	questions, refinements, _ := newRepos(db)
	q := seedQuestion(t, db, uintPtr(1))

	refiner := &fakeRefiner{}
	store := NewMemoryConversationStore()
	svc := NewRefinementService(refiner, questions, refinements, store, 3)
	ctx := context.Background()
	actor := &Actor{UserID: 1}

	first, err := svc.Refine(ctx, RefineInput{Target: PersistedTarget{QuestionID: q.ID}, Instruction: "Change the correct answer to B", Actor: actor})
	if err != nil {
		t.Fatalf("refine: %v", err)
	}

	refiner.err = util.GenerationFailure(errors.New("exhausted"), "question generation failed")
	_, err = svc.Refine(ctx, RefineInput{
		Target:         PersistedTarget{QuestionID: q.ID},
		Instruction:    "Make it harder",
		ConversationID: first.ConversationID,
		Actor:          actor,
	})
	wantKind(t, err, util.KindGenerationFailure)

	conv, err := store.Get(ctx, first.ConversationID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(conv.History) != 2 {
		t.Errorf("history = %d turns after failure, want 2", len(conv.History))
	}
	entries, _ := refinements.ListByQuestion(q.ID)
	if len(entries) != 1 {
		t.Errorf("history entries = %d, want 1", len(entries))
	}
	stored, _ := questions.FindByID(q.ID)
	if stored.CorrectAnswer != "B" {
		t.Errorf("stored answer = %q, want B from the first turn", stored.CorrectAnswer)
	}
}

func TestRefinePersistedOwnership(t *testing.T) {
	tests := []struct {
		name          string
		owner         *uint
		actor         *Actor
		wantKind      util.ErrorKind
		wantPersisted bool
	}{
		{name: "owner persists", owner: uintPtr(1), actor: &Actor{UserID: 1}, wantPersisted: true},
		{name: "non-owner forbidden", owner: uintPtr(1), actor: &Actor{UserID: 2}, wantKind: util.KindForbidden},
		{name: "anonymous refines without persisting", owner: uintPtr(1), actor: nil},
		{name: "unowned persists for any user", owner: nil, actor: &Actor{UserID: 2}, wantPersisted: true},
		{name: "unowned anonymous", owner: nil, actor: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			questions, refinements, _ := newRepos(db)
			q := seedQuestion(t, db, tt.owner)
			refiner := &fakeRefiner{}
			svc := NewRefinementService(refiner, questions, refinements, NewMemoryConversationStore(), 3)

			res, err := svc.Refine(context.Background(), RefineInput{
				Target:      PersistedTarget{QuestionID: q.ID},
				Instruction: "Change the correct answer to B",
				Actor:       tt.actor,
			})
			if tt.wantKind != util.KindInternal {
				wantKind(t, err, tt.wantKind)
				if refiner.calls() != 0 {
					t.Errorf("generator called before ownership check")
				}
				return
			}
			if err != nil {
				t.Fatalf("refine: %v", err)
			}
			if res.Persisted != tt.wantPersisted {
				t.Errorf("persisted = %v, want %v", res.Persisted, tt.wantPersisted)
			}
			if res.Question.ID != q.ID {
				t.Errorf("question id = %q, want %q", res.Question.ID, q.ID)
			}

			stored, err := questions.FindByID(q.ID)
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			entries, _ := refinements.ListByQuestion(q.ID)
			if tt.wantPersisted {
				if stored.CorrectAnswer != "B" || len(entries) != 1 {
					t.Errorf("answer = %q entries = %d, want B and 1", stored.CorrectAnswer, len(entries))
				}
				if stored.Topic != "arithmetic" {
					t.Errorf("topic overwritten with %q", stored.Topic)
				}
				if entries[0].PreviousState.Data().CorrectAnswer != "A" || entries[0].NewState.Data().CorrectAnswer != "B" {
					t.Errorf("entry snapshots = %+v / %+v", entries[0].PreviousState.Data(), entries[0].NewState.Data())
				}
			} else if stored.CorrectAnswer != "A" || len(entries) != 0 {
				t.Errorf("answer = %q entries = %d, want untouched", stored.CorrectAnswer, len(entries))
			}
		})
	}
}

func TestRefineMissingQuestion(t *testing.T) {
	db := newTestDB(t)
	questions, refinements, _ := newRepos(db)
	svc := NewRefinementService(&fakeRefiner{}, questions, refinements, NewMemoryConversationStore(), 3)

	_, err := svc.Refine(context.Background(), RefineInput{
		Target:      PersistedTarget{QuestionID: model.GenerateUUID()},
		Instruction: "make it harder",
		Actor:       &Actor{UserID: 1},
	})
	wantKind(t, err, util.KindNotFound)
}

func TestRefineConversationBoundToOtherQuestion(t *testing.T) {
	db := newTestDB(t)
	questions, refinements, _ := newRepos(db)
	q1 := seedQuestion(t, db, nil)
	q2 := seedQuestion(t, db, nil)
	svc := NewRefinementService(&fakeRefiner{}, questions, refinements, NewMemoryConversationStore(), 3)
	ctx := context.Background()

	res, err := svc.Refine(ctx, RefineInput{Target: PersistedTarget{QuestionID: q1.ID}, Instruction: "make it harder"})
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	_, err = svc.Refine(ctx, RefineInput{
		Target:         PersistedTarget{QuestionID: q2.ID},
		Instruction:    "make it harder",
		ConversationID: res.ConversationID,
	})
	wantKind(t, err, util.KindInvalidRequest)
}

func TestRefineRollsBackOnPersistenceFailure(t *testing.T) {
	db := newTestDB(t)
	questions, refinements, _ := newRepos(db)
	q := seedQuestion(t, db, uintPtr(1))
	store := NewMemoryConversationStore()
	ctx := context.Background()
	actor := &Actor{UserID: 1}

	t.Run("new conversation is removed", func(t *testing.T) {
		svc := NewRefinementService(&fakeRefiner{}, questions, failingRecorder{refinements}, store, 3)
		_, err := svc.Refine(ctx, RefineInput{Target: PersistedTarget{QuestionID: q.ID}, Instruction: "make it harder", Actor: actor})
		wantKind(t, err, util.KindInternal)

		store.mu.Lock()
		n := len(store.items)
		store.mu.Unlock()
		if n != 0 {
			t.Errorf("store holds %d conversations after rollback, want 0", n)
		}
	})

	t.Run("existing conversation is restored", func(t *testing.T) {
		// 匿名调用方不入库，先建立一轮对话
		ok := NewRefinementService(&fakeRefiner{}, questions, refinements, store, 3)
		res, err := ok.Refine(ctx, RefineInput{Target: PersistedTarget{QuestionID: q.ID}, Instruction: "make it harder"})
		if err != nil {
			t.Fatalf("seed conversation: %v", err)
		}

		svc := NewRefinementService(&fakeRefiner{}, questions, failingRecorder{refinements}, store, 3)
		_, err = svc.Refine(ctx, RefineInput{
			Target:         PersistedTarget{QuestionID: q.ID},
			Instruction:    "now make it easier",
			ConversationID: res.ConversationID,
			Actor:          actor,
		})
		wantKind(t, err, util.KindInternal)

		conv, err := store.Get(ctx, res.ConversationID)
		if err != nil {
			t.Fatalf("conversation lost: %v", err)
		}
		if len(conv.History) != 2 {
			t.Errorf("history = %d turns, want 2 after rollback", len(conv.History))
		}
		stored, _ := questions.FindByID(q.ID)
		if stored.CorrectAnswer != "A" {
			t.Errorf("stored answer = %q, want A", stored.CorrectAnswer)
		}
	})
}

func TestRefineConcurrentTurnsAreSerialized(t *testing.T) {
	svc, store := newInlineService(&fakeRefiner{})
	ctx := context.Background()

	first, err := svc.Refine(ctx, inlineInput(""))
	if err != nil {
		t.Fatalf("refine: %v", err)
	}

	const workers = 10
	turns := make(chan int, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Refine(ctx, inlineInput(first.ConversationID))
			if err != nil {
				t.Errorf("refine: %v", err)
				return
			}
			turns <- res.TurnNumber
		}()
	}
	wg.Wait()
	close(turns)

	seen := map[int]bool{}
	for turn := range turns {
		if seen[turn] {
			t.Errorf("turn %d handed out twice", turn)
		}
		seen[turn] = true
	}
	for turn := 2; turn <= workers+1; turn++ {
		if !seen[turn] {
			t.Errorf("turn %d missing", turn)
		}
	}

	conv, _ := store.Get(ctx, first.ConversationID)
	if len(conv.History) != 2*(workers+1) {
		t.Errorf("history = %d turns, want %d", len(conv.History), 2*(workers+1))
	}
	if svc.locks.Len() != 0 {
		t.Errorf("locks leaked: %d", svc.locks.Len())
	}
}

func TestQuestionHistory(t *testing.T) {
	db := newTestDB(t)
	questions, refinements, _ := newRepos(db)
	owned := seedQuestion(t, db, uintPtr(1))
	unowned := seedQuestion(t, db, nil)
	svc := NewRefinementService(&fakeRefiner{}, questions, refinements, NewMemoryConversationStore(), 3)
	ctx := context.Background()

	if _, err := svc.Refine(ctx, RefineInput{Target: PersistedTarget{QuestionID: owned.ID}, Instruction: "make it harder", Actor: &Actor{UserID: 1}}); err != nil {
		t.Fatalf("refine: %v", err)
	}

	tests := []struct {
		name     string
		id       string
		actor    *Actor
		wantKind util.ErrorKind
		wantLen  int
	}{
		{name: "owner", id: owned.ID, actor: &Actor{UserID: 1}, wantLen: 1},
		{name: "anonymous", id: owned.ID, wantKind: util.KindUnauthorized},
		{name: "other user", id: owned.ID, actor: &Actor{UserID: 2}, wantKind: util.KindForbidden},
		{name: "unowned question", id: unowned.ID, actor: &Actor{UserID: 1}, wantKind: util.KindForbidden},
		{name: "missing", id: model.GenerateUUID(), actor: &Actor{UserID: 1}, wantKind: util.KindNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := svc.QuestionHistory(ctx, tt.id, tt.actor)
			if tt.wantKind != util.KindInternal {
				wantKind(t, err, tt.wantKind)
				return
			}
			if err != nil {
				t.Fatalf("QuestionHistory: %v", err)
			}
			if len(entries) != tt.wantLen {
				t.Errorf("entries = %d, want %d", len(entries), tt.wantLen)
			}
		})
	}
}
