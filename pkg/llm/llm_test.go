package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

// scriptedBackend 依次返回预设的响应
type scriptedBackend struct {
	mu        sync.Mutex
	responses []string
	err       error
	requests  []Request
}

func (b *scriptedBackend) Complete(ctx context.Context, req Request) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	if b.err != nil {
		return "", b.err
	}
	if len(b.responses) == 0 {
		return "", errors.New("script exhausted")
	}
	resp := b.responses[0]
	if len(b.responses) > 1 {
		b.responses = b.responses[1:]
	}
	return resp, nil
}

type sample struct {
	Title string  `json:"title" validate:"required"`
	Score float64 `json:"score" validate:"gte=0,lte=1"`
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	transportErr := errors.New("connection reset")

	tests := []struct {
		name         string
		retries      int
		fnErr        error
		acceptAfter  int // accept from this attempt on, 0 = never
		wantAttempts int
		wantErr      bool
		wantExhaust  bool
	}{
		{name: "always succeeds", retries: 3, acceptAfter: 1, wantAttempts: 1},
		{name: "succeeds on last retry", retries: 3, acceptAfter: 4, wantAttempts: 4},
		{name: "always fails", retries: 3, wantAttempts: 4, wantErr: true, wantExhaust: true},
		{name: "zero retries", retries: 0, wantAttempts: 1, wantErr: true, wantExhaust: true},
		{name: "negative retries treated as zero", retries: -2, wantAttempts: 1, wantErr: true, wantExhaust: true},
		{name: "transport error is not retried", retries: 3, fnErr: transportErr, wantAttempts: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seenPrev []int
			_, attempts, err := Retry(ctx, tt.retries,
				func(ctx context.Context, prev *Rejection[int]) (int, error) {
					if prev != nil {
						seenPrev = append(seenPrev, prev.Attempt)
					}
					if tt.fnErr != nil {
						return 0, tt.fnErr
					}
					return len(seenPrev) + 1, nil
				},
				func(n int) error {
					if tt.acceptAfter > 0 && n >= tt.acceptAfter {
						return nil
					}
					return errors.New("not yet")
				},
			)

			if attempts != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", attempts, tt.wantAttempts)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			var exhausted *ExhaustedError
			if errors.As(err, &exhausted) != tt.wantExhaust {
				t.Errorf("exhausted = %v, want %v (err %v)", !tt.wantExhaust, tt.wantExhaust, err)
			}
			if tt.fnErr != nil && !errors.Is(err, tt.fnErr) {
				t.Errorf("transport error not propagated: %v", err)
			}
			for i, a := range seenPrev {
				if a != i+1 {
					t.Errorf("rejection %d reported attempt %d", i, a)
				}
			}
		})
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, _, err := Retry(ctx, 5,
		func(ctx context.Context, prev *Rejection[int]) (int, error) {
			calls++
			cancel()
			return 0, nil
		},
		func(int) error { return errors.New("reject") },
	)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestGenerateAcceptsValidOutput(t *testing.T) {
	backend := &scriptedBackend{responses: []string{`{"title":"ok","score":0.9}`}}
	engine := NewEngine(backend, Options{Model: "m", Temperature: 0.7, MaxTokens: 100, MaxRetries: 3})

	out, err := Generate[sample](context.Background(), engine, Call{
		Name:        "sample",
		System:      "sys",
		Prompt:      "hello",
		Temperature: Float32(0.3),
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Title != "ok" || out.Score != 0.9 {
		t.Errorf("out = %+v", out)
	}

	if len(backend.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(backend.requests))
	}
	req := backend.requests[0]
	if req.Temperature != 0.3 {
		t.Errorf("temperature = %v, want per-call override 0.3", req.Temperature)
	}
	if req.Model != "m" || req.MaxTokens != 100 {
		t.Errorf("defaults not applied: %+v", req)
	}
	if req.Tool.Name != "sample" || req.Tool.Schema == nil {
		t.Errorf("tool = %+v", req.Tool)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hello" || req.Messages[0].Role != RoleUser {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestGenerateRetriesWithFeedback(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`not json`,
		`{"title":"","score":0.5}`,
		`{"title":"fixed","score":0.5}`,
	}}
	engine := NewEngine(backend, Options{MaxRetries: 3})

	out, err := Generate[sample](context.Background(), engine, Call{Name: "sample", Prompt: "p"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Title != "fixed" {
		t.Errorf("title = %q", out.Title)
	}
	if len(backend.requests) != 3 {
		t.Fatalf("requests = %d, want 3", len(backend.requests))
	}

	// 第三次请求包含两轮反馈
	last := backend.requests[2].Messages
	if len(last) != 5 {
		t.Fatalf("messages on third attempt = %d, want 5", len(last))
	}
	if last[1].Role != RoleAssistant || last[1].Content != "not json" {
		t.Errorf("first feedback should echo raw output, got %+v", last[1])
	}
	if !strings.Contains(last[2].Content, "invalid JSON") {
		t.Errorf("feedback missing decode error: %q", last[2].Content)
	}
	if !strings.Contains(last[4].Content, "Title") {
		t.Errorf("feedback missing validation field: %q", last[4].Content)
	}
}

func TestGenerateFailsAfterRetries(t *testing.T) {
	backend := &scriptedBackend{responses: []string{`{"title":"x","score":7}`}}
	engine := NewEngine(backend, Options{MaxRetries: 3})

	_, err := Generate[sample](context.Background(), engine, Call{Name: "sample", Prompt: "p"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Attempts != 4 {
		t.Fatalf("GenerationError = %+v", genErr)
	}
	if len(backend.requests) != 4 {
		t.Errorf("requests = %d, want 4", len(backend.requests))
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	backend := &scriptedBackend{err: errors.New("503 upstream")}
	engine := NewEngine(backend, Options{MaxRetries: 3})

	_, err := Generate[sample](context.Background(), engine, Call{Prompt: "p"})
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("err = %v, want ErrGenerationFailed", err)
	}
	if len(backend.requests) != 1 {
		t.Errorf("transport failure retried %d times", len(backend.requests))
	}
	if backend.requests[0].Tool.Name != "sample" {
		t.Errorf("default tool name = %q, want sample", backend.requests[0].Tool.Name)
	}
}

func TestGenerateCustomChecks(t *testing.T) {
	backend := &scriptedBackend{responses: []string{
		`{"title":"short","score":0.1}`,
		`{"title":"long enough","score":0.1}`,
	}}
	engine := NewEngine(backend, Options{MaxRetries: 1})

	out, err := Generate(context.Background(), engine, Call{Prompt: "p"}, func(s *sample) error {
		if len(s.Title) < 6 {
			return errors.New("title too short")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Title != "long enough" {
		t.Errorf("title = %q", out.Title)
	}
}

func TestGenerateConversationAndImages(t *testing.T) {
	backend := &scriptedBackend{responses: []string{`{"title":"t","score":0}`}}
	engine := NewEngine(backend, Options{})
	img := Image{MimeType: "image/png", Data: []byte{1, 2, 3}}

	_, err := Generate[sample](context.Background(), engine, Call{
		Messages: []Message{
			{Role: RoleUser, Content: "first"},
			{Role: RoleAssistant, Content: "Changes: none"},
		},
		Prompt: "second",
		Images: []Image{img},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	msgs := backend.requests[0].Messages
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if len(msgs[2].Images) != 1 || msgs[2].Content != "second" {
		t.Errorf("last message = %+v", msgs[2])
	}
	if got := img.DataURL(); got != "data:image/png;base64,AQID" {
		t.Errorf("data url = %q", got)
	}
}

func TestEngineSetDefaults(t *testing.T) {
	engine := NewEngine(&scriptedBackend{}, Options{Model: "a", MaxRetries: 3})
	engine.SetDefaults(Options{Model: "b", MaxRetries: 1})
	if got := engine.Defaults(); got.Model != "b" || got.MaxRetries != 1 {
		t.Errorf("defaults = %+v", got)
	}
}

func TestSchemaFor(t *testing.T) {
	schema := SchemaFor[sample]()
	if schema.Properties == nil {
		t.Fatal("schema has no properties")
	}
	if _, ok := schema.Properties.Get("title"); !ok {
		t.Error("schema missing title property")
	}
	if schema != SchemaFor[sample]() {
		t.Error("schema not cached")
	}
}

func TestNewBackend(t *testing.T) {
	if _, err := NewBackend("openai", "", "k", 0); err != nil {
		t.Errorf("openai: %v", err)
	}
	if _, err := NewBackend("anthropic", "", "k", 0); err != nil {
		t.Errorf("anthropic: %v", err)
	}
	if _, err := NewBackend("cohere", "", "k", 0); err == nil {
		t.Error("unknown provider accepted")
	}
}
