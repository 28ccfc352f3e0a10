package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"socratic_backend/pkg/logger"
	"socratic_backend/pkg/monitoring"
	"socratic_backend/pkg/tracing"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Options 调用默认值，每次调用可覆盖
type Options struct {
	Model       string
	Temperature float32
	MaxTokens   int
	MaxRetries  int
}

type Engine struct {
	backend  Backend
	validate *validator.Validate

	mu       sync.RWMutex
	defaults Options
}

func NewEngine(backend Backend, defaults Options) *Engine {
	return &Engine{
		backend:  backend,
		validate: validator.New(),
		defaults: defaults,
	}
}

func (e *Engine) Defaults() Options {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.defaults
}

// SetDefaults 配置热更新时替换默认参数
func (e *Engine) SetDefaults(opts Options) {
	e.mu.Lock()
	e.defaults = opts
	e.mu.Unlock()
}

// Call 描述一次结构化生成。Prompt、Messages、Images 对应单轮、多轮和带图片三种输入。
type Call struct {
	Name        string
	Description string
	System      string

	Prompt   string
	Messages []Message
	Images   []Image

	Model       string
	Temperature *float32
	MaxTokens   int
	MaxRetries  *int
}

func Float32(v float32) *float32 { return &v }

func Int(v int) *int { return &v }

type attempt[T any] struct {
	raw   string
	value *T
	err   error
}

// Generate 返回符合 T 结构且通过校验的结果，否则返回 GenerationError
func Generate[T any](ctx context.Context, e *Engine, call Call, checks ...func(*T) error) (*T, error) {
	opts := e.resolve(call)
	name := call.Name
	if name == "" {
		name = strings.ToLower(reflect.TypeOf((*T)(nil)).Elem().Name())
	}

	ctx, span := tracing.Tracer.Start(ctx, "llm.generate "+name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", opts.Model),
			attribute.Int("llm.max_retries", opts.MaxRetries),
		),
	)
	defer span.End()

	base := buildMessages(call)
	tool := Tool{Name: name, Description: call.Description, Schema: SchemaFor[T]()}
	start := time.Now()

	var feedback []Message
	result, attempts, err := Retry(ctx, opts.MaxRetries,
		func(ctx context.Context, prev *Rejection[attempt[T]]) (attempt[T], error) {
			if prev != nil {
				feedback = append(feedback, feedbackTurns(name, prev.Value.raw, prev.Err)...)
			}
			req := Request{
				Model:       opts.Model,
				Temperature: opts.Temperature,
				MaxTokens:   opts.MaxTokens,
				System:      call.System,
				Messages:    append(append([]Message(nil), base...), feedback...),
				Tool:        tool,
			}
			raw, err := e.backend.Complete(ctx, req)
			if err != nil {
				monitoring.GenerationAttempts.WithLabelValues(name, "transport_error").Inc()
				return attempt[T]{}, err
			}
			out := new(T)
			if err := json.Unmarshal([]byte(raw), out); err != nil {
				return attempt[T]{raw: raw, err: fmt.Errorf("invalid JSON: %w", err)}, nil
			}
			return attempt[T]{raw: raw, value: out}, nil
		},
		func(a attempt[T]) error {
			err := a.err
			if err == nil {
				err = checkValue(e, a.value, checks)
			}
			if err != nil {
				monitoring.GenerationAttempts.WithLabelValues(name, "rejected").Inc()
				logger.Log.Warn("Structured output rejected",
					zap.String("schema", name),
					zap.Error(err),
				)
				return err
			}
			monitoring.GenerationAttempts.WithLabelValues(name, "accepted").Inc()
			return nil
		},
	)
	monitoring.GenerationDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("llm.attempts", attempts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		logger.Log.Error("Structured generation failed",
			zap.String("schema", name),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		return nil, &GenerationError{Schema: name, Attempts: attempts, Err: err}
	}
	return result.value, nil
}

func (e *Engine) resolve(call Call) Options {
	opts := e.Defaults()
	if call.Model != "" {
		opts.Model = call.Model
	}
	if call.Temperature != nil {
		opts.Temperature = *call.Temperature
	}
	if call.MaxTokens > 0 {
		opts.MaxTokens = call.MaxTokens
	}
	if call.MaxRetries != nil {
		opts.MaxRetries = *call.MaxRetries
	}
	return opts
}

func checkValue[T any](e *Engine, value *T, checks []func(*T) error) error {
	if err := e.validate.Struct(value); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	for _, check := range checks {
		if err := check(value); err != nil {
			return err
		}
	}
	return nil
}

func buildMessages(call Call) []Message {
	messages := append([]Message(nil), call.Messages...)
	if call.Prompt != "" || len(call.Images) > 0 {
		messages = append(messages, Message{
			Role:    RoleUser,
			Content: call.Prompt,
			Images:  call.Images,
		})
	}
	return messages
}

// feedbackTurns 把上一次的原始输出和校验错误回传给模型
func feedbackTurns(tool, raw string, cause error) []Message {
	if raw == "" {
		raw = "(empty response)"
	}
	return []Message{
		{Role: RoleAssistant, Content: raw},
		{Role: RoleUser, Content: fmt.Sprintf(
			"Your previous response did not match the required schema: %v\nCall the %s tool again with a complete, corrected response.",
			cause, tool,
		)},
	}
}
