// Package llm wraps chat-style model endpoints behind a structured generation
// engine: every call forces the model to answer through a single tool whose
// parameters are a JSON schema reflected from a Go type, and the decoded value
// is validated before it is handed back.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/invopop/jsonschema"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Image 多模态输入的图片
type Image struct {
	MimeType string
	Data     []byte
}

func (i Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

func (i Image) DataURL() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MimeType, i.Base64())
}

type Message struct {
	Role    string
	Content string
	Images  []Image
}

// Tool 强制模型调用的响应工具
type Tool struct {
	Name        string
	Description string
	Schema      *jsonschema.Schema
}

// Request 发给后端的一次完整请求
type Request struct {
	Model       string
	Temperature float32
	MaxTokens   int
	System      string
	Messages    []Message
	Tool        Tool
}

// Backend 一次出站调用，返回模型给出的工具参数原文
type Backend interface {
	Complete(ctx context.Context, req Request) (string, error)
}

var (
	ErrGenerationFailed = errors.New("structured generation failed")
	ErrEmptyResponse    = errors.New("model returned no tool call")
)

// GenerationError 重试耗尽或传输失败
type GenerationError struct {
	Schema   string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %d attempt(s): %v", e.Schema, e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() []error {
	return []error{ErrGenerationFailed, e.Err}
}
