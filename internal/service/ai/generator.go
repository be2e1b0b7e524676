package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/logger"
)

// ErrGeneration wraps every failure of the generation dependency.
var ErrGeneration = errors.New("generation failed")

// Role is the author of a prompt message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a generation prompt.
type Message struct {
	Role    Role
	Content string
}

// System, User and Assistant build prompt messages.
func System(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func User(content string) Message      { return Message{Role: RoleUser, Content: content} }
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Generator is the narrow contract the assessment core consumes.
type Generator interface {
	Generate(ctx context.Context, messages []Message, temperature float32) (string, error)
}

// ChatModelGenerator adapts an eino chat model to Generator.
type ChatModelGenerator struct {
	chatModel model.BaseChatModel
	logger    *zap.Logger
}

// NewChatModelGenerator wraps chatModel. A nil logger is replaced by a no-op logger.
func NewChatModelGenerator(chatModel model.BaseChatModel, log *zap.Logger) *ChatModelGenerator {
	return &ChatModelGenerator{chatModel: chatModel, logger: logger.OrNop(log)}
}

// Generate runs one completion and returns the trimmed text.
func (g *ChatModelGenerator) Generate(ctx context.Context, messages []Message, temperature float32) (string, error) {
	if g == nil || g.chatModel == nil {
		return "", fmt.Errorf("%w: chat model is not initialized", ErrGeneration)
	}
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: prompt must not be empty", ErrGeneration)
	}

	start := time.Now()
	resp, err := g.chatModel.Generate(ctx, toSchema(messages), model.WithTemperature(temperature))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeneration, err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("%w: empty response", ErrGeneration)
	}

	g.logger.Debug("chat model response",
		zap.Int("prompt_messages", len(messages)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("response_preview", logger.TruncateForLog(resp.Content, 200)),
	)
	return strings.TrimSpace(resp.Content), nil
}

func toSchema(messages []Message) []*schema.Message {
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, schema.SystemMessage(msg.Content))
		case RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		default:
			out = append(out, schema.UserMessage(msg.Content))
		}
	}
	return out
}

type timeoutGenerator struct {
	next    Generator
	timeout time.Duration
}

// WithTimeout bounds every call to next. The bound holds even when next ignores its context.
func WithTimeout(next Generator, timeout time.Duration) Generator {
	if timeout <= 0 {
		return next
	}
	return &timeoutGenerator{next: next, timeout: timeout}
}

type generation struct {
	text string
	err  error
}

func (g *timeoutGenerator) Generate(ctx context.Context, messages []Message, temperature float32) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		text, err := g.next.Generate(ctx, messages, temperature)
		done <- generation{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrGeneration, ctx.Err())
	case res := <-done:
		if res.err != nil && !errors.Is(res.err, ErrGeneration) {
			return "", fmt.Errorf("%w: %w", ErrGeneration, res.err)
		}
		return res.text, res.err
	}
}
