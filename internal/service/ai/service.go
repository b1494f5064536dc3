// Package ai generates answers with an LLM, grounding them in passages
// retrieved from the knowledge base.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"medichat/internal/service/knowledge"
)

const (
	FallbackAnswer = "Sorry, I couldn't generate a response."

	contextPlaceholder = "{context}"
	// appended to system prompts that do not place the context themselves
	contextSectionPlaceholder = "{context_section}"
	questionPlaceholder       = "{input}"

	DefaultSystemPrompt = "You are a medical assistant for question-answering tasks. " +
		"Use the following pieces of retrieved context to answer the question. " +
		"If you don't know the answer, say that you don't know. " +
		"Use three sentences maximum and keep the answer concise.\n\n" + contextPlaceholder
)

var ErrEmptyQuestion = errors.New("question cannot be empty")

// Service answers single questions. It keeps no per-session history.
type Service struct {
	chatModel    model.BaseChatModel
	retriever    retriever.Retriever
	systemPrompt string
	template     prompt.ChatTemplate
	log          logrus.FieldLogger
}

type Option func(*Service)

// WithRetriever sets the source of context passages. Without one, questions are answered without context.
func WithRetriever(r retriever.Retriever) Option {
	return func(s *Service) { s.retriever = r }
}

// WithSystemPrompt replaces the system prompt. It is an f-string template:
// "{context}" marks where passages go and literal braces must be doubled.
func WithSystemPrompt(systemPrompt string) Option {
	return func(s *Service) {
		if strings.TrimSpace(systemPrompt) != "" {
			s.systemPrompt = systemPrompt
		}
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

func NewService(chatModel model.BaseChatModel, opts ...Option) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}
	s := &Service{
		chatModel:    chatModel,
		systemPrompt: DefaultSystemPrompt,
		log:          logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.template = newPromptTemplate(s.systemPrompt)
	return s, nil
}

func newPromptTemplate(systemPrompt string) prompt.ChatTemplate {
	if !strings.Contains(systemPrompt, contextPlaceholder) {
		systemPrompt += contextSectionPlaceholder
	}
	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(questionPlaceholder),
	)
}

// Answer retrieves context for question and asks the model. An empty model reply becomes FallbackAnswer.
func (s *Service) Answer(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrEmptyQuestion
	}

	var passages []*schema.Document
	if s.retriever != nil {
		docs, err := s.retriever.Retrieve(ctx, question)
		if err != nil {
			return "", fmt.Errorf("retrieve context: %w", err)
		}
		passages = docs
	}

	messages, err := s.buildMessages(ctx, knowledge.FormatContext(passages), question)
	if err != nil {
		return "", err
	}
	resp, err := s.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	s.log.WithField("passages", len(passages)).Debug("answer generated")
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return FallbackAnswer, nil
	}
	return strings.TrimSpace(resp.Content), nil
}

// buildMessages renders the system prompt with the retrieved context and appends the question.
func (s *Service) buildMessages(ctx context.Context, contextText, question string) ([]*schema.Message, error) {
	section := ""
	if contextText != "" {
		section = "\n\nContext:\n" + contextText
	}
	messages, err := s.template.Format(ctx, map[string]any{
		"context":         contextText,
		"context_section": section,
		"input":           question,
	})
	if err != nil {
		return nil, fmt.Errorf("format prompt: %w", err)
	}
	for _, msg := range messages {
		if msg.Role == schema.System {
			msg.Content = strings.TrimSpace(msg.Content)
		}
	}
	return messages, nil
}
