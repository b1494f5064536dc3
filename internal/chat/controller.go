// Package chat holds the conversation controller: it owns the active session,
// the visible message sequence and the busy flag, and sequences every round
// trip between the persistence store and the answer service.
package chat

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"medichat/internal/models"
	"medichat/internal/store"
)

const (
	DefaultSessionTitle = "Medical Consultation"
	WelcomeMessage      = "Hello! I'm your Medical Assistant. How can I help you today?"
)

// Answerer turns a question into an answer.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// AnswerFunc adapts a function to Answerer.
type AnswerFunc func(ctx context.Context, question string) (string, error)

func (f AnswerFunc) Answer(ctx context.Context, question string) (string, error) {
	return f(ctx, question)
}

// State is the controller's lifecycle position.
type State int

const (
	StateUninitialized State = iota
	StateIdle
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	default:
		return "uninitialized"
	}
}

// Turn is the pair of records produced by one round trip. Assistant is nil when the round trip failed.
type Turn struct {
	User      *models.Message
	Assistant *models.Message
}

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSessionTitle overrides DefaultSessionTitle; blank titles are ignored.
func WithSessionTitle(title string) Option {
	return func(c *Controller) {
		if t := strings.TrimSpace(title); t != "" {
			c.title = t
		}
	}
}

// WithWelcomeMessage overrides WelcomeMessage; blank text is ignored.
func WithWelcomeMessage(text string) Option {
	return func(c *Controller) {
		if t := strings.TrimSpace(text); t != "" {
			c.welcome = t
		}
	}
}

// Controller sequences one conversation. At most one operation runs at a time;
// Render and the accessors are safe to call concurrently with it.
type Controller struct {
	store    store.Store
	answerer Answerer
	log      logrus.FieldLogger
	title    string
	welcome  string

	inFlight atomic.Bool

	mu       sync.RWMutex
	session  *models.Session
	messages []*models.Message
	busy     bool
}

// NewController wires a controller to its store and answer service.
func NewController(st store.Store, answerer Answerer, opts ...Option) *Controller {
	c := &Controller{
		store:    st,
		answerer: answerer,
		log:      logrus.StandardLogger(),
		title:    DefaultSessionTitle,
		welcome:  WelcomeMessage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initialize creates the session and seeds it with the persisted welcome message.
// On failure the controller stays uninitialized and may be initialized again.
func (c *Controller) Initialize(ctx context.Context) error {
	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.inFlight.Store(false)

	if _, ok := c.activeSession(); ok {
		return ErrAlreadyInitialized
	}

	session, err := c.store.CreateSession(ctx, c.title)
	if err != nil {
		c.log.WithError(err).Error("create session failed")
		return &InitError{Err: err}
	}
	welcome, err := c.store.InsertMessage(ctx, session.ID, models.RoleAssistant, c.welcome)
	if err != nil {
		c.log.WithError(err).WithField("session_id", session.ID).Error("persist welcome message failed")
		return &InitError{Err: err}
	}

	c.mu.Lock()
	c.session = session
	c.messages = []*models.Message{welcome}
	c.mu.Unlock()

	c.log.WithField("session_id", session.ID).Info("conversation started")
	return nil
}

// Send runs one round trip for content: persist the user message and show it,
// ask the answer service, persist the answer and show it.
func (c *Controller) Send(ctx context.Context, content string) (*Turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.inFlight.Store(false)

	sessionID, ok := c.activeSession()
	if !ok {
		return nil, ErrNotInitialized
	}

	c.setBusy(true)
	defer c.setBusy(false)

	log := c.log.WithField("session_id", sessionID)
	userMsg, err := c.store.InsertMessage(ctx, sessionID, models.RoleUser, content)
	if err != nil {
		log.WithError(err).WithField("stage", StagePersistUser).Error("round trip failed")
		return nil, &RoundTripError{Stage: StagePersistUser, Err: err}
	}
	c.appendVisible(userMsg)

	assistantMsg, err := c.reply(ctx, log, sessionID, content)
	if err != nil {
		return &Turn{User: userMsg}, err
	}
	return &Turn{User: userMsg, Assistant: assistantMsg}, nil
}

// Retry answers the last visible user message when its round trip failed after it was persisted.
func (c *Controller) Retry(ctx context.Context) (*Turn, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.inFlight.Store(false)

	sessionID, ok := c.activeSession()
	if !ok {
		return nil, ErrNotInitialized
	}
	pending := c.pendingMessage()
	if pending == nil {
		return nil, ErrNothingToRetry
	}

	c.setBusy(true)
	defer c.setBusy(false)

	log := c.log.WithFields(logrus.Fields{"session_id": sessionID, "message_id": pending.ID})
	assistantMsg, err := c.reply(ctx, log, sessionID, pending.Content)
	if err != nil {
		return &Turn{User: pending}, err
	}
	return &Turn{User: pending, Assistant: assistantMsg}, nil
}

func (c *Controller) reply(ctx context.Context, log logrus.FieldLogger, sessionID string, question string) (*models.Message, error) {
	answer, err := c.answerer.Answer(ctx, question)
	if err != nil {
		log.WithError(err).WithField("stage", StageAnswer).Error("round trip failed")
		return nil, &RoundTripError{Stage: StageAnswer, Err: err}
	}
	msg, err := c.store.InsertMessage(ctx, sessionID, models.RoleAssistant, answer)
	if err != nil {
		log.WithError(err).WithField("stage", StagePersistAnswer).Error("round trip failed")
		return nil, &RoundTripError{Stage: StagePersistAnswer, Err: err}
	}
	c.appendVisible(msg)
	return msg, nil
}

// State reports where the controller is in its lifecycle.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.session == nil:
		return StateUninitialized
	case c.busy:
		return StateBusy
	default:
		return StateIdle
	}
}

// Busy reports whether a round trip is running.
func (c *Controller) Busy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.busy
}

// Session returns a copy of the active session, or nil.
func (c *Controller) Session() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

// Messages returns a copy of the visible sequence.
func (c *Controller) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, *m)
	}
	return out
}

// Pending reports whether the last visible message is a user message left without a reply.
func (c *Controller) Pending() bool {
	return c.pendingMessage() != nil
}

func (c *Controller) pendingMessage() *models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.busy || len(c.messages) == 0 {
		return nil
	}
	last := c.messages[len(c.messages)-1]
	if last.Role != models.RoleUser {
		return nil
	}
	return last
}

func (c *Controller) activeSession() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return "", false
	}
	return c.session.ID, true
}

func (c *Controller) setBusy(busy bool) {
	c.mu.Lock()
	c.busy = busy
	c.mu.Unlock()
}

func (c *Controller) appendVisible(msg *models.Message) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}
