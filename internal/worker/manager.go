package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Answerer produces an answer for a question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// Manager runs answer generation on the dispatcher so that only a bounded
// number of model calls are in flight.
type Manager struct {
	answerer   Answerer
	dispatcher *Dispatcher
	log        logrus.FieldLogger
}

func NewManager(answerer Answerer, cfg Config, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		answerer:   answerer,
		dispatcher: NewDispatcher(cfg, log),
		log:        log,
	}
}

// Answer queues question under the client key and waits for the result.
func (m *Manager) Answer(ctx context.Context, key, question string) (string, error) {
	var answer string
	start := time.Now()
	err := m.dispatcher.Submit(ctx, key, func(ctx context.Context) error {
		var err error
		answer, err = m.answerer.Answer(ctx, question)
		return err
	})
	if err != nil {
		return "", err
	}
	m.log.WithFields(logrus.Fields{"client": key, "elapsed": time.Since(start)}).Debug("answer ready")
	return answer, nil
}

// Stop drains the dispatcher.
func (m *Manager) Stop() {
	m.dispatcher.Stop()
}
