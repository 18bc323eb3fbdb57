package linking

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Linker holds the URL the process was launched with and fans out deep links
// delivered while it runs.
type Linker struct {
	initial string
	logger  *logrus.Logger

	mu        sync.RWMutex
	listeners map[string]func(string)
}

// NewLinker creates a Linker. initialURL may be empty.
func NewLinker(initialURL string, logger *logrus.Logger) *Linker {
	return &Linker{
		initial:   initialURL,
		logger:    logger,
		listeners: make(map[string]func(string)),
	}
}

// InitialURL returns the launch URL, or "" when there was none.
func (l *Linker) InitialURL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return l.initial, nil
}

// Subscribe registers fn for every delivered URL. The returned function
// removes it and may be called more than once.
func (l *Linker) Subscribe(fn func(rawURL string)) func() {
	id := uuid.NewString()

	l.mu.Lock()
	l.listeners[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.listeners, id)
		l.mu.Unlock()
	}
}

// Deliver validates rawURL and hands it to every listener.
func (l *Linker) Deliver(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid deep link: %w", err)
	}
	if u.Scheme == "" {
		return fmt.Errorf("invalid deep link %q: missing scheme", rawURL)
	}

	l.mu.RLock()
	fns := make([]func(string), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	l.logger.WithFields(logrus.Fields{
		"scheme":    u.Scheme,
		"host":      u.Host,
		"path":      u.Path,
		"listeners": len(fns),
	}).Info("Deep link received")

	for _, fn := range fns {
		fn(rawURL)
	}
	return nil
}
