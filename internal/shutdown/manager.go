// Package shutdown stops registered service components in reverse order on
// SIGINT/SIGTERM or on request.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"denoise-bench/internal/logger"
)

const component = "ShutdownManager"

type Shutdownable interface {
	Shutdown()
}

// Func adapts a plain function to Shutdownable
type Func func()

func (f Func) Shutdown() { f() }

type registration struct {
	name      string
	component Shutdownable
}

type Manager struct {
	mu         sync.Mutex
	components []registration
	logger     logger.Logger
	timeout    time.Duration
	done       chan struct{}
	finished   chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewManager creates a manager that waits at most timeout for each
// component
func NewManager(log logger.Logger, timeout time.Duration) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		logger:   log,
		timeout:  timeout,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Register adds a component; components stop in reverse registration order
func (m *Manager) Register(name string, c Shutdownable) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.components = append(m.components, registration{name: name, component: c})
}

// Listen triggers Shutdown on the first interrupt or termination signal
func (m *Manager) Listen() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			m.logger.Info(component, "shutdown signal received", map[string]interface{}{
				"signal": sig.String(),
			})
			m.Shutdown()
		case <-m.done:
		}
	}()
}

func (m *Manager) Shutdown() {
	m.mu.Lock()
	select {
	case <-m.done:
		m.mu.Unlock()
		return
	default:
		close(m.done)
	}
	components := make([]registration, len(m.components))
	copy(components, m.components)
	m.mu.Unlock()

	defer close(m.finished)

	m.logger.Info(component, "shutdown sequence initiated", map[string]interface{}{
		"components": len(components),
	})

	m.cancel()

	for i := len(components) - 1; i >= 0; i-- {
		reg := components[i]

		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			reg.component.Shutdown()
		}()

		select {
		case <-stopped:
			m.logger.Debug(component, "component stopped", map[string]interface{}{
				"component": reg.name,
			})
		case <-time.After(m.timeout):
			m.logger.Warning(component, "component shutdown timeout", map[string]interface{}{
				"component": reg.name,
				"timeout":   m.timeout.String(),
			})
		}
	}

	m.logger.Info(component, "shutdown sequence completed", nil)
}

// Context is cancelled as soon as shutdown starts
func (m *Manager) Context() context.Context {
	return m.ctx
}

func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until every component has been asked to stop
func (m *Manager) Wait() {
	<-m.finished
}
