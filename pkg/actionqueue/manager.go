package actionqueue

import (
	"fmt"

	"github.com/pion/logging"
)

// ManagerConfig configures a Manager's two queues.
type ManagerConfig struct {
	// ProtocolCapacity bounds the protocol (stack) queue. Defaults to
	// DefaultCapacity.
	ProtocolCapacity int

	// CallbackCapacity bounds the application-callback queue. Defaults to
	// DefaultCapacity.
	CallbackCapacity int

	// LoggerFactory creates both queues' loggers. If nil, logging is
	// disabled.
	LoggerFactory logging.LoggerFactory
}

// Manager owns the two action queues spec.md §5 requires at minimum: a
// stack queue for protocol work (Secure-Channel state-machine transitions,
// chunk encode/decode) and an application-callback queue for delivering
// responses to user code. The separation exists so a slow or misbehaving
// user callback can never block protocol progress.
type Manager struct {
	// Protocol is the stack/protocol-work queue.
	Protocol *Queue

	// Callback is the application-callback queue.
	Callback *Queue
}

// NewManager creates a Manager. Neither queue's worker runs until Start.
func NewManager(config ManagerConfig) *Manager {
	return &Manager{
		Protocol: NewQueue(QueueConfig{
			Name:          "protocol",
			Capacity:      config.ProtocolCapacity,
			LoggerFactory: config.LoggerFactory,
		}),
		Callback: NewQueue(QueueConfig{
			Name:          "callback",
			Capacity:      config.CallbackCapacity,
			LoggerFactory: config.LoggerFactory,
		}),
	}
}

// Start starts both queues' workers. If the callback queue fails to
// start, the protocol queue is stopped again before returning the error.
func (m *Manager) Start() error {
	if err := m.Protocol.Start(); err != nil {
		return fmt.Errorf("actionqueue: starting protocol queue: %w", err)
	}
	if err := m.Callback.Start(); err != nil {
		_ = m.Protocol.Stop()
		return fmt.Errorf("actionqueue: starting callback queue: %w", err)
	}
	return nil
}

// Stop stops both queues, returning the first error encountered but
// always attempting both.
func (m *Manager) Stop() error {
	protoErr := m.Protocol.Stop()
	cbErr := m.Callback.Stop()
	if protoErr != nil {
		return protoErr
	}
	return cbErr
}
