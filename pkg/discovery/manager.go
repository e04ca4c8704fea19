package discovery

import (
	"context"
	"sync"
	"time"
)

// ManagerConfig holds configuration for the discovery Manager.
type ManagerConfig struct {
	// BrowseTimeout is the default timeout for browse operations. If
	// zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the default timeout for lookup operations. If
	// zero, DefaultLookupTimeout is used.
	LookupTimeout time.Duration

	// MDNSResolver is the mDNS resolver implementation (for testing).
	MDNSResolver MDNSResolver
}

// Manager resolves OPC UA server and MQTT broker addresses via DNS-SD.
// It does not itself implement subscriber.AddressResolver; the Resolver
// returned by its Resolver method does. It never advertises: a
// PubSub subscriber is a discovery client only (see DESIGN.md for the
// dropped Advertiser).
type Manager struct {
	resolver *Resolver

	mu     sync.RWMutex
	closed bool
}

// NewManager creates a new discovery Manager with the given configuration.
func NewManager(config ManagerConfig) (*Manager, error) {
	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	resolver, err := NewResolver(ResolverConfig{
		MDNSResolver:  config.MDNSResolver,
		BrowseTimeout: config.BrowseTimeout,
		LookupTimeout: config.LookupTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{resolver: resolver}, nil
}

// Close releases resources. Once closed, a Manager's resolution methods
// all return ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.closed = true
	return nil
}

// BrowseServers discovers OPC UA servers on the network.
func (m *Manager) BrowseServers(ctx context.Context) (<-chan ResolvedService, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.resolver.BrowseServers(ctx)
}

// BrowseBrokers discovers MQTT brokers on the network.
func (m *Manager) BrowseBrokers(ctx context.Context) (<-chan ResolvedService, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.resolver.BrowseBrokers(ctx)
}

// Lookup looks up a specific service instance by name.
func (m *Manager) Lookup(ctx context.Context, serviceType ServiceType, instanceName string) (*ResolvedService, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.resolver.Lookup(ctx, serviceType, instanceName)
}

// Resolver returns the underlying Resolver, which satisfies
// subscriber.AddressResolver directly.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}
