package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/opcua-go/stack/pkg/subscriber"
)

// DefaultBrowseTimeout is the default timeout for browse operations.
const DefaultBrowseTimeout = 10 * time.Second

// DefaultLookupTimeout is the default timeout for lookup operations.
const DefaultLookupTimeout = 5 * time.Second

// ResolvedService contains information about a discovered DNS-SD service.
type ResolvedService struct {
	// ServiceType is the type of the discovered service.
	ServiceType ServiceType

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the target host name.
	HostName string

	// Port is the service port.
	Port int

	// IPs contains the resolved IP addresses, sorted by preference.
	IPs []net.IP

	// TXT is the decoded TXT record.
	TXT ServerTXT
}

// PreferredIP returns the most preferred IP address (first in the sorted
// list), or nil if no addresses are available.
func (r *ResolvedService) PreferredIP() net.IP {
	if len(r.IPs) > 0 {
		return r.IPs[0]
	}
	return nil
}

// DialAddress returns the "host:port" string a transport socket dials,
// preferring the resolved IP over the mDNS host name.
func (r *ResolvedService) DialAddress() (string, error) {
	ip := r.PreferredIP()
	if ip == nil {
		return "", ErrNoAddresses
	}
	return fmt.Sprintf("%s:%d", ip.String(), r.Port), nil
}

// MDNSResolver is the interface for mDNS service resolution. This allows
// for dependency injection in tests.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
	Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation using grandcat/zeroconf.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

func (z *zeroconfResolver) Lookup(ctx context.Context, instance, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Lookup(ctx, instance, service, domain, entries)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// MDNSResolver is the underlying mDNS resolver implementation. If
	// nil, the default zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout is the timeout for browse operations. If zero,
	// DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LookupTimeout is the timeout for lookup operations. If zero,
	// DefaultLookupTimeout is used.
	LookupTimeout time.Duration
}

// Resolver discovers OPC UA servers and MQTT brokers via DNS-SD and
// implements subscriber.AddressResolver.
type Resolver struct {
	config   ResolverConfig
	resolver MDNSResolver
}

// NewResolver creates a new Resolver with the given configuration.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}

	if config.BrowseTimeout == 0 {
		config.BrowseTimeout = DefaultBrowseTimeout
	}
	if config.LookupTimeout == 0 {
		config.LookupTimeout = DefaultLookupTimeout
	}

	return &Resolver{config: config, resolver: resolver}, nil
}

// BrowseServers discovers OPC UA servers on the network. The returned
// channel receives discovered services until the context is cancelled
// or the browse timeout expires.
func (r *Resolver) BrowseServers(ctx context.Context) (<-chan ResolvedService, error) {
	return r.browse(ctx, ServiceTypeOPCUATCP, ServiceOPCUATCP)
}

// BrowseBrokers discovers MQTT brokers on the network.
func (r *Resolver) BrowseBrokers(ctx context.Context) (<-chan ResolvedService, error) {
	return r.browse(ctx, ServiceTypeMQTTBroker, ServiceMQTTBroker)
}

func (r *Resolver) browse(ctx context.Context, serviceType ServiceType, service string) (<-chan ResolvedService, error) {
	results := make(chan ResolvedService)
	entries := make(chan *zeroconf.ServiceEntry)

	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, r.config.BrowseTimeout)
	}

	go func() {
		defer cancel()
		defer close(results)

		go func() {
			defer close(entries)
			r.resolver.Browse(ctx, service, DefaultDomain, entries)
		}()

		for entry := range entries {
			svc := entryToResolvedService(entry, serviceType)
			select {
			case results <- svc:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, nil
}

// Lookup looks up a specific service instance by name.
func (r *Resolver) Lookup(ctx context.Context, serviceType ServiceType, instanceName string) (*ResolvedService, error) {
	if !serviceType.IsValid() {
		return nil, ErrInvalidServiceType
	}
	service := serviceType.ServiceString()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.LookupTimeout)
		defer cancel()
	}

	entries := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(entries)
		r.resolver.Lookup(ctx, instanceName, service, DefaultDomain, entries)
	}()

	select {
	case entry, ok := <-entries:
		if !ok || entry == nil {
			return nil, ErrServiceNotFound
		}
		svc := entryToResolvedService(entry, serviceType)
		return &svc, nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

// Resolve implements subscriber.AddressResolver: name is an mDNS
// instance name (e.g. an OPC UA server's ApplicationName, or a broker's
// advertised instance), resolved to a dialable address. OPC UA TCP
// servers are tried before MQTT brokers, since both share one flat
// namespace of configured connection names.
func (r *Resolver) Resolve(ctx context.Context, name string) (subscriber.ResolvedAddress, error) {
	if svc, err := r.Lookup(ctx, ServiceTypeOPCUATCP, name); err == nil {
		addr, err := svc.DialAddress()
		if err != nil {
			return subscriber.ResolvedAddress{}, err
		}
		return subscriber.ResolvedAddress{Network: "udp", Address: addr}, nil
	}

	svc, err := r.Lookup(ctx, ServiceTypeMQTTBroker, name)
	if err != nil {
		return subscriber.ResolvedAddress{}, err
	}
	addr, err := svc.DialAddress()
	if err != nil {
		return subscriber.ResolvedAddress{}, err
	}
	return subscriber.ResolvedAddress{Network: "mqtt", Address: addr}, nil
}

// entryToResolvedService converts a zeroconf.ServiceEntry to ResolvedService.
func entryToResolvedService(entry *zeroconf.ServiceEntry, serviceType ServiceType) ResolvedService {
	var allIPs []net.IP
	allIPs = append(allIPs, entry.AddrIPv6...)
	allIPs = append(allIPs, entry.AddrIPv4...)

	return ResolvedService{
		ServiceType:  serviceType,
		InstanceName: entry.Instance,
		HostName:     entry.HostName,
		Port:         entry.Port,
		IPs:          SortIPsByPreference(allIPs),
		TXT:          ParseServerTXT(entry.Text),
	}
}
