package discovery

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSortIPsByPreference(t *testing.T) {
	global := net.ParseIP("2001:db8::1")
	ula := net.ParseIP("fd00::1")
	linkLocal := net.ParseIP("fe80::1")
	v4 := net.ParseIP("192.0.2.1")

	sorted := SortIPsByPreference([]net.IP{v4, linkLocal, ula, global})
	require.Equal(t, []net.IP{global, ula, linkLocal, v4}, sorted)
}

func TestFilterIPv4IPv6(t *testing.T) {
	v4 := net.ParseIP("192.0.2.1")
	v6 := net.ParseIP("2001:db8::1")
	ips := []net.IP{v4, v6}
	require.Equal(t, []net.IP{v4}, FilterIPv4(ips))
	require.Equal(t, []net.IP{v6}, FilterIPv6(ips))
}

func TestServerTXTRoundTrip(t *testing.T) {
	txt := ServerTXT{Path: "/opcua", Capabilities: []string{"LDS", "DA"}}
	got := ParseServerTXT(txt.Encode())
	require.Equal(t, txt, got)
}

func TestParseTXTBooleanFlag(t *testing.T) {
	m := ParseTXT([]string{"caps=LDS", "standalone"})
	require.Equal(t, "LDS", m["caps"])
	require.Equal(t, "", m["standalone"])
}

func TestResolverLookupServer(t *testing.T) {
	mock := NewMockMDNSResolver()
	ip := net.ParseIP("192.0.2.10")
	mock.RegisterService(ServiceOPCUATCP, MockServer("plant-gateway", 4840, ip, "/opcua"))

	resolver, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	require.NoError(t, err)

	svc, err := resolver.Lookup(context.Background(), ServiceTypeOPCUATCP, "plant-gateway")
	require.NoError(t, err)
	require.Equal(t, "plant-gateway", svc.InstanceName)
	require.Equal(t, 4840, svc.Port)
	require.Equal(t, "/opcua", svc.TXT.Path)

	addr, err := svc.DialAddress()
	require.NoError(t, err)
	require.Equal(t, "192.0.2.10:4840", addr)
}

func TestResolverLookupNotFound(t *testing.T) {
	mock := NewMockMDNSResolver()
	resolver, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	require.NoError(t, err)

	_, err = resolver.Lookup(context.Background(), ServiceTypeOPCUATCP, "missing")
	require.ErrorIs(t, err, ErrServiceNotFound)
}

func TestResolverResolveFallsBackToBroker(t *testing.T) {
	mock := NewMockMDNSResolver()
	ip := net.ParseIP("192.0.2.20")
	mock.RegisterService(ServiceMQTTBroker, MockBroker("plant-broker", 1883, ip))

	resolver, err := NewResolver(ResolverConfig{MDNSResolver: mock})
	require.NoError(t, err)

	addr, err := resolver.Resolve(context.Background(), "plant-broker")
	require.NoError(t, err)
	require.Equal(t, "mqtt", addr.Network)
	require.Equal(t, "192.0.2.20:1883", addr.Address)
}

func TestManagerBrowseServers(t *testing.T) {
	mock := NewMockMDNSResolver()
	ip := net.ParseIP("192.0.2.30")
	mock.RegisterService(ServiceOPCUATCP, MockServer("line1", 4840, ip, "/"))

	mgr, err := NewManager(ManagerConfig{MDNSResolver: mock})
	require.NoError(t, err)
	defer mgr.Close()

	ch, err := mgr.BrowseServers(context.Background())
	require.NoError(t, err)

	var got []ResolvedService
	for svc := range ch {
		got = append(got, svc)
	}
	require.Len(t, got, 1)
	require.Equal(t, "line1", got[0].InstanceName)
}

func TestManagerClosedRejectsCalls(t *testing.T) {
	mgr, err := NewManager(ManagerConfig{MDNSResolver: NewMockMDNSResolver()})
	require.NoError(t, err)
	require.NoError(t, mgr.Close())
	require.ErrorIs(t, mgr.Close(), ErrClosed)

	_, err = mgr.BrowseServers(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}
