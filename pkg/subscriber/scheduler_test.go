package subscriber

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/pubsub"
	"github.com/opcua-go/stack/pkg/transport"
	"github.com/opcua-go/stack/pkg/uatypes"
)

func TestDefaultTopic(t *testing.T) {
	require.Equal(t, "opcua/pubsub/3/10", DefaultTopic(uint16(3), 10))
}

func TestNewSchedulerRequiresHandler(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{})
	require.ErrorIs(t, err, ErrNoHandler)
}

func TestNewSchedulerRequiresSockets(t *testing.T) {
	_, err := NewScheduler(SchedulerConfig{DataSetHandler: func(DataSetEvent) {}})
	require.ErrorIs(t, err, ErrNoSockets)
}

func newLoopbackScheduler(t *testing.T, handler DataSetHandler) *Scheduler {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	sched, err := NewScheduler(SchedulerConfig{
		UDP:            []transport.UDPConfig{{Conn: conn}},
		TickInterval:   20 * time.Millisecond,
		DataSetHandler: handler,
	})
	require.NoError(t, err)
	return sched
}

func TestSchedulerLifecycleReentryGuard(t *testing.T) {
	sched := newLoopbackScheduler(t, func(DataSetEvent) {})

	require.Equal(t, StateDisabled, sched.State())
	require.NoError(t, sched.Start())
	require.Equal(t, StateOperational, sched.State())
	require.ErrorIs(t, sched.Start(), ErrAlreadyStarted)

	require.NoError(t, sched.Stop())
	require.Equal(t, StateDisabled, sched.State())
	require.ErrorIs(t, sched.Stop(), ErrNotRunning)
}

func TestSchedulerPauseResume(t *testing.T) {
	sched := newLoopbackScheduler(t, func(DataSetEvent) {})
	require.ErrorIs(t, sched.Pause(), ErrNotRunning)

	require.NoError(t, sched.Start())
	defer sched.Stop()

	require.NoError(t, sched.Pause())
	require.Equal(t, StatePaused, sched.State())
	require.ErrorIs(t, sched.Pause(), ErrNotRunning)

	require.NoError(t, sched.Resume())
	require.Equal(t, StateOperational, sched.State())
}

func encodeTestNetworkMessage(t *testing.T) []byte {
	t.Helper()
	fields := []uatypes.Variant{
		{TypeId: uatypes.TypeUInt32, Scalar: uint32(42)},
	}
	buf := buffer.New(buffer.DefaultMaxSize)
	w := builtin.NewWriter(buf)
	require.NoError(t, pubsub.EncodeDataSetMessage(w, &pubsub.DataSetMessage{Fields: fields}))

	nm := &pubsub.NetworkMessage{
		Header: &pubsub.NetworkMessageHeader{
			Version:              pubsub.UADPVersion,
			PublisherIDPresent:   true,
			PublisherIDType:      pubsub.PublisherIDUInt16,
			PublisherID:          uint16(3),
			GroupHeaderPresent:   true,
			PayloadHeaderPresent: true,
		},
		Group: &pubsub.GroupHeader{
			WriterGroupIDPresent:  true,
			WriterGroupID:         10,
			SequenceNumberPresent: true,
			SequenceNumber:        1,
		},
		Payload:    &pubsub.PayloadHeader{DataSetWriterIDs: []uint16{62541}},
		RawPayload: buf.Bytes(),
	}

	encoded, err := pubsub.EncodeNetworkMessage(nm)
	require.NoError(t, err)
	return encoded
}

func TestSchedulerDispatchesDataSet(t *testing.T) {
	var got []DataSetEvent
	sched := &Scheduler{
		state:     StateOperational,
		security:  pubsub.NewSecurityContextTable(),
		freshness: pubsub.NewFreshnessTracker(nil),
		handler:   func(e DataSetEvent) { got = append(got, e) },
	}

	sched.handleDatagram(&transport.ReceivedMessage{
		Data:     encodeTestNetworkMessage(t),
		PeerAddr: transport.PeerAddress{TransportType: transport.TransportTypeUDP},
	})

	require.Len(t, got, 1)
	require.Equal(t, uint16(3), got[0].PublisherID)
	require.Equal(t, uint16(10), got[0].WriterGroupID)
	require.Equal(t, uint16(62541), got[0].DataSetWriterID)
	require.Equal(t, uint32(42), got[0].DataSet.Fields[0].Scalar)

	// Replaying the same sequence number must be rejected by freshness.
	got = nil
	sched.handleDatagram(&transport.ReceivedMessage{
		Data:     encodeTestNetworkMessage(t),
		PeerAddr: transport.PeerAddress{TransportType: transport.TransportTypeUDP},
	})
	require.Empty(t, got)
}

func TestSchedulerDropsWhenNotOperational(t *testing.T) {
	var got []DataSetEvent
	sched := &Scheduler{
		state:     StatePaused,
		security:  pubsub.NewSecurityContextTable(),
		freshness: pubsub.NewFreshnessTracker(nil),
		handler:   func(e DataSetEvent) { got = append(got, e) },
	}

	sched.handleDatagram(&transport.ReceivedMessage{
		Data:     encodeTestNetworkMessage(t),
		PeerAddr: transport.PeerAddress{TransportType: transport.TransportTypeUDP},
	})
	require.Empty(t, got)
}

func TestSchedulerDropsOnMissingSecurityContext(t *testing.T) {
	var got []DataSetEvent
	sched := &Scheduler{
		state:     StateOperational,
		security:  pubsub.NewSecurityContextTable(),
		freshness: pubsub.NewFreshnessTracker(nil),
		handler:   func(e DataSetEvent) { got = append(got, e) },
	}

	nm := &pubsub.NetworkMessage{
		Header: &pubsub.NetworkMessageHeader{
			Version:              pubsub.UADPVersion,
			PublisherIDPresent:   true,
			PublisherIDType:      pubsub.PublisherIDUInt16,
			PublisherID:          uint16(3),
			GroupHeaderPresent:   true,
			SecurityEnabled:      true,
		},
		Group:    &pubsub.GroupHeader{WriterGroupIDPresent: true, WriterGroupID: 10},
		Security: &pubsub.SecurityHeader{SecurityTokenID: 7},
	}
	encoded, err := pubsub.EncodeNetworkMessage(nm)
	require.NoError(t, err)

	sched.handleDatagram(&transport.ReceivedMessage{
		Data:     encoded,
		PeerAddr: transport.PeerAddress{TransportType: transport.TransportTypeUDP},
	})
	require.Empty(t, got)
}
