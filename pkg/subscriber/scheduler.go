package subscriber

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/opcua-go/stack/pkg/pubsub"
	"github.com/opcua-go/stack/pkg/transport"
)

// Socket is the minimal shape a reception socket must satisfy to be
// multiplexed by the scheduler: transport.UDP, transport.Ethernet, and
// transport.MQTT all already implement it.
type Socket interface {
	Start() error
	Stop() error
}

// DataSetEvent is one decoded, freshness-checked DataSetMessage delivered
// to the caller.
type DataSetEvent struct {
	PublisherID   any
	WriterGroupID uint16
	DataSetWriterID uint16
	DataSet       pubsub.DataSetMessage
	Peer          transport.PeerAddress
}

// DataSetHandler is called for each DataSetMessage accepted by the
// freshness and security pipeline while the scheduler is Operational.
type DataSetHandler func(DataSetEvent)

// SchedulerConfig configures a Scheduler's sockets and decode pipeline.
type SchedulerConfig struct {
	// UDP configures zero or more UDP multicast/unicast reception sockets.
	UDP []transport.UDPConfig

	// Ethernet configures zero or more raw-Ethernet reception sockets
	// (Linux only — see pkg/transport/ethernet.go).
	Ethernet []transport.EthernetConfig

	// MQTT, if non-nil, configures a single MQTT reception socket. Its
	// Topics field is populated from ReaderGroups (spec §4.6) if left
	// empty.
	MQTT *transport.MQTTConfig

	// ReaderGroups lists the (publisher, writer-group) pairs this
	// scheduler expects to receive, used to synthesize MQTT topics when
	// MQTT.Topics is empty.
	ReaderGroups []ReaderGroupConfig

	// TickInterval is the period of the scheduler's periodic tick, a
	// no-op hook for future keep-alive or timeout work (spec §4.6).
	// Defaults to one second.
	TickInterval time.Duration

	// DataSetHandler receives each accepted DataSetMessage. Required.
	DataSetHandler DataSetHandler

	// OnGap, if set, is invoked when the freshness tracker drops a message
	// for falling too far behind (pubsub.GapEvent).
	OnGap pubsub.GapCallback

	// LoggerFactory creates the scheduler's logger. If nil, logging is
	// disabled.
	LoggerFactory logging.LoggerFactory
}

// Scheduler owns the active set of reception sockets and the single
// reception pipeline (decode, freshness check, security resolution,
// dispatch) spec §4.6 describes. Each socket already runs its own
// read-loop goroutine (transport.UDP/TCP); the scheduler's own goroutine
// is just the periodic tick, since Go's
// callback-driven transports make a manual select-loop across sockets
// unnecessary.
type Scheduler struct {
	sockets  []Socket
	security *pubsub.SecurityContextTable
	freshness *pubsub.FreshnessTracker
	handler  DataSetHandler
	log      logging.LeveledLogger

	tickInterval time.Duration
	tickStop     chan struct{}
	tickWG       sync.WaitGroup

	mu    sync.Mutex
	state State
}

// NewScheduler builds a Scheduler from config. Sockets are constructed but
// not started; call Start to bind them and begin reception.
func NewScheduler(config SchedulerConfig) (*Scheduler, error) {
	if config.DataSetHandler == nil {
		return nil, ErrNoHandler
	}
	if config.TickInterval <= 0 {
		config.TickInterval = time.Second
	}

	s := &Scheduler{
		handler:      config.DataSetHandler,
		tickInterval: config.TickInterval,
		security:     pubsub.NewSecurityContextTable(),
		freshness:    pubsub.NewFreshnessTracker(config.OnGap),
		state:        StateDisabled,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("subscriber")
	}

	for _, udpCfg := range config.UDP {
		udpCfg.MessageHandler = s.handleDatagram
		udpCfg.LoggerFactory = config.LoggerFactory
		sock, err := transport.NewUDP(udpCfg)
		if err != nil {
			return nil, fmt.Errorf("subscriber: udp socket: %w", err)
		}
		s.sockets = append(s.sockets, sock)
	}

	for _, ethCfg := range config.Ethernet {
		ethCfg.MessageHandler = s.handleDatagram
		ethCfg.LoggerFactory = config.LoggerFactory
		sock, err := transport.NewEthernet(ethCfg)
		if err != nil {
			return nil, fmt.Errorf("subscriber: ethernet socket: %w", err)
		}
		s.sockets = append(s.sockets, sock)
	}

	if config.MQTT != nil {
		mqttCfg := *config.MQTT
		if len(mqttCfg.Topics) == 0 {
			for _, rg := range config.ReaderGroups {
				mqttCfg.Topics = append(mqttCfg.Topics, rg.topicFor())
			}
		}
		mqttCfg.MessageHandler = s.handleDatagram
		mqttCfg.LoggerFactory = config.LoggerFactory
		sock, err := transport.NewMQTT(mqttCfg)
		if err != nil {
			return nil, fmt.Errorf("subscriber: mqtt socket: %w", err)
		}
		s.sockets = append(s.sockets, sock)
	}

	if len(s.sockets) == 0 {
		return nil, ErrNoSockets
	}

	return s, nil
}

// Security returns the scheduler's per-group security context table, for
// the caller to provision keys into before or while messages arrive.
func (s *Scheduler) Security() *pubsub.SecurityContextTable {
	return s.security
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start binds all configured sockets and spawns the tick goroutine,
// transitioning Disabled → Operational. On any socket failure, already
// bound sockets are stopped and the scheduler remains Disabled (spec
// §4.6). A re-entry guard rejects Start from any state but Disabled.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.state != StateDisabled {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	started := make([]Socket, 0, len(s.sockets))
	for _, sock := range s.sockets {
		if err := sock.Start(); err != nil {
			for _, up := range started {
				_ = up.Stop()
			}
			return fmt.Errorf("subscriber: starting socket: %w", err)
		}
		started = append(started, sock)
	}

	s.tickStop = make(chan struct{})
	s.tickWG.Add(1)
	go s.tickLoop()

	s.mu.Lock()
	s.state = StateOperational
	s.mu.Unlock()
	return nil
}

// Stop joins the tick goroutine and closes every socket (including
// dropping multicast membership, handled by transport.UDP's own Stop),
// transitioning back to Disabled. A re-entry guard rejects Stop from
// Disabled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.state == StateDisabled {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.state = StateDisabled
	s.mu.Unlock()

	close(s.tickStop)
	s.tickWG.Wait()

	var firstErr error
	for _, sock := range s.sockets {
		if err := sock.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pause stops delivering decoded DataSetMessages to the caller's handler
// without unbinding sockets, transitioning Operational → Paused. Incoming
// datagrams are still decoded (to keep freshness trackers current) but
// dropped before dispatch.
func (s *Scheduler) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOperational {
		return ErrNotRunning
	}
	s.state = StatePaused
	return nil
}

// Resume reverses Pause, transitioning Paused → Operational.
func (s *Scheduler) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return ErrNotRunning
	}
	s.state = StateOperational
	return nil
}

func (s *Scheduler) tickLoop() {
	defer s.tickWG.Done()
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.tickStop:
			return
		case <-ticker.C:
			// No-op hook for future keep-alive/timeout work (spec §4.6).
		}
	}
}

// handleDatagram is the transport.MessageHandler every socket is wired to.
// It decodes the UADP network message, resolves and applies its security
// context, checks per-(publisher, writer) freshness, and dispatches each
// surviving DataSetMessage to the caller's handler. An isolated decode
// failure from one datagram is logged and swallowed rather than touching
// scheduler state (spec §7): the network is noisy, and one bad datagram
// must not stop the subscriber.
func (s *Scheduler) handleDatagram(msg *transport.ReceivedMessage) {
	nm, err := pubsub.DecodeNetworkMessage(msg.Data)
	if err != nil {
		if s.log != nil {
			s.log.Debugf("subscriber: dropping undecodable network message from %s: %v", msg.PeerAddr, err)
		}
		return
	}

	if err := pubsub.SplitSignature(nm); err != nil {
		if s.log != nil {
			s.log.Debugf("subscriber: dropping network message from %s: %v", msg.PeerAddr, err)
		}
		return
	}

	if nm.Header.SecurityEnabled {
		ctx, ok := s.security.Resolve(nm)
		if !ok {
			// Not addressed to this subscriber; drop silently (spec §4.5).
			return
		}
		if err := pubsub.Unseal(nm, ctx, nm.RawPayload); err != nil {
			if s.log != nil {
				s.log.Warnf("subscriber: unseal failed for message from %s: %v", msg.PeerAddr, err)
			}
			return
		}
	}

	if err := pubsub.ParsePayload(nm); err != nil {
		if s.log != nil {
			s.log.Debugf("subscriber: dropping network message from %s: %v", msg.PeerAddr, err)
		}
		return
	}

	s.mu.Lock()
	operational := s.state == StateOperational
	s.mu.Unlock()

	publisherKey := pubsub.PublisherIDKey(nm.Header.PublisherID)
	for i, ds := range nm.DataSets {
		writerID := uint16(0)
		if nm.Payload != nil && i < len(nm.Payload.DataSetWriterIDs) {
			writerID = nm.Payload.DataSetWriterIDs[i]
		}

		if nm.Group != nil && nm.Group.SequenceNumberPresent {
			if !s.freshness.Check(publisherKey, writerID, nm.Group.SequenceNumber) {
				continue
			}
		}

		if !operational {
			continue
		}

		groupID := uint16(0)
		if nm.Group != nil {
			groupID = nm.Group.WriterGroupID
		}

		s.handler(DataSetEvent{
			PublisherID:     nm.Header.PublisherID,
			WriterGroupID:   groupID,
			DataSetWriterID: writerID,
			DataSet:         ds,
			Peer:            msg.PeerAddr,
		})
	}
}
