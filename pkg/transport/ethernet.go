//go:build linux

package transport

import (
	"fmt"
	"net"
	"sync"
	"unsafe"

	"github.com/pion/logging"
	"golang.org/x/sys/unix"
)

// EtherTypePubSub is the Ethernet frame type OPC UA PubSub UADP messages
// use when sent directly over raw Ethernet (Part 14, Table 14), bypassing
// IP entirely for deterministic, low-jitter delivery on a dedicated
// segment.
const EtherTypePubSub = 0xB62C

// Ethernet provides a raw-socket transport for UADP messages framed
// directly in Ethernet II frames rather than over UDP. It is grounded on
// this package's UDP transport's read-loop shape (closeCh + WaitGroup +
// LeveledLogger), substituting an AF_PACKET raw socket for a UDP
// net.PacketConn since Go's standard net package has no raw-Ethernet
// listener.
type Ethernet struct {
	fd        int
	ifaceName string
	ifaceIdx  int
	etherType uint16
	handler   MessageHandler
	closeCh   chan struct{}
	wg        sync.WaitGroup
	log       logging.LeveledLogger

	mu      sync.RWMutex
	started bool
	closed  bool
}

// EthernetConfig configures the Ethernet transport.
type EthernetConfig struct {
	// Interface is the network interface name to bind to, e.g. "eth0".
	Interface string

	// EtherType filters received frames by Ethernet type. Defaults to
	// EtherTypePubSub.
	EtherType uint16

	// MessageHandler is called for each received frame's payload.
	MessageHandler MessageHandler

	// LoggerFactory is the factory for creating loggers. If nil, logging
	// is disabled.
	LoggerFactory logging.LoggerFactory
}

// NewEthernet opens a raw AF_PACKET socket bound to config.Interface,
// filtering to config.EtherType. Requires CAP_NET_RAW.
func NewEthernet(config EthernetConfig) (*Ethernet, error) {
	if config.MessageHandler == nil {
		return nil, ErrNoHandler
	}
	etherType := config.EtherType
	if etherType == 0 {
		etherType = EtherTypePubSub
	}

	iface, err := net.InterfaceByName(config.Interface)
	if err != nil {
		return nil, fmt.Errorf("transport: resolve interface %q: %w", config.Interface, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherType)))
	if err != nil {
		return nil, fmt.Errorf("transport: open raw socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind raw socket: %w", err)
	}

	e := &Ethernet{
		fd:        fd,
		ifaceName: iface.Name,
		ifaceIdx:  iface.Index,
		etherType: etherType,
		handler:   config.MessageHandler,
		closeCh:   make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		e.log = config.LoggerFactory.NewLogger("transport-ethernet")
	}
	return e, nil
}

// Start begins the read loop.
func (e *Ethernet) Start() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	if e.log != nil {
		e.log.Infof("starting Ethernet transport on %s (ethertype 0x%04x)", e.ifaceName, e.etherType)
	}

	e.wg.Add(1)
	go e.readLoop()
	return nil
}

// Stop closes the socket and waits for the read loop to exit.
func (e *Ethernet) Stop() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	e.mu.Unlock()

	close(e.closeCh)
	unix.Close(e.fd)
	e.wg.Wait()
	return nil
}

// readLoop reads raw frames and dispatches their payload (the bytes after
// the 14-byte Ethernet header) to the handler.
func (e *Ethernet) readLoop() {
	defer e.wg.Done()

	buf := make([]byte, 65535)
	for {
		select {
		case <-e.closeCh:
			return
		default:
		}

		n, from, err := unix.Recvfrom(e.fd, buf, 0)
		if err != nil {
			select {
			case <-e.closeCh:
				return
			default:
				if e.log != nil {
					e.log.Warnf("ethernet read error: %v", err)
				}
				continue
			}
		}
		if n < 14 {
			continue
		}

		data := make([]byte, n-14)
		copy(data, buf[14:n])

		var srcMAC net.HardwareAddr
		if ll, ok := from.(*unix.SockaddrLinklayer); ok {
			srcMAC = net.HardwareAddr(ll.Addr[:ll.Halen])
		}

		e.handler(&ReceivedMessage{
			Data:     data,
			PeerAddr: PeerAddress{Addr: hardwareAddr{srcMAC}, TransportType: TransportTypeEthernet},
		})
	}
}

// Send transmits payload to dstMAC as an Ethernet II frame with this
// transport's configured EtherType.
func (e *Ethernet) Send(payload []byte, dstMAC net.HardwareAddr) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return ErrClosed
	}
	e.mu.RUnlock()

	if len(dstMAC) != 6 {
		return ErrInvalidAddress
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(e.etherType),
		Ifindex:  e.ifaceIdx,
		Halen:    6,
	}
	copy(addr.Addr[:6], dstMAC)

	return unix.Sendto(e.fd, payload, 0, &addr)
}

// hardwareAddr adapts net.HardwareAddr to the net.Addr interface so it can
// travel inside a PeerAddress.
type hardwareAddr struct {
	mac net.HardwareAddr
}

func (h hardwareAddr) Network() string { return "ethernet" }
func (h hardwareAddr) String() string  { return h.mac.String() }

func htons(v uint16) uint16 {
	return (v<<8)&0xff00 | (v>>8)&0x00ff
}

var _ = unsafe.Sizeof(unix.SockaddrLinklayer{})
