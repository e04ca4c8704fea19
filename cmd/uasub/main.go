// uasub is a PubSub UADP subscriber example.
//
// It joins a UDP multicast group (and, optionally, an MQTT broker),
// decodes the DataSetMessages it receives, and logs each one it accepts.
// The publisher and writer-group ids only name the MQTT topic; received
// messages are not filtered by them.
//
// Usage:
//
//	uasub [options]
//
// Options:
//
//	-group        UDP multicast group (default: 239.0.0.1)
//	-port         UDP multicast port (default: 4840)
//	-iface        Network interface to join the multicast group on
//	-broker       MQTT broker URL (e.g. tcp://localhost:1883)
//	-publisher    PublisherId used in the MQTT topic (default: 0)
//	-writergroup  WriterGroupId used in the MQTT topic (default: 1)
//	-v            Verbose logging
//
// Example:
//
//	uasub -group 239.0.0.1 -port 4840 -writergroup 1
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os/signal"
	"syscall"

	"github.com/pion/logging"

	"github.com/opcua-go/stack/pkg/pubsub"
	"github.com/opcua-go/stack/pkg/subscriber"
	"github.com/opcua-go/stack/pkg/transport"
)

func main() {
	opts := parseFlags()

	loggerFactory := logging.NewDefaultLoggerFactory()
	if opts.Verbose {
		loggerFactory.DefaultLogLevel = logging.LogLevelDebug
	} else {
		loggerFactory.DefaultLogLevel = logging.LogLevelInfo
	}

	config := subscriber.SchedulerConfig{
		ReaderGroups: []subscriber.ReaderGroupConfig{
			{PublisherID: uint16(opts.PublisherID), WriterGroupID: uint16(opts.WriterGroupID)},
		},
		DataSetHandler: func(evt subscriber.DataSetEvent) {
			fmt.Printf("dataset from publisher=%v writer-group=%d writer=%d fields=%d peer=%s\n",
				evt.PublisherID, evt.WriterGroupID, evt.DataSetWriterID, len(evt.DataSet.Fields), evt.Peer.Addr)
		},
		OnGap: func(gap pubsub.GapEvent) {
			log.Printf("sequence gap: publisher=%s writer=%d previous=%d received=%d",
				gap.PublisherID, gap.WriterID, gap.PreviousSN, gap.ReceivedSN)
		},
		LoggerFactory: loggerFactory,
	}

	group := net.ParseIP(opts.MulticastGroup)
	if group == nil {
		log.Fatalf("invalid multicast group %q", opts.MulticastGroup)
	}
	udpConfig := transport.UDPConfig{
		MulticastGroup: group,
		MulticastPort:  opts.MulticastPort,
	}
	if opts.Iface != "" {
		iface, err := net.InterfaceByName(opts.Iface)
		if err != nil {
			log.Fatalf("interface %q: %v", opts.Iface, err)
		}
		udpConfig.MulticastIface = iface
	}
	config.UDP = []transport.UDPConfig{udpConfig}

	if opts.BrokerURL != "" {
		config.MQTT = &transport.MQTTConfig{BrokerURL: opts.BrokerURL}
	}

	scheduler, err := subscriber.NewScheduler(config)
	if err != nil {
		printUsage()
		log.Fatalf("failed to create scheduler: %v", err)
	}

	if err := scheduler.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("shutting down...")
	if err := scheduler.Stop(); err != nil {
		log.Fatalf("failed to stop scheduler: %v", err)
	}
}
