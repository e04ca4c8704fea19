package main

import (
	"flag"
	"fmt"
	"os"
)

// options holds the standard CLI flags for this subscriber example.
type options struct {
	// MulticastGroup is the UDP multicast group to join.
	MulticastGroup string

	// MulticastPort is the UDP port to join MulticastGroup on.
	MulticastPort int

	// Iface selects the network interface to join the multicast group
	// on. Empty lets the OS choose.
	Iface string

	// BrokerURL, if set, additionally subscribes over MQTT alongside UDP
	// multicast.
	BrokerURL string

	// PublisherID is the reader group's PublisherId (a decimal uint16;
	// string publisher IDs aren't exposed as a flag). It only names the
	// MQTT topic; received messages are not filtered by it.
	PublisherID uint

	// WriterGroupID is the reader group's WriterGroupId. It only names the
	// MQTT topic; received messages are not filtered by it.
	WriterGroupID uint

	// Verbose enables debug-level logging.
	Verbose bool
}

// defaultOptions returns options with sensible defaults for testing
// against a cooperating local publisher.
func defaultOptions() options {
	return options{
		MulticastGroup: "239.0.0.1",
		MulticastPort:  4840,
		WriterGroupID:  1,
	}
}

// parseFlags parses standard CLI flags and returns options.
//
//	-group      UDP multicast group (default: 239.0.0.1)
//	-port       UDP multicast port (default: 4840)
//	-iface      Network interface to join the multicast group on
//	-broker     MQTT broker URL, e.g. tcp://localhost:1883
//	-publisher  PublisherId used in the MQTT topic (default: 0)
//	-writergroup WriterGroupId used in the MQTT topic (default: 1)
//	-v          Verbose logging
func parseFlags() options {
	defaults := defaultOptions()
	o := options{}

	flag.StringVar(&o.MulticastGroup, "group", defaults.MulticastGroup, "UDP multicast group")
	flag.IntVar(&o.MulticastPort, "port", defaults.MulticastPort, "UDP multicast port")
	flag.StringVar(&o.Iface, "iface", "", "network interface to join the multicast group on")
	flag.StringVar(&o.BrokerURL, "broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")
	flag.UintVar(&o.PublisherID, "publisher", 0, "PublisherId used in the MQTT topic")
	flag.UintVar(&o.WriterGroupID, "writergroup", uint(defaults.WriterGroupID), "WriterGroupId used in the MQTT topic")
	flag.BoolVar(&o.Verbose, "v", false, "verbose logging")

	flag.Parse()
	return o
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nOptions:\n")
	flag.PrintDefaults()
}
