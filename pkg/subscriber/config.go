package subscriber

import "fmt"

// ReaderGroupConfig names one (publisher, writer-group) pair and, for MQTT
// sockets, the topic carrying it. The Scheduler uses it only to choose MQTT
// topics; received messages are not filtered by publisher or writer group.
type ReaderGroupConfig struct {
	// PublisherID is the publisher's PublisherId, one of byte, uint16,
	// uint32, uint64, or string, as used in the default topic.
	PublisherID any

	// WriterGroupID is the writer group's GroupHeader.WriterGroupID, as
	// used in the default topic.
	WriterGroupID uint16

	// Topic is the MQTT topic carrying this reader group. Ignored by
	// UDP/Ethernet sockets. If empty, DefaultTopic synthesizes one.
	Topic string
}

// DefaultTopic synthesizes an MQTT topic from a reader group's
// (publisher-id, group-id) when no explicit topic was configured (spec
// §4.6: "a default topic is synthesized from (publisher-id, group-id)").
func DefaultTopic(publisherID any, groupID uint16) string {
	return fmt.Sprintf("opcua/pubsub/%v/%d", publisherID, groupID)
}

// topicFor returns rg.Topic if set, else the synthesized default.
func (rg ReaderGroupConfig) topicFor() string {
	if rg.Topic != "" {
		return rg.Topic
	}
	return DefaultTopic(rg.PublisherID, rg.WriterGroupID)
}
