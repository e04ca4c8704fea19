// Package namespace implements the namespace URI table a Secure Channel
// client and a Subscriber share: the mapping between a namespace index
// carried in every NodeId on the wire and the namespace URI it abbreviates
// (spec §4.5): map-keyed storage guarded by a sync.RWMutex, indices handed
// out sequentially, with entry 0 always reserved rather than merely
// conventionally avoided.
package namespace

import (
	"sync"

	"github.com/opcua-go/stack/pkg/status"
)

// DefaultNamespaceIndex is namespace index 0, permanently bound to the
// OPC UA core namespace URI "http://opcfoundation.org/UA/" (Part 3,
// 8.2.3). GetIndex resolves a nil or empty namespace name to this index
// rather than failing.
const DefaultNamespaceIndex uint16 = 0

// DefaultNamespaceURI is the URI bound to DefaultNamespaceIndex.
const DefaultNamespaceURI = "http://opcfoundation.org/UA/"

// MaxEntries bounds the table's size against unbounded growth from a
// server that advertises an unreasonable number of namespaces.
const MaxEntries = 4096

// Table maps namespace URIs to the indices NodeId/ExpandedNodeId encode.
// Index 0 is always present and bound to DefaultNamespaceURI; further
// entries are appended in registration order, matching Part 6, 5.2.2.9's
// requirement that namespace index assignment be stable for the lifetime
// of a connection.
type Table struct {
	mu      sync.RWMutex
	uris    []string
	byURI   map[string]uint16
}

// NewTable creates a Table pre-populated with the reserved index-0 entry.
func NewTable() *Table {
	t := &Table{
		uris:  []string{DefaultNamespaceURI},
		byURI: map[string]uint16{DefaultNamespaceURI: DefaultNamespaceIndex},
	}
	return t
}

// Register adds uri to the table if not already present and returns its
// index. Re-registering an existing URI returns its existing index rather
// than creating a duplicate entry.
func (t *Table) Register(uri string) (uint16, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if idx, ok := t.byURI[uri]; ok {
		return idx, nil
	}
	if len(t.uris) >= MaxEntries {
		return 0, status.New(status.OutOfMemory, "namespace: table is full")
	}

	idx := uint16(len(t.uris))
	t.uris = append(t.uris, uri)
	t.byURI[uri] = idx
	return idx, nil
}

// GetIndex resolves name to its namespace index. A nil or empty name
// resolves to DefaultNamespaceIndex with status.Ok, matching how an
// ExpandedNodeId with no NamespaceURI field set is interpreted as
// belonging to the local/default namespace rather than being rejected.
func (t *Table) GetIndex(name string) (index uint16, code status.Code) {
	if name == "" {
		return DefaultNamespaceIndex, status.Ok
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	idx, ok := t.byURI[name]
	if !ok {
		return 0, status.InvalidParameters
	}
	return idx, status.Ok
}

// URI resolves index to its namespace URI, reporting false if the index
// is not registered.
func (t *Table) URI(index uint16) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if int(index) >= len(t.uris) {
		return "", false
	}
	return t.uris[index], true
}

// Len reports how many namespace entries are registered, including the
// reserved index 0.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.uris)
}
