// Package encodeable implements the structured-type registry the codec
// layer uses to turn an ExtensionObject's opaque body into a concrete Go
// value and back (spec §4.4.3, "type dictionary"). It is grounded on the
// teacher's pkg/exchange/manager.go RegisterProtocol pattern — a
// map-keyed-by-identifier handler table guarded by a mutex, populated
// once at startup and read on every message — adapted from routing
// protocol messages by ProtocolID to routing structure bodies by NodeId.
package encodeable

import (
	"sync"

	"github.com/opcua-go/stack/pkg/buffer"
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
	"github.com/opcua-go/stack/pkg/uatypes"
)

// Decoder turns a structure body into a concrete value.
type Decoder func(r *builtin.Reader) (any, error)

// Encoder turns a concrete value back into its structure body bytes.
type Encoder func(w *builtin.Writer, value any) error

// entry pairs a type's encoder and decoder under its binary-encoding
// NodeId, the identifier an ExtensionObject.TypeId carries on the wire.
type entry struct {
	decode Decoder
	encode Encoder
}

// Registry maps a structure's binary-encoding NodeId to the codec
// functions that give it meaning beyond an opaque byte string. A Secure
// Channel client and a Subscriber each keep one, populated during startup
// with every structured type the deployment needs to read or write.
type Registry struct {
	mu      sync.RWMutex
	entries map[uatypes.NodeId]entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[uatypes.NodeId]entry)}
}

// Register associates typeId with decode/encode functions. Re-registering
// the same typeId replaces the previous entry, so a caller can also use it
// to swap handlers.
func (r *Registry) Register(typeId uatypes.NodeId, decode Decoder, encode Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[typeId] = entry{decode: decode, encode: encode}
}

// Decode looks up typeId and runs its Decoder over body. Returns
// status.NotSupported if no type is registered under typeId.
func (r *Registry) Decode(typeId uatypes.NodeId, body []byte) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[typeId]
	r.mu.RUnlock()
	if !ok {
		return nil, status.New(status.NotSupported, "encodeable: no decoder registered for type")
	}
	buf := buffer.Wrap(body)
	return e.decode(builtin.NewReader(buf))
}

// Encode looks up typeId and runs its Encoder over value, returning the
// encoded structure body. Returns status.NotSupported if no type is
// registered under typeId.
func (r *Registry) Encode(typeId uatypes.NodeId, value any) ([]byte, error) {
	r.mu.RLock()
	e, ok := r.entries[typeId]
	r.mu.RUnlock()
	if !ok {
		return nil, status.New(status.NotSupported, "encodeable: no encoder registered for type")
	}
	buf := buffer.New(buffer.DefaultMaxSize)
	w := builtin.NewWriter(buf)
	if err := e.encode(w, value); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Has reports whether typeId has a registered entry.
func (r *Registry) Has(typeId uatypes.NodeId) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[typeId]
	return ok
}
