package securechannel

import (
	"sync"
	"time"
)

// ResponseCallback receives the decoded response body (or the
// ServiceFault body) for a completed request, or a non-nil err if the
// request failed before a response arrived (timeout, abort, or channel
// close). It runs on the Client's callback action queue.
type ResponseCallback func(body []byte, err error)

// pendingRequest tracks one in-flight request: its accumulated chunk
// body, deadline, and completion callback. Grounded on spec.md's Pending
// request glossary entry and the correlation law in §8 ("For every
// response received with a request-id r, the pending-request entry with
// id r is removed exactly once and its callback invoked at most once").
type pendingRequest struct {
	requestID uint32
	deadline  time.Time
	body      []byte
	callback  ResponseCallback
}

// pendingMap is the Client's request-id-keyed table of in-flight
// requests, guarded by its own mutex per spec §5's scoped-acquisition
// rule (acquired and released within a single function, never held
// across a suspension point).
type pendingMap struct {
	mu      sync.Mutex
	entries map[uint32]*pendingRequest
}

func newPendingMap() *pendingMap {
	return &pendingMap{entries: make(map[uint32]*pendingRequest)}
}

func (m *pendingMap) add(requestID uint32, timeout time.Duration, callback ResponseCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	m.entries[requestID] = &pendingRequest{requestID: requestID, deadline: deadline, callback: callback}
}

// has reports whether requestID names an open pending request, used to
// validate a final chunk; intermediate chunks are validated by
// appendChunk's result instead.
func (m *pendingMap) has(requestID uint32) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[requestID]
	return ok
}

// appendChunk accumulates an intermediate or final chunk's decrypted body
// onto the pending request, returning false if requestID is unknown.
func (m *pendingMap) appendChunk(requestID uint32, body []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[requestID]
	if !ok {
		return false
	}
	p.body = append(p.body, body...)
	return true
}

// complete removes the pending request and returns its accumulated body
// and callback, so the caller can invoke the callback exactly once,
// outside the lock.
func (m *pendingMap) complete(requestID uint32) (*pendingRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[requestID]
	if !ok {
		return nil, false
	}
	delete(m.entries, requestID)
	return p, true
}

// sweepExpired removes and returns every entry whose deadline has
// passed, for the external timer in spec §5 ("an external timer sweeps
// periodically and fails expired requests with Timeout").
func (m *pendingMap) sweepExpired(now time.Time) []*pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var expired []*pendingRequest
	for id, p := range m.entries {
		if !p.deadline.IsZero() && now.After(p.deadline) {
			expired = append(expired, p)
			delete(m.entries, id)
		}
	}
	return expired
}

// drainAll removes and returns every pending request, for channel close
// (spec §4.7: "Pending requests are all invoked with SecureChannelClosed
// on close").
func (m *pendingMap) drainAll() []*pendingRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*pendingRequest, 0, len(m.entries))
	for id, p := range m.entries {
		all = append(all, p)
		delete(m.entries, id)
	}
	return all
}
