package securechannel

import (
	"time"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/uatypes"
)

// RequestType distinguishes issuing a new channel from renewing an
// existing one (Part 4 SecurityTokenRequestType).
type RequestType int32

const (
	RequestTypeIssue RequestType = iota
	RequestTypeRenew
)

// DiagnosticsMask mirrors Part 4's ReturnDiagnostics bit mask; only the
// one bit this client ever requests is named.
type DiagnosticsMask uint32

const DiagnosticsSymbolicID DiagnosticsMask = 0x0001

// RequestHeader prefixes every service request (Part 4 RequestHeader).
type RequestHeader struct {
	AuthenticationToken uatypes.NodeId
	Timestamp           time.Time
	RequestHandle       uint32
	ReturnDiagnostics   DiagnosticsMask
	AuditEntryID        string
	TimeoutHint         uint32
	AdditionalHeader    uatypes.ExtensionObject
}

func EncodeRequestHeader(w *builtin.Writer, h RequestHeader) error {
	if err := uatypes.EncodeNodeId(w, h.AuthenticationToken); err != nil {
		return err
	}
	if err := w.PutDateTime(h.Timestamp); err != nil {
		return err
	}
	if err := w.PutUInt32(h.RequestHandle); err != nil {
		return err
	}
	if err := w.PutUInt32(uint32(h.ReturnDiagnostics)); err != nil {
		return err
	}
	if err := w.PutString(h.AuditEntryID, h.AuditEntryID == ""); err != nil {
		return err
	}
	if err := w.PutUInt32(h.TimeoutHint); err != nil {
		return err
	}
	return uatypes.EncodeExtensionObject(w, h.AdditionalHeader)
}

func DecodeRequestHeader(r *builtin.Reader) (RequestHeader, error) {
	var h RequestHeader
	var err error
	if h.AuthenticationToken, err = uatypes.DecodeNodeId(r); err != nil {
		return h, err
	}
	if h.Timestamp, err = r.GetDateTime(); err != nil {
		return h, err
	}
	if h.RequestHandle, err = r.GetUInt32(); err != nil {
		return h, err
	}
	mask, err := r.GetUInt32()
	if err != nil {
		return h, err
	}
	h.ReturnDiagnostics = DiagnosticsMask(mask)
	auditEntryID, isNull, err := r.GetString()
	if err != nil {
		return h, err
	}
	if !isNull {
		h.AuditEntryID = auditEntryID
	}
	if h.TimeoutHint, err = r.GetUInt32(); err != nil {
		return h, err
	}
	if h.AdditionalHeader, err = uatypes.DecodeExtensionObject(r); err != nil {
		return h, err
	}
	return h, nil
}

// ResponseHeader prefixes every service response (Part 4 ResponseHeader).
type ResponseHeader struct {
	Timestamp        time.Time
	RequestHandle    uint32
	ServiceResult    uint32
	StringTable      []string
	AdditionalHeader uatypes.ExtensionObject
}

func EncodeResponseHeader(w *builtin.Writer, h ResponseHeader) error {
	if err := w.PutDateTime(h.Timestamp); err != nil {
		return err
	}
	if err := w.PutUInt32(h.RequestHandle); err != nil {
		return err
	}
	if err := w.PutUInt32(h.ServiceResult); err != nil {
		return err
	}
	// DiagnosticInfo is omitted: this client never asks for diagnostics
	// beyond SymbolicId, which the server reports through ServiceResult.
	if err := uatypes.EncodeArray(w, h.StringTable, h.StringTable == nil, func(w *builtin.Writer, s string) error {
		return w.PutString(s, false)
	}); err != nil {
		return err
	}
	return uatypes.EncodeExtensionObject(w, h.AdditionalHeader)
}

func DecodeResponseHeader(r *builtin.Reader) (ResponseHeader, error) {
	var h ResponseHeader
	var err error
	if h.Timestamp, err = r.GetDateTime(); err != nil {
		return h, err
	}
	if h.RequestHandle, err = r.GetUInt32(); err != nil {
		return h, err
	}
	if h.ServiceResult, err = r.GetUInt32(); err != nil {
		return h, err
	}
	h.StringTable, _, err = uatypes.DecodeArray(r, func(r *builtin.Reader) (string, error) {
		s, _, err := r.GetString()
		return s, err
	}, func(s *string) { *s = "" })
	if err != nil {
		return h, err
	}
	if h.AdditionalHeader, err = uatypes.DecodeExtensionObject(r); err != nil {
		return h, err
	}
	return h, nil
}

// SecurityToken identifies a negotiated symmetric key set (spec
// glossary: "a (channel-id, token-id, createdAt, revisedLifetime) tuple
// identifying a symmetric key set").
type SecurityToken struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime uint32
}

func encodeSecurityToken(w *builtin.Writer, t SecurityToken) error {
	if err := w.PutUInt32(t.ChannelID); err != nil {
		return err
	}
	if err := w.PutUInt32(t.TokenID); err != nil {
		return err
	}
	if err := w.PutDateTime(t.CreatedAt); err != nil {
		return err
	}
	return w.PutUInt32(t.RevisedLifetime)
}

func decodeSecurityToken(r *builtin.Reader) (SecurityToken, error) {
	var t SecurityToken
	var err error
	if t.ChannelID, err = r.GetUInt32(); err != nil {
		return t, err
	}
	if t.TokenID, err = r.GetUInt32(); err != nil {
		return t, err
	}
	if t.CreatedAt, err = r.GetDateTime(); err != nil {
		return t, err
	}
	if t.RevisedLifetime, err = r.GetUInt32(); err != nil {
		return t, err
	}
	return t, nil
}

// OpenSecureChannelRequest is the OPN service body (Part 4 §5.5.2).
type OpenSecureChannelRequest struct {
	Header               RequestHeader
	ClientProtocolVersion uint32
	RequestType           RequestType
	SecurityMode          SecurityMode
	ClientNonce           []byte
	RequestedLifetime     uint32
}

func EncodeOpenSecureChannelRequest(w *builtin.Writer, req OpenSecureChannelRequest) error {
	if err := EncodeRequestHeader(w, req.Header); err != nil {
		return err
	}
	if err := w.PutUInt32(req.ClientProtocolVersion); err != nil {
		return err
	}
	if err := w.PutUInt32(uint32(req.RequestType)); err != nil {
		return err
	}
	if err := w.PutUInt32(uint32(req.SecurityMode)); err != nil {
		return err
	}
	if err := w.PutByteString(req.ClientNonce, req.ClientNonce == nil); err != nil {
		return err
	}
	return w.PutUInt32(req.RequestedLifetime)
}

func DecodeOpenSecureChannelRequest(r *builtin.Reader) (OpenSecureChannelRequest, error) {
	var req OpenSecureChannelRequest
	var err error
	if req.Header, err = DecodeRequestHeader(r); err != nil {
		return req, err
	}
	if req.ClientProtocolVersion, err = r.GetUInt32(); err != nil {
		return req, err
	}
	requestType, err := r.GetUInt32()
	if err != nil {
		return req, err
	}
	req.RequestType = RequestType(requestType)
	mode, err := r.GetUInt32()
	if err != nil {
		return req, err
	}
	req.SecurityMode = SecurityMode(mode)
	nonce, isNull, err := r.GetByteString()
	if err != nil {
		return req, err
	}
	if !isNull {
		req.ClientNonce = nonce
	}
	if req.RequestedLifetime, err = r.GetUInt32(); err != nil {
		return req, err
	}
	return req, nil
}

// OpenSecureChannelResponse is the OPN service response (Part 4 §5.5.2).
type OpenSecureChannelResponse struct {
	Header                ResponseHeader
	ServerProtocolVersion uint32
	SecurityToken         SecurityToken
	ServerNonce           []byte
}

func EncodeOpenSecureChannelResponse(w *builtin.Writer, resp OpenSecureChannelResponse) error {
	if err := EncodeResponseHeader(w, resp.Header); err != nil {
		return err
	}
	if err := w.PutUInt32(resp.ServerProtocolVersion); err != nil {
		return err
	}
	if err := encodeSecurityToken(w, resp.SecurityToken); err != nil {
		return err
	}
	return w.PutByteString(resp.ServerNonce, resp.ServerNonce == nil)
}

func DecodeOpenSecureChannelResponse(r *builtin.Reader) (OpenSecureChannelResponse, error) {
	var resp OpenSecureChannelResponse
	var err error
	if resp.Header, err = DecodeResponseHeader(r); err != nil {
		return resp, err
	}
	if resp.ServerProtocolVersion, err = r.GetUInt32(); err != nil {
		return resp, err
	}
	if resp.SecurityToken, err = decodeSecurityToken(r); err != nil {
		return resp, err
	}
	nonce, isNull, err := r.GetByteString()
	if err != nil {
		return resp, err
	}
	if !isNull {
		resp.ServerNonce = nonce
	}
	return resp, nil
}

// CloseSecureChannelRequest is the CLO service body: just a header (Part
// 4 §5.5.3).
type CloseSecureChannelRequest struct {
	Header RequestHeader
}

func EncodeCloseSecureChannelRequest(w *builtin.Writer, req CloseSecureChannelRequest) error {
	return EncodeRequestHeader(w, req.Header)
}

func DecodeCloseSecureChannelRequest(r *builtin.Reader) (CloseSecureChannelRequest, error) {
	h, err := DecodeRequestHeader(r)
	return CloseSecureChannelRequest{Header: h}, err
}

// ServiceFault is the generic error response body a server sends instead
// of a request's expected response type (Part 4 §7.33). Only the header
// carries information this client acts on: ServiceResult.
type ServiceFault struct {
	Header ResponseHeader
}

func DecodeServiceFault(r *builtin.Reader) (ServiceFault, error) {
	h, err := DecodeResponseHeader(r)
	return ServiceFault{Header: h}, err
}
