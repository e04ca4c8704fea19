package uatypes

import (
	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

// MaxDiagnosticInfoDepth bounds the InnerDiagnosticInfo chain a decode
// will follow. DiagnosticInfo is the one builtin type that can recurse
// into itself on the wire; without a depth guard a malicious or corrupt
// message carrying a self-referential chain would recurse until the
// decoder exhausts its stack.
const MaxDiagnosticInfoDepth = 100

const (
	diSymbolicId          byte = 0x01
	diNamespaceUri        byte = 0x02
	diLocalizedText       byte = 0x04
	diLocale              byte = 0x08
	diAdditionalInfo       byte = 0x10
	diInnerStatusCode     byte = 0x20
	diInnerDiagnosticInfo byte = 0x40
)

// DiagnosticInfo carries extended error detail alongside a StatusCode
// (spec §4.4.5), optionally nesting another DiagnosticInfo for a cause
// chain.
type DiagnosticInfo struct {
	HasSymbolicId       bool
	SymbolicId          int32
	HasNamespaceURI     bool
	NamespaceURI        int32
	HasLocalizedText    bool
	LocalizedText       int32
	HasLocale           bool
	Locale              int32
	HasAdditionalInfo   bool
	AdditionalInfo      string
	HasInnerStatusCode  bool
	InnerStatusCode     uint32
	HasInner            bool
	Inner               *DiagnosticInfo
}

// EncodeDiagnosticInfo writes di, recursing into di.Inner when present and
// rejecting a chain deeper than MaxDiagnosticInfoDepth with
// status.EncodingError.
func EncodeDiagnosticInfo(w *builtin.Writer, di DiagnosticInfo) error {
	return encodeDiagnosticInfo(w, di, 0)
}

func encodeDiagnosticInfo(w *builtin.Writer, di DiagnosticInfo, depth int) error {
	if depth > MaxDiagnosticInfoDepth {
		return status.New(status.EncodingError, "uatypes: diagnostic info inner-chain exceeds maximum depth")
	}
	var mask byte
	if di.HasSymbolicId {
		mask |= diSymbolicId
	}
	if di.HasNamespaceURI {
		mask |= diNamespaceUri
	}
	if di.HasLocalizedText {
		mask |= diLocalizedText
	}
	if di.HasLocale {
		mask |= diLocale
	}
	if di.HasAdditionalInfo {
		mask |= diAdditionalInfo
	}
	if di.HasInnerStatusCode {
		mask |= diInnerStatusCode
	}
	if di.HasInner {
		mask |= diInnerDiagnosticInfo
	}
	if err := w.PutByte(mask); err != nil {
		return err
	}

	if di.HasSymbolicId {
		if err := w.PutInt32(di.SymbolicId); err != nil {
			return err
		}
	}
	if di.HasNamespaceURI {
		if err := w.PutInt32(di.NamespaceURI); err != nil {
			return err
		}
	}
	if di.HasLocalizedText {
		if err := w.PutInt32(di.LocalizedText); err != nil {
			return err
		}
	}
	if di.HasLocale {
		if err := w.PutInt32(di.Locale); err != nil {
			return err
		}
	}
	if di.HasAdditionalInfo {
		if err := w.PutString(di.AdditionalInfo, false); err != nil {
			return err
		}
	}
	if di.HasInnerStatusCode {
		if err := w.PutUInt32(di.InnerStatusCode); err != nil {
			return err
		}
	}
	if di.HasInner {
		if err := encodeDiagnosticInfo(w, *di.Inner, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDiagnosticInfo reads a DiagnosticInfo, following at most
// MaxDiagnosticInfoDepth levels of InnerDiagnosticInfo before rejecting
// the message with status.OutOfMemory.
func DecodeDiagnosticInfo(r *builtin.Reader) (DiagnosticInfo, error) {
	return decodeDiagnosticInfo(r, 0)
}

func decodeDiagnosticInfo(r *builtin.Reader, depth int) (DiagnosticInfo, error) {
	if depth > MaxDiagnosticInfoDepth {
		return DiagnosticInfo{}, status.Wrap(status.OutOfMemory, "uatypes: diagnostic info inner-chain exceeds maximum depth", ErrDiagnosticInfoTooDeep)
	}

	mask, err := r.GetByte()
	if err != nil {
		return DiagnosticInfo{}, err
	}

	var di DiagnosticInfo
	if mask&diSymbolicId != 0 {
		v, err := r.GetInt32()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.SymbolicId, di.HasSymbolicId = v, true
	}
	if mask&diNamespaceUri != 0 {
		v, err := r.GetInt32()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.NamespaceURI, di.HasNamespaceURI = v, true
	}
	if mask&diLocalizedText != 0 {
		v, err := r.GetInt32()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.LocalizedText, di.HasLocalizedText = v, true
	}
	if mask&diLocale != 0 {
		v, err := r.GetInt32()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.Locale, di.HasLocale = v, true
	}
	if mask&diAdditionalInfo != 0 {
		s, _, err := r.GetString()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.AdditionalInfo, di.HasAdditionalInfo = s, true
	}
	if mask&diInnerStatusCode != 0 {
		v, err := r.GetUInt32()
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.InnerStatusCode, di.HasInnerStatusCode = v, true
	}
	if mask&diInnerDiagnosticInfo != 0 {
		inner, err := decodeDiagnosticInfo(r, depth+1)
		if err != nil {
			return DiagnosticInfo{}, err
		}
		di.Inner, di.HasInner = &inner, true
	}
	return di, nil
}
