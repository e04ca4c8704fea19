package uatypes

import (
	"time"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/status"
)

const (
	dvValuePresent            byte = 0x01
	dvStatusPresent           byte = 0x02
	dvSourceTimestampPresent  byte = 0x04
	dvServerTimestampPresent  byte = 0x08
	dvSourcePicoPresent       byte = 0x10
	dvServerPicoPresent       byte = 0x20
)

// DataValue pairs a Variant with its quality and timestamps (spec
// §4.4.4). Every field beyond Value is optional on the wire; the Has*
// flags record which were actually present, mirroring the encoding mask
// byte rather than relying on zero-value ambiguity (a StatusCode of Ok is
// indistinguishable from "absent" otherwise).
type DataValue struct {
	Value                  Variant
	HasValue               bool
	Status                 uint32
	HasStatus              bool
	SourceTimestamp        time.Time
	HasSourceTimestamp     bool
	SourcePicoseconds      uint16
	HasSourcePicoseconds   bool
	ServerTimestamp        time.Time
	HasServerTimestamp     bool
	ServerPicoseconds      uint16
	HasServerPicoseconds   bool
}

// EncodeDataValue writes dv's encoding mask followed by whichever fields
// the mask indicates are present.
func EncodeDataValue(w *builtin.Writer, dv DataValue) error {
	return encodeDataValueAt(w, dv, 0)
}

func encodeDataValueAt(w *builtin.Writer, dv DataValue, depth int) error {
	if depth > MaxVariantNestedLevel {
		return status.New(status.EncodingError, "uatypes: data value nesting exceeds max-variant-nested-level")
	}
	var mask byte
	if dv.HasValue {
		mask |= dvValuePresent
	}
	if dv.HasStatus {
		mask |= dvStatusPresent
	}
	if dv.HasSourceTimestamp {
		mask |= dvSourceTimestampPresent
	}
	if dv.HasServerTimestamp {
		mask |= dvServerTimestampPresent
	}
	if dv.HasSourcePicoseconds {
		mask |= dvSourcePicoPresent
	}
	if dv.HasServerPicoseconds {
		mask |= dvServerPicoPresent
	}
	if err := w.PutByte(mask); err != nil {
		return err
	}

	if dv.HasValue {
		if err := encodeVariantAt(w, dv.Value, depth); err != nil {
			return err
		}
	}
	if dv.HasStatus {
		if err := w.PutUInt32(dv.Status); err != nil {
			return err
		}
	}
	if dv.HasSourceTimestamp {
		if err := w.PutDateTime(dv.SourceTimestamp); err != nil {
			return err
		}
	}
	if dv.HasSourcePicoseconds {
		if err := w.PutUInt16(dv.SourcePicoseconds); err != nil {
			return err
		}
	}
	if dv.HasServerTimestamp {
		if err := w.PutDateTime(dv.ServerTimestamp); err != nil {
			return err
		}
	}
	if dv.HasServerPicoseconds {
		if err := w.PutUInt16(dv.ServerPicoseconds); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDataValue reads a DataValue, populating only the fields its
// encoding mask marks present.
func DecodeDataValue(r *builtin.Reader) (DataValue, error) {
	return decodeDataValueAt(r, 0)
}

func decodeDataValueAt(r *builtin.Reader, depth int) (DataValue, error) {
	if depth > MaxVariantNestedLevel {
		return DataValue{}, status.New(status.OutOfMemory, "uatypes: data value nesting exceeds max-variant-nested-level")
	}
	mask, err := r.GetByte()
	if err != nil {
		return DataValue{}, err
	}

	var dv DataValue
	if mask&dvValuePresent != 0 {
		v, err := decodeVariantAt(r, depth)
		if err != nil {
			return DataValue{}, err
		}
		dv.Value = v
		dv.HasValue = true
	}
	if mask&dvStatusPresent != 0 {
		s, err := r.GetUInt32()
		if err != nil {
			return DataValue{}, err
		}
		dv.Status = s
		dv.HasStatus = true
	}
	if mask&dvSourceTimestampPresent != 0 {
		t, err := r.GetDateTime()
		if err != nil {
			return DataValue{}, err
		}
		dv.SourceTimestamp = t
		dv.HasSourceTimestamp = true
	}
	if mask&dvSourcePicoPresent != 0 {
		p, err := r.GetUInt16()
		if err != nil {
			return DataValue{}, err
		}
		dv.SourcePicoseconds = p
		dv.HasSourcePicoseconds = true
	}
	if mask&dvServerTimestampPresent != 0 {
		t, err := r.GetDateTime()
		if err != nil {
			return DataValue{}, err
		}
		dv.ServerTimestamp = t
		dv.HasServerTimestamp = true
	}
	if mask&dvServerPicoPresent != 0 {
		p, err := r.GetUInt16()
		if err != nil {
			return DataValue{}, err
		}
		dv.ServerPicoseconds = p
		dv.HasServerPicoseconds = true
	}
	return dv, nil
}
