package encodeable

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opcua-go/stack/pkg/builtin"
	"github.com/opcua-go/stack/pkg/uatypes"
)

type point struct {
	X, Y int32
}

func TestRegisterEncodeDecodeRoundTrip(t *testing.T) {
	reg := NewRegistry()
	typeId := uatypes.NewNumericNodeId(1, 3000)

	reg.Register(typeId,
		func(r *builtin.Reader) (any, error) {
			x, err := r.GetInt32()
			if err != nil {
				return nil, err
			}
			y, err := r.GetInt32()
			if err != nil {
				return nil, err
			}
			return point{X: x, Y: y}, nil
		},
		func(w *builtin.Writer, v any) error {
			p := v.(point)
			if err := w.PutInt32(p.X); err != nil {
				return err
			}
			return w.PutInt32(p.Y)
		},
	)

	require.True(t, reg.Has(typeId))

	body, err := reg.Encode(typeId, point{X: 10, Y: -5})
	require.NoError(t, err)

	decoded, err := reg.Decode(typeId, body)
	require.NoError(t, err)
	require.Equal(t, point{X: 10, Y: -5}, decoded)
}

func TestDecodeUnregisteredType(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Decode(uatypes.NewNumericNodeId(0, 1), nil)
	require.Error(t, err)
}
