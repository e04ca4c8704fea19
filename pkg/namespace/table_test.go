package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opcua-go/stack/pkg/status"
)

func TestDefaultEntryPresent(t *testing.T) {
	tbl := NewTable()
	idx, code := tbl.GetIndex(DefaultNamespaceURI)
	require.Equal(t, status.Ok, code)
	require.Equal(t, DefaultNamespaceIndex, idx)
}

func TestRegisterIsIdempotent(t *testing.T) {
	tbl := NewTable()
	a, err := tbl.Register("urn:example:device")
	require.NoError(t, err)
	b, err := tbl.Register("urn:example:device")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, 2, tbl.Len())
}

func TestGetIndexEmptyNameResolvesToDefault(t *testing.T) {
	tbl := NewTable()
	idx, code := tbl.GetIndex("")
	require.Equal(t, status.Ok, code)
	require.Equal(t, DefaultNamespaceIndex, idx)
}

func TestGetIndexUnknownURI(t *testing.T) {
	tbl := NewTable()
	_, code := tbl.GetIndex("urn:unregistered")
	require.Equal(t, status.InvalidParameters, code)
}

func TestURIRoundTrip(t *testing.T) {
	tbl := NewTable()
	idx, err := tbl.Register("urn:example:device")
	require.NoError(t, err)
	uri, ok := tbl.URI(idx)
	require.True(t, ok)
	require.Equal(t, "urn:example:device", uri)

	_, ok = tbl.URI(999)
	require.False(t, ok)
}
