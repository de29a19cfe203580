package beaconutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveFindsAnInterface(t *testing.T) {
	ep, err := Resolve("")
	require.NoError(t, err)
	assert.NotNil(t, ep.Addr)
	assert.NotNil(t, ep.Broadcast)
}

func TestResolveRejectsUnknownInterface(t *testing.T) {
	_, err := Resolve("definitely-not-a-real-iface-0")
	assert.Error(t, err)
}
