package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyFromString(t *testing.T) {
	p, err := PolicyFromString("")
	require.NoError(t, err)
	assert.Equal(t, DropFrame, p.OnBackPressure("c1"))

	p, err = PolicyFromString("kick")
	require.NoError(t, err)
	assert.Equal(t, KickConn, p.OnBackPressure("c1"))

	_, err = PolicyFromString("retry")
	assert.Error(t, err)
}
