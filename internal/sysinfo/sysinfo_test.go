package sysinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectIsStable(t *testing.T) {
	a := Collect()
	b := Collect()
	require.Equal(t, a, b)
	assert.NotEmpty(t, a.Platform)
	assert.Positive(t, a.Cores)
}

func TestFormatGB(t *testing.T) {
	assert.Equal(t, "0 GB", formatGB(512*1024*1024))
	assert.Equal(t, "16 GB", formatGB(16*1024*1024*1024))
}
