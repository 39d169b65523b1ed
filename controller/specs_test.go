package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synapsenet/miner/internal/config"
)

func TestResolveSpecs_StorageOverrideWins(t *testing.T) {
	override := uint64(500)
	static := config.WorkerStaticSpecs{Domain: "us-east", Latitude: 1.5, Longitude: -2.5, StorageGB: &override}

	specs, err := ResolveSpecs(t.TempDir(), static)
	require.NoError(t, err)

	assert.Equal(t, "us-east", specs.Domain)
	assert.Equal(t, 1.5, specs.Latitude)
	assert.Equal(t, uint64(500), specs.StorageGB)
}

func TestResolveSpecs_NoOverrideUsesHostDetection(t *testing.T) {
	specs, err := ResolveSpecs(t.TempDir(), config.WorkerStaticSpecs{Domain: "eu-west"})
	require.NoError(t, err)

	assert.Equal(t, "eu-west", specs.Domain)
	assert.Greater(t, specs.CPUCores, 0)
}
