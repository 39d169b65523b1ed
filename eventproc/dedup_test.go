package eventproc

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/synapsenet/miner/chain"
)

func TestDedup_SuppressesRepeatedTriple(t *testing.T) {
	d := NewDedup(16)

	first := d.SeenAndMark(chain.EventTaskScheduled, 7, [32]byte{1})
	assert.False(t, first, "first sighting must not be suppressed")

	second := d.SeenAndMark(chain.EventTaskScheduled, 7, [32]byte{1})
	assert.True(t, second, "repeated (kind, task, block) triple must be suppressed")
}

func TestDedup_DistinctBlockHashNotSuppressed(t *testing.T) {
	d := NewDedup(16)

	d.SeenAndMark(chain.EventTaskStopRequested, 3, [32]byte{1})
	again := d.SeenAndMark(chain.EventTaskStopRequested, 3, [32]byte{2})

	assert.False(t, again, "same event/task but a different block hash is a distinct sighting")
}
