package chain

import (
	"testing"

	gsrpctypes "github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/stretchr/testify/assert"
)

func TestTaskKindFromU8(t *testing.T) {
	cases := []struct {
		in   uint8
		want TaskKind
	}{
		{0, TaskKindOpenInferenceOnnx},
		{1, TaskKindOpenInferenceHuggingface},
		{2, TaskKindNeuroZK},
		{3, TaskKindFlashInferHuggingface},
		{99, TaskKindUnknown},
	}
	for _, c := range cases {
		got := taskKindFromU8(gsrpctypes.U8(c.in))
		assert.Equal(t, c.want, got, "task kind for byte %d", c.in)
	}
}

func TestDecodeEvents_MalformedBlobSurfacesDecodeError(t *testing.T) {
	g := &Gateway{meta: &gsrpctypes.Metadata{}}

	events, err := g.DecodeEvents(gsrpctypes.EventRecordsRaw{0xff, 0xff})

	assert.NoError(t, err, "decode failures are surfaced as a DecodedEvent, not a returned error")
	if assert.Len(t, events, 1) {
		assert.Equal(t, EventDecodeError, events[0].Kind)
		assert.Error(t, events[0].Err)
	}
}
