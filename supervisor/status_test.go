package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusCell_ProgressesIdleInitializingReady(t *testing.T) {
	c := NewStatusCell()

	status, _ := c.Get()
	assert.Equal(t, StatusIdle, status)

	c.Set(StatusInitializing, "")
	status, _ = c.Get()
	assert.Equal(t, StatusInitializing, status)

	c.Set(StatusReady, "")
	status, _ = c.Get()
	assert.Equal(t, StatusReady, status)
}

func TestStatusCell_WatchBroadcastsChange(t *testing.T) {
	c := NewStatusCell()
	watch := c.Watch()

	done := make(chan struct{})
	go func() {
		c.Set(StatusFailed, "setup exploded")
		close(done)
	}()

	select {
	case <-watch:
		status, msg := c.Get()
		assert.Equal(t, StatusFailed, status)
		assert.Equal(t, "setup exploded", msg)
	case <-time.After(time.Second):
		t.Fatal("watch channel never closed")
	}
	<-done
}
