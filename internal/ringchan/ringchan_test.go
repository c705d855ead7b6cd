package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain[T any](rc *RingChannel[T]) []T {
	rc.Close()
	var got []T
	for v := range rc.C() {
		got = append(got, v)
	}
	return got
}

func TestRingChannelDropsOldest(t *testing.T) {
	rc := New[int](3)
	for i := 1; i <= 5; i++ {
		rc.Send(i)
	}

	assert.Equal(t, Stats{Written: 5, Overwritten: 2}, rc.Stats())
	assert.Equal(t, []int{3, 4, 5}, drain(rc), "only the newest values MUST survive")
}

func TestRingChannelSendReportsDrop(t *testing.T) {
	rc := New[string](1)
	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))
	assert.Equal(t, []string{"b"}, drain(rc))
}

func TestRingChannelConsumerKeepsUp(t *testing.T) {
	rc := New[int](1)
	for i := 0; i < 3; i++ {
		assert.False(t, rc.Send(i), "MUST NOT drop when the consumer drains in time")
		assert.Equal(t, i, <-rc.C())
	}
	assert.Equal(t, Stats{Written: 3}, rc.Stats())
}

func TestRingChannelConcurrentProducers(t *testing.T) {
	rc := New[int](8)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				rc.Send(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, Stats{Written: 400, Overwritten: 400 - 8}, rc.Stats())
	assert.Len(t, drain(rc), 8)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
