package queue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueue_RunsTasksInSubmissionOrder(t *testing.T) {
	q := New(8)
	defer q.Stop()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		q.Submit(func() {
			order = append(order, i)
			if i == 4 {
				close(done)
			}
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tasks did not complete in time")
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestQueue_RunBlocksUntilTaskCompletes(t *testing.T) {
	q := New(8)
	defer q.Stop()

	var ran int32
	q.Run(func() { atomic.StoreInt32(&ran, 1) })
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestQueue_SubmitAfterStopIsANoOp(t *testing.T) {
	q := New(8)
	q.Stop()

	var ran int32
	q.Submit(func() { atomic.StoreInt32(&ran, 1) })
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ran))
}
