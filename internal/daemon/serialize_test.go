package daemon

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSerializeQueue(t *testing.T) {
	t.Run("runs calls sequentially and returns each result", func(t *testing.T) {
		q := NewSerializeQueue()
		defer q.Close()

		var order []int
		var mu sync.Mutex

		chans := make([]<-chan CallResult, 3)
		for i := 0; i < 3; i++ {
			i := i
			chans[i] = q.Enqueue(Call{Method: "m", RequestID: "r"}, func(call Call) CallResult {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				time.Sleep(10 * time.Millisecond)
				return CallResult{Value: i}
			})
		}

		for i, ch := range chans {
			res, ok := <-ch
			assert.True(t, ok)
			assert.Nil(t, res.Err)
			assert.Equal(t, i, res.Value)
		}

		mu.Lock()
		assert.Equal(t, []int{0, 1, 2}, order)
		mu.Unlock()
	})

	t.Run("cancel dequeues without executing", func(t *testing.T) {
		q := NewSerializeQueue()
		defer q.Close()

		executed := false
		id, _ := q.EnqueueCancellable(Call{Method: "m"}, func(call Call) CallResult {
			executed = true
			return CallResult{}
		})

		q.Cancel(id)
		time.Sleep(50 * time.Millisecond)
		assert.False(t, executed)
	})

	t.Run("enqueue after close returns a closed channel", func(t *testing.T) {
		q := NewSerializeQueue()
		q.Close()

		ch := q.Enqueue(Call{Method: "m"}, func(call Call) CallResult {
			return CallResult{}
		})
		_, ok := <-ch
		assert.False(t, ok)
	})
}
