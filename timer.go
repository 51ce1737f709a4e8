// The MIT License (MIT)
//
// Copyright (c) 2023 ms-s
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package rudp

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// timerHandle cancels a pending timed function. Stop is idempotent and
// safe to call concurrently with the scheduler; a function stopped
// before the scheduler checks it is never executed; a Stop that races
// with that check can come too late, and the function then still runs.
type timerHandle struct {
	stopped int32
}

func (h *timerHandle) Stop() {
	if h != nil {
		atomic.StoreInt32(&h.stopped, 1)
	}
}

func (h *timerHandle) isStopped() bool {
	return atomic.LoadInt32(&h.stopped) == 1
}

type timedFunc struct {
	execute func()
	ts      time.Time
	h       *timerHandle
}

// a heap for sorted timed functions
type timedFuncHeap []timedFunc

func (h timedFuncHeap) Len() int            { return len(h) }
func (h timedFuncHeap) Less(i, j int) bool  { return h[i].ts.Before(h[j].ts) }
func (h timedFuncHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timedFuncHeap) Push(x interface{}) { *h = append(*h, x.(timedFunc)) }
func (h *timedFuncHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1].execute = nil // avoid memory leak
	*h = old[0 : n-1]
	return x
}

// timedSched runs one-shot functions at absolute deadlines on a single
// goroutine, so no two timed functions ever execute concurrently. A
// timed function may call Put to arm its successor.
type timedSched struct {
	pending  []timedFunc
	lock     sync.Mutex
	chNotify chan struct{}

	dieOnce sync.Once
	die     chan struct{}
}

func newTimedSched() *timedSched {
	ts := new(timedSched)
	ts.die = make(chan struct{})
	ts.chNotify = make(chan struct{}, 1)
	go ts.sched()
	return ts
}

func (ts *timedSched) sched() {
	var tasks timedFuncHeap
	var batch []timedFunc
	timer := time.NewTimer(0)
	drained := false
	for {
		select {
		case <-ts.chNotify:
			// shuttle the pending tasks out before touching them so a
			// task arming its successor does not deadlock on the lock
			ts.lock.Lock()
			batch = append(batch[:0], ts.pending...)
			for k := range ts.pending {
				ts.pending[k].execute = nil // avoid memory leak
			}
			ts.pending = ts.pending[:0]
			ts.lock.Unlock()

			now := time.Now()
			for k := range batch {
				task := batch[k]
				batch[k].execute = nil // avoid memory leak
				if now.After(task.ts) {
					// already delayed! execute immediately
					if !task.h.isStopped() {
						task.execute()
					}
				} else {
					heap.Push(&tasks, task)
				}
			}

			if tasks.Len() > 0 {
				// properly reset timer to trigger based on the top element
				stopped := timer.Stop()
				if !stopped && !drained {
					<-timer.C
				}
				timer.Reset(tasks[0].ts.Sub(now))
				drained = false
			}
		case now := <-timer.C:
			drained = true
			for tasks.Len() > 0 {
				if now.After(tasks[0].ts) {
					task := heap.Pop(&tasks).(timedFunc)
					if !task.h.isStopped() {
						task.execute()
					}
				} else {
					timer.Reset(tasks[0].ts.Sub(now))
					drained = false
					break
				}
			}
		case <-ts.die:
			return
		}
	}
}

// Put schedules 'f' for execution at 'deadline' and returns the handle
// to revoke it.
func (ts *timedSched) Put(f func(), deadline time.Time) *timerHandle {
	h := new(timerHandle)
	ts.lock.Lock()
	ts.pending = append(ts.pending, timedFunc{f, deadline, h})
	ts.lock.Unlock()

	select {
	case ts.chNotify <- struct{}{}:
	default:
	}
	return h
}

// Close terminates the scheduler; pending functions are dropped.
func (ts *timedSched) Close() { ts.dieOnce.Do(func() { close(ts.die) }) }
