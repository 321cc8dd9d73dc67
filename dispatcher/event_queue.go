// Copyright (c) 2024, The OTNS Authors.
// All rights reserved.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions are met:
// 1. Redistributions of source code must retain the above copyright
//    notice, this list of conditions and the following disclaimer.
// 2. Redistributions in binary form must reproduce the above copyright
//    notice, this list of conditions and the following disclaimer in the
//    documentation and/or other materials provided with the distribution.
// 3. Neither the name of the copyright holder nor the
//    names of its contributors may be used to endorse or promote products
//    derived from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
// AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
// IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
// ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
// LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
// CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
// SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
// CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
// ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
// POSSIBILITY OF SUCH DAMAGE.

package dispatcher

import (
	"container/heap"

	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

type eventHeap []*event.Event

func (eh eventHeap) Len() int {
	return len(eh)
}

func (eh eventHeap) Less(i, j int) bool {
	if eh[i].Timestamp != eh[j].Timestamp {
		return eh[i].Timestamp < eh[j].Timestamp
	}
	return eh[i].Seq < eh[j].Seq
}

func (eh eventHeap) Swap(i, j int) {
	a, b := eh[i], eh[j]
	if a.Index() != i || b.Index() != j {
		logger.Panicf("wrong index")
	}

	eh[i], eh[j] = b, a
	eh[i].SetIndex(i)
	eh[j].SetIndex(j)
}

func (eh *eventHeap) Push(x interface{}) {
	e := x.(*event.Event)
	*eh = append(*eh, e)
	e.SetIndex(len(*eh) - 1)
}

func (eh *eventHeap) Pop() (elem interface{}) {
	n := len(*eh)
	e := (*eh)[n-1]
	(*eh)[n-1] = nil
	*eh = (*eh)[:n-1]
	e.SetIndex(-1)
	return e
}

// EventQueue orders pending events by (Timestamp, Seq). Seq is assigned on Add, so events scheduled
// for the same time pop in insertion order.
type EventQueue struct {
	h       eventHeap
	nextSeq uint64
}

func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	heap.Init(&q.h)
	return q
}

// Add schedules evt at evt.Timestamp.
func (q *EventQueue) Add(evt *event.Event) {
	logger.AssertTrue(evt.Timestamp != types.InvalidTimestamp, "event without timestamp: %s", evt)
	logger.AssertTrue(evt.Index() < 0, "event already queued: %s", evt)
	q.nextSeq++
	evt.Seq = q.nextSeq
	heap.Push(&q.h, evt)
}

// Remove removes evt if it is in this queue.
func (q *EventQueue) Remove(evt *event.Event) {
	idx := evt.Index()
	if idx < 0 || idx >= len(q.h) || q.h[idx] != evt {
		return
	}
	heap.Remove(&q.h, idx)
}

// PopNext removes and returns the earliest event. The queue must not be empty.
func (q *EventQueue) PopNext() *event.Event {
	logger.AssertTrue(len(q.h) > 0, "pop from empty event queue")
	return heap.Pop(&q.h).(*event.Event)
}

// NextTimestamp returns the time of the earliest event, or types.Ever.
func (q *EventQueue) NextTimestamp() uint64 {
	if len(q.h) == 0 {
		return types.Ever
	}
	return q.h[0].Timestamp
}

func (q *EventQueue) Len() int {
	return len(q.h)
}

// Events returns the queued events in execution order, without changing the queue.
func (q *EventQueue) Events() []*event.Event {
	cp := make(eventHeap, len(q.h))
	copy(cp, q.h)
	sorted := make([]*event.Event, 0, len(cp))
	for len(cp) > 0 {
		best := 0
		for i := range cp {
			if cp.Less(i, best) {
				best = i
			}
		}
		sorted = append(sorted, cp[best])
		cp = append(cp[:best], cp[best+1:]...)
	}
	return sorted
}
