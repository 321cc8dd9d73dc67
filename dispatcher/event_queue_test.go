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
	"testing"

	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/types"
	"github.com/stretchr/testify/assert"
)

func newTestEvent(ts uint64, dev types.DeviceKey) *event.Event {
	return &event.Event{Type: event.EventTypeAlarmFired, Timestamp: ts, Device: dev}
}

func TestEventQueueOrder(t *testing.T) {
	q := NewEventQueue()
	assert.Equal(t, types.Ever, q.NextTimestamp())

	stamps := []uint64{50, 10, 30, 10, 70, 0, 30}
	for i, ts := range stamps {
		q.Add(newTestEvent(ts, types.DeviceKey(i+1)))
	}
	assert.Equal(t, len(stamps), q.Len())
	assert.Equal(t, uint64(0), q.NextTimestamp())

	var last uint64
	var lastSeq uint64
	for q.Len() > 0 {
		evt := q.PopNext()
		assert.True(t, evt.Timestamp >= last)
		if evt.Timestamp == last {
			assert.True(t, evt.Seq > lastSeq)
		}
		assert.Equal(t, -1, evt.Index())
		last, lastSeq = evt.Timestamp, evt.Seq
	}
	assert.Equal(t, types.Ever, q.NextTimestamp())
}

func TestEventQueueFifoOnTies(t *testing.T) {
	q := NewEventQueue()
	var added []*event.Event
	for i := 0; i < 20; i++ {
		evt := newTestEvent(100, types.DeviceKey(i+1))
		added = append(added, evt)
		q.Add(evt)
	}
	for _, want := range added {
		assert.Same(t, want, q.PopNext())
	}
}

func TestEventQueueRemove(t *testing.T) {
	q := NewEventQueue()
	a := newTestEvent(10, 1)
	b := newTestEvent(20, 2)
	c := newTestEvent(30, 3)
	q.Add(a)
	q.Add(b)
	q.Add(c)

	q.Remove(a)
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, uint64(20), q.NextTimestamp())

	// removing an absent event is a no-op.
	q.Remove(a)
	q.Remove(newTestEvent(5, 4))
	assert.Equal(t, 2, q.Len())

	assert.Equal(t, []*event.Event{b, c}, q.Events())
	assert.Equal(t, 2, q.Len())

	assert.Same(t, b, q.PopNext())
	assert.Same(t, c, q.PopNext())
}

func TestEventQueueSeparateSequences(t *testing.T) {
	q1, q2 := NewEventQueue(), NewEventQueue()
	e1, e2 := newTestEvent(1, 1), newTestEvent(1, 1)
	q1.Add(e1)
	q2.Add(e2)
	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, uint64(1), e2.Seq)
}

func TestEventQueuePopEmpty(t *testing.T) {
	assert.Panics(t, func() {
		NewEventQueue().PopNext()
	})
}
