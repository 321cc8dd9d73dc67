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

// Package vtnode implements simulated node endpoints speaking the engine wire protocol. They keep a
// virtual clock driven by the engine, record what they receive, transmit scheduled radio frames and
// acknowledge frames addressed to them.
package vtnode

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"net"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/openthread/ot-vtime/dissectpkt/wpan"
	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/types"
)

// IdleDelay is the alarm delay of a node with nothing scheduled.
const IdleDelay uint64 = math.MaxUint64

const DefaultAckDelay uint64 = 192

type Config struct {
	Id types.NodeId
	// Radio makes this endpoint the radio half of a split node.
	Radio      bool
	BasePort   int
	Host       string
	UnixSocket string

	ShortAddr uint16
	AutoAck   bool
	AckDelay  uint64
	// TxDelay is the delay of transmitted frames, as on-air time.
	TxDelay uint64
}

// Received is an event delivered to the node.
type Received struct {
	Time   uint64
	Type   event.EventType
	Data   []byte
	TxDone bool
}

type scheduledTx struct {
	at    uint64
	frame []byte
}

type Node struct {
	cfg  Config
	key  types.DeviceKey
	conn net.Conn

	lock     sync.Mutex
	curTime  uint64
	received []Received
	pending  []scheduledTx
	inFlight [][]byte
	sent     int
	wg       sync.WaitGroup
}

func New(cfg Config) *Node {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.AckDelay == 0 {
		cfg.AckDelay = DefaultAckDelay
	}
	key := types.CoreKey(cfg.BasePort, cfg.Id)
	if cfg.Radio {
		key = types.RadioKey(cfg.BasePort, cfg.Id)
	}
	return &Node{cfg: cfg, key: key}
}

func (n *Node) String() string {
	return fmt.Sprintf("vtnode<%d>@%d", n.cfg.Id, int(n.key))
}

func (n *Node) Key() types.DeviceKey {
	return n.key
}

// Schedule makes the node transmit frame at virtual time at. It must be called before Start.
func (n *Node) Schedule(at uint64, frame []byte) {
	n.lock.Lock()
	defer n.lock.Unlock()
	n.pending = append(n.pending, scheduledTx{at: at, frame: frame})
	sort.SliceStable(n.pending, func(i, j int) bool { return n.pending[i].at < n.pending[j].at })
}

// Start connects to the engine and requests the first alarm.
func (n *Node) Start() error {
	var err error
	if n.cfg.UnixSocket != "" {
		n.conn, err = net.DialUnix("unixpacket", nil, &net.UnixAddr{Name: n.cfg.UnixSocket, Net: "unixpacket"})
	} else {
		n.conn, err = net.DialUDP("udp4",
			&net.UDPAddr{IP: net.ParseIP(n.cfg.Host), Port: int(n.key)},
			&net.UDPAddr{IP: net.ParseIP(n.cfg.Host), Port: n.cfg.BasePort})
	}
	if err != nil {
		return errors.Wrapf(err, "%s: connect", n)
	}

	n.lock.Lock()
	defer n.lock.Unlock()
	if n.cfg.UnixSocket != "" {
		if err = n.write(event.NewNodeInfo(n.cfg.Id, n.cfg.Radio)); err != nil {
			return err
		}
	}
	if err = n.sendAlarm(); err != nil {
		return err
	}

	n.wg.Add(1)
	go n.readLoop()
	return nil
}

func (n *Node) Stop() {
	if n.conn != nil {
		_ = n.conn.Close()
	}
	n.wg.Wait()
}

func (n *Node) readLoop() {
	defer n.wg.Done()
	buf := make([]byte, 65536)
	for {
		cnt, err := n.conn.Read(buf)
		if err != nil {
			logger.Debugf("%s: reader quit: %v", n, err)
			return
		}
		evt := &event.Event{}
		if evt.Deserialize(buf[:cnt]) == 0 {
			logger.Warnf("%s: incomplete frame", n)
			continue
		}
		n.lock.Lock()
		err = n.handle(evt)
		n.lock.Unlock()
		if err != nil {
			logger.Warnf("%s: %v", n, err)
			return
		}
	}
}

func (n *Node) handle(evt *event.Event) error {
	n.curTime += evt.Delay

	switch evt.Type {
	case event.EventTypeAlarmFired:
	case event.EventTypeRadioReceived:
		rcv := Received{Time: n.curTime, Type: evt.Type, Data: evt.Data}
		if i := n.inFlightIndex(evt.Data); i >= 0 {
			rcv.TxDone = true
			n.inFlight = append(n.inFlight[:i], n.inFlight[i+1:]...)
		}
		n.received = append(n.received, rcv)
		if !rcv.TxDone {
			if err := n.maybeAck(evt.Data); err != nil {
				return err
			}
		}
	default:
		n.received = append(n.received, Received{Time: n.curTime, Type: evt.Type, Data: evt.Data})
	}

	for len(n.pending) > 0 && n.pending[0].at <= n.curTime {
		tx := n.pending[0]
		n.pending = n.pending[1:]
		if err := n.transmit(n.cfg.TxDelay, tx.frame); err != nil {
			return err
		}
	}
	return n.sendAlarm()
}

func (n *Node) inFlightIndex(data []byte) int {
	for i, f := range n.inFlight {
		if bytes.Equal(f, data) {
			return i
		}
	}
	return -1
}

func (n *Node) maybeAck(data []byte) error {
	if !n.cfg.AutoAck {
		return nil
	}
	frame, err := wpan.Dissect(data)
	if err != nil || frame.IsAck() || !frame.FrameControl.AckRequest() {
		return nil
	}
	if frame.FrameControl.DestAddrMode() != wpan.AddrModeShort || frame.DstAddrShort != n.cfg.ShortAddr {
		return nil
	}
	return n.transmit(n.cfg.AckDelay, AckFrame(frame.Channel, frame.Seq))
}

func (n *Node) transmit(delay uint64, frame []byte) error {
	n.inFlight = append(n.inFlight, frame)
	return n.write(&event.Event{Delay: delay, Type: event.EventTypeRadioReceived, Data: frame})
}

func (n *Node) sendAlarm() error {
	delay := IdleDelay
	if len(n.pending) > 0 {
		delay = n.pending[0].at - n.curTime
	}
	return n.write(&event.Event{Delay: delay, Type: event.EventTypeAlarmFired})
}

func (n *Node) write(evt *event.Event) error {
	if _, err := n.conn.Write(evt.Serialize()); err != nil {
		return errors.Wrapf(err, "%s: write", n)
	}
	n.sent++
	return nil
}

// TransmitNow transmits frame at the current node time and goes back to sleep. The engine must be
// told to wait for the node, e.g. with a zero step driving it.
func (n *Node) TransmitNow(frame []byte) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	if err := n.transmit(n.cfg.TxDelay, frame); err != nil {
		return err
	}
	return n.sendAlarm()
}

// WriteHost sends data from this endpoint to its pair: UART output of a radio half, or a spinel
// write of a core half.
func (n *Node) WriteHost(data []byte) error {
	n.lock.Lock()
	defer n.lock.Unlock()
	tp := event.EventTypeRadioSpinelWrite
	if n.cfg.Radio {
		tp = event.EventTypeUartWrite
	}
	if err := n.write(&event.Event{Type: tp, Data: data}); err != nil {
		return err
	}
	return n.sendAlarm()
}

// PostCmd tells the engine that the node finished processing its command.
func (n *Node) PostCmd() error {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.write(&event.Event{Type: event.EventTypePostCmd, Data: []byte{byte(n.cfg.Id)}})
}

// Now returns the virtual time of the node clock.
func (n *Node) Now() uint64 {
	n.lock.Lock()
	defer n.lock.Unlock()
	return n.curTime
}

// Received returns a copy of everything delivered to the node so far.
func (n *Node) Received() []Received {
	n.lock.Lock()
	defer n.lock.Unlock()
	return append([]Received(nil), n.received...)
}

// Frames returns the radio frames received from other nodes, without transmit-done echoes.
func (n *Node) Frames() []Received {
	var frames []Received
	for _, r := range n.Received() {
		if r.Type == event.EventTypeRadioReceived && !r.TxDone {
			frames = append(frames, r)
		}
	}
	return frames
}

// DataFrame builds a radio payload: channel, 2006 data frame with PAN id compression, short
// destination and extended source, then a dummy FCS.
func DataFrame(channel uint8, seq uint8, panId uint16, dst uint16, src uint64, ackReq bool, payload []byte) []byte {
	fc := uint16(0xd841)
	if ackReq {
		fc |= 0x0020
	}
	b := []byte{channel}
	b = binary.LittleEndian.AppendUint16(b, fc)
	b = append(b, seq)
	b = binary.LittleEndian.AppendUint16(b, panId)
	b = binary.LittleEndian.AppendUint16(b, dst)
	b = binary.LittleEndian.AppendUint64(b, src)
	b = append(b, payload...)
	return append(b, 0, 0)
}

// AckFrame builds a radio payload holding an immediate ACK for seq.
func AckFrame(channel uint8, seq uint8) []byte {
	return []byte{channel, 0x02, 0x00, seq, 0, 0}
}
