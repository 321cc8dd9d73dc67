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
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/openthread/ot-vtime/dissectpkt/wpan"
	"github.com/openthread/ot-vtime/event"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/message"
	"github.com/openthread/ot-vtime/pcap"
	"github.com/openthread/ot-vtime/progctx"
	"github.com/openthread/ot-vtime/types"
)

type Counters struct {
	// Event counters
	AlarmEvents   uint64 `yaml:"alarm"`
	RadioEvents   uint64 `yaml:"radio"`
	UartEvents    uint64 `yaml:"uart"`
	SpinelEvents  uint64 `yaml:"spinel"`
	PostCmdEvents uint64 `yaml:"postcmd"`
	// Radio frame dispatching counters
	AckRouted     uint64 `yaml:"ack_routed"`
	Broadcast     uint64 `yaml:"broadcast"`
	LinkDropped   uint64 `yaml:"link_dropped"`
	DissectErrors uint64 `yaml:"dissect_errors"`
	DecodeDropped uint64 `yaml:"decode_dropped"`
}

// StallError is returned by Go when the simulation can not make progress: a node did not answer
// within the block timeout, or the transport failed while progress was required.
type StallError struct {
	Reason error
	Dump   string
}

func (e *StallError) Error() string {
	return fmt.Sprintf("simulation stalled: %v\n%s", e.Reason, e.Dump)
}

func (e *StallError) Unwrap() error {
	return e.Reason
}

// DeviceInfo is a snapshot of one device.
type DeviceInfo struct {
	Key       int    `yaml:"key"`
	NodeId    int    `yaml:"node"`
	Kind      string `yaml:"kind"`
	Time      uint64 `yaml:"time"`
	Awake     bool   `yaml:"awake,omitempty"`
	AlarmTime uint64 `yaml:"alarm,omitempty"`
}

type goOptions struct {
	nodeId   types.NodeId
	maybeOff bool
}

type GoOption func(o *goOptions)

// WithNode drives the given node: its core device is expected to answer a command.
func WithNode(id types.NodeId) GoOption {
	return func(o *goOptions) {
		o.nodeId = id
	}
}

// WithMaybeOff allows the node given by WithNode to be off: failing to reach it is not an error.
func WithMaybeOff() GoOption {
	return func(o *goOptions) {
		o.maybeOff = true
	}
}

// Dispatcher runs the virtual time of all simulated nodes. It is not safe for concurrent use: all
// methods must be called from one goroutine at a time.
type Dispatcher struct {
	ctx      *progctx.ProgCtx
	cfg      Config
	basePort int
	factory  message.Factory
	trans    transport
	recvChan chan recvItem

	queue     *EventQueue
	devices   *deviceRegistry
	ackRoutes *ackRoutes
	links     *linkModel
	pcap      pcap.File

	// CurTime is the virtual time in microseconds of the event being processed.
	CurTime      uint64
	pauseTime    uint64
	currentEvent *event.Event
	currentNode  types.NodeId
	maybeOff     map[types.NodeId]struct{}

	nodes         []types.NodeId
	commissioning map[types.NodeId][]*message.Message
	watchingNodes map[types.NodeId]struct{}
	Counters      Counters
	stopped       bool
}

// NewDispatcher opens the transport and the packet capture. factory may be nil, in which case no
// messages are recorded.
func NewDispatcher(ctx *progctx.ProgCtx, cfg *Config, factory message.Factory) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := newDispatcher(ctx, cfg, factory)

	if ft := pcap.ParseFrameTypeStr(cfg.PcapFrameType); ft != pcap.FrameTypeOff {
		pf, err := pcap.NewFile(cfg.PcapPath(), ft, cfg.PcapTimeRef)
		if err != nil {
			return nil, err
		}
		d.pcap = pf
	}

	var err error
	if cfg.UnixSocket != "" {
		d.trans, err = newUnixTransport(cfg.UnixSocket, d.basePort, cfg.SplitRadio)
	} else {
		d.trans, err = newUdpTransport(cfg.Host, d.basePort)
	}
	if err != nil {
		if d.pcap != nil {
			_ = d.pcap.Close()
		}
		return nil, err
	}
	d.trans.Start(d.recvChan)

	logger.Infof("dispatcher started: transport=%s, split=%v, pcap=%s", d.trans, cfg.SplitRadio, cfg.PcapFrameType)
	return d, nil
}

// newDispatcher builds the engine state, without transport and capture.
func newDispatcher(ctx *progctx.ProgCtx, cfg *Config, factory message.Factory) *Dispatcher {
	if ctx == nil {
		ctx = progctx.New(nil)
	}
	d := &Dispatcher{
		ctx:           ctx,
		cfg:           *cfg,
		basePort:      cfg.BasePort(),
		factory:       factory,
		recvChan:      make(chan recvItem, recvChanBufferSize),
		queue:         NewEventQueue(),
		devices:       newDeviceRegistry(cfg.BasePort(), cfg.SplitRadio),
		ackRoutes:     newAckRoutes(),
		links:         newLinkModel(cfg.LossStream),
		maybeOff:      map[types.NodeId]struct{}{},
		commissioning: map[types.NodeId][]*message.Message{},
		watchingNodes: map[types.NodeId]struct{}{},
	}

	for _, l := range cfg.Links {
		d.links.Connect(l.A, l.B)
	}
	d.links.SetLossRatio(cfg.LossRatio)
	for _, id := range cfg.Watch {
		d.WatchNode(id)
	}
	return d
}

// Stop closes the transport and the packet capture. It may be called more than once.
func (d *Dispatcher) Stop() {
	if d.stopped {
		return
	}
	d.stopped = true

	if err := d.trans.Close(); err != nil {
		logger.Warnf("close transport: %v", err)
	}
	if d.pcap != nil {
		if err := d.pcap.Close(); err != nil {
			logger.Errorf("failed to close pcap: %v", err)
		}
	}
	logger.Debugf("dispatcher stopped at %d us", d.CurTime)
}

// AddNode registers a node that will take part in the simulation.
func (d *Dispatcher) AddNode(id types.NodeId) error {
	if err := checkNodeId(id); err != nil {
		return err
	}
	if d.hasNode(id) {
		return errors.Errorf("node %d already added", id)
	}
	d.nodes = append(d.nodes, id)
	d.links.AddNode(id)
	return nil
}

func (d *Dispatcher) Nodes() []types.NodeId {
	return append([]types.NodeId(nil), d.nodes...)
}

func (d *Dispatcher) hasNode(id types.NodeId) bool {
	for _, n := range d.nodes {
		if n == id {
			return true
		}
	}
	return false
}

// SetLowpanContext passes a 6LoWPAN context to the message factory.
func (d *Dispatcher) SetLowpanContext(cid uint8, prefix netip.Prefix) {
	if d.factory != nil {
		d.factory.SetLowpanContext(cid, prefix)
	}
}

// AddCommissioningMessage buffers a message from the commissioning log of a node.
func (d *Dispatcher) AddCommissioningMessage(id types.NodeId, msg *message.Message) {
	d.commissioning[id] = append(d.commissioning[id], msg)
}

// GetMessagesSentBy returns and forgets the messages sent by node id since the last call.
func (d *Dispatcher) GetMessagesSentBy(id types.NodeId) *message.MessagesSet {
	set := &message.MessagesSet{}
	radioKey, coreKey := d.devices.RadioKey(id), d.devices.CoreKey(id)
	set.Messages = append(set.Messages, d.devices.DrainMessages(radioKey)...)
	if coreKey != radioKey {
		set.Messages = append(set.Messages, d.devices.DrainMessages(coreKey)...)
	}
	set.CommissioningMessages = d.commissioning[id]
	delete(d.commissioning, id)
	return set
}

// Now returns the virtual time in seconds.
func (d *Dispatcher) Now() float64 {
	return float64(d.CurTime) / 1e6
}

// Go advances the virtual time by duration. It returns once every device is quiescent at the new pause
// time, or with a *StallError.
func (d *Dispatcher) Go(duration time.Duration, opts ...GoOption) error {
	logger.AssertFalse(d.stopped, "dispatcher stopped")
	logger.AssertTrue(duration >= 0, "negative duration %v", duration)
	logger.AssertEqual(d.pauseTime, d.CurTime, "previous step did not reach its pause time")

	o := goOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	d.pauseTime += uint64(duration / time.Microsecond)
	if d.pauseTime > types.Ever {
		d.pauseTime = types.Ever
	}
	d.maybeOff = map[types.NodeId]struct{}{}
	if o.nodeId != types.InvalidNodeId {
		if d.cfg.SplitRadio {
			d.currentNode = o.nodeId
		}
		d.devices.SetAwake(d.devices.CoreKey(o.nodeId))
		if o.maybeOff {
			d.maybeOff[o.nodeId] = struct{}{}
		}
	}

	err := d.receiveEvents()
	for err == nil && d.queue.NextTimestamp() <= d.pauseTime {
		if err = d.processNextEvent(); err == nil {
			err = d.receiveEvents()
		}
	}
	if err == nil && duration > 0 {
		err = d.syncDevices()
	}
	if err != nil {
		// the step is abandoned; the next one starts from the time reached.
		d.pauseTime = d.CurTime
		d.currentEvent = nil
		d.currentNode = types.InvalidNodeId
		d.devices.ClearAwake()
	}

	if d.pcap != nil {
		if perr := d.pcap.Sync(); perr != nil {
			logger.Errorf("sync pcap: %v", perr)
		}
	}
	return err
}

func (d *Dispatcher) shouldBlock() bool {
	if d.currentEvent != nil || d.devices.AwakeCount() > 0 {
		return true
	}
	return d.currentNode != types.InvalidNodeId && d.queue.NextTimestamp() > d.pauseTime
}

// receiveEvents handles received events until the simulation is quiescent. While a device is expected
// to answer, it waits for up to the block timeout; otherwise it only takes what is already received.
func (d *Dispatcher) receiveEvents() error {
	for {
		if !d.shouldBlock() {
			select {
			case item := <-d.recvChan:
				if err := d.handleRecvItem(item); err != nil {
					return err
				}
				continue
			default:
				return nil
			}
		}

		timer := time.NewTimer(d.cfg.BlockTimeout)
		select {
		case item := <-d.recvChan:
			timer.Stop()
			if err := d.handleRecvItem(item); err != nil {
				return err
			}
		case <-timer.C:
			if d.releaseMaybeOffDevices() {
				continue
			}
			return d.stallError(errors.Errorf("no event received within %v", d.cfg.BlockTimeout))
		case <-d.ctx.Done():
			timer.Stop()
			return d.stallError(errors.Wrap(d.ctx.Err(), "cancelled while waiting for events"))
		}
	}
}

// releaseMaybeOffDevices puts awake maybe-off devices to sleep. It returns false if some other device
// or event is still expected to make progress.
func (d *Dispatcher) releaseMaybeOffDevices() bool {
	if len(d.maybeOff) == 0 {
		return false
	}
	for _, key := range d.devices.AwakeKeys() {
		id, _ := key.NodeIdOf(d.basePort)
		if !d.isMaybeOff(id) {
			return false
		}
	}
	if d.currentEvent != nil {
		id, _ := d.currentEvent.Device.NodeIdOf(d.basePort)
		if !d.isMaybeOff(id) {
			return false
		}
	}
	if d.currentNode != types.InvalidNodeId && !d.isMaybeOff(d.currentNode) {
		return false
	}
	logger.Warnf("maybe-off nodes %v did not answer", d.maybeOffIds())
	d.devices.ClearAwake()
	d.currentEvent = nil
	d.currentNode = types.InvalidNodeId
	return true
}

func (d *Dispatcher) isMaybeOff(id types.NodeId) bool {
	_, ok := d.maybeOff[id]
	return ok
}

func (d *Dispatcher) maybeOffIds() []types.NodeId {
	var ids []types.NodeId
	for id := range d.maybeOff {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (d *Dispatcher) handleRecvItem(item recvItem) error {
	if item.err != nil {
		if d.shouldBlock() {
			return d.stallError(item.err)
		}
		logger.Warnf("ignoring transport error while idle: %v", item.err)
		return nil
	}
	if item.evt == nil {
		d.removeDevice(item.key)
		return nil
	}
	d.handleRecvEvent(item.key, item.evt)
	return nil
}

// handleRecvEvent applies one event received from a device at the current time.
func (d *Dispatcher) handleRecvEvent(key types.DeviceKey, evt *event.Event) {
	dev, created := d.devices.Ensure(key, d.CurTime)
	if created {
		logger.Debugf("new device %s at %d us", dev, d.CurTime)
	}

	evt.Device = key
	if evt.Delay >= types.Ever-d.CurTime {
		evt.Timestamp = types.Ever
	} else {
		evt.Timestamp = d.CurTime + evt.Delay
	}
	if d.isWatching(dev.NodeId) {
		logger.Infof("%s <<< %s, cur time %d", dev, evt, d.CurTime)
	}

	switch evt.Type {
	case event.EventTypeAlarmFired:
		d.Counters.AlarmEvents += 1
		if dev.PendingAlarm != nil {
			d.queue.Remove(dev.PendingAlarm)
		}
		d.queue.Add(evt)
		dev.PendingAlarm = evt
		d.devices.SetSleeping(key)
		if d.currentEvent != nil && d.currentEvent.Device == key {
			d.currentEvent = nil
		}
	case event.EventTypeRadioReceived:
		d.Counters.RadioEvents += 1
		logger.AssertTrue(dev.IsRadio, "radio frame from non-radio device %s", dev)
		d.handleRadioFrame(dev, evt)
	case event.EventTypeRadioSpinelWrite:
		d.Counters.SpinelEvents += 1
		logger.AssertTrue(dev.IsCore, "spinel write from non-core device %s", dev)
		d.forwardToPaired(dev, evt, event.EventTypeUartWrite)
	case event.EventTypeUartWrite:
		d.Counters.UartEvents += 1
		logger.AssertTrue(dev.IsRadio, "uart write from non-radio device %s", dev)
		d.forwardToPaired(dev, evt, event.EventTypeRadioSpinelWrite)
	case event.EventTypePostCmd:
		d.Counters.PostCmdEvents += 1
		logger.AssertEqual(d.pauseTime, d.CurTime, "post-cmd from %s off schedule", dev)
		logger.AssertTrue(len(evt.Data) >= 1, "post-cmd without node id")
		if types.NodeId(evt.Data[0]) == d.currentNode {
			d.currentNode = types.InvalidNodeId
		}
	default:
		logger.Panicf("unexpected event from %s: %s", dev, evt)
	}
}

// handleRadioFrame fans a transmitted frame out to its receivers. ACKs go to the devices whose last
// transmission used the same sequence number; all other frames go to every other radio. A frame that
// can not be dissected is dropped; only its sender gets the transmit-done echo.
func (d *Dispatcher) handleRadioFrame(src *Device, evt *event.Event) {
	frame, err := wpan.Dissect(evt.Data)
	if err != nil {
		d.Counters.DissectErrors += 1
		logger.Warnf("%s: dropping radio frame %x: %v", src, evt.Data, err)
		d.transmitDone(src, evt)
		return
	}
	var dsts []*Device
	routed := false
	if frame.IsAck() {
		if keys, ok := d.ackRoutes.Lookup(frame.Seq); ok && len(keys) > 0 {
			routed = true
			for _, k := range keys {
				if dev := d.devices.Get(k); dev != nil && k != src.Key {
					dsts = append(dsts, dev)
				}
			}
		}
	}
	if routed {
		d.Counters.AckRouted += 1
	} else {
		d.Counters.Broadcast += 1
		for _, dev := range d.devices.Devices() {
			if dev.Key != src.Key && dev.IsRadio {
				dsts = append(dsts, dev)
			}
		}
	}

	for _, dst := range dsts {
		if !d.links.Reachable(src.NodeId, dst.NodeId) || d.links.Lost() {
			d.Counters.LinkDropped += 1
			continue
		}
		d.queue.Add(&event.Event{
			Type:      event.EventTypeRadioReceived,
			Data:      evt.Data,
			Timestamp: evt.Timestamp,
			Device:    dst.Key,
		})
		if d.isWatching(dst.NodeId) {
			logger.Infof("%s <<< radio frame from %s at %d", dst, src, evt.Timestamp)
		}
	}

	d.capture(src, evt)
	d.recordMessages(src, evt)
	d.transmitDone(src, evt)

	if !frame.IsAck() && !frame.IsBroadcast() {
		d.ackRoutes.OnNonAckTransmit(src.Key, frame.Seq)
	}
}

// transmitDone echoes the frame back to its sender, after all receivers, and waits for the sender.
func (d *Dispatcher) transmitDone(src *Device, evt *event.Event) {
	d.queue.Add(&event.Event{
		Type:      event.EventTypeRadioReceived,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
		Device:    src.Key,
	})
	d.devices.SetAwake(src.Key)
}

// forwardToPaired mirrors a UART or spinel write to the other endpoint of the same node.
func (d *Dispatcher) forwardToPaired(src *Device, evt *event.Event, tp event.EventType) {
	dstKey, ok := d.devices.PairedKey(src)
	if !ok {
		logger.Warnf("%s: dropping %s, no paired endpoint outside split mode", src, event.TypeName(evt.Type))
		return
	}
	d.queue.Add(&event.Event{
		Type:      tp,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
		Device:    dstKey,
	})
	d.devices.SetAwake(src.Key)
	if d.devices.Get(dstKey) == nil {
		d.devices.SetAwake(dstKey) // until it registers itself.
	}
}

func (d *Dispatcher) capture(src *Device, evt *event.Event) {
	if len(evt.Data) <= event.RadioMessagePsduOffset {
		return
	}
	if d.pcap != nil {
		err := d.pcap.AppendFrame(pcap.Frame{
			Timestamp: evt.Timestamp,
			Data:      evt.Data[event.RadioMessagePsduOffset:],
			Channel:   evt.Data[0],
		})
		if err != nil {
			logger.Errorf("write pcap failed: %+v", err)
		}
	}
	if d.cfg.DumpPackets {
		d.dumpPacket(src, evt)
	}
}

func (d *Dispatcher) recordMessages(src *Device, evt *event.Event) {
	if d.factory == nil {
		return
	}
	msgs, err := d.factory.Create(evt.Data)
	if errors.Is(err, message.ErrDropPacket) {
		return
	}
	if err != nil {
		d.Counters.DecodeDropped += 1
		logger.Warnf("%s: dropping undecodable frame: %v", src, err)
		return
	}
	for _, msg := range msgs {
		msg.Timestamp = evt.Timestamp
		d.devices.RecordMessage(src.Key, msg)
	}
}

func (d *Dispatcher) removeDevice(key types.DeviceKey) {
	dev := d.devices.Remove(key)
	if dev == nil {
		return
	}
	if dev.PendingAlarm != nil {
		d.queue.Remove(dev.PendingAlarm)
	}
	d.ackRoutes.Remove(key)

	// a closed connection answers nothing more.
	d.devices.SetSleeping(key)
	if d.currentEvent != nil && d.currentEvent.Device == key {
		d.currentEvent = nil
	}
	if dev.IsCore && dev.NodeId == d.currentNode {
		d.currentNode = types.InvalidNodeId
	}
	logger.Infof("device %s disconnected", dev)
}

// processNextEvent delivers the earliest queued event to its device.
func (d *Dispatcher) processNextEvent() error {
	evt := d.queue.PopNext()
	logger.AssertTrue(evt.Timestamp >= d.CurTime, "event %s before current time %d", evt, d.CurTime)
	logger.AssertTrue(evt.Timestamp <= d.pauseTime, "event %s after pause time %d", evt, d.pauseTime)
	d.CurTime = evt.Timestamp
	d.currentEvent = evt

	dev := d.devices.Get(evt.Device)
	if dev == nil {
		logger.Warnf("dropping %s for unknown device", evt)
		d.currentEvent = nil
		return nil
	}
	if evt.Type == event.EventTypeAlarmFired && dev.PendingAlarm == evt {
		dev.PendingAlarm = nil
	}

	elapsed := d.CurTime - dev.CurTime
	dev.CurTime = d.CurTime
	if d.isWatching(dev.NodeId) {
		logger.Infof("%s >>> %s, elapsed %d", dev, event.TypeName(evt.Type), elapsed)
	}

	sent, err := d.send(dev, &event.Event{Delay: elapsed, Type: evt.Type, Data: evt.Data})
	if !sent && d.currentEvent == evt {
		d.currentEvent = nil
	}
	return err
}

// syncDevices advances every device clock to the pause time.
func (d *Dispatcher) syncDevices() error {
	d.CurTime = d.pauseTime
	for _, dev := range d.devices.Devices() {
		if d.devices.Get(dev.Key) != dev {
			continue // disconnected meanwhile.
		}
		elapsed := d.CurTime - dev.CurTime
		if elapsed == 0 {
			continue
		}
		dev.CurTime = d.CurTime
		if d.isWatching(dev.NodeId) {
			logger.Infof("%s >>> advance time by %d to %d", dev, elapsed, d.CurTime)
		}

		sent, err := d.send(dev, &event.Event{Delay: elapsed, Type: event.EventTypeAlarmFired})
		if err != nil {
			return err
		}
		if sent {
			d.devices.SetAwake(dev.Key)
		}
		if err = d.receiveEvents(); err != nil {
			return err
		}
	}
	d.devices.ClearAwake()
	return nil
}

// send sends evt to dev. A failure is an error unless the node may be off, in which case the device
// is put to sleep and sent is false.
func (d *Dispatcher) send(dev *Device, evt *event.Event) (sent bool, err error) {
	if err = d.trans.Send(dev.Key, evt.Serialize()); err == nil {
		return true, nil
	}
	if d.isMaybeOff(dev.NodeId) {
		logger.Warnf("%s is off: %v", dev, err)
		d.devices.SetSleeping(dev.Key)
		return false, nil
	}
	return false, d.stallError(errors.Wrapf(err, "send to %s", dev))
}

func (d *Dispatcher) stallError(reason error) *StallError {
	return &StallError{Reason: reason, Dump: d.DebugDump()}
}

// DebugDump describes the engine state for diagnosing a stalled simulation.
func (d *Dispatcher) DebugDump() string {
	sb := &strings.Builder{}
	_, _ = fmt.Fprintf(sb, "current node: %d\n", d.currentNode)
	_, _ = fmt.Fprintf(sb, "awake devices: %v\n", d.devices.AwakeKeys())
	_, _ = fmt.Fprintf(sb, "current time: %d, pause time: %d\n", d.CurTime, d.pauseTime)
	if d.currentEvent != nil {
		_, _ = fmt.Fprintf(sb, "current event: %s\n", d.currentEvent)
	} else {
		_, _ = fmt.Fprintf(sb, "current event: none\n")
	}
	_, _ = fmt.Fprintf(sb, "queue (%d events):\n", d.queue.Len())
	for _, evt := range d.queue.Events() {
		_, _ = fmt.Fprintf(sb, "  %s\n", evt)
	}
	return sb.String()
}

// QueueDump returns the queued events in execution order.
func (d *Dispatcher) QueueDump() []string {
	var lines []string
	for _, evt := range d.queue.Events() {
		lines = append(lines, evt.String())
	}
	return lines
}

func (d *Dispatcher) Devices() []DeviceInfo {
	var infos []DeviceInfo
	for _, dev := range d.devices.Devices() {
		info := DeviceInfo{
			Key:    int(dev.Key),
			NodeId: dev.NodeId,
			Kind:   dev.Kind(),
			Time:   dev.CurTime,
			Awake:  d.devices.IsAwake(dev.Key),
		}
		if dev.PendingAlarm != nil {
			info.AlarmTime = dev.PendingAlarm.Timestamp
		}
		infos = append(infos, info)
	}
	return infos
}

func (d *Dispatcher) Connect(a, b types.NodeId) error {
	if err := checkNodeId(a); err != nil {
		return err
	}
	if err := checkNodeId(b); err != nil {
		return err
	}
	if a == b {
		return errors.Errorf("can not link node %d to itself", a)
	}
	d.links.Connect(a, b)
	return nil
}

func (d *Dispatcher) Disconnect(a, b types.NodeId) {
	d.links.Disconnect(a, b)
}

func (d *Dispatcher) Links() []Link {
	return d.links.Links()
}

func (d *Dispatcher) SetLossRatio(ratio float64) error {
	if ratio < 0 || ratio > 1 {
		return errors.Errorf("loss ratio must be within [0,1], got %v", ratio)
	}
	d.links.SetLossRatio(ratio)
	return nil
}

func (d *Dispatcher) LossRatio() float64 {
	return d.links.LossRatio()
}

func (d *Dispatcher) WatchNode(id types.NodeId) {
	d.watchingNodes[id] = struct{}{}
}

func (d *Dispatcher) UnwatchNode(id types.NodeId) {
	delete(d.watchingNodes, id)
}

func (d *Dispatcher) WatchedNodes() []types.NodeId {
	ids := make([]types.NodeId, 0, len(d.watchingNodes))
	for id := range d.watchingNodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (d *Dispatcher) isWatching(id types.NodeId) bool {
	_, ok := d.watchingNodes[id]
	return ok
}

func (d *Dispatcher) dumpPacket(src *Device, evt *event.Event) {
	sb := strings.Builder{}
	_, _ = fmt.Fprintf(&sb, "DUMP:PACKET:%d:%d:", evt.Timestamp, src.NodeId)
	for _, b := range evt.Data[event.RadioMessagePsduOffset:] {
		_, _ = fmt.Fprintf(&sb, "%02X", b)
	}
	_, _ = fmt.Fprintf(os.Stdout, "%s\n", sb.String())
}
