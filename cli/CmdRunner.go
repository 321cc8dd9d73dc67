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

package cli

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/openthread/ot-vtime/dispatcher"
	"github.com/openthread/ot-vtime/logger"
	"github.com/openthread/ot-vtime/progctx"
)

const (
	Prompt = "> "
)

var errMaybeOffWithoutNode = errors.New("maybeoff requires a node")

type CommandContext struct {
	context.Context
	*Command
	rt     *CmdRunner
	err    error
	output io.Writer
}

func (cc *CommandContext) outputStr(msg string) {
	_, _ = fmt.Fprint(cc.output, msg)
}

func (cc *CommandContext) outputf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(cc.output, format, args...)
}

func (cc *CommandContext) errorf(format string, args ...interface{}) {
	cc.error(errors.Errorf(format, args...))
}

func (cc *CommandContext) error(err error) {
	if err != nil {
		if cc.err != nil { // if previous error, print it now and keep the last.
			cc.outputf("Error: %s\n", cc.err)
		}
		cc.err = err
	}
}

// Err returns the last error that occurred during command execution.
func (cc *CommandContext) Err() error {
	return cc.err
}

func (cc *CommandContext) outputItemsAsYaml(items interface{}) {
	var itemsYaml yaml.Node

	err := itemsYaml.Encode(items)
	logger.PanicIfError(err)

	for _, content := range itemsYaml.Content {
		content.Style = yaml.FlowStyle
	}

	data, err := yaml.Marshal(&itemsYaml)
	logger.PanicIfError(err)

	_, err = cc.output.Write(data)
	logger.PanicIfError(err)
}

// CmdRunner executes CLI commands against the engine. Commands from the console, the gRPC service and
// the auto-go loop are serialized by the runner lock.
type CmdRunner struct {
	lock sync.Mutex
	ctx  *progctx.ProgCtx
	d    *dispatcher.Dispatcher
	help Help
}

func NewCmdRunner(ctx *progctx.ProgCtx, d *dispatcher.Dispatcher) *CmdRunner {
	return &CmdRunner{
		ctx:  ctx,
		d:    d,
		help: newHelp(),
	}
}

// HandleCommand runs one command line and writes its output, terminated by "Done" or "Error: ...".
// It returns an error only when the program is exiting.
func (rt *CmdRunner) HandleCommand(cmdline string, output io.Writer) error {
	if rt.ctx.Err() == nil {
		cmd := Command{}
		if err := parseBytes([]byte(cmdline), &cmd); err != nil {
			if _, err := fmt.Fprintf(output, "Error: %v\n", err); err != nil {
				return err
			}
		} else {
			rt.execute(&cmd, output)
		}
	}
	return rt.ctx.Err()
}

func (rt *CmdRunner) GetPrompt() string {
	return Prompt
}

// Step advances the virtual time by duration, as the auto-go loop does.
func (rt *CmdRunner) Step(duration time.Duration) error {
	rt.lock.Lock()
	defer rt.lock.Unlock()
	if err := rt.ctx.Err(); err != nil {
		return err
	}
	return rt.d.Go(duration)
}

func (rt *CmdRunner) execute(cmd *Command, output io.Writer) {
	cc := &CommandContext{
		Context: rt.ctx,
		Command: cmd,
		rt:      rt,
		output:  output,
	}

	defer func() {
		if cc.Err() != nil {
			cc.outputf("Error: %v\n", cc.Err())
		} else {
			cc.outputf("Done\n")
		}
	}()

	defer func() {
		rerr := recover()

		if rerr != nil {
			if err, ok := rerr.(error); ok {
				cc.err = errors.Wrapf(err, "panic: %v", err)
			} else {
				cc.err = errors.Errorf("panic: %v", rerr)
			}
		}
	}()

	rt.lock.Lock()
	defer rt.lock.Unlock()
	if err := rt.ctx.Err(); err != nil {
		cc.error(err) // the engine may be stopped already.
		return
	}

	if cmd.Go != nil {
		rt.executeGo(cc, cmd.Go)
	} else if cmd.Add != nil {
		rt.executeAddNode(cc, cmd.Add)
	} else if cmd.Nodes != nil {
		rt.executeLsNodes(cc)
	} else if cmd.Now != nil {
		rt.executeNow(cc)
	} else if cmd.Messages != nil {
		rt.executeMessages(cc, cmd.Messages)
	} else if cmd.Counters != nil {
		rt.executeCounters(cc)
	} else if cmd.Devices != nil {
		rt.executeDevices(cc)
	} else if cmd.Queue != nil {
		rt.executeQueue(cc)
	} else if cmd.Lowpan != nil {
		rt.executeLowpan(cc, cmd.Lowpan)
	} else if cmd.Link != nil {
		rt.executeLink(cc, cmd.Link)
	} else if cmd.Unlink != nil {
		rt.d.Disconnect(cmd.Unlink.NodeA.Id, cmd.Unlink.NodeB.Id)
	} else if cmd.Plr != nil {
		rt.executePlr(cc, cmd.Plr)
	} else if cmd.LogLevel != nil {
		rt.executeLogLevel(cc, cmd.LogLevel)
	} else if cmd.Watch != nil {
		rt.executeWatch(cc, cmd.Watch)
	} else if cmd.Unwatch != nil {
		rt.executeUnwatch(cc, cmd.Unwatch)
	} else if cmd.Help != nil {
		rt.executeHelp(cc, cmd.Help)
	} else if cmd.Exit != nil {
		rt.ctx.Cancel("exit")
	} else {
		logger.Panicf("unimplemented command: %#v", cmd)
	}
}

func (rt *CmdRunner) executeGo(cc *CommandContext, cmd *GoCmd) {
	timeDurToGo, err := time.ParseDuration(cmd.Time)
	if err != nil {
		timeDurToGo, err = time.ParseDuration(cmd.Time + "s") // try parsing as seconds
		if err != nil {
			cc.errorf("could not parse time duration: %s", cmd.Time)
			return
		}
	}

	var opts []dispatcher.GoOption
	if cmd.Node != nil {
		opts = append(opts, dispatcher.WithNode(cmd.Node.Node.Id))
	}
	if cmd.MaybeOff != nil {
		if cmd.Node == nil {
			cc.error(errMaybeOffWithoutNode)
			return
		}
		opts = append(opts, dispatcher.WithMaybeOff())
	}
	cc.error(rt.d.Go(timeDurToGo, opts...))
}

func (rt *CmdRunner) executeAddNode(cc *CommandContext, cmd *AddCmd) {
	for _, sel := range getUniqueAndSorted(cmd.Nodes) {
		cc.error(rt.d.AddNode(sel.Id))
	}
}

func (rt *CmdRunner) executeLsNodes(cc *CommandContext) {
	for _, id := range rt.d.Nodes() {
		cc.outputf("%d\n", id)
	}
}

func (rt *CmdRunner) executeNow(cc *CommandContext) {
	cc.outputf("%d\n", rt.d.CurTime)
}

func (rt *CmdRunner) executeMessages(cc *CommandContext, cmd *MessagesCmd) {
	cc.outputItemsAsYaml(rt.d.GetMessagesSentBy(cmd.Node.Id).All())
}

func (rt *CmdRunner) executeCounters(cc *CommandContext) {
	countersVal := reflect.ValueOf(rt.d.Counters)
	countersTyp := reflect.TypeOf(rt.d.Counters)
	for i := 0; i < countersVal.NumField(); i++ {
		fname := countersTyp.Field(i).Name
		fval := countersVal.Field(i)
		cc.outputf("%-20s %v\n", fname, fval.Uint())
	}
}

func (rt *CmdRunner) executeDevices(cc *CommandContext) {
	cc.outputItemsAsYaml(rt.d.Devices())
}

func (rt *CmdRunner) executeQueue(cc *CommandContext) {
	for _, line := range rt.d.QueueDump() {
		cc.outputf("%s\n", line)
	}
}

func (rt *CmdRunner) executeLowpan(cc *CommandContext, cmd *LowpanCmd) {
	if cmd.Cid < 0 || cmd.Cid > 15 {
		cc.errorf("context id must be within 0-15, got %d", cmd.Cid)
		return
	}
	prefix, err := netip.ParsePrefix(strings.Trim(cmd.Prefix, "\""))
	if err != nil {
		cc.error(errors.Wrap(err, "lowpan"))
		return
	}
	rt.d.SetLowpanContext(uint8(cmd.Cid), prefix)
}

func (rt *CmdRunner) executeLink(cc *CommandContext, cmd *LinkCmd) {
	if cmd.NodeA == nil {
		for _, l := range rt.d.Links() {
			cc.outputf("%d-%d\n", l.A, l.B)
		}
		return
	}
	cc.error(rt.d.Connect(cmd.NodeA.Id, cmd.NodeB.Id))
}

func (rt *CmdRunner) executePlr(cc *CommandContext, cmd *PlrCmd) {
	if cmd.Val != nil {
		if err := rt.d.SetLossRatio(*cmd.Val); err != nil {
			cc.error(err)
			return
		}
	}
	cc.outputf("%v\n", rt.d.LossRatio())
}

func (rt *CmdRunner) executeLogLevel(cc *CommandContext, cmd *LogLevelCmd) {
	if cmd.Level == "" {
		cc.outputf("%v\n", logger.GetLevel())
		return
	}
	lv, err := logger.ParseLevelString(cmd.Level)
	if err != nil {
		cc.error(err)
		return
	}
	logger.SetLevel(lv)
}

func (rt *CmdRunner) executeWatch(cc *CommandContext, cmd *WatchCmd) {
	if len(cmd.Nodes) == 0 {
		watchedList := strings.Trim(fmt.Sprintf("%v", rt.d.WatchedNodes()), "[]")
		cc.outputf("%v\n", watchedList)
		return
	}
	for _, sel := range getUniqueAndSorted(cmd.Nodes) {
		rt.d.WatchNode(sel.Id)
	}
}

func (rt *CmdRunner) executeUnwatch(cc *CommandContext, cmd *UnwatchCmd) {
	nodes := cmd.Nodes
	if cmd.All != nil {
		for _, id := range rt.d.WatchedNodes() {
			nodes = append(nodes, NodeSelector{Id: id})
		}
	}
	for _, sel := range nodes {
		rt.d.UnwatchNode(sel.Id)
	}
}

func (rt *CmdRunner) executeHelp(cc *CommandContext, cmd *HelpCmd) {
	if len(cmd.HelpTopic) > 0 {
		cc.outputStr(rt.help.outputCommandHelp(cmd.HelpTopic))
	} else {
		cc.outputStr(rt.help.outputGeneralHelp())
	}
}
