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
	"strconv"

	"github.com/alecthomas/participle"
)

// noinspection GoStructTag
type Command struct {
	Add      *AddCmd      `  @@` //nolint
	Counters *CountersCmd `| @@` //nolint
	Devices  *DevicesCmd  `| @@` //nolint
	Exit     *ExitCmd     `| @@` //nolint
	Go       *GoCmd       `| @@` //nolint
	Help     *HelpCmd     `| @@` //nolint
	Link     *LinkCmd     `| @@` //nolint
	LogLevel *LogLevelCmd `| @@` //nolint
	Lowpan   *LowpanCmd   `| @@` //nolint
	Messages *MessagesCmd `| @@` //nolint
	Nodes    *NodesCmd    `| @@` //nolint
	Now      *NowCmd      `| @@` //nolint
	Plr      *PlrCmd      `| @@` //nolint
	Queue    *QueueCmd    `| @@` //nolint
	Unlink   *UnlinkCmd   `| @@` //nolint
	Unwatch  *UnwatchCmd  `| @@` //nolint
	Watch    *WatchCmd    `| @@` //nolint
}

// noinspection GoStructTag
type NodeSelector struct {
	Id int `@Int` //nolint
}

func (ns *NodeSelector) String() string {
	return strconv.Itoa(ns.Id)
}

// noinspection GoStructTag
type GoCmd struct {
	Cmd      struct{}      `"go"`                                  //nolint
	Time     string        `@((Int|Float)["h"|"us"|"m"|"ms"|"s"])` //nolint
	Node     *NodeFlag     `[ @@ ]`                                //nolint
	MaybeOff *MaybeOffFlag `[ @@ ]`                                //nolint
}

// noinspection GoStructTag
type NodeFlag struct {
	Dummy struct{}     `"node"` //nolint
	Node  NodeSelector `@@`     //nolint
}

// noinspection GoStructTag
type MaybeOffFlag struct {
	Dummy struct{} `"maybeoff"` //nolint
}

// noinspection GoStructTag
type AddCmd struct {
	Cmd   struct{}       `"add"`   //nolint
	Nodes []NodeSelector `( @@ )+` //nolint
}

// noinspection GoStructTag
type NodesCmd struct {
	Cmd struct{} `"nodes"` //nolint
}

// noinspection GoStructTag
type NowCmd struct {
	Cmd struct{} `( "now" | "time" )` //nolint
}

// noinspection GoStructTag
type MessagesCmd struct {
	Cmd  struct{}     `"messages"` //nolint
	Node NodeSelector `@@`         //nolint
}

// noinspection GoStructTag
type CountersCmd struct {
	Cmd struct{} `"counters"` //nolint
}

// noinspection GoStructTag
type DevicesCmd struct {
	Cmd struct{} `"devices"` //nolint
}

// noinspection GoStructTag
type QueueCmd struct {
	Cmd struct{} `"queue"` //nolint
}

// noinspection GoStructTag
type LowpanCmd struct {
	Cmd    struct{} `"lowpan"` //nolint
	Cid    int      `@Int`     //nolint
	Prefix string   `@String`  //nolint
}

// noinspection GoStructTag
type LinkCmd struct {
	Cmd   struct{}      `"link"` //nolint
	NodeA *NodeSelector `[ @@`   //nolint
	NodeB *NodeSelector `  @@ ]` //nolint
}

// noinspection GoStructTag
type UnlinkCmd struct {
	Cmd   struct{}     `"unlink"` //nolint
	NodeA NodeSelector `@@`       //nolint
	NodeB NodeSelector `@@`       //nolint
}

// noinspection GoStructTag
type PlrCmd struct {
	Cmd struct{} `"plr"`             //nolint
	Val *float64 `[ (@Int|@Float) ]` //nolint
}

type LogLevelCmd struct {
	Cmd   struct{} `"log"`                                                                                 //nolint
	Level string   `[@( "trace"|"debug"|"info"|"note"|"warn"|"error"|"off"|"T"|"D"|"I"|"N"|"W"|"E"|"C" )]` //nolint
}

type WatchCmd struct {
	Cmd   struct{}       `"watch"`     //nolint
	Nodes []NodeSelector `[ ( @@ )+ ]` //nolint
}

// noinspection GoStructTag
type UnwatchCmd struct {
	Cmd   struct{}       `"unwatch"`   //nolint
	All   *AllFlag       `( @@`        //nolint
	Nodes []NodeSelector `| ( @@ )+ )` //nolint
}

// noinspection GoStructTag
type AllFlag struct {
	Dummy struct{} `"all"` //nolint
}

// noinspection GoStructTag
type HelpCmd struct {
	Cmd       struct{} `"help"`       //nolint
	HelpTopic string   `[ (@Ident) ]` //nolint
}

// noinspection GoStructTag
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

var (
	commandParser = participle.MustBuild(&Command{})
)

func parseBytes(b []byte, cmd *Command) error {
	return commandParser.ParseBytes(b, cmd)
}
