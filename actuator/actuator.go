// Package actuator implements the ComponentActuator contract (§6.4): the
// process-spawn/terminate/cleanup component-lifecycle executor the core
// calls through an abstract interface. It is an external collaborator per
// §1 — the core never shells out directly.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package actuator

import (
	"context"
	"os/exec"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/amfcore/amf/cluster"
)

// CallKind distinguishes which of the three CLC-CLI scripts a Result reports
// on, since the actuator has no other way to tell the reactor which call
// just finished.
type CallKind uint8

const (
	CallInstantiate CallKind = iota
	CallTerminate
	CallCleanup
)

// Result is delivered asynchronously via the owning Reactor's event channel;
// Actuator itself never blocks the caller (§2: "no handler ever blocks").
type Result struct {
	Comp     cluster.CompHandle
	Kind     CallKind
	ExitCode int
	Err      error
}

// ComponentActuator is the §6.4 trait. Instantiate/Terminate/Cleanup take a
// per-call timeout; ScriptActuator kills a script that outlives it and
// reports an ordinary Result whose Err is the context's deadline error. No
// *_TMO event is generated by the actuator, and SetHAState takes no timeout.
type ComponentActuator interface {
	Instantiate(comp cluster.CompHandle, args []string, tmo time.Duration)
	Terminate(comp cluster.CompHandle, args []string, tmo time.Duration)
	Cleanup(comp cluster.CompHandle, args []string, tmo time.Duration)
	SetHAState(comp cluster.CompHandle, csi cluster.CSIHandle, state cluster.HAState, confirm func())
}

// ScriptActuator runs the SA-Forum CLC-CLI instantiate/terminate/cleanup
// scripts as external processes, the out-of-scope "process-spawn/terminate/
// cleanup" executor named in §1. Results are posted back on Results.
type ScriptActuator struct {
	Results chan Result
}

func NewScriptActuator() *ScriptActuator {
	return &ScriptActuator{Results: make(chan Result, 256)}
}

func (s *ScriptActuator) Instantiate(comp cluster.CompHandle, args []string, tmo time.Duration) {
	s.run(comp, CallInstantiate, args, tmo)
}

func (s *ScriptActuator) Terminate(comp cluster.CompHandle, args []string, tmo time.Duration) {
	s.run(comp, CallTerminate, args, tmo)
}

func (s *ScriptActuator) Cleanup(comp cluster.CompHandle, args []string, tmo time.Duration) {
	s.run(comp, CallCleanup, args, tmo)
}

func (s *ScriptActuator) SetHAState(comp cluster.CompHandle, csi cluster.CSIHandle, state cluster.HAState, confirm func()) {
	// SA-aware components confirm HA-state transfer over IPC (client
	// package), not through the actuator; non-SA-aware components have no
	// programmatic confirmation and are treated as immediately confirmed.
	if confirm != nil {
		confirm()
	}
}

func (s *ScriptActuator) run(comp cluster.CompHandle, kind CallKind, args []string, tmo time.Duration) {
	if len(args) == 0 {
		s.Results <- Result{Comp: comp, Kind: kind, Err: errors.New("actuator: empty command")}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), tmo)
		defer cancel()
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		err := cmd.Run()
		exitCode := 0
		if err != nil {
			if ee, ok := err.(*exec.ExitError); ok {
				exitCode = ee.ExitCode()
			} else {
				glog.Warningf("actuator: %v failed to start: %v", args, err)
			}
		}
		s.Results <- Result{Comp: comp, Kind: kind, ExitCode: exitCode, Err: ctx.Err()}
	}()
}
