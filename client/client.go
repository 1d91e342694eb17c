// Package client implements the ComponentClient contract (§6.5): the
// library-side IPC surface application components use to register and
// respond. It is an external collaborator per §1 (local healthcheck
// scheduler + library IPC); the core only sees the routed, DN-resolved
// calls below.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package client

import "github.com/amfcore/amf/cluster"

// Invocation correlates a response() call with the request that caused it.
type Invocation uint64

// Call is one IPC request from a connected component, already DN-resolved
// to a Component handle by the transport layer (§6.5: "The core routes
// these to the owning Component entity after DN lookup").
type Call struct {
	Comp cluster.CompHandle

	Kind CallKind

	// Healthcheck fields.
	HCKey string

	// hastate_get
	CSI cluster.CSIHandle

	// error_report
	Recovery cluster.RecommendedRecovery

	// response
	Invocation Invocation
	Err        error
}

type CallKind uint8

const (
	CallRegister CallKind = iota
	CallUnregister
	CallHealthcheckStart
	CallHealthcheckStop
	CallHealthcheckConfirm
	CallHAStateGet
	CallErrorReport
	CallResponse
)

// ComponentClient is the §6.5 trait, implemented by whatever local IPC
// transport the component library uses to reach the core (a Unix socket in
// the original implementation). Router is the single entry point the core
// registers to receive already-resolved Calls.
type ComponentClient interface {
	// Send delivers a core→component request (e.g. the confirmed HA-state
	// the component should assume) over the connection identified by conn.
	Send(conn interface{}, call Call) error
}

// Router dispatches an inbound Call to the owning Component entity, exactly
// as §6.5 describes ("The core routes these to the owning Component entity
// after DN lookup"). The amf package supplies the concrete handler.
type Router interface {
	Route(call Call)
}
