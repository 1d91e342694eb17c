// Package transport is the out-of-scope (§1) cluster-membership/messaging
// substrate the core consumes through an abstract interface: totally-ordered
// reliable broadcast of AMF protocol messages, plus node-join/leave
// notifications (§6.3).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package transport

// ProtocolVersion is fixed at 1 (§6.3).
const ProtocolVersion = 1

// MessageTag enumerates the on-message callback variants of §6.3.
type MessageTag uint8

const (
	TagComponentRegister MessageTag = iota
	TagComponentErrorReport
	TagComponentInstantiate
	TagClcCleanupCompleted
	TagHealthcheckTmo
	TagResponse
	TagSyncStart
	TagSyncData
	TagClusterStartTmo
	TagSyncRequest
	TagComponentInstantiateTmo
	TagComponentCleanupTmo
)

// Message is the on-wire envelope: a variant tag plus an opaque payload
// (already framed by the wire package for SYNC_DATA chunks).
type Message struct {
	Tag     MessageTag
	Payload []byte
}

// MembershipChange is delivered on every node-join/leave event: the ordered
// list of node IDs now in the cluster, partitioned into those that joined,
// left, or are continuing members (§6.3).
type MembershipChange struct {
	NodeIDs    []uint32
	Joined     []uint32
	Left       []uint32
	Continuing []uint32
}

// Mcast is the single outbound primitive (§6.3): totally-ordered reliable
// broadcast. The core never waits on its result; delivery confirmation
// comes back, if at all, as a later Message.
type Mcast interface {
	Mcast(msg Message) error
}

// MembershipWatcher delivers membership changes to a registered callback.
// A concrete implementation lives in the discovery package (k8s-backed) or
// can be the loopback fasthttp-based transport used in tests.
type MembershipWatcher interface {
	OnMembershipChange(cb func(MembershipChange))
}

// Substrate bundles everything the core needs from the out-of-scope
// transport layer (§1, §6.3).
type Substrate interface {
	Mcast
	MembershipWatcher
	OnMessage(cb func(Message))
}
