// Package amf implements the AMF reactor: the six hierarchical state
// machines (Cluster, Application, ServiceGroup, ServiceUnit, Node, SI/CSI
// assignment) that react to events and drive component actuation (§2, §4).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package amf

import "github.com/amfcore/amf/cluster"

// EventKind tags the event envelope variants of §6.1.
type EventKind uint8

const (
	EvNodeSyncReady EventKind = iota
	EvNodeLeave
	EvNodeFailover
	EvNodeCompRestartReq
	EvNodeCompFailoverReq
	EvAppStart
	EvAppAssignWorkload
	EvAppSgStarted
	EvAppSgAssigned
	EvSgStart
	EvSgAssignSi
	EvSgFailoverSuReq
	EvSgFailoverNodeReq
	EvSgSuStateChanged
	EvSuCompStateChanged
	EvSuCompErrorSuspected
	EvCompInstantiateCompleted
	EvCompTerminateCompleted
	EvCompCleanupCompleted
	EvCompInstantiateTmo
	EvCompCleanupTmo
	EvHealthcheckTmo
	EvClusterStartupTmo
	EvSyncDataChunk
)

func (k EventKind) String() string {
	names := [...]string{
		"NodeSyncReady", "NodeLeave", "NodeFailover", "NodeCompRestartReq",
		"NodeCompFailoverReq", "AppStart", "AppAssignWorkload", "AppSgStarted",
		"AppSgAssigned", "SgStart", "SgAssignSi", "SgFailoverSuReq",
		"SgFailoverNodeReq", "SgSuStateChanged", "SuCompStateChanged",
		"SuCompErrorSuspected", "CompInstantiateCompleted", "CompTerminateCompleted",
		"CompCleanupCompleted", "CompInstantiateTmo",
		"CompCleanupTmo", "HealthcheckTmo", "ClusterStartupTmo", "SyncDataChunk",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// StateChangeKind distinguishes the two aggregation axes a component/SU
// report can carry (§4.3): presence vs. operational state.
type StateChangeKind uint8

const (
	ChangePresence StateChangeKind = iota
	ChangeOper
)

// Event is the single envelope type every handler receives; only the fields
// relevant to Kind are populated. This mirrors the spec's tagged-union event
// list (§6.1) without requiring a Go sum type.
type Event struct {
	Kind EventKind

	Node  cluster.NodeHandle
	App   cluster.AppHandle
	SG    cluster.SGHandle
	SU    cluster.SUHandle
	Comp  cluster.CompHandle
	Level int32

	ChangeKind  StateChangeKind
	PresenceVal cluster.PresenceState
	OperVal     cluster.OperState
	Recovery    cluster.RecommendedRecovery

	HCKey     string
	ExitCode  int
	Payload   []byte
}
