package amf

import (
	"time"

	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
	"github.com/amfcore/amf/wire"
)

// Cluster FSM, §4.5 (final paragraph).

const clusterStartupTimeout = 30 * time.Second

// clusterBootstrap implements "On sync_ready, the Cluster enters
// STARTING_COMPONENTS, issues start(app, None) to every Application, and
// arms a cluster_startup_timeout."
func (r *Reactor) clusterBootstrap(triggeringNode cluster.NodeHandle) {
	c := &r.Graph.Cluster
	c.ACSM = cluster.ClusterStartingComponents
	glog.V(2).Infof("amf: cluster -> STARTING_COMPONENTS (bootstrap node=%d)", triggeringNode)
	c.StartupTimer = r.armTimeout(clusterStartupTimeout, func() {
		r.Post(Event{Kind: EvClusterStartupTmo})
	})
	for _, appH := range c.Apps {
		r.appStart(appH, cluster.InvalidNode)
	}
}

// clusterAppStarted is the Application FSM's report-up destination when
// node_to_start==None: "On application_started for all apps, it cancels the
// timer and calls assign_workload(app, None) on each."
func (r *Reactor) clusterAppStarted(appH cluster.AppHandle) {
	c := &r.Graph.Cluster
	if c.ACSM != cluster.ClusterStartingComponents {
		return
	}
	if !allClusterAppsAtLeast(r.Graph, cluster.AppStarted) {
		return
	}
	r.Timers.Delete(c.StartupTimer)
	c.ACSM = cluster.ClusterStartingWorkload
	glog.V(2).Infof("amf: cluster -> STARTING_WORKLOAD")
	for _, a := range c.Apps {
		r.appAssignWorkload(a, cluster.InvalidNode)
	}
}

// clusterAppWorkloadAssigned: "on all apps reporting WORKLOAD_ASSIGNED, it
// enters STARTED" (P5).
func (r *Reactor) clusterAppWorkloadAssigned(appH cluster.AppHandle) {
	c := &r.Graph.Cluster
	if c.ACSM != cluster.ClusterStartingWorkload {
		return
	}
	if !allClusterAppsAtLeast(r.Graph, cluster.AppWorkloadAssigned) {
		return
	}
	c.ACSM = cluster.ClusterStarted
	glog.V(2).Infof("amf: cluster -> STARTED")
}

func allClusterAppsAtLeast(g *cluster.Graph, state cluster.AppState) bool {
	for _, appH := range g.Cluster.Apps {
		if g.App(appH).ACSM < state {
			return false
		}
	}
	return true
}

// clusterStartupTmo handles ClusterStartupTmo (§6.1): logged as a
// state-machine contract violation per §7 rather than a recoverable path,
// since the spec names no recovery action for a stalled bring-up.
func (r *Reactor) clusterStartupTmo() {
	glog.Errorf("amf: cluster startup timed out waiting for applications to start")
}

// syncDataChunk handles SyncDataChunk(payload) (§6.1, §6.3): the transport
// hands the reactor a raw sub-tree chunk; §6.3's sync order is one
// full-graph encoding per chunk, so decoding replaces the Graph's contents
// in place, preserving the pointer every closure in this Reactor already
// holds.
func (r *Reactor) syncDataChunk(payload []byte) {
	g, err := wire.DecodeGraph(payload)
	if err != nil {
		glog.Errorf("amf: sync data chunk (%d bytes) failed to decode: %v", len(payload), err)
		return
	}
	*r.Graph = *g
	glog.V(3).Infof("amf: applied sync data chunk, %d bytes", len(payload))
}
