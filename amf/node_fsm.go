package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// Node FSM, §4.6. This implements the literal transition table. Events the
// table lists no transition for in a non-IDLE state are not deferred (Open
// Question (a) carves out exactly this exception to systematic deferral):
// they are logged at ERROR and dropped, and the process keeps running.

// nodeSyncReady implements the IDLE_L* + sync_ready row, with one added
// distinction grounded in §4.5's Cluster FSM: the very first sync_ready the
// process ever sees (Cluster still UNINSTANTIATED) drives the Cluster-wide
// bootstrap path (start(app, None) for every Application) rather than this
// node's own per-node join path, since scenario S1 expects Cluster to reach
// STARTED from that single event. Later nodes joining an already-STARTED
// cluster take the per-node path.
func (r *Reactor) nodeSyncReady(nodeH cluster.NodeHandle) {
	if r.Graph.Cluster.ACSM == cluster.ClusterUninstantiated {
		r.clusterBootstrap(nodeH)
		return
	}
	node := r.Graph.Node(nodeH)
	if !node.ACSM.IsIdle() && node.ACSM != cluster.NodeLeavingSpontaneouslyWaitingForNodeToJoin {
		glog.Errorf("amf: sync_ready delivered to node %d in non-idle state %s (fatal)", nodeH, node.ACSM)
		return
	}
	node.ACSM = cluster.NodeJoiningStartingApplications
	for _, appH := range r.Graph.Cluster.Apps {
		r.appStart(appH, nodeH)
	}
}

// nodeLeave implements the IDLE_L* + node_leave row.
func (r *Reactor) nodeLeave(nodeH cluster.NodeHandle) {
	node := r.Graph.Node(nodeH)
	if node.ACSM == cluster.NodeFailingGracefullyRebootingNode {
		node.ACSM = cluster.NodeIdleL0
		node.Oper = cluster.OperEnabled
		return
	}
	if !node.ACSM.IsIdle() {
		glog.Errorf("amf: node_leave delivered to node %d in non-idle state %s (fatal)", nodeH, node.ACSM)
		return
	}
	node.ACSM = cluster.NodeLeavingSpontaneouslyFailingOver
	for _, sgh := range sgsHostingNode(r.Graph, nodeH) {
		r.compsNodeLeft(sgh, nodeH)
		r.Dispatch(Event{Kind: EvSgFailoverNodeReq, SG: sgh, Node: nodeH})
	}
	r.checkNodeRecoveryComplete(nodeH)
}

// nodeFailover implements the IDLE_L* + failover row.
func (r *Reactor) nodeFailover(nodeH cluster.NodeHandle) {
	node := r.Graph.Node(nodeH)
	if !node.ACSM.IsIdle() {
		glog.Errorf("amf: failover delivered to node %d in non-idle state %s (fatal)", nodeH, node.ACSM)
		return
	}
	node.ACSM = cluster.NodeFailingGracefullyFailingOver
	nodeFailovers.WithLabelValues(node.Name).Inc()
	for _, sgh := range sgsHostingNode(r.Graph, nodeH) {
		r.Dispatch(Event{Kind: EvSgFailoverNodeReq, SG: sgh, Node: nodeH})
	}
	r.checkNodeRecoveryComplete(nodeH)
}

// checkNodeRecoveryComplete implements the "every SG scope Idle" guard on
// the LEAVING_SP_FAILING_OVER/FAILING_GRACE_FAILOVER rows, invoked every
// time a scoped SG returns to Idle (§4.6).
func (r *Reactor) checkNodeRecoveryComplete(nodeH cluster.NodeHandle) {
	node := r.Graph.Node(nodeH)
	if !recoveryDone(r.Graph, nodeH) {
		return
	}
	switch node.ACSM {
	case cluster.NodeLeavingSpontaneouslyFailingOver:
		node.ACSM = cluster.NodeLeavingSpontaneouslyWaitingForNodeToJoin
	case cluster.NodeFailingGracefullyFailingOver:
		node.ACSM = cluster.NodeFailingGracefullyRebootingNode
		r.Repairer.Repair(node.Name)
	}
}

func sgsHostingNode(g *cluster.Graph, nodeH cluster.NodeHandle) []cluster.SGHandle {
	seen := map[cluster.SGHandle]bool{}
	var out []cluster.SGHandle
	for _, appH := range g.Cluster.Apps {
		for _, sgh := range g.App(appH).SGs {
			sg := g.SG(sgh)
			for _, suh := range sg.SUs {
				if g.SU(suh).HostingNode == nodeH && !seen[sgh] {
					seen[sgh] = true
					out = append(out, sgh)
				}
			}
		}
	}
	return out
}

// compsNodeLeft marks every Component hosted on nodeH as abruptly gone
// (§4.6: "for each comp on node: comp.node_left"), a lighter-weight path
// than Terminate since the node, and thus its actuator, is already
// unreachable.
func (r *Reactor) compsNodeLeft(sgh cluster.SGHandle, nodeH cluster.NodeHandle) {
	sg := r.Graph.SG(sgh)
	for _, suh := range sg.SUs {
		su := r.Graph.SU(suh)
		if su.HostingNode != nodeH {
			continue
		}
		for _, ch := range su.Components {
			comp := r.Graph.Comp(ch)
			comp.Presence = cluster.PresenceUninstantiated
			comp.Oper = cluster.OperDisabled
		}
		su.Presence = cluster.PresenceUninstantiated
		su.Oper = cluster.OperDisabled
	}
}

// recoveryDone reports whether every SG with a scope touching nodeH has
// returned to Idle (the guard on the "every SG scope Idle" table rows).
func recoveryDone(g *cluster.Graph, nodeH cluster.NodeHandle) bool {
	for _, sgh := range sgsHostingNode(g, nodeH) {
		if g.SG(sgh).ACSM != cluster.ACIdle {
			return false
		}
	}
	return true
}

// nodeCompRestartReq implements the IDLE_L2/IDLE_L3 comp_restart_req rows.
// IDLE_L0 is folded into the IDLE_L2 branch: a node always starts its first
// escalation episode from IDLE_L2-equivalent handling since SU.RCSM only
// delegates here once its own restart ladder (§4.3) is exhausted.
func (r *Reactor) nodeCompRestartReq(nodeH cluster.NodeHandle, compH cluster.CompHandle) {
	node := r.Graph.Node(nodeH)
	comp := r.Graph.Comp(compH)
	su := r.Graph.SU(comp.SU)
	sg := r.Graph.SG(su.SG)

	switch node.ACSM {
	case cluster.NodeIdleL3:
		if su.SUFailoverCount < sg.SUFailoverMax {
			r.Dispatch(Event{Kind: EvSgFailoverSuReq, SG: su.SG, SU: su.Handle, Node: nodeH})
			su.SUFailoverCount++
			suFailovers.WithLabelValues(su.Name).Inc()
			return
		}
		node.ACSM = cluster.NodeIdleL0
		r.nodeFailover(nodeH)
	default:
		if su.RestartCount < sg.SURestartMax {
			node.ACSM = cluster.NodeIdleL2
			r.suRestart(su.Handle)
			return
		}
		node.ACSM = cluster.NodeIdleL3
		r.Dispatch(Event{Kind: EvSgFailoverSuReq, SG: su.SG, SU: su.Handle, Node: nodeH})
		su.SUFailoverCount++
		suFailovers.WithLabelValues(su.Name).Inc()
	}
}

// nodeCompFailoverReq implements the comp_failover_req rows.
func (r *Reactor) nodeCompFailoverReq(nodeH cluster.NodeHandle, compH cluster.CompHandle) {
	node := r.Graph.Node(nodeH)
	comp := r.Graph.Comp(compH)
	su := r.Graph.SU(comp.SU)
	sg := r.Graph.SG(su.SG)

	if node.ACSM == cluster.NodeIdleL3 && su.SUFailoverCount >= sg.SUFailoverMax {
		node.ACSM = cluster.NodeIdleL0
		r.nodeFailover(nodeH)
		return
	}
	if su.SUFailoverCount < sg.SUFailoverMax && su.PerSUFailover {
		su.SUFailoverCount++
		suFailovers.WithLabelValues(su.Name).Inc()
		r.Dispatch(Event{Kind: EvSgFailoverSuReq, SG: su.SG, SU: su.Handle, Node: nodeH})
	}
}

// suRestart is the SU-level restart node.comp_restart_req ultimately drives
// (§4.6's "su.restart" action): terminate and re-instantiate the whole SU.
func (r *Reactor) suRestart(suH cluster.SUHandle) {
	su := r.Graph.SU(suH)
	su.RestartCount++
	suRestarts.WithLabelValues(su.Name).Inc()
	r.Terminate(suH)
	su.Presence = cluster.PresenceUninstantiated
	r.Instantiate(suH)
}

// clusterAppStarted / clusterAppWorkloadAssigned / nodeAppStarted /
// nodeAppAssigned are the "report up" destinations the Application FSM
// calls once it reaches STARTED/WORKLOAD_ASSIGNED (§4.5); they live here
// because the Node/Cluster FSM state they drive belongs to this file and
// cluster_fsm.go.

func (r *Reactor) nodeAppStarted(nodeH cluster.NodeHandle, appH cluster.AppHandle) {
	node := r.Graph.Node(nodeH)
	if node.ACSM != cluster.NodeJoiningStartingApplications {
		return
	}
	if !allAppsAtLeast(r.Graph, nodeH, cluster.AppStarted) {
		return
	}
	node.ACSM = cluster.NodeJoiningAssigningWorkload
	for _, a := range r.Graph.Cluster.Apps {
		if r.Graph.App(a).NodeToStart == nodeH {
			r.appAssignWorkload(a, nodeH)
		}
	}
}

func (r *Reactor) nodeAppAssigned(nodeH cluster.NodeHandle, appH cluster.AppHandle) {
	node := r.Graph.Node(nodeH)
	if node.ACSM != cluster.NodeJoiningAssigningWorkload {
		return
	}
	if !allAppsAtLeast(r.Graph, nodeH, cluster.AppWorkloadAssigned) {
		return
	}
	node.ACSM = node.History
}

func allAppsAtLeast(g *cluster.Graph, nodeH cluster.NodeHandle, state cluster.AppState) bool {
	for _, appH := range g.Cluster.Apps {
		app := g.App(appH)
		if app.NodeToStart != nodeH {
			continue
		}
		if app.ACSM < state {
			return false
		}
	}
	return true
}
