package amf

import (
	"github.com/golang/glog"

	"github.com/amfcore/amf/cluster"
)

// Application FSM, §4.5.

// appStart implements start(app, node).
func (r *Reactor) appStart(appH cluster.AppHandle, nodeH cluster.NodeHandle) {
	app := r.Graph.App(appH)
	switch app.ACSM {
	case cluster.AppUninstantiated, cluster.AppWorkloadAssigned:
		app.NodeToStart = nodeH
		app.ACSM = cluster.AppStartingSGs
		glog.V(2).Infof("amf: app %d -> STARTING_SGS (node=%d)", appH, nodeH)
		for _, sgh := range app.SGs {
			r.Dispatch(Event{Kind: EvSgStart, SG: sgh, Node: nodeH})
		}
	case cluster.AppStartingSGs:
		if app.NodeToStart == nodeH {
			for _, sgh := range app.SGs {
				r.Dispatch(Event{Kind: EvSgStart, SG: sgh, Node: nodeH})
			}
			return
		}
		r.deferAndArm(app, Event{Kind: EvAppStart, App: appH, Node: nodeH}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(app) })
		})
	case cluster.AppAssigningWorkload:
		r.deferAndArm(app, Event{Kind: EvAppStart, App: appH, Node: nodeH}, func() {
			r.armZeroDelay(func() { r.drainOneDeferred(app) })
		})
	}
}

// appSgStarted implements sg_started(app, sg, node).
func (r *Reactor) appSgStarted(appH cluster.AppHandle, sgH cluster.SGHandle, nodeH cluster.NodeHandle) {
	app := r.Graph.App(appH)
	if app.ACSM != cluster.AppStartingSGs {
		return
	}
	if anySUInstantiating(r.Graph, app) {
		return
	}
	app.ACSM = cluster.AppStarted
	glog.V(2).Infof("amf: app %d -> STARTED", appH)
	if app.NodeToStart == cluster.InvalidNode {
		r.clusterAppStarted(appH)
	} else {
		r.nodeAppStarted(app.NodeToStart, appH)
	}
	r.recallApp(app)
}

func anySUInstantiating(g *cluster.Graph, app *cluster.Application) bool {
	for _, sgh := range app.SGs {
		for _, suh := range g.SG(sgh).SUs {
			if g.SU(suh).Presence == cluster.PresenceInstantiating {
				return true
			}
		}
	}
	return false
}

// appAssignWorkload implements assign_workload(app, node).
func (r *Reactor) appAssignWorkload(appH cluster.AppHandle, nodeH cluster.NodeHandle) {
	app := r.Graph.App(appH)
	app.ACSM = cluster.AppAssigningWorkload
	any := false
	for _, sgh := range app.SGs {
		sg := r.Graph.SG(sgh)
		if len(sg.SUs) == 0 {
			continue
		}
		any = true
		r.Dispatch(Event{Kind: EvSgAssignSi, SG: sgh, Level: 0})
	}
	if !any {
		app.ACSM = cluster.AppWorkloadAssigned
		r.recallApp(app)
	}
}

// appSgAssigned implements sg_assigned(app, sg).
func (r *Reactor) appSgAssigned(appH cluster.AppHandle, sgH cluster.SGHandle) {
	app := r.Graph.App(appH)
	if app.ACSM != cluster.AppAssigningWorkload {
		return
	}
	for _, sgh := range app.SGs {
		if r.Graph.SG(sgh).ACSM != cluster.ACIdle {
			return
		}
	}
	app.ACSM = cluster.AppWorkloadAssigned
	glog.V(2).Infof("amf: app %d -> WORKLOAD_ASSIGNED", appH)
	if app.NodeToStart == cluster.InvalidNode {
		r.clusterAppWorkloadAssigned(appH)
	} else {
		r.nodeAppAssigned(app.NodeToStart, appH)
	}
	r.recallApp(app)
}

func (r *Reactor) recallApp(app *cluster.Application) {
	if len(app.DeferredEvents) == 0 {
		return
	}
	r.armZeroDelay(func() { r.drainOneDeferred(app) })
}
