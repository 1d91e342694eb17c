package cluster

import "math"

// Cluster is the singleton root (I8); its lifetime is the process lifetime.
type Cluster struct {
	Name  string
	ACSM  ClusterState
	Nodes []NodeHandle
	Apps  []AppHandle

	StartupTimer TimerHandle
}

// Graph is the single exclusively-owned object tree (§5 "Shared resources"):
// one arena per entity type, indexed by stable handles (Design Notes §9).
// There is never more than one Graph per process (I8).
type Graph struct {
	Cluster Cluster

	nodes []*Node
	apps  []*Application
	sgs   []*ServiceGroup
	sus   []*ServiceUnit
	comps []*Component
	hcs   []*Healthcheck
	sis   []*ServiceInstance
	csis  []*CSI
}

// TimerHandle is an opaque handle returned by timer_add (§5); zero value
// means "no timer armed".
type TimerHandle uint64

// NewGraph returns an empty Graph with the Cluster singleton in its initial
// UNINSTANTIATED state.
func NewGraph() *Graph {
	return &Graph{Cluster: Cluster{ACSM: ClusterUninstantiated}}
}

func uint32Max() uint32 { return math.MaxUint32 }

//
// arena accessors — the only place []*T is indexed directly
//

func (g *Graph) Node(h NodeHandle) *Node { return g.nodes[h] }
func (g *Graph) App(h AppHandle) *Application  { return g.apps[h] }
func (g *Graph) SG(h SGHandle) *ServiceGroup    { return g.sgs[h] }
func (g *Graph) SU(h SUHandle) *ServiceUnit     { return g.sus[h] }
func (g *Graph) Comp(h CompHandle) *Component   { return g.comps[h] }
func (g *Graph) HC(h HCHandle) *Healthcheck     { return g.hcs[h] }
func (g *Graph) SI(h SIHandle) *ServiceInstance { return g.sis[h] }
func (g *Graph) CSI(h CSIHandle) *CSI           { return g.csis[h] }

func (g *Graph) AllNodes() []*Node { return g.nodes }
func (g *Graph) AllApps() []*Application { return g.apps }
