package cluster

// This file implements the new_<entity>(parent) constructors of §4.1: attach
// a zero-initialized entity to its parent and apply the §6.2 defaults
// verbatim. Only entity construction happens here; no FSM event ever fires
// as a side effect of these calls (§6.2: "Only entity construction is
// performed at load time; no FSM events fire").

// NewNode attaches a Node to the Cluster.
func (g *Graph) NewNode(name string) NodeHandle {
	n := &Node{
		Name:           name,
		Admin:          AdminUnlocked,
		Oper:           OperEnabled,
		ACSM:           NodeIdleL0,
		History:        NodeIdleL0,
		AutoRepair:     true,
		SUFailoverProb: -1,
		SUFailoverMax:  uint32Max(),
	}
	g.nodes = append(g.nodes, n)
	n.Handle = NodeHandle(len(g.nodes) - 1)
	g.Cluster.Nodes = append(g.Cluster.Nodes, n.Handle)
	return n.Handle
}

// NewApplication attaches an Application to the Cluster.
func (g *Graph) NewApplication(name string) AppHandle {
	a := &Application{
		Name:        name,
		Admin:       AdminUnlocked,
		ACSM:        AppUninstantiated,
		NodeToStart: invalidHandle,
	}
	g.apps = append(g.apps, a)
	a.Handle = AppHandle(len(g.apps) - 1)
	g.Cluster.Apps = append(g.Cluster.Apps, a.Handle)
	return a.Handle
}

// NewServiceGroup attaches an SG to an Application.
func (g *Graph) NewServiceGroup(appH AppHandle, name string) SGHandle {
	sg := &ServiceGroup{
		Name:               name,
		App:                appH,
		RedundancyModel:    "NplusM",
		PrefActiveSUs:      1,
		PrefStandbySUs:     1,
		PrefInserviceSUs:   uint32Max(),
		PrefAssignedSUs:    uint32Max(),
		MaxActiveSIsPerSU:  uint32Max(),
		MaxStandbySIsPerSU: uint32Max(),
		CompRestartProb:    -1,
		CompRestartMax:     uint32Max(),
		SURestartProb:      -1,
		SURestartMax:       uint32Max(),
		SUFailoverMax:      uint32Max(),
		AutoAdjustProb:     -1,
		AutoRepair:         true,
		Admin:              AdminUnlocked,
		ACSM:               ACIdle,
	}
	sg.Recovery.Reset()
	g.sgs = append(g.sgs, sg)
	sg.Handle = SGHandle(len(g.sgs) - 1)
	app := g.App(appH)
	app.SGs = append(app.SGs, sg.Handle)
	return sg.Handle
}

// NewServiceUnit attaches an SU to an SG.
func (g *Graph) NewServiceUnit(sgH SGHandle, name string) SUHandle {
	su := &ServiceUnit{
		Name:          name,
		SG:            sgH,
		Rank:          0,
		External:      false,
		PerSUFailover: true,
		Oper:          OperDisabled,
		Presence:      PresenceUninstantiated,
		Admin:         AdminUnlocked,
		HostingNode:   invalidHandle,
		RCSM:          IdleLevel0,
		CurInstLevel:  -1,
	}
	g.sus = append(g.sus, su)
	su.Handle = SUHandle(len(g.sus) - 1)
	sg := g.SG(sgH)
	sg.SUs = append(sg.SUs, su.Handle)
	return su.Handle
}

// NewComponent attaches a Component to an SU.
func (g *Graph) NewComponent(suH SUHandle, name string) CompHandle {
	c := &Component{
		Name:     name,
		SU:       suH,
		Category: CapSAAware,
		Oper:     OperDisabled,
		Presence: PresenceUninstantiated,
	}
	g.comps = append(g.comps, c)
	c.Handle = CompHandle(len(g.comps) - 1)
	su := g.SU(suH)
	su.Components = append(su.Components, c.Handle)
	return c.Handle
}

// NewHealthcheck attaches a Healthcheck to a Component.
func (g *Graph) NewHealthcheck(compH CompHandle, key string) HCHandle {
	hc := &Healthcheck{
		Key:    key,
		Comp:   compH,
		Active: false,
	}
	g.hcs = append(g.hcs, hc)
	hc.Handle = HCHandle(len(g.hcs) - 1)
	comp := g.Comp(compH)
	comp.Healthchecks = append(comp.Healthchecks, hc.Handle)
	return hc.Handle
}

// NewServiceInstance attaches an SI to an Application, protected by sgH.
func (g *Graph) NewServiceInstance(appH AppHandle, sgH SGHandle, name string) SIHandle {
	si := &ServiceInstance{
		Name:                   name,
		App:                    appH,
		ProtectingSG:           sgH,
		Rank:                   0,
		PrefActiveAssignments:  1,
		PrefStandbyAssignments: 1,
		Admin:                  AdminUnlocked,
	}
	g.sis = append(g.sis, si)
	si.Handle = SIHandle(len(g.sis) - 1)
	app := g.App(appH)
	app.SIs = append(app.SIs, si.Handle)
	return si.Handle
}

// NewCSI attaches a CSI to an SI.
func (g *Graph) NewCSI(siH SIHandle, name, csType string) CSIHandle {
	csi := &CSI{
		Name:   name,
		SI:     siH,
		CSType: csType,
		Attrs:  make(map[string]string),
	}
	g.csis = append(g.csis, csi)
	csi.Handle = CSIHandle(len(g.csis) - 1)
	si := g.SI(siH)
	si.CSIs = append(si.CSIs, csi.Handle)
	return csi.Handle
}
