package cluster

import "github.com/pkg/errors"

// ErrNotFound is the sentinel the spec calls "not found" (§4.1): the
// find-by-name lookups never error beyond this, and callers compare against
// it directly rather than inspecting wrapped context. FindByDN additionally
// reports malformed and unknown RDNs with its own errors.
var ErrNotFound = errors.New("not found")

// DN builds the canonical distinguished name of each entity (dn_make, §4.1).

func (g *Graph) NodeDN(h NodeHandle) string {
	return dnOf(rdnNode, g.Node(h).Name, "")
}

func (g *Graph) AppDN(h AppHandle) string {
	return dnOf(rdnApp, g.App(h).Name, "")
}

func (g *Graph) SGDN(h SGHandle) string {
	sg := g.SG(h)
	return dnOf(rdnSG, sg.Name, g.AppDN(sg.App))
}

func (g *Graph) SUDN(h SUHandle) string {
	su := g.SU(h)
	return dnOf(rdnSU, su.Name, g.SGDN(su.SG))
}

func (g *Graph) CompDN(h CompHandle) string {
	c := g.Comp(h)
	return dnOf(rdnComp, c.Name, g.SUDN(c.SU))
}

func (g *Graph) HCDN(h HCHandle) string {
	hc := g.HC(h)
	return dnOf(rdnHC, hc.Key, g.CompDN(hc.Comp))
}

func (g *Graph) SIDN(h SIHandle) string {
	si := g.SI(h)
	return dnOf(rdnSI, si.Name, g.AppDN(si.App))
}

func (g *Graph) CSIDN(h CSIHandle) string {
	csi := g.CSI(h)
	return dnOf(rdnCSI, csi.Name, g.SIDN(csi.SI))
}

//
// find(parent, name) — linear search by RDN (§4.1, I9: RDN unique among siblings)
//

func (g *Graph) FindNode(name string) (NodeHandle, error) {
	for _, h := range g.Cluster.Nodes {
		if g.Node(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

// FindNodeByID looks up a Node by its config-assigned node_id (§6.2), the
// integer identity transport.MembershipChange and discovery.Watcher report
// join/leave against.
func (g *Graph) FindNodeByID(nodeID uint32) (NodeHandle, bool) {
	for _, h := range g.Cluster.Nodes {
		if g.Node(h).NodeID == nodeID {
			return h, true
		}
	}
	return invalidHandle, false
}

func (g *Graph) FindApp(name string) (AppHandle, error) {
	for _, h := range g.Cluster.Apps {
		if g.App(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func (g *Graph) FindSG(appH AppHandle, name string) (SGHandle, error) {
	for _, h := range g.App(appH).SGs {
		if g.SG(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func (g *Graph) FindSU(sgH SGHandle, name string) (SUHandle, error) {
	for _, h := range g.SG(sgH).SUs {
		if g.SU(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func (g *Graph) FindComp(suH SUHandle, name string) (CompHandle, error) {
	for _, h := range g.SU(suH).Components {
		if g.Comp(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func (g *Graph) FindSI(appH AppHandle, name string) (SIHandle, error) {
	for _, h := range g.App(appH).SIs {
		if g.SI(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func (g *Graph) FindCSI(siH SIHandle, name string) (CSIHandle, error) {
	for _, h := range g.SI(siH).CSIs {
		if g.CSI(h).Name == name {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

// FindByDN resolves any DN to its entity kind and handle (find_by_dn, §4.1).
// It walks the RDN chain outside-in (the DN's own components are innermost
// first) so it must reverse before descending from the Cluster root.
type EntityKind uint8

const (
	KindCluster EntityKind = iota
	KindNode
	KindApp
	KindSG
	KindSU
	KindComp
	KindHC
	KindSI
	KindCSI
)

type Ref struct {
	Kind EntityKind
	// Only one of the following is valid, selected by Kind.
	Node NodeHandle
	App  AppHandle
	SG   SGHandle
	SU   SUHandle
	Comp CompHandle
	HC   HCHandle
	SI   SIHandle
	CSI  CSIHandle
}

func (g *Graph) FindByDN(dn string) (Ref, error) {
	if dn == "" {
		return Ref{Kind: KindCluster}, nil
	}
	parts := SplitDN(dn)
	// reverse to outside-in (root first)
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	var (
		ref     Ref
		appH    AppHandle   = invalidHandle
		sgH     SGHandle    = invalidHandle
		suH     SUHandle    = invalidHandle
		compH   CompHandle  = invalidHandle
		siH     SIHandle    = invalidHandle
	)

	for _, part := range parts {
		rdn, name, err := splitRDN(part)
		if err != nil {
			return Ref{}, err
		}
		switch rdn {
		case rdnNode:
			h, err := g.FindNode(name)
			if err != nil {
				return Ref{}, err
			}
			ref = Ref{Kind: KindNode, Node: h}
		case rdnApp:
			h, err := g.FindApp(name)
			if err != nil {
				return Ref{}, err
			}
			appH = h
			ref = Ref{Kind: KindApp, App: h}
		case rdnSG:
			h, err := g.FindSG(appH, name)
			if err != nil {
				return Ref{}, err
			}
			sgH = h
			ref = Ref{Kind: KindSG, SG: h}
		case rdnSU:
			h, err := g.FindSU(sgH, name)
			if err != nil {
				return Ref{}, err
			}
			suH = h
			ref = Ref{Kind: KindSU, SU: h}
		case rdnComp:
			h, err := g.FindComp(suH, name)
			if err != nil {
				return Ref{}, err
			}
			compH = h
			ref = Ref{Kind: KindComp, Comp: h}
		case rdnHC:
			h, err := g.FindHCByKey(compH, name)
			if err != nil {
				return Ref{}, err
			}
			ref = Ref{Kind: KindHC, HC: h}
		case rdnSI:
			h, err := g.FindSI(appH, name)
			if err != nil {
				return Ref{}, err
			}
			siH = h
			ref = Ref{Kind: KindSI, SI: h}
		case rdnCSI:
			h, err := g.FindCSI(siH, name)
			if err != nil {
				return Ref{}, err
			}
			ref = Ref{Kind: KindCSI, CSI: h}
		default:
			return Ref{}, errors.Errorf("find_by_dn: unknown RDN %q", rdn)
		}
	}
	return ref, nil
}

func (g *Graph) FindHCByKey(compH CompHandle, key string) (HCHandle, error) {
	for _, h := range g.Comp(compH).Healthchecks {
		if g.HC(h).Key == key {
			return h, nil
		}
	}
	return invalidHandle, ErrNotFound
}

func splitRDN(part string) (rdn, name string, err error) {
	for i := 0; i < len(part); i++ {
		if part[i] == '=' {
			return part[:i], part[i+1:], nil
		}
	}
	return "", "", errors.Errorf("malformed RDN %q", part)
}
