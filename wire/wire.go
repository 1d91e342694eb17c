// Package wire implements the AMF model's cross-node sync encoding (§4.1,
// §6.3), field by field with msgp's MessagePack writers and readers: every
// field is a type-tagged MessagePack value, strings carry a MessagePack
// length header, lists an explicit uint32 count, and multi-byte integers are
// big-endian. It is not a little-endian byte layout. It plays the same role
// cmn/jsp plays in the teacher repo (encode/decode for on-disk and on-wire
// persistence), with a binary encoding rather than JSON.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package wire

import (
	"bytes"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"

	"github.com/amfcore/amf/cluster"
)

// Signature and version prefix the encoded graph once, the way jsp.Save
// writes a signature + version + flags prefix before the payload.
const (
	signature = "amfsync"
	version   = 1
)

// EncodeGraph writes the Cluster record, then every Node, then every
// Application. Under each Application come its SGs (each followed by its
// SUs, their Components and their Healthchecks) and then its SIs (each
// followed by its SIAssignments and then its CSIs). A CSI's attributes are
// written before its CSIAssignments, not after them.
func EncodeGraph(g *cluster.Graph) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	writeString(w, signature)
	w.WriteUint32(version)

	w.WriteUint8(uint8(g.Cluster.ACSM))
	writeHandles32(w, toInts(g.Cluster.Nodes))
	writeHandles32(w, toInts(g.Cluster.Apps))

	for _, nh := range g.Cluster.Nodes {
		encodeNode(w, g, nh)
	}
	for _, ah := range g.Cluster.Apps {
		encodeApp(w, g, ah)
	}
	if err := w.Flush(); err != nil {
		return nil, errors.Wrap(err, "encode graph")
	}
	return buf.Bytes(), nil
}

func toInts[T ~int32](hs []T) []int32 {
	out := make([]int32, len(hs))
	for i, h := range hs {
		out[i] = int32(h)
	}
	return out
}

func writeString(w *msgp.Writer, s string) {
	_ = w.WriteString(s)
}

func writeHandles32(w *msgp.Writer, hs []int32) {
	_ = w.WriteUint32(uint32(len(hs)))
	for _, h := range hs {
		_ = w.WriteInt32(h)
	}
}

func encodeNode(w *msgp.Writer, g *cluster.Graph, h cluster.NodeHandle) {
	n := g.Node(h)
	writeString(w, n.Name)
	writeString(w, n.CLMName)
	_ = w.WriteUint32(n.NodeID)
	_ = w.WriteUint8(uint8(n.Admin))
	_ = w.WriteUint8(uint8(n.Oper))
	_ = w.WriteUint8(uint8(n.ACSM))
	_ = w.WriteUint8(uint8(n.History))
	_ = w.WriteBool(n.AutoRepair)
	_ = w.WriteInt32(n.SUFailoverProb)
	_ = w.WriteUint32(n.SUFailoverMax)
	writeString(w, n.CtrlNet.Hostname)
	writeString(w, n.CtrlNet.Port)
	// n.mu and any timer handle are transient; deliberately not written (P4).
}

func encodeApp(w *msgp.Writer, g *cluster.Graph, h cluster.AppHandle) {
	a := g.App(h)
	writeString(w, a.Name)
	_ = w.WriteUint8(uint8(a.Admin))
	_ = w.WriteUint8(uint8(a.ACSM))
	writeHandles32(w, toInts(a.SGs))
	writeHandles32(w, toInts(a.SIs))
	for _, sgh := range a.SGs {
		encodeSG(w, g, sgh)
	}
	for _, sih := range a.SIs {
		encodeSI(w, g, sih)
	}
	// NodeToStart and DeferredEvents are reactor-local transient state; not
	// part of the synced model (they're rebuilt from live events).
}

func encodeSG(w *msgp.Writer, g *cluster.Graph, h cluster.SGHandle) {
	sg := g.SG(h)
	writeString(w, sg.Name)
	writeString(w, sg.RedundancyModel)
	_ = w.WriteUint32(sg.PrefActiveSUs)
	_ = w.WriteUint32(sg.PrefStandbySUs)
	_ = w.WriteUint32(sg.PrefInserviceSUs)
	_ = w.WriteUint32(sg.PrefAssignedSUs)
	_ = w.WriteUint32(sg.MaxActiveSIsPerSU)
	_ = w.WriteUint32(sg.MaxStandbySIsPerSU)
	_ = w.WriteInt32(sg.CompRestartProb)
	_ = w.WriteUint32(sg.CompRestartMax)
	_ = w.WriteInt32(sg.SURestartProb)
	_ = w.WriteUint32(sg.SURestartMax)
	_ = w.WriteUint32(sg.SUFailoverMax)
	_ = w.WriteInt32(sg.AutoAdjustProb)
	_ = w.WriteBool(sg.AutoRepair)
	_ = w.WriteUint8(uint8(sg.Admin))
	_ = w.WriteUint8(uint8(sg.ACSM))
	writeHandles32(w, toInts(sg.SUs))
	for _, suh := range sg.SUs {
		encodeSU(w, g, suh)
	}
	// Recovery scope is transient reactor state, zeroed on the receiver (P4).
}

func encodeSU(w *msgp.Writer, g *cluster.Graph, h cluster.SUHandle) {
	su := g.SU(h)
	writeString(w, su.Name)
	_ = w.WriteUint32(su.Rank)
	_ = w.WriteBool(su.External)
	_ = w.WriteBool(su.PerSUFailover)
	_ = w.WriteUint8(uint8(su.Oper))
	_ = w.WriteUint8(uint8(su.Presence))
	_ = w.WriteUint8(uint8(su.Admin))
	writeString(w, hostingNodeName(g, su.HostingNode))
	_ = w.WriteUint32(su.RestartCount)
	_ = w.WriteUint8(uint8(su.RCSM))
	_ = w.WriteUint8(uint8(su.EscalationHist))
	_ = w.WriteUint32(su.SUFailoverCount)
	_ = w.WriteInt32(su.CurInstLevel)
	writeHandles32(w, toInts(su.Components))
	for _, ch := range su.Components {
		encodeComp(w, g, ch)
	}
}

func hostingNodeName(g *cluster.Graph, h cluster.NodeHandle) string {
	if int(h) < 0 {
		return ""
	}
	return g.Node(h).Name
}

func encodeComp(w *msgp.Writer, g *cluster.Graph, h cluster.CompHandle) {
	c := g.Comp(h)
	writeString(w, c.Name)
	_ = w.WriteUint8(uint8(c.Category))
	_ = w.WriteUint32(c.MaxActiveCSI)
	_ = w.WriteUint32(c.MaxStandbyCSI)
	writeStrings(w, c.InstantiateCmd)
	_ = w.WriteInt64(int64(c.InstantiateTmo))
	writeStrings(w, c.TerminateCmd)
	_ = w.WriteInt64(int64(c.TerminateTmo))
	writeStrings(w, c.CleanupCmd)
	_ = w.WriteInt64(int64(c.CleanupTmo))
	_ = w.WriteInt32(c.InstantiationLevel)
	_ = w.WriteUint8(uint8(c.RecommendedRecovery))
	_ = w.WriteBool(c.RestartDisabled)
	_ = w.WriteUint8(uint8(c.Oper))
	_ = w.WriteUint8(uint8(c.Presence))
	_ = w.WriteUint32(c.RestartCount)
	writeString(w, c.ProxyName)
	_ = w.WriteBool(c.ErrorSuspected)
	// IPCConn is a transient connection handle; zeroed on the receiver (P4).
	writeHandles32(w, toInts(c.Healthchecks))
	for _, hh := range c.Healthchecks {
		encodeHC(w, g, hh)
	}
}

func writeStrings(w *msgp.Writer, ss []string) {
	_ = w.WriteUint32(uint32(len(ss)))
	for _, s := range ss {
		writeString(w, s)
	}
}

func encodeHC(w *msgp.Writer, g *cluster.Graph, h cluster.HCHandle) {
	hc := g.HC(h)
	writeString(w, hc.Key)
	_ = w.WriteInt64(int64(hc.MaxDuration))
	_ = w.WriteInt64(int64(hc.Period))
	writeString(w, hc.InvocationType)
	_ = w.WriteUint8(uint8(hc.RecommendedRecovery))
	_ = w.WriteBool(hc.Active)
}

func encodeSI(w *msgp.Writer, g *cluster.Graph, h cluster.SIHandle) {
	si := g.SI(h)
	writeString(w, si.Name)
	writeString(w, sgName(g, si.ProtectingSG))
	_ = w.WriteUint32(si.Rank)
	_ = w.WriteUint32(si.PrefActiveAssignments)
	_ = w.WriteUint32(si.PrefStandbyAssignments)
	_ = w.WriteUint8(uint8(si.Admin))
	writeHandles32(w, toInts(si.CSIs))
	_ = w.WriteUint32(uint32(len(si.Assignments)))
	for _, a := range si.Assignments {
		encodeSIAssignment(w, g, a)
	}
	writeHandles32(w, toInts(si.Dependents))
	writeHandles32(w, toInts(si.DependsOn))
	for _, csih := range si.CSIs {
		encodeCSI(w, g, csih)
	}
}

func sgName(g *cluster.Graph, h cluster.SGHandle) string {
	if int(h) < 0 {
		return ""
	}
	return g.SG(h).Name
}

func encodeSIAssignment(w *msgp.Writer, g *cluster.Graph, a *cluster.SIAssignment) {
	writeString(w, a.ID)
	writeString(w, g.SUDN(a.SU))
	_ = w.WriteUint8(uint8(a.Current))
	_ = w.WriteUint8(uint8(a.Requested))
	// pendingCB is a reactor-local closure; never serialized (P4).
}

func encodeCSI(w *msgp.Writer, g *cluster.Graph, h cluster.CSIHandle) {
	csi := g.CSI(h)
	writeString(w, csi.Name)
	writeString(w, csi.CSType)
	writeHandles32(w, toInts(csi.DependsOn))
	_ = w.WriteUint32(uint32(len(csi.Attrs)))
	for k, v := range csi.Attrs {
		writeString(w, k)
		writeString(w, v)
	}
	_ = w.WriteUint32(uint32(len(csi.Assignments)))
	for _, a := range csi.Assignments {
		encodeCSIAssignment(w, g, a)
	}
}

func encodeCSIAssignment(w *msgp.Writer, g *cluster.Graph, a *cluster.CSIAssignment) {
	writeString(w, a.ID)
	writeString(w, g.CompDN(a.Comp))
	_ = w.WriteUint8(uint8(a.Current))
	_ = w.WriteUint8(uint8(a.Requested))
}

// DecodeGraph reconstructs a Graph from EncodeGraph's output. Deserialize is
// parent-aware by construction: each decode step attaches the new entity to
// the parent handle it was just given, exactly mirroring new_<entity>(parent)
// (§4.1).
func DecodeGraph(data []byte) (*cluster.Graph, error) {
	r := msgp.NewReader(bytes.NewReader(data))
	sig, err := r.ReadString()
	if err != nil {
		return nil, errors.Wrap(err, "decode graph: signature")
	}
	if sig != signature {
		return nil, errors.Errorf("decode graph: bad signature %q", sig)
	}
	ver, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	if ver != version {
		glog.Warningf("wire: decoding sync payload at version %d, expected %d", ver, version)
	}

	g := cluster.NewGraph()
	acsm, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	g.Cluster.ACSM = cluster.ClusterState(acsm)

	nNodes, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nNodes; i++ {
		if _, err := r.ReadInt32(); err != nil { // placeholder handle, recomputed below
			return nil, err
		}
	}
	nApps, err := readCount(r)
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nApps; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return nil, err
		}
	}

	for i := uint32(0); i < nNodes; i++ {
		if err := decodeNode(r, g); err != nil {
			return nil, errors.Wrap(err, "decode node")
		}
	}
	for i := uint32(0); i < nApps; i++ {
		if err := decodeApp(r, g); err != nil {
			return nil, errors.Wrap(err, "decode app")
		}
	}
	return g, nil
}

func readCount(r *msgp.Reader) (uint32, error) { return r.ReadUint32() }

func readString(r *msgp.Reader) (string, error) { return r.ReadString() }

func readStrings(r *msgp.Reader) ([]string, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func decodeNode(r *msgp.Reader, g *cluster.Graph) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewNode(name)
	n := g.Node(h)
	if n.CLMName, err = readString(r); err != nil {
		return err
	}
	if n.NodeID, err = r.ReadUint32(); err != nil {
		return err
	}
	admin, err := r.ReadUint8()
	if err != nil {
		return err
	}
	n.Admin = cluster.AdminState(admin)
	oper, err := r.ReadUint8()
	if err != nil {
		return err
	}
	n.Oper = cluster.OperState(oper)
	acsm, err := r.ReadUint8()
	if err != nil {
		return err
	}
	n.ACSM = cluster.NodeACSMState(acsm)
	hist, err := r.ReadUint8()
	if err != nil {
		return err
	}
	n.History = cluster.NodeACSMState(hist)
	if n.AutoRepair, err = r.ReadBool(); err != nil {
		return err
	}
	if n.SUFailoverProb, err = r.ReadInt32(); err != nil {
		return err
	}
	if n.SUFailoverMax, err = r.ReadUint32(); err != nil {
		return err
	}
	if n.CtrlNet.Hostname, err = readString(r); err != nil {
		return err
	}
	if n.CtrlNet.Port, err = readString(r); err != nil {
		return err
	}
	return nil
}

func decodeApp(r *msgp.Reader, g *cluster.Graph) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewApplication(name)
	a := g.App(h)
	admin, err := r.ReadUint8()
	if err != nil {
		return err
	}
	a.Admin = cluster.AdminState(admin)
	acsm, err := r.ReadUint8()
	if err != nil {
		return err
	}
	a.ACSM = cluster.AppState(acsm)

	nSGs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nSGs; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	nSIs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nSIs; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	for i := uint32(0); i < nSGs; i++ {
		if err := decodeSG(r, g, h); err != nil {
			return errors.Wrap(err, "decode sg")
		}
	}
	for i := uint32(0); i < nSIs; i++ {
		if err := decodeSI(r, g, h); err != nil {
			return errors.Wrap(err, "decode si")
		}
	}
	return nil
}

func decodeSG(r *msgp.Reader, g *cluster.Graph, appH cluster.AppHandle) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewServiceGroup(appH, name)
	sg := g.SG(h)
	if sg.RedundancyModel, err = readString(r); err != nil {
		return err
	}
	for _, p := range []*uint32{
		&sg.PrefActiveSUs, &sg.PrefStandbySUs, &sg.PrefInserviceSUs, &sg.PrefAssignedSUs,
		&sg.MaxActiveSIsPerSU, &sg.MaxStandbySIsPerSU,
	} {
		if *p, err = r.ReadUint32(); err != nil {
			return err
		}
	}
	if sg.CompRestartProb, err = r.ReadInt32(); err != nil {
		return err
	}
	if sg.CompRestartMax, err = r.ReadUint32(); err != nil {
		return err
	}
	if sg.SURestartProb, err = r.ReadInt32(); err != nil {
		return err
	}
	if sg.SURestartMax, err = r.ReadUint32(); err != nil {
		return err
	}
	if sg.SUFailoverMax, err = r.ReadUint32(); err != nil {
		return err
	}
	if sg.AutoAdjustProb, err = r.ReadInt32(); err != nil {
		return err
	}
	if sg.AutoRepair, err = r.ReadBool(); err != nil {
		return err
	}
	admin, err := r.ReadUint8()
	if err != nil {
		return err
	}
	sg.Admin = cluster.AdminState(admin)
	acsm, err := r.ReadUint8()
	if err != nil {
		return err
	}
	sg.ACSM = cluster.ACSMState(acsm)

	nSUs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nSUs; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	for i := uint32(0); i < nSUs; i++ {
		if err := decodeSU(r, g, h); err != nil {
			return errors.Wrap(err, "decode su")
		}
	}
	return nil
}

func decodeSU(r *msgp.Reader, g *cluster.Graph, sgH cluster.SGHandle) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewServiceUnit(sgH, name)
	su := g.SU(h)
	if su.Rank, err = r.ReadUint32(); err != nil {
		return err
	}
	if su.External, err = r.ReadBool(); err != nil {
		return err
	}
	if su.PerSUFailover, err = r.ReadBool(); err != nil {
		return err
	}
	oper, err := r.ReadUint8()
	if err != nil {
		return err
	}
	su.Oper = cluster.OperState(oper)
	pres, err := r.ReadUint8()
	if err != nil {
		return err
	}
	su.Presence = cluster.PresenceState(pres)
	admin, err := r.ReadUint8()
	if err != nil {
		return err
	}
	su.Admin = cluster.AdminState(admin)

	hostName, err := readString(r)
	if err != nil {
		return err
	}
	if hostName != "" {
		if nh, err := g.FindNode(hostName); err == nil {
			su.HostingNode = nh
		}
	}
	if su.RestartCount, err = r.ReadUint32(); err != nil {
		return err
	}
	rcsm, err := r.ReadUint8()
	if err != nil {
		return err
	}
	su.RCSM = cluster.RCSMState(rcsm)
	escHist, err := r.ReadUint8()
	if err != nil {
		return err
	}
	su.EscalationHist = cluster.RCSMState(escHist)
	if su.SUFailoverCount, err = r.ReadUint32(); err != nil {
		return err
	}
	if su.CurInstLevel, err = r.ReadInt32(); err != nil {
		return err
	}

	nComps, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nComps; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	for i := uint32(0); i < nComps; i++ {
		if err := decodeComp(r, g, h); err != nil {
			return errors.Wrap(err, "decode comp")
		}
	}
	return nil
}

func decodeComp(r *msgp.Reader, g *cluster.Graph, suH cluster.SUHandle) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewComponent(suH, name)
	c := g.Comp(h)
	cat, err := r.ReadUint8()
	if err != nil {
		return err
	}
	c.Category = cluster.CapabilityModel(cat)
	if c.MaxActiveCSI, err = r.ReadUint32(); err != nil {
		return err
	}
	if c.MaxStandbyCSI, err = r.ReadUint32(); err != nil {
		return err
	}
	if c.InstantiateCmd, err = readStrings(r); err != nil {
		return err
	}
	tmo, err := r.ReadInt64()
	if err != nil {
		return err
	}
	c.InstantiateTmo = durationOf(tmo)
	if c.TerminateCmd, err = readStrings(r); err != nil {
		return err
	}
	if tmo, err = r.ReadInt64(); err != nil {
		return err
	}
	c.TerminateTmo = durationOf(tmo)
	if c.CleanupCmd, err = readStrings(r); err != nil {
		return err
	}
	if tmo, err = r.ReadInt64(); err != nil {
		return err
	}
	c.CleanupTmo = durationOf(tmo)
	if c.InstantiationLevel, err = r.ReadInt32(); err != nil {
		return err
	}
	recov, err := r.ReadUint8()
	if err != nil {
		return err
	}
	c.RecommendedRecovery = cluster.RecommendedRecovery(recov)
	if c.RestartDisabled, err = r.ReadBool(); err != nil {
		return err
	}
	oper, err := r.ReadUint8()
	if err != nil {
		return err
	}
	c.Oper = cluster.OperState(oper)
	pres, err := r.ReadUint8()
	if err != nil {
		return err
	}
	c.Presence = cluster.PresenceState(pres)
	if c.RestartCount, err = r.ReadUint32(); err != nil {
		return err
	}
	if c.ProxyName, err = readString(r); err != nil {
		return err
	}
	if c.ErrorSuspected, err = r.ReadBool(); err != nil {
		return err
	}

	nHCs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nHCs; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	for i := uint32(0); i < nHCs; i++ {
		if err := decodeHC(r, g, h); err != nil {
			return err
		}
	}
	return nil
}

func durationOf(ns int64) time.Duration { return time.Duration(ns) }

func decodeHC(r *msgp.Reader, g *cluster.Graph, compH cluster.CompHandle) error {
	key, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewHealthcheck(compH, key)
	hc := g.HC(h)
	maxDur, err := r.ReadInt64()
	if err != nil {
		return err
	}
	hc.MaxDuration = durationOf(maxDur)
	period, err := r.ReadInt64()
	if err != nil {
		return err
	}
	hc.Period = durationOf(period)
	if hc.InvocationType, err = readString(r); err != nil {
		return err
	}
	recov, err := r.ReadUint8()
	if err != nil {
		return err
	}
	hc.RecommendedRecovery = cluster.RecommendedRecovery(recov)
	if hc.Active, err = r.ReadBool(); err != nil {
		return err
	}
	return nil
}

func decodeSI(r *msgp.Reader, g *cluster.Graph, appH cluster.AppHandle) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	sgName, err := readString(r)
	if err != nil {
		return err
	}
	sgH, _ := g.FindSG(appH, sgName)
	h := g.NewServiceInstance(appH, sgH, name)
	si := g.SI(h)
	if si.Rank, err = r.ReadUint32(); err != nil {
		return err
	}
	if si.PrefActiveAssignments, err = r.ReadUint32(); err != nil {
		return err
	}
	if si.PrefStandbyAssignments, err = r.ReadUint32(); err != nil {
		return err
	}
	admin, err := r.ReadUint8()
	if err != nil {
		return err
	}
	si.Admin = cluster.AdminState(admin)

	nCSIs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nCSIs; i++ {
		if _, err := r.ReadInt32(); err != nil {
			return err
		}
	}
	nAssign, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nAssign; i++ {
		a, err := decodeSIAssignment(r, g, h)
		if err != nil {
			return err
		}
		si.Assignments = append(si.Assignments, a)
	}
	nDependents, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nDependents; i++ {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		si.Dependents = append(si.Dependents, cluster.SIHandle(v))
	}
	nDependsOn, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nDependsOn; i++ {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		si.DependsOn = append(si.DependsOn, cluster.SIHandle(v))
	}
	for i := uint32(0); i < nCSIs; i++ {
		if err := decodeCSI(r, g, h); err != nil {
			return err
		}
	}
	return nil
}

func decodeSIAssignment(r *msgp.Reader, g *cluster.Graph, siH cluster.SIHandle) (*cluster.SIAssignment, error) {
	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	suDN, err := readString(r)
	if err != nil {
		return nil, err
	}
	a := &cluster.SIAssignment{ID: id, SI: siH}
	if ref, err := g.FindByDN(suDN); err == nil && ref.Kind == cluster.KindSU {
		a.SU = ref.SU
	}
	cur, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	a.Current = cluster.HAState(cur)
	req, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	a.Requested = cluster.HAState(req)
	return a, nil
}

func decodeCSI(r *msgp.Reader, g *cluster.Graph, siH cluster.SIHandle) error {
	name, err := readString(r)
	if err != nil {
		return err
	}
	csType, err := readString(r)
	if err != nil {
		return err
	}
	h := g.NewCSI(siH, name, csType)
	csi := g.CSI(h)

	nDeps, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nDeps; i++ {
		v, err := r.ReadInt32()
		if err != nil {
			return err
		}
		csi.DependsOn = append(csi.DependsOn, cluster.CSIHandle(v))
	}
	nAttrs, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nAttrs; i++ {
		k, err := readString(r)
		if err != nil {
			return err
		}
		v, err := readString(r)
		if err != nil {
			return err
		}
		csi.Attrs[k] = v
	}
	nAssign, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < nAssign; i++ {
		a, err := decodeCSIAssignment(r, g)
		if err != nil {
			return err
		}
		csi.Assignments = append(csi.Assignments, a)
	}
	return nil
}

func decodeCSIAssignment(r *msgp.Reader, g *cluster.Graph) (*cluster.CSIAssignment, error) {
	id, err := readString(r)
	if err != nil {
		return nil, err
	}
	compDN, err := readString(r)
	if err != nil {
		return nil, err
	}
	a := &cluster.CSIAssignment{ID: id}
	if ref, err := g.FindByDN(compDN); err == nil && ref.Kind == cluster.KindComp {
		a.Comp = ref.Comp
	}
	cur, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	a.Current = cluster.HAState(cur)
	req, err := r.ReadUint8()
	if err != nil {
		return nil, err
	}
	a.Requested = cluster.HAState(req)
	return a, nil
}

