package config

import (
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/amfcore/amf/cluster"
)

// Load reads the §6.2 grammar from path and builds a fresh Graph. Any
// malformed line, unknown section, or bad value is a load-time error;
// per §7 this is meant to abort the process before the core starts, so
// Load itself just returns the error and leaves process-exit to the caller
// (cmd/amfnode's main does the os.Exit).
func Load(path string) (*cluster.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: open %s", path)
	}
	defer f.Close()
	return LoadReader(f)
}

func LoadReader(r io.Reader) (*cluster.Graph, error) {
	root, err := parse(r)
	if err != nil {
		return nil, err
	}
	g := cluster.NewGraph()
	l := &loader{g: g}
	for _, sect := range root.children {
		if sect.isLeaf {
			glog.Warningf("config: line %d: top-level key %q ignored, expected a section", sect.line, sect.key)
			continue
		}
		typ, name := splitHeader(sect.key)
		switch typ {
		case "node":
			if err := l.loadNode(name, sect); err != nil {
				return nil, err
			}
		case "application":
			if err := l.loadApplication(name, sect); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Errorf("config: line %d: unknown top-level section %q", sect.line, sect.key)
		}
	}
	if err := l.resolveDeps(); err != nil {
		return nil, err
	}
	return g, nil
}

// resolveDeps links every depends_on key gathered while loading, and
// back-fills ServiceInstance.Dependents (§4.4.3 step 2 needs the inverse
// direction: "dependent SIs" of an SI being recovered).
func (l *loader) resolveDeps() error {
	for _, d := range l.siDeps {
		for _, name := range d.names {
			target, err := l.g.FindSI(d.app, name)
			if err != nil {
				return errors.Wrapf(err, "config: serviceinstance %q depends_on %q", l.g.SI(d.si).Name, name)
			}
			si := l.g.SI(d.si)
			si.DependsOn = append(si.DependsOn, target)
			dep := l.g.SI(target)
			dep.Dependents = append(dep.Dependents, d.si)
		}
	}
	for _, d := range l.csiDeps {
		for _, name := range d.names {
			target, err := l.g.FindCSI(d.si, name)
			if err != nil {
				return errors.Wrapf(err, "config: csi %q depends_on %q", l.g.CSI(d.csi).Name, name)
			}
			csi := l.g.CSI(d.csi)
			csi.DependsOn = append(csi.DependsOn, target)
		}
	}
	return nil
}

type loader struct {
	g *cluster.Graph

	siDeps  []siDepRef
	csiDeps []csiDepRef
}

// siDepRef/csiDepRef record a depends_on key's raw names until every
// serviceinstance/csi section has been loaded, so a dependency can name a
// sibling declared later in the same file (§1 "per-SI dependency ordering
// rules" makes no promise about declaration order).
type siDepRef struct {
	app   cluster.AppHandle
	si    cluster.SIHandle
	names []string
}

type csiDepRef struct {
	si    cluster.SIHandle
	csi   cluster.CSIHandle
	names []string
}

// splitHeader splits a section header like "node N1" into ("node", "N1").
// A header with no RDN (e.g. a bare "node {}") yields an empty name.
func splitHeader(key string) (typ, name string) {
	i := strings.IndexByte(key, ' ')
	if i < 0 {
		return key, ""
	}
	return key[:i], strings.TrimSpace(key[i+1:])
}

func (l *loader) loadNode(name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: node section missing name", sect.line)
	}
	h := l.g.NewNode(name)
	n := l.g.Node(h)
	for k, v := range sect.leaves() {
		switch k {
		case "admin":
			state, err := parseAdmin(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.Admin = state
		case "oper":
			state, err := parseOper(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.Oper = state
		case "clm_name":
			n.CLMName = v
		case "node_id":
			u, err := parseUint32(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.NodeID = u
		case "auto_repair":
			b, err := strconv.ParseBool(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.AutoRepair = b
		case "su_failover_prob":
			p, err := parseInt32(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.SUFailoverProb = p
		case "su_failover_max":
			u, err := parseUint32(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			n.SUFailoverMax = u
		case "ctrl_net_hostname":
			n.CtrlNet.Hostname = v
		case "ctrl_net_port":
			n.CtrlNet.Port = v
		default:
			glog.Warningf("config: line %d: unknown node key %q ignored", sect.line, k)
		}
	}
	return nil
}

func (l *loader) loadApplication(name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: application section missing name", sect.line)
	}
	appH := l.g.NewApplication(name)
	app := l.g.App(appH)
	for k, v := range sect.leaves() {
		switch k {
		case "admin":
			state, err := parseAdmin(v)
			if err != nil {
				return wrapLine(sect.line, k, err)
			}
			app.Admin = state
		default:
			glog.Warningf("config: line %d: unknown application key %q ignored", sect.line, k)
		}
	}
	for _, sg := range sect.sections("servicegroup") {
		typ, sgName := splitHeader(sg.key)
		_ = typ
		if err := l.loadServiceGroup(appH, sgName, sg); err != nil {
			return err
		}
	}
	for _, si := range sect.sections("serviceinstance") {
		_, siName := splitHeader(si.key)
		if err := l.loadServiceInstance(appH, siName, si); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadServiceGroup(appH cluster.AppHandle, name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: servicegroup section missing name", sect.line)
	}
	sgH := l.g.NewServiceGroup(appH, name)
	sg := l.g.SG(sgH)
	for k, v := range sect.leaves() {
		var err error
		switch k {
		case "admin":
			sg.Admin, err = parseAdmin(v)
		case "redundancy_model":
			sg.RedundancyModel = v
		case "pref_active":
			sg.PrefActiveSUs, err = parseUint32(v)
		case "pref_standby":
			sg.PrefStandbySUs, err = parseUint32(v)
		case "pref_inservice":
			sg.PrefInserviceSUs, err = parseUint32(v)
		case "pref_assigned":
			sg.PrefAssignedSUs, err = parseUint32(v)
		case "max_active_per_su":
			sg.MaxActiveSIsPerSU, err = parseUint32(v)
		case "max_standby_per_su":
			sg.MaxStandbySIsPerSU, err = parseUint32(v)
		case "comp_restart_prob":
			sg.CompRestartProb, err = parseInt32(v)
		case "comp_restart_max":
			sg.CompRestartMax, err = parseUint32(v)
		case "su_restart_prob":
			sg.SURestartProb, err = parseInt32(v)
		case "su_restart_max":
			sg.SURestartMax, err = parseUint32(v)
		case "su_failover_max":
			sg.SUFailoverMax, err = parseUint32(v)
		case "auto_adjust_prob":
			sg.AutoAdjustProb, err = parseInt32(v)
		case "auto_repair":
			sg.AutoRepair, err = strconv.ParseBool(v)
		default:
			glog.Warningf("config: line %d: unknown servicegroup key %q ignored", sect.line, k)
			continue
		}
		if err != nil {
			return wrapLine(sect.line, k, err)
		}
	}
	for _, su := range sect.sections("serviceunit") {
		_, suName := splitHeader(su.key)
		if err := l.loadServiceUnit(sgH, suName, su); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadServiceUnit(sgH cluster.SGHandle, name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: serviceunit section missing name", sect.line)
	}
	suH := l.g.NewServiceUnit(sgH, name)
	su := l.g.SU(suH)
	for k, v := range sect.leaves() {
		var err error
		switch k {
		case "admin":
			su.Admin, err = parseAdmin(v)
		case "rank":
			su.Rank, err = parseUint32(v)
		case "external":
			su.External, err = strconv.ParseBool(v)
		case "per_su_failover":
			su.PerSUFailover, err = strconv.ParseBool(v)
		case "hosting_node":
			var h cluster.NodeHandle
			h, err = l.g.FindNode(v)
			if err == nil {
				su.HostingNode = h
			}
		default:
			glog.Warningf("config: line %d: unknown serviceunit key %q ignored", sect.line, k)
			continue
		}
		if err != nil {
			return wrapLine(sect.line, k, err)
		}
	}
	for _, comp := range sect.sections("component") {
		_, compName := splitHeader(comp.key)
		if err := l.loadComponent(suH, compName, comp); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadComponent(suH cluster.SUHandle, name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: component section missing name", sect.line)
	}
	compH := l.g.NewComponent(suH, name)
	c := l.g.Comp(compH)
	for k, v := range sect.leaves() {
		var err error
		switch k {
		case "category":
			c.Category, err = parseCategory(v)
		case "max_active_csi":
			c.MaxActiveCSI, err = parseUint32(v)
		case "max_standby_csi":
			c.MaxStandbyCSI, err = parseUint32(v)
		case "instantiate_cmd":
			c.InstantiateCmd = strings.Fields(v)
		case "instantiate_tmo":
			c.InstantiateTmo, err = time.ParseDuration(v)
		case "terminate_cmd":
			c.TerminateCmd = strings.Fields(v)
		case "terminate_tmo":
			c.TerminateTmo, err = time.ParseDuration(v)
		case "cleanup_cmd":
			c.CleanupCmd = strings.Fields(v)
		case "cleanup_tmo":
			c.CleanupTmo, err = time.ParseDuration(v)
		case "instantiation_level":
			var lvl int64
			lvl, err = strconv.ParseInt(v, 10, 32)
			c.InstantiationLevel = int32(lvl)
		case "restart_disabled":
			c.RestartDisabled, err = strconv.ParseBool(v)
		default:
			glog.Warningf("config: line %d: unknown component key %q ignored", sect.line, k)
			continue
		}
		if err != nil {
			return wrapLine(sect.line, k, err)
		}
	}
	for _, hc := range sect.sections("healthcheck") {
		_, hcName := splitHeader(hc.key)
		if err := l.loadHealthcheck(compH, hcName, hc); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadHealthcheck(compH cluster.CompHandle, key string, sect *node) error {
	if key == "" {
		return errors.Errorf("config: line %d: healthcheck section missing key", sect.line)
	}
	hcH := l.g.NewHealthcheck(compH, key)
	hc := l.g.HC(hcH)
	for k, v := range sect.leaves() {
		var err error
		switch k {
		case "max_duration":
			hc.MaxDuration, err = time.ParseDuration(v)
		case "period":
			hc.Period, err = time.ParseDuration(v)
		case "invocation_type":
			hc.InvocationType = v
		case "recommended_recovery":
			hc.RecommendedRecovery, err = parseRecovery(v)
		case "active":
			hc.Active, err = strconv.ParseBool(v)
		default:
			glog.Warningf("config: line %d: unknown healthcheck key %q ignored", sect.line, k)
			continue
		}
		if err != nil {
			return wrapLine(sect.line, k, err)
		}
	}
	return nil
}

func (l *loader) loadServiceInstance(appH cluster.AppHandle, name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: serviceinstance section missing name", sect.line)
	}
	leaves := sect.leaves()
	sgName, ok := leaves["protecting_sg"]
	if !ok {
		return errors.Errorf("config: line %d: serviceinstance %q missing protecting_sg", sect.line, name)
	}
	sgH, err := l.g.FindSG(appH, sgName)
	if err != nil {
		return errors.Wrapf(err, "config: line %d: protecting_sg %q", sect.line, sgName)
	}
	siH := l.g.NewServiceInstance(appH, sgH, name)
	si := l.g.SI(siH)
	for k, v := range leaves {
		switch k {
		case "protecting_sg":
			// consumed above
		case "admin":
			si.Admin, err = parseAdmin(v)
		case "rank":
			si.Rank, err = parseUint32(v)
		case "pref_active":
			si.PrefActiveAssignments, err = parseUint32(v)
		case "pref_standby":
			si.PrefStandbyAssignments, err = parseUint32(v)
		case "depends_on":
			l.siDeps = append(l.siDeps, siDepRef{app: appH, si: siH, names: splitList(v)})
		default:
			glog.Warningf("config: line %d: unknown serviceinstance key %q ignored", sect.line, k)
			continue
		}
		if err != nil {
			return wrapLine(sect.line, k, err)
		}
	}
	for _, csi := range sect.sections("csi") {
		_, csiName := splitHeader(csi.key)
		if err := l.loadCSI(siH, csiName, csi); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) loadCSI(siH cluster.SIHandle, name string, sect *node) error {
	if name == "" {
		return errors.Errorf("config: line %d: csi section missing name", sect.line)
	}
	leaves := sect.leaves()
	csType := leaves["cs_type"]
	csiH := l.g.NewCSI(siH, name, csType)
	csi := l.g.CSI(csiH)
	for k, v := range leaves {
		switch k {
		case "cs_type":
			// consumed above
		case "depends_on":
			l.csiDeps = append(l.csiDeps, csiDepRef{si: siH, csi: csiH, names: splitList(v)})
		default:
			if strings.HasPrefix(k, "attr_") {
				csi.Attrs[strings.TrimPrefix(k, "attr_")] = v
			} else {
				glog.Warningf("config: line %d: unknown csi key %q ignored", sect.line, k)
			}
		}
	}
	return nil
}

// splitList parses a comma-separated depends_on value into trimmed names,
// dropping empties so a trailing comma or repeated separator is harmless.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func wrapLine(line int, key string, err error) error {
	return errors.Wrapf(err, "config: line %d: key %q", line, key)
}

func parseAdmin(v string) (cluster.AdminState, error) {
	switch strings.ToUpper(v) {
	case "UNLOCKED":
		return cluster.AdminUnlocked, nil
	case "LOCKED":
		return cluster.AdminLocked, nil
	case "SHUTTING_DOWN":
		return cluster.AdminShuttingDown, nil
	default:
		return 0, errors.Errorf("invalid admin state %q", v)
	}
}

func parseOper(v string) (cluster.OperState, error) {
	switch strings.ToUpper(v) {
	case "ENABLED":
		return cluster.OperEnabled, nil
	case "DISABLED":
		return cluster.OperDisabled, nil
	default:
		return 0, errors.Errorf("invalid oper state %q", v)
	}
}

func parseCategory(v string) (cluster.CapabilityModel, error) {
	switch strings.ToUpper(v) {
	case "SA_AWARE", "SAAWARE":
		return cluster.CapSAAware, nil
	case "PROXIED_PRE_INSTANTIABLE":
		return cluster.CapProxiedPreInstantiable, nil
	case "PROXIED_NON_PRE_INSTANTIABLE":
		return cluster.CapProxiedNonPreInstantiable, nil
	case "NON_PROXIED_NON_SA_AWARE":
		return cluster.CapNonProxiedNonSAAware, nil
	default:
		return 0, errors.Errorf("invalid component category %q", v)
	}
}

func parseRecovery(v string) (cluster.RecommendedRecovery, error) {
	switch strings.ToUpper(v) {
	case "NO_ACTION":
		return cluster.RecoveryNoAction, nil
	case "COMPONENT_RESTART":
		return cluster.RecoveryComponentRestart, nil
	case "COMPONENT_FAILOVER":
		return cluster.RecoveryComponentFailover, nil
	case "SU_FAILOVER":
		return cluster.RecoverySUFailover, nil
	case "NODE_FAILOVER":
		return cluster.RecoveryNodeFailover, nil
	case "NODE_FAILFAST":
		return cluster.RecoveryNodeFailfast, nil
	default:
		return 0, errors.Errorf("invalid recommended recovery %q", v)
	}
}

func parseUint32(v string) (uint32, error) {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > math.MaxUint32 {
		return 0, errors.Errorf("value %d out of uint32 range", n)
	}
	return uint32(n), nil
}

func parseInt32(v string) (int32, error) {
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(n), nil
}
