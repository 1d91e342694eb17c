package cluster

import (
	"fmt"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

// newShortID mints the opaque runtime id used by SIAssignment/CSIAssignment.
// shortid.Generate only errors if the global entropy source fails, which
// isn't recoverable for a process that needs ids to keep running; falling
// back to an empty id would silently break sync-message correlation, so
// this panics instead.
func newShortID() string {
	id, err := shortid.Generate()
	if err != nil {
		panic(fmt.Sprintf("cluster: shortid generation failed: %v", err))
	}
	return id
}

// Handles are stable integer indices into an entity's arena (Design Notes
// §9): child→parent references are handles, not pointers, so the graph has
// no aliasing hazards and serialization is "handle → DN string" rewriting,
// mirroring cluster.Snode's DaemonID-keyed NodeMap in the teacher repo.
type (
	NodeHandle int32
	AppHandle  int32
	SGHandle   int32
	SUHandle   int32
	CompHandle int32
	HCHandle   int32
	SIHandle   int32
	CSIHandle  int32
)

const invalidHandle = -1

// NetInfo mirrors cluster.Snode's per-network endpoint bundle in the teacher
// repo; AMF nodes don't serve object traffic but still need a control-plane
// address for the membership/transport substrate (§6.3).
type NetInfo struct {
	Hostname string
	Port     string
}

func (n NetInfo) DirectURL() string { return fmt.Sprintf("%s:%s", n.Hostname, n.Port) }

// Node (§3 entities, §6.2 defaults).
type Node struct {
	Handle    NodeHandle
	Name      string // RDN value, e.g. "N1" (DN "safNode=N1")
	CLMName   string // hosting-CLM-name
	NodeID    uint32
	Admin     AdminState
	Oper      OperState
	ACSM      NodeACSMState
	History   NodeACSMState // history state resumed on join
	AutoRepair bool
	SUFailoverProb int32  // su_failover_prob, default -1 (unused)
	SUFailoverMax  uint32 // default UINT32_MAX

	CtrlNet NetInfo

	mu sync.Mutex
}

func (n *Node) Lock()   { n.mu.Lock() }
func (n *Node) Unlock() { n.mu.Unlock() }

// Application (§3, §6.2).
type Application struct {
	Handle AppHandle
	Name   string
	Admin  AdminState
	ACSM   AppState

	SGs []SGHandle
	SIs []SIHandle

	NodeToStart    NodeHandle // node-being-started back-pointer; invalidHandle if none
	DeferredEvents []DeferredEntry
}


// ServiceGroup (§3, §6.2). Redundancy model is currently N+M only.
type ServiceGroup struct {
	Handle SGHandle
	Name   string
	App    AppHandle

	RedundancyModel string // "NplusM"

	PrefActiveSUs    uint32
	PrefStandbySUs   uint32
	PrefInserviceSUs uint32
	PrefAssignedSUs  uint32

	MaxActiveSIsPerSU  uint32
	MaxStandbySIsPerSU uint32

	CompRestartProb int32
	CompRestartMax  uint32
	SURestartProb   int32
	SURestartMax    uint32
	SUFailoverMax   uint32
	AutoAdjustProb  int32
	AutoRepair      bool

	Admin AdminState
	ACSM  ACSMState

	SUs []SUHandle

	Recovery RecoveryScope

	DeferredEvents []DeferredEntry
}


// RecoveryScope is the single owned value describing an in-progress recovery
// (Design Notes §9: "Recovery scope as owned value").
type RecoveryScope struct {
	EventType RecoveryEventType
	SUs       []SUHandle
	SIs       []SIHandle
	Comp      CompHandle // optional; invalidHandle when absent
	Node      NodeHandle // optional; invalidHandle when absent
}

func (r *RecoveryScope) IsEmpty() bool {
	return r.EventType == RecoveryNone && len(r.SUs) == 0 && len(r.SIs) == 0
}

// Reset clears the scope by replacement with a default value (Design Notes
// §9), which is how return_to_idle (§4.4.3 step 7) must behave.
func (r *RecoveryScope) Reset() {
	*r = RecoveryScope{Comp: invalidHandle, Node: invalidHandle}
}

// ServiceUnit (§3, §6.2).
type ServiceUnit struct {
	Handle SUHandle
	Name   string
	SG     SGHandle

	Rank             uint32
	External         bool
	PerSUFailover    bool
	Oper             OperState
	Presence         PresenceState
	Admin            AdminState
	HostingNode      NodeHandle
	RestartCount     uint32
	RCSM             RCSMState
	EscalationHist   RCSMState
	SUFailoverCount  uint32
	CurInstLevel     int32

	Components []CompHandle

	DeferredEvents []DeferredEntry
}


// CapabilityModel is the polymorphism-by-capability-set design (Design Notes
// §9): a tagged variant rather than inheritance distinguishing whether the
// core may issue IPC callbacks (SAAware) or must rely on CLI scripts.
type CapabilityModel uint8

const (
	CapSAAware CapabilityModel = iota
	CapProxiedPreInstantiable
	CapProxiedNonPreInstantiable
	CapNonProxiedNonSAAware
)

// Component (§3, §6.2).
type Component struct {
	Handle      CompHandle
	Name        string
	SU          SUHandle
	Category    CapabilityModel

	MaxActiveCSI  uint32
	MaxStandbyCSI uint32

	InstantiateCmd   []string
	InstantiateTmo   time.Duration
	TerminateCmd     []string
	TerminateTmo     time.Duration
	CleanupCmd       []string
	CleanupTmo       time.Duration
	InstantiationLevel int32

	Healthchecks []HCHandle

	RecommendedRecovery RecommendedRecovery
	RestartDisabled     bool

	Oper           OperState
	Presence       PresenceState
	RestartCount   uint32
	ProxyName      string // currently assigned proxy component, if proxied
	ErrorSuspected bool
	IPCConn        interface{} // opaque handle to the component's IPC connection
}


// Healthcheck (§3, §6.2).
type Healthcheck struct {
	Handle              HCHandle
	Key                 string
	Comp                CompHandle
	MaxDuration         time.Duration
	Period              time.Duration
	InvocationType      string // "AM_HEALTHCHECK_AMF_INVOKED" | "AM_HEALTHCHECK_COMPONENT_INVOKED"
	RecommendedRecovery RecommendedRecovery
	Active              bool
}


// ServiceInstance (§3, §6.2).
type ServiceInstance struct {
	Handle        SIHandle
	Name          string
	App           AppHandle
	ProtectingSG  SGHandle

	Rank                    uint32
	PrefActiveAssignments   uint32
	PrefStandbyAssignments  uint32

	Admin AdminState

	CSIs        []CSIHandle
	Assignments []*SIAssignment
	Dependents  []SIHandle // SIs depending on this SI
	DependsOn   []SIHandle

	onActivated func() // si_activate's cb, fired once HA state reaches ACTIVE
}


// CSI (§3, §6.2).
type CSI struct {
	Handle     CSIHandle
	Name       string
	SI         SIHandle
	CSType     string
	DependsOn  []CSIHandle
	Attrs      map[string]string

	Assignments []*CSIAssignment
}


// SIAssignment (§3, §4.2). ID is a short opaque identifier assigned at
// creation time (not config-loaded, unlike every other entity's DN), so a
// sync message can reference an in-flight assignment before it has settled
// into anything DN-addressable.
type SIAssignment struct {
	ID  string
	SI  SIHandle
	SU  SUHandle

	Current   HAState
	Requested HAState

	pendingCB func()
}

// CSIAssignment (§3, §4.2).
type CSIAssignment struct {
	ID   string
	CSI  CSIHandle
	Comp CompHandle

	Current   HAState
	Requested HAState

	Parent *SIAssignment
}

// NewSIAssignment/NewCSIAssignment stamp a fresh runtime ID (§1 domain
// stack: teris-io/shortid), mirroring the DN a config-loaded entity would
// carry.
func NewSIAssignment(si SIHandle, su SUHandle, ha HAState) *SIAssignment {
	return &SIAssignment{ID: newShortID(), SI: si, SU: su, Current: ha, Requested: ha}
}

func NewCSIAssignment(csi CSIHandle, comp CompHandle, current, requested HAState, parent *SIAssignment) *CSIAssignment {
	return &CSIAssignment{ID: newShortID(), CSI: csi, Comp: comp, Current: current, Requested: requested, Parent: parent}
}

// SetPendingCB/FirePendingCB manage the SIAssignment's single pending
// completion callback (§3: "one pending completion callback").
func (a *SIAssignment) SetPendingCB(cb func()) { a.pendingCB = cb }

func (a *SIAssignment) FirePendingCB() {
	if a.pendingCB == nil {
		return
	}
	cb := a.pendingCB
	a.pendingCB = nil
	cb()
}

// Digest returns a stable hash of a DN, used for arena index caches the way
// cluster.Snode.Digest() hashes DaemonID for fast bucket placement.
func Digest(dn string) uint64 {
	return xxhash.ChecksumString64S(dn, 0)
}
