// Package discovery sources node-join/leave notifications from a Kubernetes
// Endpoints watch, an alternative to a raw membership substrate's native
// join/leave signal (§6.3 names "node-join/leave notifications" as a
// transport-layer input but leaves the source unspecified). This is the
// natural way to get that signal in a cluster already running on
// Kubernetes, mirroring the teacher's own k8s.io/client-go usage for node
// metadata (devtools/tutils queries the Kubernetes API for node info the
// same way).
package discovery

import (
	"context"
	"sync"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/cache"

	"github.com/OneOfOne/xxhash"
	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"github.com/amfcore/amf/transport"
)

// Watcher implements transport.MembershipWatcher by watching the Endpoints
// resource of a headless Service: each subset address is a cluster member,
// and add/remove of an address is a join/leave. Node IDs are derived by
// hashing the member's IP, since corev1.EndpointAddress carries no integer
// identity of its own.
type Watcher struct {
	clientset *kubernetes.Clientset
	namespace string
	service   string

	mu    sync.Mutex
	cbs   []func(transport.MembershipChange)
	known map[uint32]bool
}

// New builds a Watcher for the Endpoints object backing service/namespace.
func New(clientset *kubernetes.Clientset, namespace, service string) *Watcher {
	return &Watcher{
		clientset: clientset,
		namespace: namespace,
		service:   service,
		known:     make(map[uint32]bool),
	}
}

func (w *Watcher) OnMembershipChange(cb func(transport.MembershipChange)) {
	w.mu.Lock()
	w.cbs = append(w.cbs, cb)
	w.mu.Unlock()
}

// NodeID hashes a member address to the uint32 identity transport.Message
// deals in.
func NodeID(addr string) uint32 {
	return uint32(xxhash.ChecksumString64S(addr, 0))
}

// Run drives the Endpoints watch until ctx is cancelled. A single
// cache.NewInformer is enough here since only one resource, in one
// namespace, is ever watched.
func (w *Watcher) Run(ctx context.Context) error {
	selector := fields.OneTermEqualSelector("metadata.name", w.service).String()
	_, controller := cache.NewInformer(
		&cache.ListWatch{
			ListFunc: func(opts metav1.ListOptions) (interface{}, error) {
				opts.FieldSelector = selector
				return w.clientset.CoreV1().Endpoints(w.namespace).List(ctx, opts)
			},
			WatchFunc: func(opts metav1.ListOptions) (interface{}, error) {
				opts.FieldSelector = selector
				return w.clientset.CoreV1().Endpoints(w.namespace).Watch(ctx, opts)
			},
		},
		&corev1.Endpoints{},
		0,
		cache.ResourceEventHandlerFuncs{
			AddFunc:    func(obj interface{}) { w.reconcile(obj) },
			UpdateFunc: func(_, obj interface{}) { w.reconcile(obj) },
			DeleteFunc: func(interface{}) { w.reconcile(nil) },
		},
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		controller.Run(gctx.Done())
		return nil
	})
	return g.Wait()
}

// reconcile diffs the current Endpoints subsets against w.known and fires
// OnMembershipChange with whatever joined/left since the last observation.
func (w *Watcher) reconcile(obj interface{}) {
	current := map[uint32]bool{}
	if ep, ok := obj.(*corev1.Endpoints); ok {
		for _, subset := range ep.Subsets {
			for _, addr := range subset.Addresses {
				current[NodeID(addr.IP)] = true
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var joined, left, continuing []uint32
	for id := range current {
		if w.known[id] {
			continuing = append(continuing, id)
		} else {
			joined = append(joined, id)
		}
	}
	for id := range w.known {
		if !current[id] {
			left = append(left, id)
		}
	}
	if len(joined) == 0 && len(left) == 0 {
		return
	}
	w.known = current

	allIDs := make([]uint32, 0, len(current))
	for id := range current {
		allIDs = append(allIDs, id)
	}
	change := transport.MembershipChange{
		NodeIDs:    allIDs,
		Joined:     joined,
		Left:       left,
		Continuing: continuing,
	}
	glog.V(2).Infof("discovery: membership change joined=%v left=%v", joined, left)
	for _, cb := range w.cbs {
		cb(change)
	}
}
