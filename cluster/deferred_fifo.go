package cluster

// Defer/PopDeferred implement the bounded FIFO every composite-action entity
// owns (§5). "Bounded" in the original C implementation meant a fixed-size
// ring; here the FIFO is a slice and callers are expected to apply their own
// admin-configured cap if one is needed (none is specified by the spec).

func (a *Application) Defer(e DeferredEntry) { a.DeferredEvents = append(a.DeferredEvents, e) }

func (a *Application) PopDeferred() (DeferredEntry, bool) {
	if len(a.DeferredEvents) == 0 {
		return DeferredEntry{}, false
	}
	e := a.DeferredEvents[0]
	a.DeferredEvents = a.DeferredEvents[1:]
	return e, true
}

func (sg *ServiceGroup) Defer(e DeferredEntry) { sg.DeferredEvents = append(sg.DeferredEvents, e) }

func (sg *ServiceGroup) PopDeferred() (DeferredEntry, bool) {
	if len(sg.DeferredEvents) == 0 {
		return DeferredEntry{}, false
	}
	e := sg.DeferredEvents[0]
	sg.DeferredEvents = sg.DeferredEvents[1:]
	return e, true
}

func (su *ServiceUnit) Defer(e DeferredEntry) { su.DeferredEvents = append(su.DeferredEvents, e) }

func (su *ServiceUnit) PopDeferred() (DeferredEntry, bool) {
	if len(su.DeferredEvents) == 0 {
		return DeferredEntry{}, false
	}
	e := su.DeferredEvents[0]
	su.DeferredEvents = su.DeferredEvents[1:]
	return e, true
}
