// Package registry implements ServiceRegistry: the per-service
// collection of handler bindings, duplicate-name rejection, and the
// narrow isServing() handle used by introspection/status endpoints.
//
// Grounded on xact/xreg/xreg.go's registry shape — entries guarded by a
// sync.RWMutex, add/find/del primitives — adapted from "renewable
// xactions" to "registered service bindings".
package registry

import (
	"fmt"
	"sync"

	"github.com/nvaistore-labs/rpcflow/pkg/metrics"
	"github.com/nvaistore-labs/rpcflow/pkg/slot"
	"github.com/nvaistore-labs/rpcflow/pkg/status"
)

// Service is the interface application code implements and registers.
// OnInit is invoked exactly once and must populate bindings
// by calling Bind for each method.
type Service interface {
	Name() string
	OnInit(b *Binder)
}

// Binder is handed to Service.OnInit; it is the only way to add bindings
// for that service.
type Binder struct {
	service string
	entry   *ServiceEntry
}

// Bind registers one method binding for the service being initialized.
func (b *Binder) Bind(binding *slot.Binding) {
	binding.Service = b.service
	b.entry.bindings = append(b.entry.bindings, binding)
}

// ServiceEntry is what the registry stores per registered service: its
// bindings plus a user-overridable isServing predicate.
type ServiceEntry struct {
	name       string
	bindings   []*slot.Binding
	isServing  func() bool
}

// IsServing reports whether the service should be treated as healthy;
// defaults to true.
func (e *ServiceEntry) IsServing() bool {
	if e.isServing == nil {
		return true
	}
	return e.isServing()
}

// SetIsServing overrides the serving predicate exposed via IsServing.
func (e *ServiceEntry) SetIsServing(fn func() bool) { e.isServing = fn }

// Bindings returns the bindings registered for this service.
func (e *ServiceEntry) Bindings() []*slot.Binding { return e.bindings }

// Registry is the mapping from fully-qualified service name to its
// ServiceEntry. Mutated only during ServerCore.Run's setup
// (single-threaded); read-only thereafter.
type Registry struct {
	mu       sync.RWMutex
	services map[string]*ServiceEntry
	byFQN    map[string]*slot.Binding
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		services: make(map[string]*ServiceEntry),
		byFQN:    make(map[string]*slot.Binding),
	}
}

// AddService registers svc, calling its OnInit exactly once. Duplicate
// service-name registration fails with INVALID_ARGUMENT.
// Client-stream forwarding bindings are refused here per the Open
// Question resolution in DESIGN.md: the client-stream forward path is
// intentionally unimplemented, so no binding may claim to serve it.
func (r *Registry) AddService(svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := svc.Name()
	if _, exists := r.services[name]; exists {
		return status.Errorf(status.InvalidArgument, "service %q already registered", name)
	}

	entry := &ServiceEntry{name: name}
	binder := &Binder{service: name, entry: entry}
	svc.OnInit(binder)

	if len(entry.bindings) == 0 {
		return status.Errorf(status.InvalidArgument, "service %q registered no bindings", name)
	}
	for _, b := range entry.bindings {
		if b.Shape == slot.ClientStream && b.Forwarding {
			return status.Errorf(status.Unimplemented,
				"%s: client-stream forwarding is not implemented, refusing to register", b.FQN())
		}
		fqn := b.FQN()
		if _, exists := r.byFQN[fqn]; exists {
			return status.Errorf(status.InvalidArgument, "method %q already bound", fqn)
		}
	}
	for _, b := range entry.bindings {
		r.byFQN[b.FQN()] = b
	}
	r.services[name] = entry
	metrics.ServicesRegistered.Inc()
	return nil
}

// GetService returns a handle to a registered service, used by
// introspection/status endpoints; its only exposed capability is
// IsServing.
func (r *Registry) GetService(name string) (*ServiceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.services[name]
	return e, ok
}

// Lookup resolves a fully-qualified "service/method" string to its
// Binding, used by the transport adapter to route an incoming call.
func (r *Registry) Lookup(fqn string) (*slot.Binding, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byFQN[fqn]
	return b, ok
}

// AllBindings returns every binding across every registered service, in
// registration order grouped by service. Used by ServerCore to allocate
// per-worker slot prototypes at startup.
func (r *Registry) AllBindings() []*slot.Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*slot.Binding, 0, len(r.byFQN))
	for _, e := range r.services {
		out = append(out, e.bindings...)
	}
	return out
}

// ServiceCount reports how many distinct services are registered. Used
// by ServerCore.Run's "require at least one service" precondition.
func (r *Registry) ServiceCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.services)
}

// BindingCount reports the total number of bindings across all services,
// used alongside ServiceCount for the same precondition.
func (r *Registry) BindingCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byFQN)
}

func (e *ServiceEntry) String() string {
	return fmt.Sprintf("service %q (%d bindings)", e.name, len(e.bindings))
}
