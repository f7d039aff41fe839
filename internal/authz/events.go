package authz

import (
	"context"
	"sync"

	"github.com/overture-stack/ego-sub000/internal/scope"
)

// Event is a mutation notification consumed by the revocation cascade.
// Dispatch is synchronous and in-process: by the time Publish returns, every
// listener has run, so callers observe revocation side effects as already
// applied. Mutating services publish through the Bus without a compile-time
// dependency on the cascade engine.
type Event interface {
	isEvent()
}

// PermissionDeleted is raised when a single (owner, policy) grant is removed.
// Grants removed as part of a policy or owner delete are covered by those
// events instead.
type PermissionDeleted struct {
	Owner    Owner
	PolicyID string
}

// PermissionChanged is raised when an existing grant's access level is
// replaced in place.
type PermissionChanged struct {
	Owner    Owner
	PolicyID string
	Old, New scope.AccessLevel
}

// OwnerDeleted is raised after an owner and its permissions are removed.
// For groups, Members snapshots the membership as it was before the delete;
// the rows are gone by the time listeners run.
type OwnerDeleted struct {
	Owner   Owner
	Members []Owner
}

// PolicyDeleted is raised after a policy and the permissions referencing it
// are removed. Holders lists the owners that held those permissions.
type PolicyDeleted struct {
	PolicyID string
	Holders  []Owner
}

// MembershipChanged is raised when a member joins or leaves a group.
type MembershipChanged struct {
	GroupID string
	Member  Owner
	Added   bool
}

func (PermissionDeleted) isEvent() {}
func (PermissionChanged) isEvent() {}
func (OwnerDeleted) isEvent()      {}
func (PolicyDeleted) isEvent()     {}
func (MembershipChanged) isEvent() {}

// Listener consumes mutation events. Implementations must be idempotent:
// compound mutations (a policy delete cascading permission deletes) raise
// several overlapping events for the same owners.
type Listener interface {
	HandleEvent(ctx context.Context, evt Event)
}

// Bus dispatches events to all subscribed listeners, synchronously and in
// subscription order.
type Bus struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener for all subsequent events.
func (b *Bus) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Publish delivers the event inline to every listener.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.RUnlock()

	for _, l := range listeners {
		l.HandleEvent(ctx, evt)
	}
}
