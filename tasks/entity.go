package tasks

import (
	"fmt"
	"sync"

	"github.com/seaverlab/tethys/msgs"
)

// UnknownEntity is the sentinel returned by TryResolve for labels that are
// not registered. Entity id 0 is never assigned.
const UnknownEntity uint8 = 0

// EntityInfo describes one registered entity.
type EntityInfo struct {
	ID          uint8
	Name        string
	Task        string
	State       msgs.EntityHealth
	Description string
}

// An EntityRegistry assigns process-unique numeric identifiers to named
// entities and tracks their health.
type EntityRegistry struct {
	mu     sync.Mutex
	byName map[string]uint8
	byID   map[uint8]*EntityInfo
	next   uint8
}

// NewEntityRegistry creates an empty registry. Identifiers start at 1.
func NewEntityRegistry() *EntityRegistry {
	return &EntityRegistry{
		byName: make(map[string]uint8),
		byID:   make(map[uint8]*EntityInfo),
		next:   1,
	}
}

// Reserve registers an entity label for a task and returns its identifier.
// Labels are unique within the process.
func (r *EntityRegistry) Reserve(name, task string) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, found := r.byName[name]; found {
		panic("entity label " + name + " already reserved")
	}
	if r.next == msgs.EntityAny {
		panic("entity identifier space exhausted")
	}

	id := r.next
	r.next++

	r.byName[name] = id
	r.byID[id] = &EntityInfo{
		ID: id, Name: name, Task: task, State: msgs.HealthBoot,
	}

	return id
}

// Resolve maps an entity label configured by another task into its numeric
// identifier. Resolution of an unregistered label is an error.
func (r *EntityRegistry) Resolve(name string) (uint8, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, found := r.byName[name]
	if !found {
		return UnknownEntity, fmt.Errorf("entity label %q is not registered", name)
	}

	return id, nil
}

// TryResolve resolves a label, returning UnknownEntity when it is not
// registered. Used for optional cross-task references.
func (r *EntityRegistry) TryResolve(name string) uint8 {
	id, err := r.Resolve(name)
	if err != nil {
		return UnknownEntity
	}
	return id
}

// Label returns the label of an entity identifier.
func (r *EntityRegistry) Label(id uint8) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, found := r.byID[id]; found {
		return e.Name
	}

	return ""
}

// SetState updates an entity's health.
func (r *EntityRegistry) SetState(id uint8, s msgs.EntityHealth, desc string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, found := r.byID[id]
	if !found {
		return
	}

	e.State = s
	e.Description = desc
}

// Snapshot returns a copy of all entity records in identifier order.
func (r *EntityRegistry) Snapshot() []EntityInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EntityInfo, 0, len(r.byID))
	for id := uint8(1); id < r.next; id++ {
		if e, found := r.byID[id]; found {
			out = append(out, *e)
		}
	}

	return out
}
