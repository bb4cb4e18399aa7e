// Package scene holds the explicit registry of tracked scene objects. Objects are resolved by
// their stable name through the registry rather than by searching the scene.
package scene

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/InsightXR/recorder/pkg/core"
)

var (
	// ErrDuplicateName is returned when registering a name that is already taken.
	ErrDuplicateName = errors.New("object name already registered")
	// ErrParentCycle is returned when a reparent would make an object its own ancestor.
	ErrParentCycle = errors.New("reparent would create a cycle")
)

// Object is a scene node with a local transform relative to its parent.
type Object struct {
	Name          string
	LocalPosition core.Vector3
	LocalRotation core.Quaternion

	parent *Object
}

// NewObject creates an object at the origin with identity rotation and no parent.
func NewObject(name string) *Object {
	return &Object{Name: name, LocalRotation: core.IdentityRotation()}
}

// Parent returns the object's parent, or nil when attached to the scene root.
func (o *Object) Parent() *Object {
	return o.parent
}

// ParentLabel returns the parent's name, or core.WorldParent when there is none.
func (o *Object) ParentLabel() string {
	if o.parent == nil {
		return core.WorldParent
	}
	return o.parent.Name
}

// SetParent attaches o to parent (nil detaches it to the scene root).
func (o *Object) SetParent(parent *Object) error {
	for p := parent; p != nil; p = p.parent {
		if p == o {
			return fmt.Errorf("%w: %s under %s", ErrParentCycle, o.Name, parent.Name)
		}
	}
	o.parent = parent
	return nil
}

// Snapshot captures the object's current local transform.
func (o *Object) Snapshot() core.TransformSnapshot {
	return core.TransformSnapshot{
		Position: o.LocalPosition,
		Rotation: o.LocalRotation.Normalize(),
		Parent:   o.ParentLabel(),
	}
}

// Registry indexes scene objects by name.
type Registry struct {
	mu      sync.RWMutex
	objects map[string]*Object
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{objects: make(map[string]*Object)}
}

// Register adds o under its name.
func (r *Registry) Register(o *Object) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[o.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateName, o.Name)
	}
	r.objects[o.Name] = o
	return nil
}

// Lookup resolves an object by name.
func (r *Registry) Lookup(name string) (*Object, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.objects[name]
	return o, ok
}

// Remove drops name from the registry. Children of the removed object are reattached to the root.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed, ok := r.objects[name]
	if !ok {
		return
	}
	delete(r.objects, name)
	for _, o := range r.objects {
		if o.parent == removed {
			o.parent = nil
		}
	}
}

// Names returns every registered name in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.objects))
	for name := range r.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered objects.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
