// Package registry keeps the set of triggers a daemon is running, by name.
package registry

import (
	"errors"
	"fmt"
	"slices"

	"github.com/alphadose/haxmap"
	"github.com/casualjim/hubtrigger/trigger"
)

// ErrDuplicate is returned when a trigger name is already taken.
var ErrDuplicate = errors.New("duplicate trigger name")

type Triggers struct {
	values *haxmap.Map[string, *trigger.Trigger]
}

func New() *Triggers {
	return &Triggers{
		values: haxmap.New[string, *trigger.Trigger](),
	}
}

// Add stores t under its name unless the name is in use.
func (r *Triggers) Add(t *trigger.Trigger) error {
	if t == nil {
		return errors.New("trigger cannot be nil")
	}
	if t.Name == "" {
		return errors.New("trigger name cannot be empty")
	}
	if _, loaded := r.values.GetOrSet(t.Name, t); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicate, t.Name)
	}
	return nil
}

func (r *Triggers) Get(name string) (*trigger.Trigger, bool) {
	return r.values.Get(name)
}

// Del removes and stops the trigger called name.
func (r *Triggers) Del(name string) {
	if t, ok := r.values.GetAndDel(name); ok {
		t.Stop()
	}
}

func (r *Triggers) Len() int {
	return int(r.values.Len())
}

// Names returns the registered names in sorted order.
func (r *Triggers) Names() []string {
	names := make([]string, 0, r.Len())
	r.values.ForEach(func(name string, _ *trigger.Trigger) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

// StopAll stops and removes every trigger.
func (r *Triggers) StopAll() {
	for _, name := range r.Names() {
		r.Del(name)
	}
}
