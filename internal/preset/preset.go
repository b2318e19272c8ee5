// Package preset holds named groups of service descriptors.
package preset

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/hazz-dev/devprobe/internal/checker"
)

// All names the union of every registered preset.
const All = "all"

// ErrUnknownPreset is matched by errors.Is for every UnknownPresetError.
var ErrUnknownPreset = errors.New("unknown preset")

// UnknownPresetError reports a preset name the registry does not hold.
type UnknownPresetError struct {
	Name      string
	Available []string
}

func (e *UnknownPresetError) Error() string {
	return fmt.Sprintf("unknown preset %q (available: %s)", e.Name, strings.Join(e.Available, ", "))
}

func (e *UnknownPresetError) Is(target error) bool {
	return target == ErrUnknownPreset
}

// Registry maps preset names to ordered descriptor lists. It is immutable
// after construction and safe for concurrent use.
type Registry struct {
	presets map[string][]checker.Descriptor
	names   []string
}

// New validates and copies the presets.
func New(presets map[string][]checker.Descriptor) (*Registry, error) {
	r := &Registry{presets: make(map[string][]checker.Descriptor, len(presets))}

	var errs error
	for name, descriptors := range presets {
		if strings.TrimSpace(name) == "" {
			errs = multierr.Append(errs, errors.New("preset name must not be empty"))
			continue
		}
		if name == All {
			errs = multierr.Append(errs, fmt.Errorf("preset name %q is reserved", All))
			continue
		}
		for i, d := range descriptors {
			if err := d.Validate(); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("preset %q service[%d]: %w", name, i, err))
			}
		}
		r.presets[name] = slices.Clone(descriptors)
		r.names = append(r.names, name)
	}
	if errs != nil {
		return nil, errs
	}

	sort.Strings(r.names)
	return r, nil
}

// Default returns a registry holding the built-in presets.
func Default() *Registry {
	r, err := New(Defaults())
	if err != nil {
		panic(fmt.Sprintf("preset: built-in presets invalid: %v", err))
	}
	return r
}

// Resolve returns a copy of the named preset's descriptors in declared
// order. "all" expands to every preset in name order.
func (r *Registry) Resolve(name string) ([]checker.Descriptor, error) {
	if name == All {
		var out []checker.Descriptor
		for _, n := range r.names {
			out = append(out, r.presets[n]...)
		}
		return out, nil
	}
	descriptors, ok := r.presets[name]
	if !ok {
		return nil, &UnknownPresetError{Name: name, Available: r.List()}
	}
	return slices.Clone(descriptors), nil
}

// List returns the preset names in sorted order, excluding "all".
func (r *Registry) List() []string {
	return slices.Clone(r.names)
}

// Has reports whether name resolves, counting "all".
func (r *Registry) Has(name string) bool {
	if name == All {
		return true
	}
	_, ok := r.presets[name]
	return ok
}
