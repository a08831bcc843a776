package vtrack

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roadeye/vtrack/postprocess/result"
	"github.com/samber/lo"
)

// ClassFilter keeps detections of an allowed set of class ids
type ClassFilter struct {
	allowed map[int]struct{}
}

// NewClassFilter returns a filter allowing the given class ids
func NewClassFilter(ids ...int) *ClassFilter {

	allowed := make(map[int]struct{}, len(ids))

	for _, id := range ids {
		allowed[id] = struct{}{}
	}

	return &ClassFilter{allowed: allowed}
}

// ClassFilterFromPreset returns the filter for a named preset
func ClassFilterFromPreset(name string) (*ClassFilter, error) {

	ids, ok := presets[strings.ToLower(strings.TrimSpace(name))]

	if !ok {
		return nil, fmt.Errorf("unknown class preset %q, expected one of %s",
			name, strings.Join(Presets(), ", "))
	}

	return NewClassFilter(ids...), nil
}

// ClassFilterFromNames resolves class names against the model's class list.
// A single name matching a preset returns that preset.
func ClassFilterFromNames(names []string, classNames []string) (*ClassFilter, error) {

	if len(names) == 1 {
		if f, err := ClassFilterFromPreset(names[0]); err == nil {
			return f, nil
		}
	}

	ids := make([]int, 0, len(names))

	for _, name := range names {
		name = strings.TrimSpace(name)

		_, idx, ok := lo.FindIndexOf(classNames, func(c string) bool {
			return strings.EqualFold(c, name)
		})

		if !ok {
			return nil, fmt.Errorf("unknown class name %q", name)
		}

		ids = append(ids, idx)
	}

	return NewClassFilter(ids...), nil
}

// Allowed returns true when the class id passes the filter
func (f *ClassFilter) Allowed(class int) bool {
	_, ok := f.allowed[class]
	return ok
}

// IDs returns the allowed class ids in ascending order
func (f *ClassFilter) IDs() []int {
	ids := lo.Keys(f.allowed)
	sort.Ints(ids)
	return ids
}

// Names returns the allowed class names in id order, ids outside the class
// list are skipped
func (f *ClassFilter) Names(classNames []string) []string {
	return lo.FilterMap(f.IDs(), func(id int, _ int) (string, bool) {
		if id < 0 || id >= len(classNames) {
			return "", false
		}
		return classNames[id], true
	})
}

// Apply returns the detections with an allowed class, keeping input order.
// A nil filter allows everything.
func (f *ClassFilter) Apply(dets []result.DetectResult) []result.DetectResult {

	if f == nil {
		return dets
	}

	return lo.Filter(dets, func(d result.DetectResult, _ int) bool {
		return f.Allowed(d.Class)
	})
}
