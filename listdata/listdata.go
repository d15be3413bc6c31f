// Package listdata decodes schema-prefixed bulk payloads (used for
// initial room population and friend/roommate lists) into typed session
// records. It mirrors the assets+descriptions join idea in spirit: a
// compact auxiliary structure (the schema) describes how to interpret a
// parallel array of bulk records.
package listdata

import (
	"fmt"

	"github.com/corvid-labs/modelwire/registry"
)

// slot is one flattened schema position: a top-level property name, or
// a (bag, prop) pair for a nested sub-bag.
type slot struct {
	bag  string
	prop string
}

// Decode interprets payload as either an already-structured value (a
// map, passed through unchanged as a single record) or a schema-led
// bulk array: payload[0] is the schema descriptor, payload[1:] are
// records aligned to the flattened schema by index.
func Decode(payload any) ([]*registry.SessionState, error) {
	arr, ok := payload.([]any)
	if !ok {
		m, ok := payload.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("listdata: payload is neither an array nor a map (%T)", payload)
		}
		return []*registry.SessionState{fromMap(m)}, nil
	}
	if len(arr) == 0 {
		return nil, nil
	}

	slots, err := flattenSchema(arr[0])
	if err != nil {
		return nil, err
	}

	out := make([]*registry.SessionState, 0, len(arr)-1)
	for _, rec := range arr[1:] {
		recArr, ok := rec.([]any)
		if !ok {
			if m, ok := rec.(map[string]any); ok {
				out = append(out, fromMap(m))
			}
			// A record that is neither an array nor a map is skipped.
			continue
		}
		out = append(out, populate(slots, recArr))
	}
	return out, nil
}

// flattenSchema expands a schema descriptor array into slots. A string
// element becomes one top-level slot; a single-key mapping {bag:
// [prop, ...]} becomes one slot per listed sub-property.
func flattenSchema(schema any) ([]slot, error) {
	elems, ok := schema.([]any)
	if !ok {
		return nil, fmt.Errorf("listdata: schema descriptor is not an array (%T)", schema)
	}

	var slots []slot
	for _, e := range elems {
		switch v := e.(type) {
		case string:
			slots = append(slots, slot{prop: v})
		case map[string]any:
			for bag, propsAny := range v {
				props, ok := propsAny.([]any)
				if !ok {
					return nil, fmt.Errorf("listdata: bag %q schema entry is not an array", bag)
				}
				for _, p := range props {
					ps, ok := p.(string)
					if !ok {
						return nil, fmt.Errorf("listdata: bag %q has a non-string property name", bag)
					}
					slots = append(slots, slot{bag: bag, prop: ps})
				}
			}
		default:
			return nil, fmt.Errorf("listdata: schema element is neither a string nor a mapping (%T)", e)
		}
	}
	return slots, nil
}

// populate assigns record values to slots by index. Extra slots beyond
// len(record) are left unset; extra record values beyond len(slots) are
// dropped (a genuine production build would log this; in-process we
// simply discard the excess).
func populate(slots []slot, record []any) *registry.SessionState {
	s := registry.NewSessionState()
	n := len(slots)
	if len(record) < n {
		n = len(record)
	}
	for i := 0; i < n; i++ {
		sl := slots[i]
		val := record[i]
		if sl.bag == "" {
			s.Fields[sl.prop] = val
			continue
		}
		bag, ok := s.Fields[sl.bag].(map[string]any)
		if !ok {
			bag = make(map[string]any)
			s.Fields[sl.bag] = bag
		}
		bag[sl.prop] = val
	}
	return s
}

func fromMap(m map[string]any) *registry.SessionState {
	s := registry.NewSessionState()
	for k, v := range m {
		s.Fields[k] = v
	}
	return s
}
