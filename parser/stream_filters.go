package parser

import (
	"errors"
	"fmt"
	"sort"

	"github.com/benoitkugler/pdfcore/model"
	"github.com/benoitkugler/pdfcore/parser/filters"
)

var errFiltersCorrupted = errors.New("corrupted filter expression")

// ParseDirectFilters is the same as ParseFilters, but for direct
// objects, as found in xref stream dicts.
func ParseDirectFilters(filter, decodeParms Object) (model.Filters, error) {
	return ParseFilters(filter, decodeParms, func(o Object) (Object, error) { return o, nil })
}

// ParseFilters processes the given filters and their (optional)
// parameters. `resolver` is called to resolve the potential indirect
// objects. An empty list may be returned if `filter` is nil.
func ParseFilters(filter, decodeParms Object, resolver func(Object) (Object, error)) (model.Filters, error) {
	var err error
	filter, err = resolver(filter)
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return nil, nil
	}
	if _, isNull := filter.(model.ObjNull); isNull {
		return nil, nil
	}

	if filterName, isName := filter.(Name); isName {
		filter = Array{filterName}
	}
	ar, ok := filter.(Array)
	if !ok {
		return nil, errFiltersCorrupted
	}
	var out model.Filters
	for _, name := range ar {
		name, err = resolver(name)
		if err != nil {
			return nil, err
		}
		filterName, isName := name.(Name)
		if !isName {
			return nil, errFiltersCorrupted
		}
		out = append(out, model.Filter{Name: filterName})
	}

	decodeParms, err = resolver(decodeParms)
	if err != nil {
		return nil, err
	}

	switch decodeParms := decodeParms.(type) {
	case Array: // one dict param per filter
		if len(decodeParms) != len(out) {
			return nil, fmt.Errorf("unexpected length for DecodeParms array: %d", len(decodeParms))
		}
		for i, parms := range decodeParms {
			parms, err = resolver(parms)
			if err != nil {
				return nil, err
			}
			out[i].DecodeParms = processOneDecodeParms(parms, resolver)
		}
	case *Dict: // one filter and one dict param
		if len(out) != 1 {
			return nil, fmt.Errorf("DecodeParms as dict only supported for one filter, got %d", len(out))
		}
		out[0].DecodeParms = processOneDecodeParms(decodeParms, resolver)
	case nil: // OK
	case model.ObjNull: // OK
	default:
		return nil, errFiltersCorrupted
	}

	return out, nil
}

func processOneDecodeParms(parms Object, resolver func(Object) (Object, error)) map[string]int {
	parmsDict, _ := parms.(*Dict)
	if parmsDict.Len() == 0 {
		return nil
	}
	parmsModel := make(map[string]int)
	for _, paramName := range parmsDict.Keys() {
		paramVal, err := resolver(parmsDict.Get(paramName))
		if err != nil {
			continue
		}
		var intVal int
		switch val := paramVal.(type) {
		case Bool:
			if val {
				intVal = 1
			}
		case Integer:
			intVal = int(val)
		case Float:
			intVal = int(val)
		default:
			continue
		}
		parmsModel[string(paramName)] = intVal
	}
	return parmsModel
}

// DecodeStream applies the decode transforms of the chain to
// `content`, in order.
func DecodeStream(fs model.Filters, content []byte) ([]byte, error) {
	var err error
	for _, fi := range fs {
		content, err = filters.Decode(string(fi.Name), content, fi.DecodeParms)
		if err != nil {
			return content, fmt.Errorf("filter %s: %w", fi.Name, err)
		}
	}
	return content, nil
}

// EncodeStream applies the encode transforms of the chain to
// `content`, in reverse order, so that DecodeStream restores it.
func EncodeStream(fs model.Filters, content []byte) ([]byte, error) {
	var err error
	for i := len(fs) - 1; i >= 0; i-- {
		fi := fs[i]
		content, err = filters.Encode(string(fi.Name), content, fi.DecodeParms)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", fi.Name, err)
		}
	}
	return content, nil
}

// SkipperFromFilter selects the right EOD skipper.
// An error is returned if and only if the filter has no
// detectable end marker.
func SkipperFromFilter(fi model.Filter) (filters.Skipper, error) {
	return filters.SkipperFor(string(fi.Name), fi.DecodeParms)
}

// BuildStreamDict serializes a filter chain back to the /Filter and
// /DecodeParms entries of a stream dictionary.
func BuildStreamDict(fs model.Filters) (filter Object, decodeParms Object) {
	if len(fs) == 0 {
		return nil, nil
	}
	names := make(Array, len(fs))
	parms := make(Array, len(fs))
	hasParms := false
	for i, fi := range fs {
		names[i] = fi.Name
		if len(fi.DecodeParms) == 0 {
			parms[i] = model.ObjNull{}
			continue
		}
		hasParms = true
		d := model.NewDict()
		// stable output: the keys are sorted
		keys := make([]string, 0, len(fi.DecodeParms))
		for k := range fi.DecodeParms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			d.Set(Name(k), Integer(fi.DecodeParms[k]))
		}
		parms[i] = d
	}
	if len(fs) == 1 {
		filter = names[0]
		if hasParms {
			decodeParms = parms[0]
		}
		return filter, decodeParms
	}
	if hasParms {
		decodeParms = parms
	}
	return names, decodeParms
}
