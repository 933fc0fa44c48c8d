package minicad

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/okian/trainingbot/internal/domain/model"
	"github.com/okian/trainingbot/internal/domain/roster"
)

var (
	listKeys  = []string{"Results", "results", "Data", "data", "Items", "items", "value", "Value", "rows", "Rows", "Units", "units"}
	unitKeys  = []string{"UnitName", "unit", "Unit", "Name"}
	staffKeys = []string{"Staff", "Personnel", "staff", "personnel"}
	idKeys    = []string{"EmployeeID", "EmployeeId", "ID", "Id", "id"}
)

// Parse decodes a feed payload into a roster. The payload is either an array
// of unit objects or an object holding that array under a well-known key.
// Staff are strings, objects with name fields, or one ';' separated string.
func Parse(body []byte) (roster.Roster, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return roster.Roster{}, fmt.Errorf("%w: feed payload is not JSON: %w", model.ErrFormat, err)
	}

	units := unitList(doc)
	if units == nil {
		return roster.Roster{}, fmt.Errorf("%w: cannot locate the unit list in the feed payload", model.ErrFormat)
	}

	var out roster.Roster
	for _, raw := range units {
		obj, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := firstString(obj, unitKeys)
		if name == "" {
			continue
		}
		people := staff(name, firstValue(obj, staffKeys))
		if len(people) == 0 {
			continue
		}
		out.Units = append(out.Units, roster.Unit{Name: name, Personnel: people})
	}
	if len(out.Units) == 0 {
		return roster.Roster{}, fmt.Errorf("%w: feed has zero staffed units", model.ErrFormat)
	}
	return out, nil
}

func unitList(doc any) []any {
	switch v := doc.(type) {
	case []any:
		return v
	case map[string]any:
		for _, k := range listKeys {
			if l, ok := v[k].([]any); ok && isObjectList(l) {
				return l
			}
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if l, ok := v[k].([]any); ok && isObjectList(l) {
				return l
			}
		}
	}
	return nil
}

func isObjectList(l []any) bool {
	if len(l) == 0 {
		return false
	}
	_, ok := l[0].(map[string]any)
	return ok
}

func staff(unit string, v any) []model.PersonnelRecord {
	var entries []any
	switch s := v.(type) {
	case string:
		for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '\n' }) {
			entries = append(entries, part)
		}
	case []any:
		entries = s
	default:
		return nil
	}

	seen := map[string]bool{}
	var out []model.PersonnelRecord
	for _, e := range entries {
		p, ok := person(unit, e)
		if !ok || seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func person(unit string, e any) (model.PersonnelRecord, bool) {
	switch v := e.(type) {
	case string:
		name := roster.NormalizeName(v)
		if name == "" {
			return model.PersonnelRecord{}, false
		}
		return model.PersonnelRecord{ID: name, Name: name, Unit: unit}, true
	case map[string]any:
		raw := firstString(v, []string{"FullName", "fullName", "Name", "name"})
		if raw == "" {
			first := firstString(v, []string{"FirstName", "firstName", "First"})
			last := firstString(v, []string{"LastName", "lastName", "Last"})
			if last != "" {
				raw = last + ", " + first
			} else {
				raw = first
			}
		}
		name := roster.NormalizeName(raw)
		if name == "" {
			return model.PersonnelRecord{}, false
		}
		id := firstString(v, idKeys)
		if id == "" {
			id = name
		}
		fields := map[string]string{}
		for k, val := range v {
			if s, ok := scalar(val); ok {
				fields[k] = s
			}
		}
		return model.PersonnelRecord{ID: id, Name: name, Unit: unit, Fields: fields}, true
	}
	return model.PersonnelRecord{}, false
}

func firstValue(obj map[string]any, keys []string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := scalar(obj[k]); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}
