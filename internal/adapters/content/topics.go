package content

import "strings"

// KnownTopics are the training-type checkbox labels offered by the platform
// form, spelled exactly as the form shows them.
var KnownTopics = []string{
	"Building Construction",
	"Fire Behavior",
	"Fire Detection, Alarm Systems, Suppression Systems",
	"Fire Extinguishers",
	"Fire Hose Evolutions",
	"Fire Streams and Nozzles",
	"Forcible Entry",
	"Ground Ladders",
	"Salvage and Overhaul",
	"Search and Rescue",
	"Ventilation",
	"VES - Ventilation, Enter, Search",
	"Water Supply (ex. hydrant operations, tender operations, dry hydrants)",
	"Firefighting Tactics and Strategies",
	"Extrication",
}

// CanonicalTopic maps a topic to the platform label. An exact match wins,
// then a case-insensitive match, then a label containing the value or
// contained in it. ok is false when nothing matches.
func CanonicalTopic(v string) (label string, ok bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	lv := strings.ToLower(v)
	for _, t := range KnownTopics {
		if t == v {
			return t, true
		}
	}
	for _, t := range KnownTopics {
		if strings.ToLower(t) == lv {
			return t, true
		}
	}
	for _, t := range KnownTopics {
		lt := strings.ToLower(t)
		if strings.Contains(lt, lv) || strings.Contains(lv, lt) {
			return t, true
		}
	}
	return "", false
}
