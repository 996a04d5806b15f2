package project

import (
	"sort"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/autolabel-ai/go-autolabel/models/model"
)

// ClassEntry is one row of the persisted class table.
type ClassEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// classTable is the authoritative id -> name vocabulary of one save
// operation. Label-file class IDs come exclusively from here; detections
// are resolved by name because different families assign IDs differently
// and zero-shot IDs are only valid within a single call.
type classTable struct {
	byID    map[int]string
	byName  map[string]int
	ordered []ClassEntry
}

// buildClassTable establishes the vocabulary for a save. A non-empty client
// class list is authoritative, with IDs assigned by position. Otherwise the
// loaded fixed-vocabulary detector's table applies, IDs preserved gaps and
// all. With neither, the save cannot proceed.
func buildClassTable(clientClasses []string, detectorVocab map[int]string) (*classTable, error) {
	t := &classTable{
		byID:   make(map[int]string),
		byName: make(map[string]int),
	}

	if len(clientClasses) > 0 {
		for id, name := range clientClasses {
			t.byID[id] = name
			t.byName[name] = id
			t.ordered = append(t.ordered, ClassEntry{ID: id, Name: name})
		}
		return t, nil
	}

	if len(detectorVocab) > 0 {
		ids := make([]int, 0, len(detectorVocab))
		for id := range detectorVocab {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			name := detectorVocab[id]
			t.byID[id] = name
			t.byName[name] = id
			t.ordered = append(t.ordered, ClassEntry{ID: id, Name: name})
		}
		return t, nil
	}

	return nil, errors.Wrap(model.ErrConfiguration,
		"no class vocabulary available: supply a class list or load a fixed-vocabulary detector")
}

// Entries returns the class table sorted by id.
func (t *classTable) Entries() []ClassEntry {
	return t.ordered
}

// Resolve maps a detection's class name to its saved class ID. Exact name
// match first, then a case-insensitive scan of the class table, then ID 0.
// The matched entry's own ID is returned so gapped vocabularies never
// resolve to an ID outside the table. The bool reports whether the
// last-resort fallback fired.
func (t *classTable) Resolve(name string) (int, bool) {
	if id, ok := t.byName[name]; ok {
		return id, false
	}

	want := strings.ToLower(strings.TrimSpace(name))
	for _, entry := range t.ordered {
		if strings.ToLower(entry.Name) == want {
			return entry.ID, false
		}
	}

	glog.Warningf("project: class %q not in vocabulary, assigning id 0", name)
	return 0, true
}
