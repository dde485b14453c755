package cache

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/colthorp/convocache/internal/core"
)

// Materialize reads every entry in backend and merges them into one
// document keyed by date. An empty or missing cache yields an empty aggregate.
//
// An entry that disappears between listing and reading is skipped; an entry
// that cannot be parsed fails the whole materialization.
func Materialize(backend Backend) (Aggregate, error) {
	days, err := backend.Dates()
	if err != nil {
		return nil, err
	}

	agg := make(Aggregate, len(days))
	for _, day := range days {
		content, err := backend.Read(day)
		if errors.Is(err, ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", core.FormatDate(day), err)
		}
		agg[core.FormatDate(day)] = content
	}

	return agg, nil
}

// Marshal renders the aggregate with keys in ascending date order.
func (a Aggregate) Marshal() ([]byte, error) {
	if a == nil {
		a = Aggregate{}
	}
	// encoding/json sorts map keys, and ISO dates sort chronologically.
	return json.Marshal(map[string]json.RawMessage(a))
}

// WriteFile writes the aggregate to path atomically.
func (a Aggregate) WriteFile(path string) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, append(data, '\n'))
}
