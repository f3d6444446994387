package tools

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/overwatch/pkg/agent"
)

// DataLookupName is the registry name of the lookup tool. The planner
// proposes it for tasks that ask for a lookup.
const DataLookupName = "data_lookup"

// Record is one row of the lookup dataset.
type Record struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// DefaultDataset is the synthetic dataset served when none is configured.
var DefaultDataset = []Record{
	{ID: "user-1", Name: "Alice", Status: "active"},
	{ID: "user-2", Name: "Bob", Status: "suspended"},
}

// DataLookup is a read-only lookup over an in-memory dataset.
type DataLookup struct {
	Base
	dataset []Record
}

// NewDataLookup creates the lookup tool. A nil dataset uses DefaultDataset.
func NewDataLookup(dataset []Record) (*DataLookup, error) {
	base, err := NewBase(
		DataLookupName,
		"Returns synthetic account records matching a query.",
		Schema{"query": true},
		Schema{"results": true, "complete": true},
	)
	if err != nil {
		return nil, err
	}
	if dataset == nil {
		dataset = DefaultDataset
	}
	rows := make([]Record, len(dataset))
	copy(rows, dataset)
	return &DataLookup{Base: base, dataset: rows}, nil
}

// Run matches the query case-insensitively against record names and IDs.
func (d *DataLookup) Run(ctx context.Context, payload agent.Payload) (agent.Payload, error) {
	query := strings.ToLower(fmt.Sprint(payload["query"]))

	results := make([]map[string]any, 0)
	for _, row := range d.dataset {
		name, id := strings.ToLower(row.Name), strings.ToLower(row.ID)
		// Free-text queries ("lookup user-1 status") match when they mention
		// a record; short queries ("ali") match as substrings.
		if strings.Contains(name, query) || strings.Contains(id, query) ||
			strings.Contains(query, name) || strings.Contains(query, id) {
			results = append(results, map[string]any{
				"id":     row.ID,
				"name":   row.Name,
				"status": row.Status,
			})
		}
	}

	return agent.Payload{"results": results, "complete": true}, nil
}
