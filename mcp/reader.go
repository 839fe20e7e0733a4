package mcp

import (
	"github.com/zen-cli/zen/workflow"
)

// RefStore is the narrow subset of store.Store the MCP server needs to read
// workflow Records back out of the ref namespace; it never writes.
type RefStore interface {
	ListRefs(prefix string) ([]string, error)
	ReadRef(name string, dest any) (bool, error)
}

// StateReader reads workflow Records from a RefStore, mirroring the
// teacher's StateReader (mcp/state.go) reading instances out of
// state.json — generalized from a flat file to the ref namespace.
type StateReader struct {
	store RefStore
}

// NewStateReader creates a StateReader over store.
func NewStateReader(store RefStore) *StateReader {
	return &StateReader{store: store}
}

// ReadWorkflows returns every workflow Record currently persisted.
func (r *StateReader) ReadWorkflows() ([]workflow.Record, error) {
	refs, err := r.store.ListRefs("workflows/")
	if err != nil {
		return nil, err
	}

	var out []workflow.Record
	for _, ref := range refs {
		var rec workflow.Record
		ok, err := r.store.ReadRef(ref, &rec)
		if err != nil || !ok {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// ReadWorkflow returns the Record for a single workflow id.
func (r *StateReader) ReadWorkflow(id string) (workflow.Record, bool, error) {
	var rec workflow.Record
	ok, err := r.store.ReadRef("workflows/"+id, &rec)
	return rec, ok, err
}

