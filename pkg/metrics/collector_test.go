package metrics

import (
	"errors"
	"testing"

	"github.com/cuemby/lookout/pkg/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type staticLister struct {
	nodes []types.NodeRecord
	err   error
}

func (s staticLister) List() ([]types.NodeRecord, error) {
	return s.nodes, s.err
}

func TestCollectorCountsBySourceAndApproval(t *testing.T) {
	c := NewCollector(staticLister{nodes: []types.NodeRecord{
		{ID: "a", Discovery: &types.Discovery{Source: types.SourceDiscovered}},
		{ID: "b", Discovery: &types.Discovery{Source: types.SourceDiscovered}},
		{ID: "c", Discovery: &types.Discovery{Source: types.SourceDiscovered, Approved: true}},
		{ID: "d", Discovery: &types.Discovery{Source: types.SourceManual, Approved: true}},
	}}, 0)

	c.Collect()

	if got := testutil.ToFloat64(RegistryNodes.WithLabelValues("discovered", "false")); got != 2 {
		t.Errorf("discovered/unapproved = %v, want 2", got)
	}
	if got := testutil.ToFloat64(RegistryNodes.WithLabelValues("discovered", "true")); got != 1 {
		t.Errorf("discovered/approved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RegistryNodes.WithLabelValues("manual", "true")); got != 1 {
		t.Errorf("manual/approved = %v, want 1", got)
	}
}

func TestCollectorKeepsValuesOnError(t *testing.T) {
	RegistryNodes.WithLabelValues("manual", "false").Set(7)

	NewCollector(staticLister{err: errors.New("registry corrupted")}, 0).Collect()

	if got := testutil.ToFloat64(RegistryNodes.WithLabelValues("manual", "false")); got != 7 {
		t.Errorf("manual/unapproved = %v, want 7", got)
	}
}
