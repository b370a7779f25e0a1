package proxy

import (
	"context"
	"errors"
	"sync"

	"github.com/cuemby/lookout/pkg/types"
	"golang.org/x/sync/semaphore"
)

// NodeSummary is one node's line in the overview
type NodeSummary struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Transport       types.Transport `json:"transport"`
	Approved        bool            `json:"approved"`
	Status          string          `json:"status"`
	Ready           bool            `json:"ready"`
	StreamAvailable bool            `json:"stream_available"`
	Error           string          `json:"error,omitempty"`
}

// Overview aggregates the status of every registered node
type Overview struct {
	Total           int           `json:"total"`
	Unavailable     int           `json:"unavailable"`
	StreamAvailable int           `json:"stream_available"`
	Nodes           []NodeSummary `json:"nodes"`
}

// Overview queries every node with bounded concurrency. A failing node is
// reported in its summary and counted unavailable; it never fails the call.
func (p *Proxy) Overview(ctx context.Context, nodes []types.NodeRecord) (*Overview, error) {
	out := &Overview{
		Total: len(nodes),
		Nodes: make([]NodeSummary, len(nodes)),
	}

	sem := semaphore.NewWeighted(int64(p.concurrency))
	var wg sync.WaitGroup

	for i, rec := range nodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Caller went away; mark the rest unknown
			for j := i; j < len(nodes); j++ {
				out.Nodes[j] = summarize(nodes[j], nil, err)
			}
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			st, err := p.Status(ctx, rec)
			out.Nodes[i] = summarize(rec, st, err)
		}()
	}
	wg.Wait()

	for _, n := range out.Nodes {
		if n.StreamAvailable {
			out.StreamAvailable++
		}
		if n.Status != StatusOnline && n.Status != StatusDegraded {
			out.Unavailable++
		}
	}
	return out, nil
}

func summarize(rec types.NodeRecord, st *Status, err error) NodeSummary {
	s := NodeSummary{
		ID:        rec.ID,
		Name:      rec.Name,
		Transport: rec.Transport,
		Approved:  rec.Approved(),
	}
	if err != nil {
		s.Status = Reason(err)
		s.Error = errorLabel(err)
		return s
	}
	s.Status = st.Status
	s.Ready = st.Ready
	s.StreamAvailable = st.StreamAvailable
	return s
}

// errorLabel returns the sentinel text for err, never the wrapped detail
func errorLabel(err error) string {
	for _, sentinel := range []error{
		ErrNodeUnauthorized,
		ErrNodeUnreachable,
		ErrDockerContainerNotFound,
		ErrTransportUnsupported,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "status unavailable"
}
