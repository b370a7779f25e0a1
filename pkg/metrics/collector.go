package metrics

import (
	"strconv"
	"time"

	"github.com/cuemby/lookout/pkg/types"
)

// NodeLister is the registry view the collector needs
type NodeLister interface {
	List() ([]types.NodeRecord, error)
}

// Collector periodically refreshes registry gauges
type Collector struct {
	nodes    NodeLister
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(nodes NodeLister, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		nodes:    nodes,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect refreshes the registry gauges once. A registry error leaves the
// previous values in place.
func (c *Collector) Collect() {
	nodes, err := c.nodes.List()
	if err != nil {
		return
	}

	counts := map[[2]string]int{
		{string(types.SourceDiscovered), "true"}:  0,
		{string(types.SourceDiscovered), "false"}: 0,
		{string(types.SourceManual), "true"}:      0,
		{string(types.SourceManual), "false"}:     0,
	}
	for _, n := range nodes {
		source := string(types.SourceManual)
		if n.Discovery != nil {
			source = string(n.Discovery.Source)
		}
		counts[[2]string{source, strconv.FormatBool(n.Approved())}]++
	}

	for key, count := range counts {
		RegistryNodes.WithLabelValues(key[0], key[1]).Set(float64(count))
	}
}
