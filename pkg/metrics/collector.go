package metrics

import (
	"time"

	"github.com/meridianlabs/davsync/pkg/types"
)

// AccountStore is the subset of store.Store the Collector reads. Satisfied
// by *store.BoltStore; kept narrow here (rather than importing pkg/store
// directly) only because pkg/store has no dependency on pkg/metrics to
// begin with, so the narrower interface costs nothing and keeps this
// package's import graph a leaf either way.
type AccountStore interface {
	Accounts() ([]types.Account, error)
	Stats(account types.AccountID) (total int, dirty int, err error)
}

// Collector periodically snapshots the Store into the package's gauges.
type Collector struct {
	store  AccountStore
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over store.
func NewCollector(store AccountStore) *Collector {
	return &Collector{
		store:  store,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15 second tick, collecting
// immediately on the calling goroutine before returning.
func (c *Collector) Start() {
	c.collect()

	ticker := time.NewTicker(15 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	accounts, err := c.store.Accounts()
	if err != nil {
		return
	}

	AccountsTotal.Set(float64(len(accounts)))

	for _, account := range accounts {
		total, dirty, err := c.store.Stats(account.ID)
		if err != nil {
			continue
		}
		ResourcesTotal.WithLabelValues(string(account.ID)).Set(float64(total))
		DirtyResourcesTotal.WithLabelValues(string(account.ID)).Set(float64(dirty))
	}
}
