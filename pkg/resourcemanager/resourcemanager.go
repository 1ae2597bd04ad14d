package resourcemanager

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/davsync/pkg/log"
	"github.com/meridianlabs/davsync/pkg/metrics"
	"github.com/meridianlabs/davsync/pkg/queue"
	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/transfer"
	"github.com/meridianlabs/davsync/pkg/types"
)

// Delegate observes every change set a Manager's reconciles produce. It is
// invoked once per reconcile that reaches a Store mutation; UpdateResource
// calls that coalesced onto an in-flight one share that single invocation.
type Delegate interface {
	DidChange(account types.AccountID, cs types.ChangeSet)
}

// PasswordDelegate resolves a credential challenge raised for this
// account's account. Installed by whatever owns the Manager (normally the
// service facade, forwarding to the host's own delegate); nil declines
// every challenge.
type PasswordDelegate interface {
	NeedsPassword(account types.AccountID) (password string, ok bool)
}

// Downloader is the subset of transfer.Manager a Manager needs: scheduling a
// body download by ResourceID. Satisfied by *transfer.Manager.
type Downloader interface {
	Download(ctx context.Context, id types.ResourceID)
	SetPasswordDelegate(d transfer.PasswordDelegate)
}

// Config configures a new Manager.
type Config struct {
	Account  types.AccountID
	BaseURL  string
	Client   remote.Client
	Store    store.Store
	Transfer Downloader
	Delegate Delegate
}

type call struct {
	done chan struct{}
	cs   types.ChangeSet
	err  error
}

// Manager drives one account's resource tree toward consistency with its
// remote and schedules body downloads for whatever the reconcile turns up
// as missing or stale. See package doc for the reconcile algorithm and
// concurrency model.
type Manager struct {
	account  types.AccountID
	baseURL  string
	client   remote.Client
	store    store.Store
	transfer Downloader
	delegate Delegate
	logger   zerolog.Logger
	queue    *queue.Queue

	mu               sync.Mutex
	inflight         map[string]*call
	passwordDelegate PasswordDelegate
}

// New builds a Manager for one account and registers it as cfg.Transfer's
// password delegate, so a download's credential challenge flows back
// through this Manager to whatever SetPasswordDelegate installs later.
func New(cfg Config) *Manager {
	m := &Manager{
		account:  cfg.Account,
		baseURL:  cfg.BaseURL,
		client:   cfg.Client,
		store:    cfg.Store,
		transfer: cfg.Transfer,
		delegate: cfg.Delegate,
		logger:   log.WithAccount(cfg.Account),
		queue:    queue.New(32),
		inflight: make(map[string]*call),
	}
	if cfg.Transfer != nil {
		cfg.Transfer.SetPasswordDelegate(m)
	}
	return m
}

// SetPasswordDelegate installs the delegate consulted when this account's
// downloads are challenged for credentials.
func (m *Manager) SetPasswordDelegate(d PasswordDelegate) {
	m.mu.Lock()
	m.passwordDelegate = d
	m.mu.Unlock()
}

// NeedsPassword implements transfer.PasswordDelegate by forwarding the
// challenge to whatever PasswordDelegate this Manager was given. A Manager
// with no PasswordDelegate installed declines every challenge.
func (m *Manager) NeedsPassword(account types.AccountID) (string, bool) {
	m.mu.Lock()
	d := m.passwordDelegate
	m.mu.Unlock()
	if d == nil {
		return "", false
	}
	return d.NeedsPassword(account)
}

// UpdateResource reconciles the resource at path: it resolves the remote
// URL, fetches properties, applies the diff to the Store, publishes the
// resulting ChangeSet to the Delegate, and schedules downloads for whatever
// the ChangeSet says needs one. A call that arrives while path is already
// being reconciled does not trigger a second remote fetch: it waits for and
// returns the in-flight call's outcome.
func (m *Manager) UpdateResource(ctx context.Context, path types.Path) (types.ChangeSet, error) {
	key := log.PathString(path)

	m.mu.Lock()
	if c, ok := m.inflight[key]; ok {
		m.mu.Unlock()
		<-c.done
		return c.cs, c.err
	}
	c := &call{done: make(chan struct{})}
	m.inflight[key] = c
	m.mu.Unlock()

	m.queue.Run(func() {
		c.cs, c.err = m.reconcile(ctx, path)
	})

	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
	close(c.done)

	return c.cs, c.err
}

// Stop drains the Manager's per-account queue, waiting for any in-flight
// reconcile to finish.
func (m *Manager) Stop() {
	m.queue.Stop()
}

func (m *Manager) reconcile(ctx context.Context, path types.Path) (types.ChangeSet, error) {
	timer := metrics.NewTimer()

	existing, _ := m.store.Resource(m.account, path)
	trailingSlash := existing == nil || existing.IsCollection
	url := remote.URL(m.baseURL, path, trailingSlash)

	result, err := m.client.RetrieveProperties(ctx, url)
	if err != nil {
		timer.ObserveDurationVec(metrics.ReconcileDuration, string(m.account))
		metrics.ReconcileCyclesTotal.WithLabelValues(string(m.account), outcomeFor(err)).Inc()
		m.logger.Error().Err(err).Str("path", log.PathString(path)).Msg("remote property fetch failed")
		return types.ChangeSet{}, err
	}

	var cs types.ChangeSet
	if result.NotFound {
		cs, err = m.store.Update(m.account, path, nil, nil)
	} else {
		self := result.Self
		cs, err = m.store.Update(m.account, path, &self, result.Children)
	}
	timer.ObserveDurationVec(metrics.ReconcileDuration, string(m.account))
	if err != nil {
		metrics.ReconcileCyclesTotal.WithLabelValues(string(m.account), "failure").Inc()
		return types.ChangeSet{}, err
	}
	metrics.ReconcileCyclesTotal.WithLabelValues(string(m.account), "success").Inc()
	metrics.ChangeSetSize.WithLabelValues(string(m.account), "insertedOrUpdated").Observe(float64(len(cs.InsertedOrUpdated)))
	metrics.ChangeSetSize.WithLabelValues(string(m.account), "deleted").Observe(float64(len(cs.Deleted)))

	if m.delegate != nil {
		m.delegate.DidChange(m.account, cs)
	}
	m.scheduleDownloads(ctx, cs)

	return cs, nil
}

// scheduleDownloads requests a body download for every non-collection
// resource the reconcile touched whose cached body is missing or no longer
// matches the version the property write just recorded.
func (m *Manager) scheduleDownloads(ctx context.Context, cs types.ChangeSet) {
	if m.transfer == nil {
		return
	}
	for _, r := range cs.InsertedOrUpdated {
		if r.IsCollection {
			continue
		}
		if r.FileState.Kind == types.FilePresent && r.FileState.StoredVersion == r.Version {
			continue
		}
		m.transfer.Download(ctx, r.ID())
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case types.IsKind(err, types.KindCancelled):
		return "cancelled"
	default:
		return "failure"
	}
}
