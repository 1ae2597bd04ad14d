package service

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/meridianlabs/davsync/pkg/events"
	"github.com/meridianlabs/davsync/pkg/log"
	"github.com/meridianlabs/davsync/pkg/metrics"
	"github.com/meridianlabs/davsync/pkg/queue"
	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/resourcemanager"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/transfer"
	"github.com/meridianlabs/davsync/pkg/types"
)

// ClientFactory builds the remote protocol client for one account. The
// Facade calls it exactly once per account, the first time that account's
// Resource Manager is referenced.
type ClientFactory func(account types.Account) remote.Client

// PasswordDelegate resolves a credential challenge raised for an account.
// Installed by the host application; a Facade with none installed declines
// every challenge, which the Transfer Layer treats as a cancellation.
type PasswordDelegate interface {
	NeedsPassword(account types.Account) (password string, ok bool)
}

// Config configures a new Facade.
type Config struct {
	Store                  store.Store
	ClientFactory          ClientFactory
	BundleIdentifier       string
	MaxConcurrentDownloads int64
	SessionEnumerator      transfer.SessionEnumerator
}

type accountManagers struct {
	resourceManager *resourcemanager.Manager
	transfer        *transfer.Manager
}

// Facade is the process-wide registry of accounts and their per-account
// Resource Manager / Transfer Manager pair. See package doc for the
// architecture and concurrency model.
type Facade struct {
	cfg    Config
	store  store.Store
	broker *events.Broker
	queue  *queue.Queue
	logger zerolog.Logger

	mu               sync.Mutex
	managers         map[types.AccountID]*accountManagers
	passwordDelegate PasswordDelegate
}

// New builds an unstarted Facade. Call Start before using it.
func New(cfg Config) *Facade {
	return &Facade{
		cfg:      cfg,
		store:    cfg.Store,
		broker:   events.NewBroker(),
		queue:    queue.New(32),
		logger:   log.WithComponent("service"),
		managers: make(map[types.AccountID]*accountManagers),
	}
}

// Start begins publishing events to subscribers.
func (f *Facade) Start() {
	f.broker.Start()
}

// Stop drains every account's Resource Manager and Transfer Manager, then
// the Facade's own queue and event broker. In-flight downloads are allowed
// to finish; no new reconciles are accepted once Stop returns.
func (f *Facade) Stop() {
	f.mu.Lock()
	managers := make([]*accountManagers, 0, len(f.managers))
	for _, am := range f.managers {
		managers = append(managers, am)
	}
	f.mu.Unlock()

	for _, am := range managers {
		am.resourceManager.Stop()
		am.transfer.FinishTasksAndInvalidate()
	}
	f.queue.Stop()
	f.broker.Stop()
}

// Events returns the broker subscribers register with to receive account
// lifecycle and resource-change notifications.
func (f *Facade) Events() *events.Broker {
	return f.broker
}

// SetPasswordDelegate installs the delegate consulted when any account's
// downloads are challenged for credentials.
func (f *Facade) SetPasswordDelegate(d PasswordDelegate) {
	f.mu.Lock()
	f.passwordDelegate = d
	f.mu.Unlock()
}

// NeedsPassword implements resourcemanager.PasswordDelegate, resolving the
// account and forwarding the challenge to the installed PasswordDelegate.
func (f *Facade) NeedsPassword(accountID types.AccountID) (string, bool) {
	account, err := f.store.Account(accountID)
	if err != nil || account == nil {
		return "", false
	}
	f.mu.Lock()
	d := f.passwordDelegate
	f.mu.Unlock()
	if d == nil {
		return "", false
	}
	return d.NeedsPassword(*account)
}

// DidChange implements resourcemanager.Delegate, publishing every
// non-empty ChangeSet a Resource Manager produces.
func (f *Facade) DidChange(account types.AccountID, cs types.ChangeSet) {
	f.publishChanges(account, cs)
}

// ---- account CRUD, forwarded to the Store and published to the broker ----

// AddAccount registers a new account and publishes AccountAdded.
func (f *Facade) AddAccount(baseURL, username, label string) (types.Account, error) {
	var account types.Account
	var err error
	f.queue.Run(func() {
		account, err = f.store.AddAccount(baseURL, username, label)
	})
	if err != nil {
		return types.Account{}, err
	}
	metrics.AccountsTotal.Inc()
	f.broker.Publish(&events.Event{Type: events.AccountAdded, Account: account})
	return account, nil
}

// UpdateAccount edits an account's label and publishes AccountUpdated.
func (f *Facade) UpdateAccount(id types.AccountID, label string) (types.Account, error) {
	var account types.Account
	var err error
	f.queue.Run(func() {
		account, err = f.store.UpdateAccount(id, label)
	})
	if err != nil {
		return types.Account{}, err
	}
	f.broker.Publish(&events.Event{Type: events.AccountUpdated, Account: account})
	return account, nil
}

// RemoveAccount deletes an account, tears down its Resource Manager and
// Transfer Manager if any were created, and publishes AccountRemoved.
func (f *Facade) RemoveAccount(id types.AccountID) error {
	var err error
	f.queue.Run(func() {
		err = f.store.RemoveAccount(id)
		if err == nil {
			f.teardown(id)
		}
	})
	if err != nil {
		return err
	}
	metrics.AccountsTotal.Dec()
	f.broker.Publish(&events.Event{Type: events.AccountRemoved, Account: types.Account{ID: id}})
	return nil
}

func (f *Facade) teardown(id types.AccountID) {
	f.mu.Lock()
	am, ok := f.managers[id]
	delete(f.managers, id)
	f.mu.Unlock()
	if !ok {
		return
	}
	am.resourceManager.Stop()
	am.transfer.InvalidateAndCancel()
}

// Accounts returns every registered account in insertion order.
func (f *Facade) Accounts() ([]types.Account, error) {
	return f.store.Accounts()
}

// Resource returns the resource at path, or nil if none exists.
func (f *Facade) Resource(account types.AccountID, path types.Path) (*types.Resource, error) {
	return f.store.Resource(account, path)
}

// Contents returns the direct children of path.
func (f *Facade) Contents(account types.AccountID, path types.Path) ([]types.Resource, error) {
	return f.store.Contents(account, path)
}

// Progress reports an in-flight download's byte counters, if one exists for
// id's account and the account's Resource Manager has been referenced at
// least once.
func (f *Facade) Progress(id types.ResourceID) (types.Progress, bool) {
	f.mu.Lock()
	am, ok := f.managers[id.Account]
	f.mu.Unlock()
	if !ok {
		return types.Progress{}, false
	}
	return am.transfer.Progress(id)
}

// UpdateResource routes a reconcile request to the target account's
// Resource Manager, lazily creating it (and its Transfer Manager) on first
// reference.
func (f *Facade) UpdateResource(ctx context.Context, account types.AccountID, path types.Path) (types.ChangeSet, error) {
	am, err := f.managerFor(account)
	if err != nil {
		return types.ChangeSet{}, err
	}
	return am.resourceManager.UpdateResource(ctx, path)
}

func (f *Facade) managerFor(id types.AccountID) (*accountManagers, error) {
	f.mu.Lock()
	am, ok := f.managers[id]
	f.mu.Unlock()
	if ok {
		return am, nil
	}

	var result *accountManagers
	var resultErr error
	f.queue.Run(func() {
		f.mu.Lock()
		if existing, ok := f.managers[id]; ok {
			f.mu.Unlock()
			result = existing
			return
		}
		f.mu.Unlock()

		account, err := f.store.Account(id)
		if err != nil {
			resultErr = err
			return
		}
		if account == nil {
			resultErr = types.NewError(types.KindInvalidArgument, "unknown account", nil)
			return
		}

		client := f.cfg.ClientFactory(*account)
		tm := transfer.New(transfer.Config{
			Account:           id,
			BaseURL:           account.BaseURL,
			BundleIdentifier:  f.cfg.BundleIdentifier,
			Client:            client,
			Store:             f.store,
			Delegate:          &transferDelegate{facade: f, account: id},
			MaxConcurrent:     f.cfg.MaxConcurrentDownloads,
			SessionEnumerator: f.cfg.SessionEnumerator,
		})
		rm := resourcemanager.New(resourcemanager.Config{
			Account:  id,
			BaseURL:  account.BaseURL,
			Client:   client,
			Store:    f.store,
			Transfer: tm,
			Delegate: f,
		})
		rm.SetPasswordDelegate(f)

		created := &accountManagers{resourceManager: rm, transfer: tm}
		f.mu.Lock()
		f.managers[id] = created
		f.mu.Unlock()
		result = created
	})
	return result, resultErr
}

func (f *Facade) publishChanges(account types.AccountID, cs types.ChangeSet) {
	if cs.Empty() {
		return
	}
	a := types.Account{ID: account}
	if acct, err := f.store.Account(account); err == nil && acct != nil {
		a = *acct
	}
	f.broker.Publish(&events.Event{Type: events.ResourcesChanged, Account: a, Changes: cs})
}

// transferDelegate adapts transfer.Manager's per-download lifecycle
// callbacks onto the Facade's event broker and logger.
type transferDelegate struct {
	facade  *Facade
	account types.AccountID
}

func (d *transferDelegate) DidStart(id types.ResourceID) {
	d.facade.logger.Debug().Str("path", log.PathString(id.Path)).Msg("download started")
}

func (d *transferDelegate) DidFinish(id types.ResourceID, cs types.ChangeSet) {
	d.facade.publishChanges(d.account, cs)
}

func (d *transferDelegate) DidFail(id types.ResourceID, err error) {
	d.facade.logger.Error().Err(err).Str("path", log.PathString(id.Path)).Msg("download failed")
}

func (d *transferDelegate) DidCancel(id types.ResourceID) {
	d.facade.logger.Debug().Str("path", log.PathString(id.Path)).Msg("download cancelled")
}
