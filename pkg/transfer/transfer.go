package transfer

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/meridianlabs/davsync/pkg/log"
	"github.com/meridianlabs/davsync/pkg/metrics"
	"github.com/meridianlabs/davsync/pkg/queue"
	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/types"
)

// Delegate observes the lifecycle of every transfer a Manager runs. Exactly
// one of DidFinish, DidFail or DidCancel is called per Download, no matter
// how many times Download was called for the same ResourceID while it was
// pending.
type Delegate interface {
	// DidStart is called once a transfer has actually begun (not on a
	// duplicate Download call that joined an existing pending transfer).
	DidStart(id types.ResourceID)
	// DidFinish is called when the body was downloaded and adopted by the
	// Store, carrying the resulting ChangeSet.
	DidFinish(id types.ResourceID, cs types.ChangeSet)
	// DidFail is called when the transfer could not complete.
	DidFail(id types.ResourceID, err error)
	// DidCancel is called when the transfer was cancelled before completion.
	DidCancel(id types.ResourceID)
}

// ExistingTransfer describes a background transfer the host reports as
// still running when a Manager is reconstructed after a process restart.
type ExistingTransfer struct {
	Resource      types.ResourceID
	BytesReceived int64
	BytesExpected int64
}

// PasswordDelegate resolves a credential challenge raised while downloading
// one account's body. Returning ok == false declines the challenge, which
// the Manager treats as a cancellation rather than a failure.
type PasswordDelegate interface {
	NeedsPassword(account types.AccountID) (password string, ok bool)
}

// SessionEnumerator lets a Manager recover in-flight transfers a host's
// background transfer session survived a process restart with. A host that
// cannot report this (most can't) passes nil to New, and every resource is
// simply re-downloaded from scratch on its next Download call.
type SessionEnumerator interface {
	ExistingTransfers(sessionIdentifier string) ([]ExistingTransfer, error)
}

type pendingDownload struct {
	ctx      context.Context
	cancel   context.CancelFunc
	progress types.Progress
	mu       sync.Mutex
}

func (p *pendingDownload) snapshot() types.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progress
}

func (p *pendingDownload) update(completed, total int64) {
	p.mu.Lock()
	p.progress = types.Progress{Completed: completed, Total: total}
	p.mu.Unlock()
}

// Manager runs one account's downloads: it dedups concurrent requests for
// the same resource, bounds how many transfers run at once, and adopts every
// completed body into the Store before reporting success.
type Manager struct {
	account  types.AccountID
	baseURL  string
	client   remote.Client
	store    store.Store
	delegate Delegate
	logger   zerolog.Logger

	sem   *semaphore.Weighted
	queue *queue.Queue

	mu               sync.Mutex
	pending          map[types.ResourceID]*pendingDownload
	passwordDelegate PasswordDelegate
}

// Config configures a new Manager.
type Config struct {
	Account           types.AccountID
	BaseURL           string
	BundleIdentifier  string
	Client            remote.Client
	Store             store.Store
	Delegate          Delegate
	MaxConcurrent     int64
	SessionEnumerator SessionEnumerator
}

// New builds a Manager for one account. If cfg.SessionEnumerator is non-nil,
// New asks it for surviving background transfers under this account's
// session identifier and seeds Manager.pending so a Progress call on one of
// those resources reports real numbers instead of "not found" until the next
// Download call for it completes the handshake.
func New(cfg Config) *Manager {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	m := &Manager{
		account:  cfg.Account,
		baseURL:  cfg.BaseURL,
		client:   cfg.Client,
		store:    cfg.Store,
		delegate: cfg.Delegate,
		logger:   log.WithAccount(cfg.Account),
		sem:      semaphore.NewWeighted(maxConcurrent),
		queue:    queue.New(32),
		pending:  make(map[types.ResourceID]*pendingDownload),
	}

	if cfg.SessionEnumerator != nil {
		sessionID := EncodeSessionIdentifier(cfg.Account, cfg.BundleIdentifier)
		existing, err := cfg.SessionEnumerator.ExistingTransfers(sessionID)
		if err != nil {
			m.logger.Warn().Err(err).Msg("failed to enumerate existing transfers")
		}
		for _, e := range existing {
			ctx, cancel := context.WithCancel(context.Background())
			pd := &pendingDownload{ctx: ctx, cancel: cancel}
			pd.update(e.BytesReceived, e.BytesExpected)
			m.pending[e.Resource] = pd
			cancel() // no live host handle to reattach to; treat as stale bookkeeping only
		}
	}

	return m
}

// SetPasswordDelegate installs the delegate consulted when a download is
// challenged for credentials. Typically the account's resourcemanager.Manager,
// which forwards the challenge to whatever the host installed.
func (m *Manager) SetPasswordDelegate(d PasswordDelegate) {
	m.mu.Lock()
	m.passwordDelegate = d
	m.mu.Unlock()
}

// Download starts a transfer for id, or joins the one already in flight.
// Download never blocks past the dedup check: the network I/O runs on its
// own goroutine so a slow transfer can never stall another resource's
// Download call.
func (m *Manager) Download(ctx context.Context, id types.ResourceID) {
	m.queue.Run(func() {
		if _, exists := m.pending[id]; exists {
			return
		}

		runCtx, cancel := context.WithCancel(ctx)
		pd := &pendingDownload{ctx: runCtx, cancel: cancel}
		m.mu.Lock()
		m.pending[id] = pd
		m.mu.Unlock()

		metrics.PendingDownloadsGauge.WithLabelValues(string(m.account)).Inc()
		m.delegate.DidStart(id)
		go m.run(id, pd)
	})
}

func (m *Manager) run(id types.ResourceID, pd *pendingDownload) {
	if err := m.sem.Acquire(pd.ctx, 1); err != nil {
		m.finish(id, types.ChangeSet{}, err)
		return
	}
	defer m.sem.Release(1)

	timer := metrics.NewTimer()
	url := remote.URL(m.baseURL, id.Path, false)

	onProgress := func(completed, total int64) {
		pd.update(completed, total)
	}
	result, err := m.client.Download(pd.ctx, url, onProgress)
	if err != nil && types.IsKind(err, types.KindAuthenticationRequired) {
		result, err = m.retryWithPassword(pd, url, onProgress)
	}
	timer.ObserveDurationVec(metrics.DownloadDuration, string(m.account), outcomeFor(err))

	if err != nil {
		m.finish(id, types.ChangeSet{}, err)
		return
	}
	if result.Etag == "" {
		m.finish(id, types.ChangeSet{}, types.NewError(types.KindProtocol, "download response missing version", nil))
		os.Remove(result.TemporaryPath)
		return
	}

	cs, err := m.store.MoveFile(result.TemporaryPath, result.Etag, id)
	if err != nil {
		os.Remove(result.TemporaryPath)
		m.finish(id, types.ChangeSet{}, types.NewError(types.KindStorage, "adopt downloaded body", err))
		return
	}

	metrics.DownloadBytesTotal.WithLabelValues(string(m.account)).Add(float64(pd.snapshot().Completed))
	m.finish(id, cs, nil)
}

// retryWithPassword asks the PasswordDelegate for a credential and replays
// the download once with it attached to the context. A nil/absent delegate,
// or a delegate declining the challenge, is treated as cancellation per the
// state machine's "auth challenge -> ask delegate; if nil -> cancel" row.
func (m *Manager) retryWithPassword(pd *pendingDownload, url string, onProgress remote.ProgressFunc) (remote.DownloadResult, error) {
	m.mu.Lock()
	delegate := m.passwordDelegate
	m.mu.Unlock()

	if delegate == nil {
		return remote.DownloadResult{}, types.NewError(types.KindCancelled, "authentication challenge declined", nil)
	}
	password, ok := delegate.NeedsPassword(m.account)
	if !ok {
		return remote.DownloadResult{}, types.NewError(types.KindCancelled, "authentication challenge declined", nil)
	}
	return m.client.Download(remote.WithPassword(pd.ctx, password), url, onProgress)
}

func (m *Manager) finish(id types.ResourceID, cs types.ChangeSet, err error) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()

	metrics.PendingDownloadsGauge.WithLabelValues(string(m.account)).Dec()

	switch {
	case err == nil:
		metrics.DownloadsTotal.WithLabelValues(string(m.account), "success").Inc()
		m.delegate.DidFinish(id, cs)
	case types.IsKind(err, types.KindCancelled) || err == context.Canceled:
		metrics.DownloadsTotal.WithLabelValues(string(m.account), "cancelled").Inc()
		m.delegate.DidCancel(id)
	default:
		metrics.DownloadsTotal.WithLabelValues(string(m.account), "failure").Inc()
		m.logger.Error().Err(err).Msg("download failed")
		m.delegate.DidFail(id, err)
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return "success"
	case types.IsKind(err, types.KindCancelled) || err == context.Canceled:
		return "cancelled"
	default:
		return "failure"
	}
}

// Progress reports an in-flight transfer's byte counters.
func (m *Manager) Progress(id types.ResourceID) (types.Progress, bool) {
	m.mu.Lock()
	pd, ok := m.pending[id]
	m.mu.Unlock()
	if !ok {
		return types.Progress{}, false
	}
	return pd.snapshot(), true
}

// FinishTasksAndInvalidate stops accepting new downloads and waits for every
// in-flight transfer to resolve naturally before returning.
func (m *Manager) FinishTasksAndInvalidate() {
	m.queue.Stop()
	for {
		m.mu.Lock()
		n := len(m.pending)
		m.mu.Unlock()
		if n == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// InvalidateAndCancel cancels every in-flight transfer; each resolves with
// DidCancel shortly afterward.
func (m *Manager) InvalidateAndCancel() {
	m.mu.Lock()
	for _, pd := range m.pending {
		pd.cancel()
	}
	m.mu.Unlock()
	m.queue.Stop()
}

// HandleEvents is invoked by the host when its background transfer session
// reports completed events for sessionIdentifier. This engine has no
// platform-level background session to reattach to, so it simply signals
// completion; a host that does have one calls this to unblock its own
// session-completion handler once Download has reconciled any transfers it
// reported via SessionEnumerator.
func (m *Manager) HandleEvents(sessionIdentifier string, completion func()) {
	completion()
}

