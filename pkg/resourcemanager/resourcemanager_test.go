package resourcemanager

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/transfer"
	"github.com/meridianlabs/davsync/pkg/types"
)

type fakeDelegate struct {
	mu      sync.Mutex
	changes []types.ChangeSet
}

func (d *fakeDelegate) DidChange(_ types.AccountID, cs types.ChangeSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.changes = append(d.changes, cs)
}

func (d *fakeDelegate) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.changes)
}

type fakeDownloader struct {
	mu        sync.Mutex
	requested []types.ResourceID
}

func (f *fakeDownloader) Download(_ context.Context, id types.ResourceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, id)
}

func (f *fakeDownloader) SetPasswordDelegate(transfer.PasswordDelegate) {}

func newTestStore(t *testing.T) *store.BoltStore {
	t.Helper()
	s := store.NewBoltStore(t.TempDir())
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpdateResource_WritesLeafAndSchedulesDownload(t *testing.T) {
	s := newTestStore(t)
	account, err := s.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	client := remote.NewFake()
	url := remote.URL("https://dav.example.com/api/", types.Path{"a", "b", "c"}, true)
	contentType := "application/pdf"
	length := int64(55555)
	client.Properties[url] = remote.PropertyResult{
		Self: types.Properties{IsCollection: false, Version: "123", ContentType: &contentType, ContentLength: &length},
	}

	delegate := &fakeDelegate{}
	downloader := &fakeDownloader{}
	mgr := New(Config{
		Account:  account.ID,
		BaseURL:  "https://dav.example.com/api/",
		Client:   client,
		Store:    s,
		Transfer: downloader,
		Delegate: delegate,
	})

	cs, err := mgr.UpdateResource(context.Background(), types.Path{"a", "b", "c"})
	require.NoError(t, err)
	assert.NotEmpty(t, cs.InsertedOrUpdated)
	assert.Equal(t, 1, delegate.count())

	downloader.mu.Lock()
	defer downloader.mu.Unlock()
	require.Len(t, downloader.requested, 1)
	assert.Equal(t, types.ResourceID{Account: account.ID, Path: types.Path{"a", "b", "c"}}, downloader.requested[0])

	r, err := s.Resource(account.ID, types.Path{"a", "b", "c"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.False(t, r.Dirty)
	assert.Equal(t, "123", r.Version)
}

func TestUpdateResource_NotFoundDeletesResource(t *testing.T) {
	s := newTestStore(t)
	account, err := s.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	leaf := types.Properties{IsCollection: false, Version: "1"}
	_, err = s.Update(account.ID, types.Path{"a"}, &leaf, nil)
	require.NoError(t, err)

	client := remote.NewFake() // no entry => NotFound
	mgr := New(Config{
		Account: account.ID,
		BaseURL: "https://dav.example.com/api/",
		Client:  client,
		Store:   s,
	})

	cs, err := mgr.UpdateResource(context.Background(), types.Path{"a"})
	require.NoError(t, err)
	assert.Len(t, cs.Deleted, 1)

	r, err := s.Resource(account.ID, types.Path{"a"})
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestUpdateResource_SkipsDownloadWhenBodyAlreadyCurrent(t *testing.T) {
	s := newTestStore(t)
	account, err := s.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	client := remote.NewFake()
	url := remote.URL("https://dav.example.com/api/", types.Path{"a"}, true)
	client.Properties[url] = remote.PropertyResult{Self: types.Properties{IsCollection: false, Version: "1"}}
	// once "a" is known to be a leaf, the reconcile asks for it without a
	// trailing slash.
	leafURL := remote.URL("https://dav.example.com/api/", types.Path{"a"}, false)
	client.Properties[leafURL] = client.Properties[url]

	downloader := &fakeDownloader{}
	mgr := New(Config{Account: account.ID, BaseURL: "https://dav.example.com/api/", Client: client, Store: s, Transfer: downloader})

	_, err = mgr.UpdateResource(context.Background(), types.Path{"a"})
	require.NoError(t, err)

	// adopt a body at version "1" out of band, simulating a prior download.
	tmp := filepath.Join(t.TempDir(), "body")
	require.NoError(t, os.WriteFile(tmp, []byte("hello"), 0o600))
	_, err = s.MoveFile(tmp, "1", types.ResourceID{Account: account.ID, Path: types.Path{"a"}})
	require.NoError(t, err)

	downloader.mu.Lock()
	downloader.requested = nil
	downloader.mu.Unlock()

	// reconciling again with the same version should not re-request a download.
	_, err = mgr.UpdateResource(context.Background(), types.Path{"a"})
	require.NoError(t, err)

	downloader.mu.Lock()
	defer downloader.mu.Unlock()
	assert.Empty(t, downloader.requested)
}

func TestUpdateResource_CoalescesConcurrentCallsForSamePath(t *testing.T) {
	s := newTestStore(t)
	account, err := s.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	fake := remote.NewFake()
	url := remote.URL("https://dav.example.com/api/", types.Path{"a"}, true)
	fake.Properties[url] = remote.PropertyResult{Self: types.Properties{IsCollection: false, Version: "1"}}
	client := &gatedClient{Fake: fake, entered: make(chan struct{}, 4), release: make(chan struct{})}

	mgr := New(Config{Account: account.ID, BaseURL: "https://dav.example.com/api/", Client: client, Store: s})

	var wg sync.WaitGroup
	results := make([]types.ChangeSet, 4)
	errs := make([]error, 4)
	call := func(i int) {
		defer wg.Done()
		results[i], errs[i] = mgr.UpdateResource(context.Background(), types.Path{"a"})
	}

	// hold the first call inside its remote fetch while the others arrive.
	wg.Add(1)
	go call(0)
	<-client.entered
	for i := 1; i < 4; i++ {
		wg.Add(1)
		go call(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(client.release)
	wg.Wait()

	for i := range errs {
		require.NoError(t, errs[i])
	}

	assert.Len(t, fake.Calls, 1)
	for i := 1; i < 4; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

// gatedClient holds every RetrieveProperties call until release is closed,
// signalling on entered as each call arrives.
type gatedClient struct {
	*remote.Fake
	entered chan struct{}
	release chan struct{}
}

func (g *gatedClient) RetrieveProperties(ctx context.Context, url string) (remote.PropertyResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.Fake.RetrieveProperties(ctx, url)
}
