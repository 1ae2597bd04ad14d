// Package integration exercises the Store, Resource Manager, Transfer
// Manager and Service Facade together against the fake protocol client,
// the way a host application drives the whole engine.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/service"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/types"
)

func newEngine(t *testing.T) (*service.Facade, *remote.Fake) {
	t.Helper()
	s := store.NewBoltStore(t.TempDir())
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })

	fake := remote.NewFake()
	facade := service.New(service.Config{
		Store:                  s,
		ClientFactory:          func(types.Account) remote.Client { return fake },
		BundleIdentifier:       "com.example.davsync",
		MaxConcurrentDownloads: 4,
	})
	facade.Start()
	t.Cleanup(facade.Stop)
	return facade, fake
}

func waitForProgress(t *testing.T, facade *service.Facade, id types.ResourceID) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		_, ok := facade.Progress(id)
		if !ok {
			// the Transfer Manager drops its pending entry only after the
			// body was adopted by the Store (or the transfer failed).
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %v to finish downloading", id)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEngine_SyncRootDownloadsNewFile(t *testing.T) {
	facade, fake := newEngine(t)

	account, err := facade.AddAccount("https://dav.example.com/api/", "romeo", "laptop")
	require.NoError(t, err)

	rootURL := remote.URL(account.BaseURL, types.Path{}, true)
	fake.Properties[rootURL] = remote.PropertyResult{
		Self: types.Properties{IsCollection: true},
		Children: map[string]types.Properties{
			"notes.txt": {IsCollection: false, Version: "v1"},
		},
	}
	fileURL := remote.URL(account.BaseURL, types.Path{"notes.txt"}, false)
	fake.DownloadBody[fileURL] = []byte("hello from the remote")
	fake.Downloads[fileURL] = remote.DownloadResult{Etag: "v1"}

	cs, err := facade.UpdateResource(context.Background(), account.ID, types.Path{})
	require.NoError(t, err)
	// the child is written first, then the root collection itself.
	require.Len(t, cs.InsertedOrUpdated, 2)
	assert.Equal(t, "notes.txt", cs.InsertedOrUpdated[0].Path.Name())
	assert.Empty(t, cs.InsertedOrUpdated[1].Path)

	fileID := types.ResourceID{Account: account.ID, Path: types.Path{"notes.txt"}}
	waitForProgress(t, facade, fileID)

	resource, err := facade.Resource(account.ID, types.Path{"notes.txt"})
	require.NoError(t, err)
	require.NotNil(t, resource)
	assert.Equal(t, types.FilePresent, resource.FileState.Kind)
	assert.False(t, resource.Dirty)
}

func TestEngine_RemovedRemoteChildIsDeletedLocally(t *testing.T) {
	facade, fake := newEngine(t)

	account, err := facade.AddAccount("https://dav.example.com/api/", "romeo", "laptop")
	require.NoError(t, err)

	rootURL := remote.URL(account.BaseURL, types.Path{}, true)
	fake.Properties[rootURL] = remote.PropertyResult{
		Self: types.Properties{IsCollection: true},
		Children: map[string]types.Properties{
			"a.txt": {IsCollection: false, Version: "v1"},
		},
	}
	_, err = facade.UpdateResource(context.Background(), account.ID, types.Path{})
	require.NoError(t, err)

	resource, err := facade.Resource(account.ID, types.Path{"a.txt"})
	require.NoError(t, err)
	require.NotNil(t, resource)

	fake.Properties[rootURL] = remote.PropertyResult{
		Self:     types.Properties{IsCollection: true},
		Children: map[string]types.Properties{},
	}
	cs, err := facade.UpdateResource(context.Background(), account.ID, types.Path{})
	require.NoError(t, err)
	require.Len(t, cs.Deleted, 1)

	resource, err = facade.Resource(account.ID, types.Path{"a.txt"})
	require.NoError(t, err)
	assert.Nil(t, resource)
}

func TestEngine_RemoveAccountStopsItsManagers(t *testing.T) {
	facade, fake := newEngine(t)

	account, err := facade.AddAccount("https://dav.example.com/api/", "juliet", "desktop")
	require.NoError(t, err)

	rootURL := remote.URL(account.BaseURL, types.Path{}, true)
	fake.Properties[rootURL] = remote.PropertyResult{Self: types.Properties{IsCollection: true}}
	_, err = facade.UpdateResource(context.Background(), account.ID, types.Path{})
	require.NoError(t, err)

	require.NoError(t, facade.RemoveAccount(account.ID))

	accounts, err := facade.Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, ok := facade.Progress(types.ResourceID{Account: account.ID, Path: types.Path{}})
	assert.False(t, ok)
}
