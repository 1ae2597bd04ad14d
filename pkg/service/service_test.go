package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/davsync/pkg/events"
	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/types"
)

func newTestFacade(t *testing.T, client *remote.Fake) (*Facade, *store.BoltStore) {
	t.Helper()
	s := store.NewBoltStore(t.TempDir())
	require.NoError(t, s.Open())
	t.Cleanup(func() { _ = s.Close() })

	f := New(Config{
		Store: s,
		ClientFactory: func(types.Account) remote.Client {
			return client
		},
		BundleIdentifier: "com.example.davsync",
	})
	f.Start()
	t.Cleanup(f.Stop)
	return f, s
}

func TestFacade_AddAccountPublishesEvent(t *testing.T) {
	f, _ := newTestFacade(t, remote.NewFake())
	sub := f.Events().Subscribe()
	defer f.Events().Unsubscribe(sub)

	account, err := f.AddAccount("https://dav.example.com/api/", "romeo", "laptop")
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)

	select {
	case evt := <-sub:
		assert.Equal(t, events.AccountAdded, evt.Type)
		assert.Equal(t, account.ID, evt.Account.ID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AccountAdded event")
	}
}

func TestFacade_UpdateResourceCreatesManagerLazily(t *testing.T) {
	client := remote.NewFake()
	f, _ := newTestFacade(t, client)

	account, err := f.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	url := remote.URL("https://dav.example.com/api/", types.Path{"notes.txt"}, true)
	client.Properties[url] = remote.PropertyResult{
		Self: types.Properties{IsCollection: false, Version: "1"},
	}

	sub := f.Events().Subscribe()
	defer f.Events().Unsubscribe(sub)

	cs, err := f.UpdateResource(context.Background(), account.ID, types.Path{"notes.txt"})
	require.NoError(t, err)
	assert.Len(t, cs.InsertedOrUpdated, 1)

	select {
	case evt := <-sub:
		assert.Equal(t, events.ResourcesChanged, evt.Type)
		assert.Len(t, evt.Changes.InsertedOrUpdated, 1)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for ResourcesChanged event")
	}

	r, err := f.Resource(account.ID, types.Path{"notes.txt"})
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "1", r.Version)
}

func TestFacade_RemoveAccountTearsDownManager(t *testing.T) {
	client := remote.NewFake()
	f, _ := newTestFacade(t, client)

	account, err := f.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	url := remote.URL("https://dav.example.com/api/", types.Path{"a"}, true)
	client.Properties[url] = remote.PropertyResult{Self: types.Properties{IsCollection: false, Version: "1"}}
	_, err = f.UpdateResource(context.Background(), account.ID, types.Path{"a"})
	require.NoError(t, err)

	require.NoError(t, f.RemoveAccount(account.ID))

	accounts, err := f.Accounts()
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = f.UpdateResource(context.Background(), account.ID, types.Path{"a"})
	assert.Error(t, err)
}

type scriptedPasswordDelegate struct {
	password string
	ok       bool
}

func (d scriptedPasswordDelegate) NeedsPassword(types.Account) (string, bool) {
	return d.password, d.ok
}

func TestFacade_NeedsPasswordForwardsToInstalledDelegate(t *testing.T) {
	f, _ := newTestFacade(t, remote.NewFake())

	account, err := f.AddAccount("https://dav.example.com/api/", "romeo", "")
	require.NoError(t, err)

	_, ok := f.NeedsPassword(account.ID)
	assert.False(t, ok, "no delegate installed yet")

	f.SetPasswordDelegate(scriptedPasswordDelegate{password: "hunter2", ok: true})
	password, ok := f.NeedsPassword(account.ID)
	require.True(t, ok)
	assert.Equal(t, "hunter2", password)
}
