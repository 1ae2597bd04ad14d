package main

import (
	"github.com/spf13/cobra"

	"github.com/meridianlabs/davsync/pkg/remote"
	"github.com/meridianlabs/davsync/pkg/service"
	"github.com/meridianlabs/davsync/pkg/store"
	"github.com/meridianlabs/davsync/pkg/types"
)

// localFacade opens a BoltStore under --data-dir and wraps it in a Facade,
// for commands that operate against the store directly instead of a running
// daemon's API. The caller must call Stop/Close on the returned values.
func localFacade(cmd *cobra.Command) (*service.Facade, store.Store, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	bundleID, _ := cmd.Flags().GetString("bundle-id")
	if bundleID == "" {
		bundleID = "com.example.davsyncd"
	}

	s := store.NewBoltStore(dataDir)
	if err := s.Open(); err != nil {
		return nil, nil, err
	}

	facade := service.New(service.Config{
		Store:                  s,
		ClientFactory:          fakeClientFactory(),
		BundleIdentifier:       bundleID,
		MaxConcurrentDownloads: 4,
	})
	facade.Start()
	return facade, s, nil
}

// fakeClientFactory builds the protocol client every account's Resource
// Manager and Transfer Manager use. The real WebDAV wire protocol is a host
// concern this module never implements (see pkg/remote's package doc); the
// in-memory Fake lets the daemon and CLI run end to end against scripted
// properties, which is what this binary ships with until a host supplies
// its own remote.Client via service.Config.ClientFactory.
func fakeClientFactory() service.ClientFactory {
	shared := remote.NewFake()
	return func(types.Account) remote.Client { return shared }
}
