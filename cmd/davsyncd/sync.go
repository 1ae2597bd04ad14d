package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/spf13/cobra"

	"github.com/meridianlabs/davsync/pkg/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync <account-id> [path]",
	Short: "Reconcile a path against the remote and wait for its downloads",
	Long: `Reconcile the given path (default: the account root) against the
remote, then follow the resulting downloads to completion with a progress
bar.

Only the requested path and its direct children are reconciled; sync a
child collection separately to descend further.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID := types.AccountID(args[0])
		var path types.Path
		if len(args) == 2 {
			path = splitPath(args[1])
		}

		facade, s, err := localFacade(cmd)
		if err != nil {
			return err
		}
		defer facade.Stop()
		defer s.Close()

		cs, err := facade.UpdateResource(context.Background(), accountID, path)
		if err != nil {
			return err
		}

		var downloads []types.ResourceID
		for _, r := range cs.InsertedOrUpdated {
			if !r.IsCollection {
				downloads = append(downloads, r.ID())
			}
		}
		if len(downloads) == 0 {
			fmt.Println("no downloads scheduled")
			return nil
		}
		fmt.Printf("%d resource(s) changed, %d download(s) scheduled\n", len(cs.InsertedOrUpdated), len(downloads))

		return followDownloads(facade, downloads)
	},
}

func splitPath(raw string) types.Path {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return types.Path{}
	}
	return types.Path(strings.Split(raw, "/"))
}

// followDownloads polls the Facade's Progress for each scheduled download
// and renders a combined byte-count progress bar until every one of them
// either finishes or drops out of the Transfer Manager's bookkeeping.
func followDownloads(facade progressSource, ids []types.ResourceID) error {
	bar := pb.StartNew(0)
	defer bar.Finish()

	pending := make(map[types.ResourceID]bool, len(ids))
	for _, id := range ids {
		pending[id] = true
	}

	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()

	for len(pending) > 0 {
		<-ticker.C
		var total, completed int64
		for id := range pending {
			p, ok := facade.Progress(id)
			if !ok {
				delete(pending, id)
				continue
			}
			total += p.Total
			completed += p.Completed
			if p.Total > 0 && p.Completed >= p.Total {
				delete(pending, id)
			}
		}
		if total > 0 {
			bar.SetTotal(total)
			bar.SetCurrent(completed)
		}
	}
	return nil
}

// progressSource is the slice of Facade that followDownloads needs, so
// sync_test.go can drive it against a stub instead of a whole Facade.
type progressSource interface {
	Progress(id types.ResourceID) (types.Progress, bool)
}
