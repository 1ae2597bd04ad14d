package remote

import (
	"context"
	"os"
	"sync"

	"github.com/meridianlabs/davsync/pkg/types"
)

// Fake is an in-memory Client used by this module's own tests and
// available to any host that wants to drive the engine against scripted
// responses instead of a live remote. It is safe for concurrent use.
type Fake struct {
	mu sync.Mutex

	// Properties maps a URL to the response RetrieveProperties returns for
	// it. A missing entry yields NotFound.
	Properties map[string]PropertyResult
	// PropertyErrors maps a URL to an error RetrieveProperties returns
	// instead of a result.
	PropertyErrors map[string]error

	// Downloads maps a URL to the response Download returns for it.
	Downloads map[string]DownloadResult
	// DownloadErrors maps a URL to an error Download returns instead of a
	// result.
	DownloadErrors map[string]error
	// DownloadBody maps a URL to the bytes written to the download's
	// temporary file.
	DownloadBody map[string][]byte

	// Calls records every URL passed to RetrieveProperties, in order.
	Calls []string
	// DownloadCalls records every URL passed to Download, in order.
	DownloadCalls []string
}

// NewFake returns an empty Fake ready for its maps to be populated.
func NewFake() *Fake {
	return &Fake{
		Properties:     make(map[string]PropertyResult),
		PropertyErrors: make(map[string]error),
		Downloads:      make(map[string]DownloadResult),
		DownloadErrors: make(map[string]error),
		DownloadBody:   make(map[string][]byte),
	}
}

func (f *Fake) RetrieveProperties(_ context.Context, url string) (PropertyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, url)

	if err, ok := f.PropertyErrors[url]; ok {
		return PropertyResult{}, err
	}
	if r, ok := f.Properties[url]; ok {
		return r, nil
	}
	return PropertyResult{NotFound: true}, nil
}

func (f *Fake) Download(_ context.Context, url string, onProgress ProgressFunc) (DownloadResult, error) {
	f.mu.Lock()
	err, hasErr := f.DownloadErrors[url]
	result, hasResult := f.Downloads[url]
	body := f.DownloadBody[url]
	f.DownloadCalls = append(f.DownloadCalls, url)
	f.mu.Unlock()

	if hasErr {
		return DownloadResult{}, err
	}
	if !hasResult {
		return DownloadResult{}, types.NewUnexpectedStatus(404)
	}

	tmp, werr := os.CreateTemp("", "davsync-fake-download-*")
	if werr != nil {
		return DownloadResult{}, types.NewError(types.KindStorage, "create fake download temp file", werr)
	}
	defer tmp.Close()

	total := int64(len(body))
	if onProgress != nil {
		onProgress(total, total)
	}
	if _, werr := tmp.Write(body); werr != nil {
		return DownloadResult{}, types.NewError(types.KindStorage, "write fake download body", werr)
	}

	result.TemporaryPath = tmp.Name()
	return result, nil
}
