package remote

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/davsync/pkg/types"
)

func TestURL_ComposesAccountBaseAndPath(t *testing.T) {
	got := URL("https://example.com/api/", types.Path{"a", "b", "c"}, false)
	assert.Equal(t, "https://example.com/api/a/b/c", got)
}

func TestURL_TrailingSlashForCollections(t *testing.T) {
	got := URL("https://example.com/api", types.Path{"docs"}, true)
	assert.Equal(t, "https://example.com/api/docs/", got)
}

func TestURL_PercentEncodesReservedBytes(t *testing.T) {
	got := URL("https://example.com/api/", types.Path{"a b", "c&d"}, false)
	assert.Equal(t, "https://example.com/api/a%20b/c%26d", got)
}

func TestFake_RetrievePropertiesReturnsNotFoundByDefault(t *testing.T) {
	f := NewFake()
	r, err := f.RetrieveProperties(context.Background(), "https://example.com/missing")
	require.NoError(t, err)
	assert.True(t, r.NotFound)
	assert.Equal(t, []string{"https://example.com/missing"}, f.Calls)
}

func TestFake_DownloadWritesBodyToTemporaryFile(t *testing.T) {
	f := NewFake()
	url := "https://example.com/a"
	f.Downloads[url] = DownloadResult{Etag: `"123"`, StatusCode: 200}
	f.DownloadBody[url] = []byte("hello world")

	var lastCompleted, lastTotal int64
	result, err := f.Download(context.Background(), url, func(completed, total int64) {
		lastCompleted, lastTotal = completed, total
	})
	require.NoError(t, err)
	defer os.Remove(result.TemporaryPath)

	assert.Equal(t, `"123"`, result.Etag)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, int64(11), lastCompleted)
	assert.Equal(t, int64(11), lastTotal)

	data, err := os.ReadFile(result.TemporaryPath)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}
