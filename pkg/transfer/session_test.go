package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meridianlabs/davsync/pkg/types"
)

func TestSessionIdentifier_Roundtrip(t *testing.T) {
	id := EncodeSessionIdentifier("ACC1", "com.example.app")
	assert.Equal(t, "download::ACC1::com.example.app", id)

	account, bundle, ok := DecodeSessionIdentifier(id)
	assert.True(t, ok)
	assert.Equal(t, types.AccountID("ACC1"), account)
	assert.Equal(t, "com.example.app", bundle)
}

func TestSessionIdentifier_RejectsMissingBundle(t *testing.T) {
	_, _, ok := DecodeSessionIdentifier("download::ACC1::")
	assert.False(t, ok)
}

func TestSessionIdentifier_RejectsMissingAccount(t *testing.T) {
	_, _, ok := DecodeSessionIdentifier("download::::x")
	assert.False(t, ok)
}

func TestSessionIdentifier_RejectsWrongKind(t *testing.T) {
	_, _, ok := DecodeSessionIdentifier("upload::ACC1::com.example.app")
	assert.False(t, ok)
}

func TestSessionIdentifier_RejectsMalformedPartCount(t *testing.T) {
	_, _, ok := DecodeSessionIdentifier("download::ACC1::com.example.app::extra")
	assert.False(t, ok)
}
