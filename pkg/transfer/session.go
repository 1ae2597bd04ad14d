package transfer

import (
	"strings"

	"github.com/meridianlabs/davsync/pkg/types"
)

const sessionKindDownload = "download"

// EncodeSessionIdentifier builds the wire identifier for an account's
// background transfer session.
func EncodeSessionIdentifier(account types.AccountID, bundleIdentifier string) string {
	return strings.Join([]string{sessionKindDownload, string(account), bundleIdentifier}, "::")
}

// DecodeSessionIdentifier parses a session identifier produced by
// EncodeSessionIdentifier. It rejects anything else - wrong kind, missing
// parts, or an empty account/bundle component - by returning ok == false.
func DecodeSessionIdentifier(id string) (account types.AccountID, bundleIdentifier string, ok bool) {
	parts := strings.Split(id, "::")
	if len(parts) != 3 {
		return "", "", false
	}
	if parts[0] != sessionKindDownload || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return types.AccountID(parts[1]), parts[2], true
}
