package handlers

import (
	"encoding/json"
	"net/http/cookiejar"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/subtrackhq/subtrack/internal/identity"
)

func jsonUnmarshal(body string, v any) error {
	return json.Unmarshal([]byte(body), v)
}

func newCookieJar(t *testing.T) *cookiejar.Jar {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return jar
}

func fakeGoogleRecord() identity.UserRecord {
	return identity.UserRecord{
		UID:           "uid-g",
		Email:         "g@example.com",
		Name:          "G",
		PhotoURL:      "https://example.com/g.png",
		EmailVerified: true,
	}
}
