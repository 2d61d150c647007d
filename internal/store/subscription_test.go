package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubscriptionURLPersistent(t *testing.T) {
	u, err := parseSubscriptionURL("persistent://payments")
	require.NoError(t, err)
	assert.Equal(t, SchemePersistent, u.scheme)
	assert.Equal(t, "payments", u.topic)
	assert.Equal(t, "", u.tenant)
}

func TestParseSubscriptionURLNonPersistentWithTenant(t *testing.T) {
	u, err := parseSubscriptionURL("non-persistent://user?tenant=acme")
	require.NoError(t, err)
	assert.Equal(t, SchemeNonPersistent, u.scheme)
	assert.Equal(t, "user", u.topic)
	assert.Equal(t, "acme", u.tenant)
}

func TestParseSubscriptionURLIgnoresUnknownQueryOptions(t *testing.T) {
	u, err := parseSubscriptionURL("persistent://orders?tenant=acme&format=json")
	require.NoError(t, err)
	assert.Equal(t, "acme", u.tenant)
}

func TestParseSubscriptionURLRejectsUnknownScheme(t *testing.T) {
	_, err := parseSubscriptionURL("kafka://orders")
	require.Error(t, err)
	assert.True(t, IsBadSchemeError(err))
}

func TestParseSubscriptionURLConcatenatesHostAndPath(t *testing.T) {
	u, err := parseSubscriptionURL("persistent://orders/eu")
	require.NoError(t, err)
	assert.Equal(t, "orders/eu", u.topic)
}
