package reputation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService() *Service {
	return NewService(nil, Lists{
		BlockedDomains:    []string{"Evil.Example"},
		SuspiciousDomains: []string{"shady.example"},
		NonprofitDomains:  []string{"helping.org"},
		BlockedIPs:        []string{"203.0.113.7"},
		TrustedSenders: []TrustedSender{
			{Address: "partner.example", Modifier: 0.6},
			{Address: "ceo@partner.example", Modifier: 0.4},
		},
		TrackingDomains: []string{"links.mailer.example"},
	}, zap.NewNop())
}

func TestLookupDomains(t *testing.T) {
	s := newTestService()
	out, err := s.LookupDomains(context.Background(), []string{"evil.example", "shady.example", "helping.org", "clean.example"})
	require.NoError(t, err)

	assert.Equal(t, 95.0, out["evil.example"].Score)
	assert.Equal(t, "blocked", out["evil.example"].Category)
	assert.Equal(t, 70.0, out["shady.example"].Score)
	assert.Equal(t, "nonprofit", out["helping.org"].Category)
	_, present := out["clean.example"]
	assert.False(t, present, "unlisted domains have no entry")
}

func TestLookupIPs(t *testing.T) {
	s := newTestService()
	out, err := s.LookupIPs(context.Background(), []string{"203.0.113.7", "198.51.100.1"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
	assert.Equal(t, 95.0, out["203.0.113.7"].Score)
}

func TestLookupEmailsUsesDomainList(t *testing.T) {
	s := newTestService()
	out, err := s.LookupEmails(context.Background(), []string{"anyone@evil.example"})
	require.NoError(t, err)
	assert.Equal(t, "blocked", out["anyone@evil.example"].Category)
}

func TestSenderTrustAddressBeatsDomain(t *testing.T) {
	s := newTestService()

	modifier, known, err := s.SenderTrust(context.Background(), "CEO@partner.example")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 0.4, modifier)

	modifier, known, err = s.SenderTrust(context.Background(), "sales@partner.example")
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 0.6, modifier, "falls back to the domain entry")

	modifier, known, err = s.SenderTrust(context.Background(), "random@elsewhere.example")
	require.NoError(t, err)
	assert.False(t, known)
	assert.Equal(t, 1.0, modifier)
}

func TestLookupURLsWithoutAggregator(t *testing.T) {
	s := newTestService()
	out, err := s.LookupURLs(context.Background(), []string{"http://x.example"})
	require.NoError(t, err)
	assert.Empty(t, out)
}
