package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_Graph(t *testing.T) {
	allowed := map[[2]RequestStatus]bool{
		{StatusPending, StatusOffered}:      true,
		{StatusPending, StatusCancelled}:    true,
		{StatusOffered, StatusAccepted}:     true,
		{StatusOffered, StatusCancelled}:    true,
		{StatusAccepted, StatusInProgress}:  true,
		{StatusAccepted, StatusCancelled}:   true,
		{StatusInProgress, StatusDone}:      true,
		{StatusInProgress, StatusCancelled}: true,
	}
	for _, from := range AllStatuses {
		for _, to := range AllStatuses {
			assert.Equal(t, allowed[[2]RequestStatus{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range AllStatuses {
		want := s == StatusDone || s == StatusCancelled
		assert.Equal(t, want, s.Terminal(), string(s))
		if s.Terminal() {
			for _, to := range AllStatuses {
				assert.False(t, CanTransition(s, to), "terminal %s must have no edges", s)
			}
		}
	}
}

func TestParseRoleAndStatus(t *testing.T) {
	r, err := ParseRole("PROVIDER")
	require.NoError(t, err)
	assert.Equal(t, RoleProvider, r)
	_, err = ParseRole("provider")
	assert.Error(t, err)

	s, err := ParseStatus("IN_PROGRESS")
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, s)
	_, err = ParseStatus("DELETED")
	assert.Error(t, err)
}

func ptr(v int64) *int64 { return &v }

func TestRecipients(t *testing.T) {
	const client = int64(1)
	provider := ptr(2)

	assert.Equal(t, []int64{2}, Recipients(ptr(client), client, provider), "client actor notifies provider")
	assert.Nil(t, Recipients(ptr(client), client, nil), "client actor without provider notifies nobody")
	assert.Equal(t, []int64{1}, Recipients(provider, client, provider), "provider actor notifies client")
	assert.Equal(t, []int64{1, 2}, Recipients(ptr(99), client, provider), "admin notifies both")
	assert.Equal(t, []int64{1, 2}, Recipients(nil, client, provider), "system actor notifies both")
	assert.Equal(t, []int64{1}, Recipients(nil, client, nil), "system actor, no provider")
}
