package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neighborly/internal/service/matching/domain"
)

func newActiveMatch() *domain.Match {
	offer := offerWith(`{"category":"meal"}`)
	need := needWith(`{"category":"meal"}`)
	return domain.NewMatch(offer, need, domain.Score(offer, need), domain.StrategyCandidate, time.Now())
}

func TestNewMatch(t *testing.T) {
	m := newActiveMatch()

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "alice", m.GiverID)
	assert.Equal(t, "bob", m.ReceiverID)
	assert.Equal(t, "c1", m.CommunityID)
	assert.Equal(t, domain.MatchActive, m.Status)
	assert.InDelta(t, 1.0, m.Score, 1e-9)
	assert.Len(t, m.Reasons, 5)
}

func TestMatch_Participants(t *testing.T) {
	m := newActiveMatch()

	assert.True(t, m.HasParticipant("alice"))
	assert.True(t, m.HasParticipant("bob"))
	assert.False(t, m.HasParticipant("mallory"))
	assert.False(t, m.HasParticipant(""))

	other, ok := m.OtherParticipant("alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", other)

	_, ok = m.OtherParticipant("mallory")
	assert.False(t, ok)
}

func TestMatch_Transition(t *testing.T) {
	tests := []struct {
		closure domain.ClosureType
		want    domain.MatchStatus
	}{
		{domain.ClosureSuccessful, domain.MatchClosed},
		{domain.ClosureUnsuccessful, domain.MatchClosed},
		{domain.ClosureCancelled, domain.MatchCancelled},
		{domain.ClosureDisputed, domain.MatchDisputed},
	}
	for _, tt := range tests {
		t.Run(string(tt.closure), func(t *testing.T) {
			m := newActiveMatch()
			got, err := m.Transition(domain.Closure{Type: tt.closure})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatch_TransitionRejected(t *testing.T) {
	m := newActiveMatch()
	_, err := m.Transition(domain.Closure{Type: "abandoned"})
	assert.ErrorIs(t, err, domain.ErrInvalidClosure)

	for _, terminal := range []domain.MatchStatus{domain.MatchClosed, domain.MatchCancelled, domain.MatchDisputed} {
		m.Status = terminal
		_, err := m.Transition(domain.Closure{Type: domain.ClosureCancelled})
		assert.ErrorIs(t, err, domain.ErrAlreadyClosed, "from %s", terminal)
	}
}

func TestMatch_SettledSuccessfully(t *testing.T) {
	m := newActiveMatch()
	assert.False(t, m.SettledSuccessfully())

	m.Status = domain.MatchClosed
	m.Closure = &domain.Closure{Type: domain.ClosureUnsuccessful}
	assert.False(t, m.SettledSuccessfully())

	m.Closure.Type = domain.ClosureSuccessful
	assert.True(t, m.SettledSuccessfully())
}

func TestErrorClassification(t *testing.T) {
	wrapped := func(err error) error { return errors.Join(errors.New("context"), err) }

	assert.True(t, domain.IsSettled(wrapped(domain.ErrNotActive)))
	assert.True(t, domain.IsSettled(wrapped(domain.ErrAlreadyClosed)))
	assert.True(t, domain.IsSettled(domain.ErrDuplicate))
	assert.True(t, domain.IsSettled(domain.ErrNotFound))
	assert.False(t, domain.IsSettled(domain.ErrNotParticipant))
	assert.False(t, domain.IsSettled(errors.New("connection refused")))

	assert.True(t, domain.IsRejection(wrapped(domain.ErrNotParticipant)))
	assert.True(t, domain.IsRejection(domain.ErrInvalidClosure))
	assert.True(t, domain.IsRejection(domain.ErrMalformedWorkItem))
	assert.False(t, domain.IsRejection(domain.ErrNotActive))
}

func TestOfferMatchable(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	o := &domain.Offer{Status: domain.OfferActive}
	assert.True(t, o.Matchable(now))

	o.ExpiresAt = &future
	assert.True(t, o.Matchable(now))

	o.ExpiresAt = &past
	assert.False(t, o.Matchable(now))

	o.ExpiresAt = nil
	o.Status = domain.OfferMatched
	assert.False(t, o.Matchable(now))
}

func TestPairKey_OrderIndependent(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("NewPairKey(a,b) == NewPairKey(b,a)", prop.ForAll(
		func(a, b string) bool {
			k1 := domain.NewPairKey(a, b)
			k2 := domain.NewPairKey(b, a)
			return k1 == k2 && k1.Low <= k1.High
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
