package application

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neighborly/internal/service/matching/domain"
)

func TestSweep_TwoCommunities(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	for _, c := range []string{"c1", "c2"} {
		for i := 1; i <= 3; i++ {
			h.store.addOffer(fmt.Sprintf("%s-o%d", c, i), fmt.Sprintf("%s-giver%d", c, i), c, survey("meal", nil, 2, "evening"))
			h.store.addNeed(fmt.Sprintf("%s-n%d", c, i), fmt.Sprintf("%s-receiver%d", c, i), c, survey("meal", nil, 1, "flexible"))
		}
	}

	for _, c := range []string{"c1", "c2"} {
		report, err := h.svc.RunSweep(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Created, "community %s", c)
		assert.Equal(t, 9, report.Considered)
		assert.Zero(t, report.Failed)
	}

	matches := h.store.allMatches()
	require.Len(t, matches, 6)

	perCommunity := map[string]int{}
	offers := map[string]bool{}
	needs := map[string]bool{}
	for _, m := range matches {
		perCommunity[m.CommunityID]++
		assert.Equal(t, m.CommunityID, m.OfferID[:2])
		assert.Equal(t, m.CommunityID, m.NeedID[:2], "match %s crosses communities", m.ID)
		assert.False(t, offers[m.OfferID], "offer %s reused", m.OfferID)
		assert.False(t, needs[m.NeedID], "need %s reused", m.NeedID)
		offers[m.OfferID] = true
		needs[m.NeedID] = true
		assert.Equal(t, domain.StrategySweep, m.Strategy)
	}
	assert.Equal(t, map[string]int{"c1": 3, "c2": 3}, perCommunity)
}

func TestSweep_GreedyByScore(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	h.store.addOffer("o1", "alice", "c1", survey("meal", []string{"halal"}, 2, "evening"))
	h.store.addOffer("o2", "bob", "c1", survey("meal", nil, 1, "morning"))
	// o1-n2 1.0, o1-n1 0.97, o2-n1 0.97, o2-n2 0.855
	h.store.addNeed("n1", "carol", "c1", survey("meal", nil, 1, "flexible"))
	h.store.addNeed("n2", "dave", "c1", survey("meal", []string{"halal"}, 2, "evening"))

	report, err := h.svc.RunSweep(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 4, report.Eligible)
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Skipped)

	pairs := map[string]string{}
	for _, m := range h.store.allMatches() {
		pairs[m.OfferID] = m.NeedID
	}
	assert.Equal(t, map[string]string{"o1": "n2", "o2": "n1"}, pairs)
}

func TestSweep_TieKeepsOfferMajorOrder(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	same := survey("produce", nil, 1, "afternoon")
	h.store.addOffer("o1", "alice", "c1", same)
	h.store.addOffer("o2", "bob", "c1", same)
	h.store.addNeed("n1", "carol", "c1", same)

	report, err := h.svc.RunSweep(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	matches := h.store.allMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, "o1", matches[0].OfferID)
	assert.Equal(t, domain.OfferActive, h.store.offerStatus("o2"))
}

func TestSweep_PairFailureIsSkipped(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.createErr = func(m *domain.Match) error {
		if m.OfferID == "o1" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	h.store.addOffer("o1", "alice", "c1", survey("meal", nil, 1, "evening"))
	h.store.addOffer("o2", "bob", "c1", survey("meal", nil, 1, "evening"))
	h.store.addNeed("n1", "carol", "c1", survey("meal", nil, 1, "evening"))
	h.store.addNeed("n2", "dave", "c1", survey("meal", nil, 1, "evening"))

	report, err := h.svc.RunSweep(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, domain.OfferActive, h.store.offerStatus("o1"))
}

func TestSweep_SkipsSameOwnerAndDuplicatePairs(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	ctx := context.Background()

	h.store.addOffer("o1", "alice", "c1", survey("meal", nil, 1, "evening"))
	h.store.addNeed("n1", "alice", "c1", survey("meal", nil, 1, "evening"))
	h.store.addNeed("n2", "bob", "c1", survey("meal", nil, 1, "evening"))
	h.store.addNeed("n3", "carol", "c1", survey("meal", nil, 1, "morning"))

	first, err := h.svc.HandleEntityCreated(ctx, offerRef("o1"))
	require.NoError(t, err)
	require.Equal(t, "n2", first.NeedID)
	_, err = h.svc.RequestClosure(ctx, ClosureRequest{MatchID: first.ID, RequesterID: "bob", Type: domain.ClosureCancelled})
	require.NoError(t, err)

	report, err := h.svc.RunSweep(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, report.Considered, "same-owner pair is never scored")

	// o1-n2 已撮合过，o1 仍可与 n3 成对
	require.Equal(t, 1, report.Created)
	var newest *domain.Match
	for _, m := range h.store.allMatches() {
		if m.ID != first.ID {
			newest = m
		}
	}
	require.NotNil(t, newest)
	assert.Equal(t, "n3", newest.NeedID)
}

func TestSweep_CandidateCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxCandidates = 1
	h := newHarness(t, cfg)

	for i := 1; i <= 3; i++ {
		h.store.addOffer(fmt.Sprintf("o%d", i), fmt.Sprintf("giver%d", i), "c1", survey("meal", nil, 1, "evening"))
		h.store.addNeed(fmt.Sprintf("n%d", i), fmt.Sprintf("receiver%d", i), "c1", survey("meal", nil, 1, "evening"))
	}

	report, err := h.svc.RunSweep(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Considered)
	assert.Equal(t, 1, report.Created)

	matches := h.store.allMatches()
	require.Len(t, matches, 1)
	assert.Equal(t, "o1", matches[0].OfferID)
	assert.Equal(t, "n1", matches[0].NeedID)
}

func TestSweep_ListErrorPropagates(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.store.listErr = errors.New("too many connections")

	_, err := h.svc.RunSweep(context.Background(), "c1")
	require.Error(t, err)
	assert.False(t, domain.IsSettled(err))
}

func TestSweep_NeverReusesListing(t *testing.T) {
	categories := []string{"meal", "bread", "produce", "other"}
	windows := []string{"morning", "evening", "flexible"}

	properties := gopter.NewProperties(nil)
	properties.Property("each offer and need appears in at most one match", prop.ForAll(
		func(offerCats, needCats []int, owners []int) bool {
			if len(owners) == 0 {
				return true
			}
			h := newHarness(t, DefaultConfig())
			for i, c := range offerCats {
				owner := fmt.Sprintf("u%d", owners[i%len(owners)])
				h.store.addOffer(fmt.Sprintf("o%d", i), owner, "c1",
					survey(categories[c%len(categories)], nil, float64(1+i%3), windows[i%len(windows)]))
			}
			for i, c := range needCats {
				owner := fmt.Sprintf("u%d", owners[(i+1)%len(owners)])
				h.store.addNeed(fmt.Sprintf("n%d", i), owner, "c1",
					survey(categories[c%len(categories)], nil, float64(1+i%2), windows[(i+1)%len(windows)]))
			}

			if _, err := h.svc.RunSweep(context.Background(), "c1"); err != nil {
				return false
			}

			offers := map[string]bool{}
			needs := map[string]bool{}
			for _, m := range h.store.allMatches() {
				if offers[m.OfferID] || needs[m.NeedID] || m.GiverID == m.ReceiverID {
					return false
				}
				if m.Score < domain.DefaultEligibilityThreshold {
					return false
				}
				offers[m.OfferID] = true
				needs[m.NeedID] = true
			}
			return true
		},
		gen.SliceOfN(6, gen.IntRange(0, 3)),
		gen.SliceOfN(6, gen.IntRange(0, 3)),
		gen.SliceOfN(4, gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}
