package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace/noop"

	"neighborly/internal/pkg/metrics"
	"neighborly/internal/service/matching/domain"
)

// memStore 是 ListingRepository 与 MatchRepository 的内存实现，
// 与 gorm 实现保持同样的唯一约束和条件更新语义。
type memStore struct {
	mu      sync.Mutex
	offers  map[string]*domain.Offer
	needs   map[string]*domain.Need
	matches map[string]*domain.Match

	createErr func(m *domain.Match) error
	listErr   error
}

func newMemStore() *memStore {
	return &memStore{
		offers:  make(map[string]*domain.Offer),
		needs:   make(map[string]*domain.Need),
		matches: make(map[string]*domain.Match),
	}
}

var baseTime = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

func (s *memStore) addOffer(id, owner, community, survey string) *domain.Offer {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &domain.Offer{
		ID:          id,
		OwnerID:     owner,
		CommunityID: community,
		Survey:      []byte(survey),
		Status:      domain.OfferActive,
		CreatedAt:   baseTime.Add(time.Duration(len(s.offers)+len(s.needs)) * time.Minute),
	}
	s.offers[id] = o
	return o
}

func (s *memStore) addNeed(id, owner, community, survey string) *domain.Need {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := &domain.Need{
		ID:          id,
		OwnerID:     owner,
		CommunityID: community,
		Survey:      []byte(survey),
		Urgency:     domain.UrgencyNormal,
		Status:      domain.NeedActive,
		CreatedAt:   baseTime.Add(time.Duration(len(s.offers)+len(s.needs)) * time.Minute),
	}
	s.needs[id] = n
	return n
}

func (s *memStore) offerStatus(id string) domain.OfferStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offers[id].Status
}

func (s *memStore) needStatus(id string) domain.NeedStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needs[id].Status
}

func (s *memStore) allMatches() []*domain.Match {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Match, 0, len(s.matches))
	for _, m := range s.matches {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OfferID < out[j].OfferID })
	return out
}

func (s *memStore) GetOffer(_ context.Context, id string) (*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) GetNeed(_ context.Context, id string) (*domain.Need, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.needs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *memStore) ActiveOffers(_ context.Context, communityID string, now time.Time, limit int) ([]*domain.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Offer
	for _, o := range s.offers {
		if o.CommunityID == communityID && o.Matchable(now) {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) ActiveNeeds(_ context.Context, communityID string, limit int) ([]*domain.Need, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []*domain.Need
	for _, n := range s.needs {
		if n.CommunityID == communityID && n.Matchable() {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdateOfferStatus(_ context.Context, id string, from, to domain.OfferStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.offers[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return domain.ErrNotActive
	}
	o.Status = to
	return nil
}

func (s *memStore) UpdateNeedStatus(_ context.Context, id string, from, to domain.NeedStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.needs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if n.Status != from {
		return domain.ErrNotActive
	}
	n.Status = to
	return nil
}

func (s *memStore) ActiveCommunities(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]bool{}
	for _, o := range s.offers {
		if o.Status == domain.OfferActive {
			seen[o.CommunityID] = true
		}
	}
	for _, n := range s.needs {
		if n.Status == domain.NeedActive {
			seen[n.CommunityID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memStore) CreateMatch(_ context.Context, m *domain.Match) (*domain.Match, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		if err := s.createErr(m); err != nil {
			return nil, false, err
		}
	}
	for _, existing := range s.matches {
		if existing.OfferID == m.OfferID && existing.NeedID == m.NeedID {
			cp := *existing
			return &cp, false, nil
		}
	}
	o, ok := s.offers[m.OfferID]
	if !ok || o.Status != domain.OfferActive {
		return nil, false, domain.ErrNotActive
	}
	n, ok := s.needs[m.NeedID]
	if !ok || n.Status != domain.NeedActive {
		return nil, false, domain.ErrNotActive
	}
	o.Status = domain.OfferMatched
	n.Status = domain.NeedMatched
	cp := *m
	s.matches[m.ID] = &cp
	return m, true, nil
}

func (s *memStore) GetMatch(_ context.Context, id string) (*domain.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *memStore) SetChannel(_ context.Context, matchID, channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return domain.ErrNotFound
	}
	m.ChannelID = channelID
	return nil
}

func (s *memStore) Transition(_ context.Context, req domain.TransitionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[req.MatchID]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != domain.MatchActive {
		return domain.ErrAlreadyClosed
	}
	m.Status = req.To
	closure := req.Closure
	m.Closure = &closure
	switch req.Listings {
	case domain.ListingsClose:
		s.offers[m.OfferID].Status = domain.OfferClosed
		s.needs[m.NeedID].Status = domain.NeedClosed
	case domain.ListingsReopen:
		s.offers[m.OfferID].Status = domain.OfferActive
		s.needs[m.NeedID].Status = domain.NeedActive
	}
	return nil
}

// memLedger 以幂等键去重
type memLedger struct {
	mu        sync.Mutex
	entries   map[domain.IdempotencyKey]*domain.LedgerEntry
	order     []domain.IdempotencyKey
	insertErr error
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[domain.IdempotencyKey]*domain.LedgerEntry)}
}

func (l *memLedger) Insert(_ context.Context, e *domain.LedgerEntry) (*domain.LedgerEntry, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.insertErr != nil {
		return nil, false, l.insertErr
	}
	if existing, ok := l.entries[e.Key()]; ok {
		return existing, false, nil
	}
	cp := *e
	l.entries[e.Key()] = &cp
	l.order = append(l.order, e.Key())
	return &cp, true, nil
}

func (l *memLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, e := range l.entries {
		if e.UserID == userID && e.Status == domain.LedgerValid {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (l *memLedger) ListByUser(_ context.Context, userID string) ([]*domain.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*domain.LedgerEntry
	for _, k := range l.order {
		if k.UserID == userID {
			out = append(out, l.entries[k])
		}
	}
	return out, nil
}

func (l *memLedger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// memPairs 以 MatchID 去重
type memPairs struct {
	mu      sync.Mutex
	records map[string]*domain.PairRecord
}

func newMemPairs() *memPairs {
	return &memPairs{records: make(map[string]*domain.PairRecord)}
}

func (p *memPairs) Insert(_ context.Context, r *domain.PairRecord) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.records[r.MatchID]; ok {
		return false, nil
	}
	cp := *r
	p.records[r.MatchID] = &cp
	return true, nil
}

func (p *memPairs) CountSince(_ context.Context, pair domain.PairKey, since time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, r := range p.records {
		if r.Pair == pair && !r.ClosedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

type sentNotification struct {
	UserID string
	Kind   string
	Data   map[string]string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, userID, kind, _, _ string, data map[string]string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentNotification{UserID: userID, Kind: kind, Data: data})
	return nil
}

func (n *fakeNotifier) recipients(kind string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, s := range n.sent {
		if s.Kind == kind {
			out = append(out, s.UserID)
		}
	}
	return out
}

type fakeChannels struct {
	mu      sync.Mutex
	opened  []string
	closed  []string
	openErr error
}

func (c *fakeChannels) Open(_ context.Context, matchID, _, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return "", c.openErr
	}
	c.opened = append(c.opened, matchID)
	return "ch-" + matchID, nil
}

func (c *fakeChannels) Close(_ context.Context, channelID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = append(c.closed, channelID)
	return nil
}

type fakeRules struct {
	amounts map[string]int64
	err     error
}

func (r *fakeRules) Lookup(_ context.Context, sourceType string) (int64, bool, error) {
	if r.err != nil {
		return 0, false, r.err
	}
	amount, ok := r.amounts[sourceType]
	return amount, ok, nil
}

type fakeQueue struct {
	mu    sync.Mutex
	items []*domain.WorkItem
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, item *domain.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, item)
	return nil
}

// harness 把所有内存实现装配成一个 MatchingService
type harness struct {
	store    *memStore
	ledger   *memLedger
	pairs    *memPairs
	notifier *fakeNotifier
	channels *fakeChannels
	rules    *fakeRules
	queue    *fakeQueue
	svc      *MatchingService
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		store:    newMemStore(),
		ledger:   newMemLedger(),
		pairs:    newMemPairs(),
		notifier: &fakeNotifier{},
		channels: &fakeChannels{},
		rules:    &fakeRules{amounts: map[string]int64{}},
		queue:    &fakeQueue{},
	}
	h.svc = NewMatchingService(Dependencies{
		Listings: h.store,
		Matches:  h.store,
		Ledger:   h.ledger,
		Pairs:    h.pairs,
		Rules:    h.rules,
		Channels: h.channels,
		Notifier: h.notifier,
		Queue:    h.queue,
	}, cfg, noop.NewTracerProvider().Tracer("test"), metrics.NewNop())
	return h
}

func survey(category string, tags []string, qty float64, window string) string {
	tagJSON := "[]"
	if len(tags) > 0 {
		tagJSON = "["
		for i, t := range tags {
			if i > 0 {
				tagJSON += ","
			}
			tagJSON += fmt.Sprintf("%q", t)
		}
		tagJSON += "]"
	}
	return fmt.Sprintf(`{"category":%q,"tags":%s,"quantity":%g,"time_window":%q}`, category, tagJSON, qty, window)
}
