package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"neighborly/internal/pkg/httpclient"
	"neighborly/internal/service/matching/domain"
)

type countingRules struct {
	amounts map[string]int64
	err     error
	calls   int
}

func (r *countingRules) Lookup(_ context.Context, sourceType string) (int64, bool, error) {
	r.calls++
	if r.err != nil {
		return 0, false, r.err
	}
	amount, ok := r.amounts[sourceType]
	return amount, ok, nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCachedRewardRules_HitMissAndNegative(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingRules{amounts: map[string]int64{domain.SourceMatchGiver: 12}}
	rules := NewCachedRewardRules(source, client, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		amount, found, err := rules.Lookup(ctx, domain.SourceMatchGiver)
		require.NoError(t, err)
		assert.True(t, found)
		assert.EqualValues(t, 12, amount)
	}
	assert.Equal(t, 1, source.calls)

	for i := 0; i < 2; i++ {
		_, found, err := rules.Lookup(ctx, domain.SourceMatchReceiver)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, 2, source.calls, "missing rule is cached as well")

	value, err := mr.Get("neighborly:reward_rule:match_receiver")
	require.NoError(t, err)
	assert.Equal(t, "-", value)

	mr.FastForward(2 * time.Minute)
	_, _, err = rules.Lookup(ctx, domain.SourceMatchGiver)
	require.NoError(t, err)
	assert.Equal(t, 3, source.calls)

	require.NoError(t, rules.Invalidate(ctx, domain.SourceMatchGiver))
	_, _, err = rules.Lookup(ctx, domain.SourceMatchGiver)
	require.NoError(t, err)
	assert.Equal(t, 4, source.calls)
}

func TestCachedRewardRules_RedisDownReadsThrough(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingRules{amounts: map[string]int64{domain.SourceMatchGiver: 8}}
	rules := NewCachedRewardRules(source, client, time.Minute)
	mr.Close()

	amount, found, err := rules.Lookup(context.Background(), domain.SourceMatchGiver)
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 8, amount)
}

func TestCachedRewardRules_SourceErrorNotCached(t *testing.T) {
	mr, client := newTestRedis(t)
	source := &countingRules{err: errors.New("db down")}
	rules := NewCachedRewardRules(source, client, time.Minute)

	_, _, err := rules.Lookup(context.Background(), domain.SourceMatchGiver)
	require.Error(t, err)
	assert.False(t, mr.Exists("neighborly:reward_rule:match_giver"))
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestNotificationKafkaAdapter_Send(t *testing.T) {
	w := &recordingWriter{}
	a := NewNotificationKafkaAdapter(w)

	err := a.Send(context.Background(), "bob", domain.NotifyMatchCreated, "New match", "You have a match", map[string]string{"matchId": "m1"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "bob", string(w.msgs[0].Key))

	var event domain.NotificationEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.Equal(t, domain.NotifyMatchCreated, event.Kind)
	assert.Equal(t, "m1", event.Data["matchId"])
	assert.NoError(t, a.Close())

	w.err = errors.New("broker unavailable")
	assert.Error(t, a.Send(context.Background(), "bob", domain.NotifyMatchClosed, "", "", nil))
}

func TestWorkQueueKafkaAdapter_Enqueue(t *testing.T) {
	w := &recordingWriter{}
	q := NewWorkQueueKafkaAdapter(w)

	item := &domain.WorkItem{
		Kind:        domain.WorkEntityCreated,
		CommunityID: "c1",
		Entity:      &domain.EntityRef{Kind: domain.KindOffer, ID: "o1", CommunityID: "c1"},
		EnqueuedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, q.Enqueue(context.Background(), item))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "c1", string(w.msgs[0].Key))

	decoded, err := domain.DecodeWorkItem(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "o1", decoded.Entity.ID)
}

func TestChannelHTTPAdapter_OpenAndClose(t *testing.T) {
	var closed []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/channels":
			var req openChannelRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(openChannelResponse{ChannelID: "ch-" + req.MatchID})
		case "/channels/ch-m1/close":
			closed = append(closed, "ch-m1")
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := NewChannelHTTPAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), srv.URL+"/")
	ctx := context.Background()

	id, err := a.Open(ctx, "m1", "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, "ch-m1", id)

	require.NoError(t, a.Close(ctx, "ch-m1"))
	assert.Equal(t, []string{"ch-m1"}, closed)

	// 频道已不存在
	require.NoError(t, a.Close(ctx, "ch-gone"))
}

func TestChannelHTTPAdapter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	a := NewChannelHTTPAdapter(httpclient.NewClient(noop.NewTracerProvider().Tracer("test")), srv.URL)
	_, err := a.Open(context.Background(), "m1", "alice", "bob")
	require.Error(t, err)

	var statusErr *httpclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}
