package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"neighborly/internal/pkg/logger"
	"neighborly/internal/service/matching/application"
	"neighborly/internal/service/matching/domain"
)

// MatchingAPI 是 HTTP 处理器依赖的应用服务子集
type MatchingAPI interface {
	OnEntityCreated(ctx context.Context, ref domain.EntityRef, communityID string) error
	ScheduleSweep(ctx context.Context, communityID string) error
	RequestClosure(ctx context.Context, req application.ClosureRequest) (application.ClosureResult, error)
	EnqueueClosure(ctx context.Context, communityID string, req application.ClosureRequest) error
	Balance(ctx context.Context, userID string) (int64, error)
	PairFlagged(ctx context.Context, userA, userB string) (bool, error)
}

// MatchingHandler 封装了撮合服务的 HTTP 处理器
type MatchingHandler struct {
	service  MatchingAPI
	gatherer prometheus.Gatherer
}

// NewMatchingHandler 创建一个新的 HTTP 处理器实例
func NewMatchingHandler(service MatchingAPI, gatherer prometheus.Gatherer) *MatchingHandler {
	return &MatchingHandler{service: service, gatherer: gatherer}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *MatchingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/entities", h.entityCreated)
	mux.HandleFunc("/sweeps", h.scheduleSweep)
	mux.HandleFunc("/closures", h.requestClosure)
	mux.HandleFunc("/closures/queue", h.enqueueClosure)
	mux.HandleFunc("/balances", h.balance)
	mux.HandleFunc("/pairs/flagged", h.pairFlagged)
}

func extract(r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

type entityCreatedBody struct {
	Kind        domain.EntityKind `json:"kind"`
	ID          string            `json:"id"`
	CommunityID string            `json:"communityId"`
}

func (h *MatchingHandler) entityCreated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := extract(r)
	var body entityCreatedBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ref := domain.EntityRef{Kind: body.Kind, ID: body.ID, CommunityID: body.CommunityID}
	if err := h.service.OnEntityCreated(ctx, ref, body.CommunityID); err != nil {
		h.fail(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *MatchingHandler) scheduleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx := extract(r)
	community := r.URL.Query().Get("community")
	if community == "" {
		writeError(w, http.StatusBadRequest, errors.New("community is required"))
		return
	}
	if err := h.service.ScheduleSweep(ctx, community); err != nil {
		h.fail(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type closureBody struct {
	CommunityID string             `json:"communityId"`
	MatchID     string             `json:"matchId"`
	RequesterID string             `json:"requesterId"`
	Moderator   bool               `json:"moderator"`
	Type        domain.ClosureType `json:"type"`
	Reason      string             `json:"reason"`
}

func (b closureBody) request() application.ClosureRequest {
	return application.ClosureRequest{
		MatchID:     b.MatchID,
		RequesterID: b.RequesterID,
		Moderator:   b.Moderator,
		Type:        b.Type,
		Reason:      b.Reason,
	}
}

// decodeClosure 解析并校验关闭请求体，失败时已写好响应。
func decodeClosure(w http.ResponseWriter, r *http.Request) (closureBody, bool) {
	var body closureBody
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return body, false
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return body, false
	}
	if body.MatchID == "" {
		writeError(w, http.StatusBadRequest, errors.New("matchId is required"))
		return body, false
	}
	if _, err := body.Type.TargetStatus(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return body, false
	}
	return body, true
}

// requestClosure 同步执行关闭，调用方直接拿到结果。
func (h *MatchingHandler) requestClosure(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeClosure(w, r)
	if !ok {
		return
	}
	ctx := extract(r)
	res, err := h.service.RequestClosure(ctx, body.request())
	outcome := map[string]interface{}{"status": res.Status, "rewardIssued": res.RewardIssued}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, outcome)
	case errors.Is(err, domain.ErrAlreadyClosed):
		outcome["error"] = err.Error()
		writeJSON(w, http.StatusConflict, outcome)
	case errors.Is(err, domain.ErrNotParticipant):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidClosure):
		writeError(w, http.StatusBadRequest, err)
	default:
		h.fail(ctx, w, err)
	}
}

// enqueueClosure 把关闭请求投入工作队列，由消费者异步执行。
func (h *MatchingHandler) enqueueClosure(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeClosure(w, r)
	if !ok {
		return
	}
	ctx := extract(r)
	if err := h.service.EnqueueClosure(ctx, body.CommunityID, body.request()); err != nil {
		h.fail(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *MatchingHandler) balance(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	user := r.URL.Query().Get("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, errors.New("user is required"))
		return
	}
	balance, err := h.service.Balance(ctx, user)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"userId": user, "balance": balance})
}

func (h *MatchingHandler) pairFlagged(w http.ResponseWriter, r *http.Request) {
	ctx := extract(r)
	a, b := r.URL.Query().Get("a"), r.URL.Query().Get("b")
	if a == "" || b == "" {
		writeError(w, http.StatusBadRequest, errors.New("a and b are required"))
		return
	}
	flagged, err := h.service.PairFlagged(ctx, a, b)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flagged": flagged})
}

func (h *MatchingHandler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	if domain.IsRejection(err) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	logger.Ctx(ctx).Error().Err(err).Msg("request failed")
	writeError(w, http.StatusServiceUnavailable, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
