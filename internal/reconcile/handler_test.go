package reconcile

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sisco70/tabacchi/internal/orders"
	"github.com/sisco70/tabacchi/internal/platform/httpx"
)

type handlerFixture struct {
	router   chi.Router
	registry *Registry
	repo     *memoryRepo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	svc, repo, _ := setup(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewRegistry()
	h := NewHandler(logger, svc, registry, NewWSSource("", logger))
	r := chi.NewRouter()
	r.Route("/orders/{id}", func(r chi.Router) { h.MountRoutes(r) })
	return &handlerFixture{router: r, registry: registry, repo: repo}
}

func (f *handlerFixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var v sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHandlerRejectsBadOrderID(t *testing.T) {
	f := newHandlerFixture(t)
	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/orders/x/reconciliation/"},
		{http.MethodPost, "/orders/0/reconciliation/"},
		{http.MethodGet, "/orders/-3/reconciliation/"},
		{http.MethodPost, "/orders/abc/reconciliation/finalize"},
	}
	for _, tc := range cases {
		rec := f.do(tc.method, tc.path, "")
		require.Equal(t, http.StatusBadRequest, rec.Code, tc.path)
		require.Equal(t, "Invalid Order", decodeProblem(t, rec).Title)
	}
}

func TestHandlerNeedsLiveSession(t *testing.T) {
	f := newHandlerFixture(t)
	cases := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/orders/1/reconciliation/", ""},
		{http.MethodDelete, "/orders/1/reconciliation/", ""},
		{http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"A","quantity":1}`},
		{http.MethodPost, "/orders/1/reconciliation/scan", `{"code":"800A"}`},
		{http.MethodPost, "/orders/1/reconciliation/commit", ""},
		{http.MethodPost, "/orders/1/reconciliation/finalize", `{"confirm":true}`},
		{http.MethodDelete, "/orders/1/reconciliation/lines/A", ""},
	}
	for _, tc := range cases {
		rec := f.do(tc.method, tc.path, tc.body)
		require.Equal(t, http.StatusNotFound, rec.Code, tc.method+" "+tc.path)
	}
}

func TestHandlerOpenIsIdempotent(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(http.MethodPost, "/orders/1/reconciliation/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	first := decodeSession(t, rec)
	require.Equal(t, int64(1), first.OrderID)
	require.Len(t, first.Lines, 2)
	require.Equal(t, "250.00", first.Totals.OrderedValue)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, first.Token, decodeSession(t, rec).Token)
}

func TestHandlerOpenMapsOrderErrors(t *testing.T) {
	f := newHandlerFixture(t)
	f.repo.orders[2] = orders.Order{ID: 2, State: orders.StateInProgress}

	rec := f.do(http.MethodPost, "/orders/2/reconciliation/", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, "Invalid State", decodeProblem(t, rec).Title)

	rec = f.do(http.MethodPost, "/orders/99/reconciliation/", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	_, open := f.registry.Get(99)
	require.False(t, open)
}

func TestHandlerOverDeliveryNeedsConfirm(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders/1/reconciliation/", "").Code)

	rec := f.do(http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"A","quantity":3}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	p := decodeProblem(t, rec)
	require.Equal(t, "Over Delivery", p.Title)
	require.Equal(t, "A", p.Extensions["article_id"])
	require.Equal(t, "2.000", p.Extensions["ordered"])
	require.Equal(t, "3.000", p.Extensions["requested"])

	rec = f.do(http.MethodGet, "/orders/1/reconciliation/", "")
	require.Equal(t, "0.000", decodeSession(t, rec).Lines[0].Loaded)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"A","quantity":3,"confirm":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeSession(t, rec)
	require.Equal(t, "A", v.Lines[0].ArticleID)
	require.Equal(t, "3.000", v.Lines[0].Loaded)
	require.Equal(t, "3.000", v.Lines[0].Ordered)
	require.True(t, v.Lines[0].Verified)
	require.True(t, v.Dirty)
}

func TestHandlerLoadValidation(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders/1/reconciliation/", "").Code)

	cases := []struct {
		name, body string
		status     int
	}{
		{"missing article", `{"quantity":1}`, http.StatusBadRequest},
		{"unknown field", `{"article_id":"A","quantity":1,"extra":true}`, http.StatusBadRequest},
		{"negative", `{"article_id":"A","quantity":-1}`, http.StatusBadRequest},
		{"not in delivery", `{"article_id":"Z","quantity":1}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/orders/1/reconciliation/load", tc.body)
			require.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestHandlerScanReportsRejections(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders/1/reconciliation/", "").Code)

	rec := f.do(http.MethodPost, "/orders/1/reconciliation/scan", `{"code":"800A"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var reply ScanReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, EffectLoad, reply.Kind)
	require.Equal(t, "0.500", reply.Loaded)
	require.Empty(t, reply.Error)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/scan", `{"code":"nope"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, EffectUnknownCode, reply.Kind)
	require.NotEmpty(t, reply.Error)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/scan", `{"code":"800D"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	require.Equal(t, EffectAddArticle, reply.Kind)
	require.True(t, reply.Pending)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/pending", `{"code":"800D","accept":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	v := decodeSession(t, rec)
	require.Empty(t, v.Pending)
	require.Len(t, v.Lines, 3)
}

func TestHandlerFinalize(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders/1/reconciliation/", "").Code)

	rec := f.do(http.MethodPost, "/orders/1/reconciliation/finalize", `{"confirm":true}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"A","quantity":2}`).Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"B","quantity":1}`).Code)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/finalize", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "Confirmation Required", decodeProblem(t, rec).Title)
	_, open := f.registry.Get(1)
	require.True(t, open)
	require.Equal(t, orders.StateSent, f.repo.orders[1].State)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/finalize", `{"confirm":true}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, orders.StateReceived, f.repo.orders[1].State)
	_, open = f.registry.Get(1)
	require.False(t, open)

	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/orders/1/reconciliation/", "").Code)
}

func TestHandlerCloseEvictsSession(t *testing.T) {
	f := newHandlerFixture(t)
	require.Equal(t, http.StatusCreated, f.do(http.MethodPost, "/orders/1/reconciliation/", "").Code)
	require.Equal(t, http.StatusOK, f.do(http.MethodPost, "/orders/1/reconciliation/load", `{"article_id":"A","quantity":1}`).Code)

	rec := f.do(http.MethodDelete, "/orders/1/reconciliation/", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	_, open := f.registry.Get(1)
	require.True(t, open)

	rec = f.do(http.MethodDelete, "/orders/1/reconciliation/?discard=1", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, open = f.registry.Get(1)
	require.False(t, open)

	rec = f.do(http.MethodPost, "/orders/1/reconciliation/", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "0.000", decodeSession(t, rec).Totals.Loaded)
}
