package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harvestly/cart-engine/internal/backup"
	"github.com/harvestly/cart-engine/internal/boundary"
	cartstore "github.com/harvestly/cart-engine/internal/cart"
	ordersync "github.com/harvestly/cart-engine/internal/sync"
	"github.com/harvestly/cart-engine/pkg/config"
	"github.com/harvestly/cart-engine/pkg/keyval"
)

type stubSyncer struct {
	outcome ordersync.Outcome
}

func (s *stubSyncer) Confirm(context.Context, ordersync.Mutation) ordersync.Outcome {
	return s.outcome
}

func (s *stubSyncer) CancelPending(string) {}
func (s *stubSyncer) CancelAll()           {}

type testHarness struct {
	handler http.Handler
	syncer  *stubSyncer
	store   *cartstore.Store
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()

	syncer := &stubSyncer{outcome: ordersync.Outcome{Status: ordersync.StatusConfirmed}}
	kv := keyval.NewMemory()
	backupStore, err := backup.NewStore(keyval.NewMemory(), nil, nil)
	if err != nil {
		t.Fatalf("backup store: %v", err)
	}
	store, err := cartstore.NewStore(context.Background(), cartstore.StoreParams{
		Syncer:  syncer,
		Backup:  backupStore,
		Session: kv,
	})
	if err != nil {
		t.Fatalf("cart store: %v", err)
	}

	region := boundary.New(boundary.Options{Component: "cart_panel"})
	cfg := &config.Config{}
	cfg.App.Env = "test"

	handler := NewRouter(cfg, nil, kv, store, region, nil, prometheus.NewRegistry())
	return &testHarness{handler: handler, syncer: syncer, store: store}
}

func (h *testHarness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding envelope: %v (%s)", err, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("decoding data: %v (%s)", err, envelope.Data)
	}
}

const addTomatoes = `{"productId":"p1","name":"Heirloom Tomatoes","price":2.5,"unit":"kg","stock":10,"farmerId":"f1","quantity":2}`

func TestAddItemEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/cart/items", addTomatoes)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var view struct {
		Applied bool               `json:"applied"`
		Cart    cartstore.Snapshot `json:"cart"`
	}
	decodeData(t, rec, &view)
	if !view.Applied {
		t.Fatal("expected the add applied")
	}
	if view.Cart.TotalItems != 2 || view.Cart.TotalAmount != 5.00 {
		t.Fatalf("unexpected totals %+v", view.Cart)
	}
}

func TestAddItemRejectsMalformedBody(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodPost, "/v1/cart/items", `{"productId":"p1","quantity":2}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected a validation error, got %q", envelope.Error.Code)
	}
}

func TestCartLifecycleEndpoints(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/v1/cart/items", addTomatoes)

	rec := h.do(t, http.MethodPatch, "/v1/cart/items/p1", `{"quantity":5}`)
	var view struct {
		Applied bool               `json:"applied"`
		Cart    cartstore.Snapshot `json:"cart"`
	}
	decodeData(t, rec, &view)
	if !view.Applied || view.Cart.Items[0].Quantity != 5 {
		t.Fatalf("unexpected update result %+v", view)
	}

	rec = h.do(t, http.MethodGet, "/v1/cart", "")
	var snap cartstore.Snapshot
	decodeData(t, rec, &snap)
	if snap.TotalItems != 5 {
		t.Fatalf("expected 5 items, got %d", snap.TotalItems)
	}

	rec = h.do(t, http.MethodDelete, "/v1/cart/items/p1", "")
	decodeData(t, rec, &view)
	if !view.Applied || len(view.Cart.Items) != 0 {
		t.Fatalf("unexpected remove result %+v", view)
	}

	rec = h.do(t, http.MethodDelete, "/v1/cart", "")
	decodeData(t, rec, &view)
	if !view.Applied {
		t.Fatalf("unexpected clear result %+v", view)
	}
}

func TestFailedMutationSurfacesErrorAndRecovers(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/v1/cart/items", addTomatoes)

	h.syncer.outcome = ordersync.Outcome{
		Status: ordersync.StatusFailed,
		Reason: "couldn't remove the item: the service took too long to respond",
	}
	rec := h.do(t, http.MethodDelete, "/v1/cart/items/p1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mutation failures still respond 200, got %d", rec.Code)
	}
	var view struct {
		Applied bool               `json:"applied"`
		Cart    cartstore.Snapshot `json:"cart"`
	}
	decodeData(t, rec, &view)
	if view.Applied {
		t.Fatal("expected the remove to report not applied")
	}
	if view.Cart.LastError == "" || len(view.Cart.Items) != 1 {
		t.Fatalf("expected a rolled back cart with a surfaced error, got %+v", view.Cart)
	}

	rec = h.do(t, http.MethodGet, "/v1/cart/backup", "")
	var backupView struct {
		HasBackup bool `json:"hasBackup"`
	}
	decodeData(t, rec, &backupView)
	if !backupView.HasBackup {
		t.Fatal("expected a recovery snapshot after the failure")
	}

	rec = h.do(t, http.MethodPost, "/v1/cart/recover", "")
	var recovery struct {
		Recovered bool               `json:"recovered"`
		Cart      cartstore.Snapshot `json:"cart"`
	}
	decodeData(t, rec, &recovery)
	if !recovery.Recovered {
		t.Fatal("expected recovery to succeed")
	}
	if len(recovery.Cart.Items) != 0 {
		t.Fatalf("expected the attempted removal applied on recovery, got %+v", recovery.Cart.Items)
	}
	if recovery.Cart.LastError != "" {
		t.Fatal("recovery must clear the surfaced error")
	}
}

func TestDismissErrorEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(t, http.MethodPost, "/v1/cart/items", addTomatoes)

	h.syncer.outcome = ordersync.Outcome{Status: ordersync.StatusFailed, Reason: "couldn't update the quantity"}
	h.do(t, http.MethodPatch, "/v1/cart/items/p1", `{"quantity":4}`)

	rec := h.do(t, http.MethodDelete, "/v1/cart/error", "")
	var snap cartstore.Snapshot
	decodeData(t, rec, &snap)
	if snap.LastError != "" {
		t.Fatalf("expected the error dismissed, got %+v", snap)
	}
}

func TestRenderEndpoints(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, http.MethodGet, "/v1/cart/render", "")
	var status struct {
		State      string `json:"state"`
		MaxRetries int    `json:"maxRetries"`
	}
	decodeData(t, rec, &status)
	if status.State != string(boundary.StateHealthy) || status.MaxRetries != 3 {
		t.Fatalf("unexpected render status %+v", status)
	}

	// While healthy there is nothing to retry from.
	rec = h.do(t, http.MethodPost, "/v1/cart/render/retry", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected retry refused while healthy, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/v1/cart/render/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reset to succeed, got %d", rec.Code)
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	h := newHarness(t)

	for _, path := range []string{"/health/live", "/health/ready"} {
		if rec := h.do(t, http.MethodGet, path, ""); rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rec.Code)
		}
	}
	if rec := h.do(t, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("/metrics: expected 200, got %d", rec.Code)
	}
}
