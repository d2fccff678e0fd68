package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boosterlab/packdrop/internal/api/middleware"
	"github.com/boosterlab/packdrop/internal/api/rest"
	"github.com/boosterlab/packdrop/internal/api/shared/dto"
	"github.com/boosterlab/packdrop/internal/api/shared/executor"
	"github.com/boosterlab/packdrop/internal/domain"
	"github.com/boosterlab/packdrop/internal/engine"
	"github.com/boosterlab/packdrop/internal/ledger"
	"github.com/boosterlab/packdrop/internal/logger"
	"github.com/boosterlab/packdrop/internal/messaging"
	"github.com/boosterlab/packdrop/internal/replay"
	"github.com/boosterlab/packdrop/internal/shard"
	"github.com/boosterlab/packdrop/internal/store/schema"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

const (
	aliceToken  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	bobToken    = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	adminSecret = "test-admin-secret"
)

// fakeClock pins Now to a settable instant
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }
func (c *fakeClock) Sleep(d time.Duration)           {}
func (c *fakeClock) Unix(sec, nsec int64) time.Time  { return time.Unix(sec, nsec) }
func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- c.Now().Add(d)
	return ch
}

type tokenRecord struct {
	userID    string
	expiresAt time.Time
}

// fakeStore is a full in-memory store.Store
type fakeStore struct {
	mu           sync.Mutex
	shards       map[string]*shard.State
	packs        map[string]*schema.Pack
	tokens       map[string]tokenRecord
	transactions []*schema.Transaction
	ledgers      map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shards:  make(map[string]*shard.State),
		packs:   make(map[string]*schema.Pack),
		tokens:  make(map[string]tokenRecord),
		ledgers: make(map[string][]byte),
	}
}

func (f *fakeStore) LoadShardState(ctx context.Context, shardKey string) (*shard.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.shards[shardKey]
	if !ok {
		return nil, nil
	}
	claimed := make(map[string]int64, len(s.ClaimedBy))
	for k, v := range s.ClaimedBy {
		claimed[k] = v
	}
	out := *s
	out.ClaimedBy = claimed
	return &out, nil
}

func (f *fakeStore) SaveShardState(ctx context.Context, shardKey string, state *shard.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	claimed := make(map[string]int64, len(state.ClaimedBy))
	for k, v := range state.ClaimedBy {
		claimed[k] = v
	}
	saved := *state
	saved.ClaimedBy = claimed
	f.shards[shardKey] = &saved
	return nil
}

func (f *fakeStore) GetPack(ctx context.Context, packID string) (*schema.Pack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pack, ok := f.packs[packID]
	if !ok {
		return nil, nil
	}
	copied := *pack
	return &copied, nil
}

func (f *fakeStore) GetPacksByIDs(ctx context.Context, packIDs []string) ([]*schema.Pack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*schema.Pack
	for _, id := range packIDs {
		if pack, ok := f.packs[id]; ok {
			copied := *pack
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (f *fakeStore) RestockPack(ctx context.Context, packID, name string, delta int) (*schema.Pack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pack, ok := f.packs[packID]
	if !ok {
		pack = &schema.Pack{ID: packID, Name: name}
		f.packs[packID] = pack
	}
	pack.TotalStock += delta
	pack.AvailableStock += delta
	copied := *pack
	return &copied, nil
}

func (f *fakeStore) DecrementAvailableStock(ctx context.Context, packID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if pack, ok := f.packs[packID]; ok && pack.AvailableStock > 0 {
		pack.AvailableStock--
	}
	return nil
}

func (f *fakeStore) CreateAuthToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for existing, rec := range f.tokens {
		if rec.userID == userID {
			delete(f.tokens, existing)
		}
	}
	f.tokens[token] = tokenRecord{userID: userID, expiresAt: expiresAt}
	return nil
}

func (f *fakeStore) GetUserIDByToken(ctx context.Context, token string, now time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.tokens[token]
	if !ok || !rec.expiresAt.After(now) {
		return "", nil
	}
	return rec.userID, nil
}

func (f *fakeStore) AppendTransaction(ctx context.Context, tx *schema.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *tx
	f.transactions = append(f.transactions, &copied)
	return nil
}

func (f *fakeStore) GetUserLedger(ctx context.Context, userID string) (*domain.Inventory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.ledgers[userID]
	if !ok {
		return nil, nil
	}
	var inv domain.Inventory
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (f *fakeStore) SaveUserLedger(ctx context.Context, userID string, inventory *domain.Inventory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, err := json.Marshal(inventory)
	if err != nil {
		return err
	}
	f.ledgers[userID] = raw
	return nil
}

func (f *fakeStore) seedToken(userID, token string, expiresAt time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = tokenRecord{userID: userID, expiresAt: expiresAt}
}

func (f *fakeStore) transactionCount(txType schema.TransactionType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, tx := range f.transactions {
		if tx.Type == txType {
			count++
		}
	}
	return count
}

type testServer struct {
	router *gin.Engine
	store  *fakeStore
	clock  *fakeClock
}

func newTestServer(t *testing.T, rateMax int) *testServer {
	t.Helper()

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	store := newFakeStore()
	store.seedToken("alice", aliceToken, clock.Now().Add(24*time.Hour))
	store.seedToken("bob", bobToken, clock.Now().Add(24*time.Hour))

	inventoryEngine := engine.New(engine.Config{}, store)
	ledgerService := ledger.NewService(store)
	exec := executor.NewExecutor(store, inventoryEngine, ledgerService, messaging.NoopPublisher{}, clock)

	guard := replay.NewGuard(clock, 30*time.Second, 5*time.Minute)
	limiter := middleware.NewRateLimiter(clock, rateMax, time.Minute)
	handler := rest.NewHandler(exec, guard, store, clock, 50)

	router := gin.New()
	rest.SetupRoutes(router, handler, store, clock, limiter, adminSecret)

	return &testServer{router: router, store: store, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func restock(t *testing.T, s *testServer, packID string, stock int) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/pack/restock", aliceToken, dto.RestockPackRequest{PackID: packID, Stock: stock})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestHeartbeat(t *testing.T) {
	s := newTestServer(t, 100)
	w := s.do(t, http.MethodGet, "/heartbeat", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[dto.HeartbeatResponse](t, w)
	assert.True(t, resp.Alive)
	assert.True(t, resp.Timestamp.Equal(s.clock.Now()))
}

func TestClaimPack(t *testing.T) {
	t.Run("claims from a stocked pack", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 128)

		w := s.do(t, http.MethodPost, "/pack/claim", aliceToken, dto.ClaimPackRequest{PackID: "p1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.ClaimPackResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "p1", resp.PackID)
		assert.Equal(t, 128, resp.TotalStock)
		assert.Equal(t, 127, resp.AvailableStock)
		assert.False(t, resp.SoldOut)

		// The claimed pack was credited to the user's inventory
		w = s.do(t, http.MethodGet, "/user/inventory", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
		inv := decode[dto.InventoryResponse](t, w)
		assert.Equal(t, 1, inv.Inventory.Packs["p1"])

		assert.Equal(t, 1, s.store.transactionCount(schema.TransactionTypeClaim))
	})

	t.Run("unknown pack reports sold out", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodPost, "/pack/claim", aliceToken, dto.ClaimPackRequest{PackID: "ghost"})
		require.Equal(t, http.StatusConflict, w.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "sold_out", body.Code)
	})

	t.Run("missing packId fails validation", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/pack/claim", aliceToken, map[string]string{})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "validation_failed", body.Code)
	})

	t.Run("requires authentication", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/pack/claim", "", dto.ClaimPackRequest{PackID: "p1"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestRestockPack(t *testing.T) {
	t.Run("spreads stock over the shard set", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodPost, "/pack/restock", aliceToken, dto.RestockPackRequest{PackID: "p1", Name: "Launch Pack", Stock: 130})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.RestockPackResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, 130, resp.Stock)
		assert.Equal(t, 130, resp.TotalStock)
		assert.Equal(t, domain.ShardCount, resp.Shards)
		assert.Equal(t, 1, s.store.transactionCount(schema.TransactionTypeRestock))
	})

	t.Run("restocks accumulate", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 100)

		w := s.do(t, http.MethodPost, "/pack/restock", aliceToken, dto.RestockPackRequest{PackID: "p1", Stock: 28})
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[dto.RestockPackResponse](t, w)
		assert.Equal(t, 128, resp.TotalStock)
	})

	t.Run("rejects non-positive stock", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/pack/restock", aliceToken, map[string]interface{}{"packId": "p1", "stock": 0})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPackStatus(t *testing.T) {
	t.Run("accurate mode fans out over shards", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 128)

		w := s.do(t, http.MethodPost, "/pack/claim", aliceToken, dto.ClaimPackRequest{PackID: "p1"})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, http.MethodGet, "/pack/status?packId=p1", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.PackStatusResponse](t, w)
		assert.Equal(t, 128, resp.TotalStock)
		assert.Equal(t, 127, resp.TotalAvailable)
		assert.False(t, resp.SoldOut)
	})

	t.Run("fast mode reads the denormalized aggregate", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 64)

		w := s.do(t, http.MethodGet, "/pack/status?packId=p1&fast=true", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.PackStatusResponse](t, w)
		assert.Equal(t, 64, resp.TotalStock)
		assert.Equal(t, 64, resp.TotalAvailable)
	})

	t.Run("fast mode reports an unknown pack as sold out", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodGet, "/pack/status?packId=ghost&fast=true", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.PackStatusResponse](t, w)
		assert.Zero(t, resp.TotalStock)
		assert.Zero(t, resp.TotalAvailable)
		assert.True(t, resp.SoldOut)
	})

	t.Run("missing packId is a bad request", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodGet, "/pack/status", aliceToken, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBulkPackStatus(t *testing.T) {
	t.Run("fast mode mixes known and unknown packs", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 10)

		w := s.do(t, http.MethodPost, "/pack/status/bulk", aliceToken, dto.BulkPackStatusRequest{
			PackIDs: []string{"p1", "ghost"},
			Fast:    true,
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.BulkPackStatusResponse](t, w)
		require.Len(t, resp.Packs, 2)
		assert.Equal(t, 10, resp.Packs["p1"].TotalAvailable)
		assert.False(t, resp.Packs["p1"].SoldOut)
		assert.Zero(t, resp.Packs["ghost"].TotalStock)
		assert.True(t, resp.Packs["ghost"].SoldOut)
	})

	t.Run("accurate mode aggregates per pack", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 128)
		restock(t, s, "p2", 5)

		w := s.do(t, http.MethodPost, "/pack/status/bulk", aliceToken, dto.BulkPackStatusRequest{
			PackIDs: []string{"p1", "p2"},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.BulkPackStatusResponse](t, w)
		assert.Equal(t, 128, resp.Packs["p1"].TotalStock)
		assert.Equal(t, 5, resp.Packs["p2"].TotalStock)
	})

	t.Run("rejects an empty ID list", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/pack/status/bulk", aliceToken, map[string]interface{}{"packIds": []string{}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("caps the ID list", func(t *testing.T) {
		s := newTestServer(t, 200)
		ids := make([]string, domain.MaxBulkStatusPacks+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("p%d", i)
		}
		w := s.do(t, http.MethodPost, "/pack/status/bulk", aliceToken, dto.BulkPackStatusRequest{PackIDs: ids, Fast: true})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEditInventory(t *testing.T) {
	t.Run("applies a combined edit", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodPost, "/user/inventory/edit", aliceToken, dto.InventoryEditRequest{
			Add: &dto.InventoryEditAdd{
				Cards: []domain.CardItem{{ID: "c1", Variant: "holo", Name: "Ember Fox"}},
				Packs: map[string]int{"p1": 2},
			},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.InventoryEditResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, 2, resp.Inventory.Packs["p1"])
		require.Len(t, resp.Inventory.Cards, 1)

		w = s.do(t, http.MethodPost, "/user/inventory/edit", aliceToken, dto.InventoryEditRequest{
			Remove: &dto.InventoryEditRemove{
				Cards: []string{"c1"},
				Packs: map[string]int{"p1": 2},
			},
		})
		require.Equal(t, http.StatusOK, w.Code)

		resp = decode[dto.InventoryEditResponse](t, w)
		assert.Empty(t, resp.Inventory.Cards)
		assert.NotContains(t, resp.Inventory.Packs, "p1")
	})

	t.Run("rejects an empty edit", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/user/inventory/edit", aliceToken, dto.InventoryEditRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateToken(t *testing.T) {
	t.Run("mints a usable bearer token", func(t *testing.T) {
		s := newTestServer(t, 100)

		raw, err := json.Marshal(dto.CreateTokenRequest{UserID: "carol"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin/create-token", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.AdminSecretHeader, adminSecret)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.CreateTokenResponse](t, w)
		assert.True(t, resp.Success)
		assert.Equal(t, "carol", resp.UserID)
		assert.Len(t, resp.Token, 64)
		assert.Equal(t, domain.DefaultTokenTTLDays, resp.ExpiresInDays)

		// The minted token authenticates
		w2 := s.do(t, http.MethodGet, "/user/inventory", resp.Token, nil)
		assert.Equal(t, http.StatusOK, w2.Code)
	})

	t.Run("requires the admin secret", func(t *testing.T) {
		s := newTestServer(t, 100)

		raw, err := json.Marshal(dto.CreateTokenRequest{UserID: "carol"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/admin/create-token", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("a bearer token does not open the admin surface", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/admin/create-token", aliceToken, dto.CreateTokenRequest{UserID: "carol"})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRateLimiting(t *testing.T) {
	s := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodGet, "/user/inventory", aliceToken, nil)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := s.do(t, http.MethodGet, "/user/inventory", aliceToken, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Bob's budget is untouched
	w = s.do(t, http.MethodGet, "/user/inventory", bobToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBatch(t *testing.T) {
	authHeaders := map[string]string{"Authorization": "Bearer " + aliceToken}

	envelope := func(nonce string, requests ...dto.BatchSubRequest) dto.BatchRequest {
		return dto.BatchRequest{
			ClientID:  "client-1",
			BatchID:   "batch-1",
			Nonce:     nonce,
			Timestamp: time.Unix(1700000000, 0).UnixMilli(),
			Requests:  requests,
		}
	}

	sub := func(id, path string, body interface{}, headers map[string]string) dto.BatchSubRequest {
		var raw json.RawMessage
		if body != nil {
			var err error
			raw, err = json.Marshal(body)
			if err != nil {
				panic(err)
			}
		}
		return dto.BatchSubRequest{ID: id, Path: path, Body: raw, Headers: headers}
	}

	t.Run("executes sub-requests under one envelope", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 128)

		w := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("claim", "/pack/claim", dto.ClaimPackRequest{PackID: "p1"}, authHeaders),
			sub("status", "/pack/status", map[string]interface{}{"packId": "p1", "fast": true}, authHeaders),
		))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		resp := decode[dto.BatchResponse](t, w)
		assert.Equal(t, "batch-1", resp.BatchID)
		require.Len(t, resp.Responses, 2)
		assert.Equal(t, http.StatusOK, resp.Responses["claim"].Status)
		assert.Equal(t, http.StatusOK, resp.Responses["status"].Status)

		var claim dto.ClaimPackResponse
		require.NoError(t, json.Unmarshal(resp.Responses["claim"].Body, &claim))
		assert.True(t, claim.Success)
	})

	t.Run("rejects a replayed nonce", func(t *testing.T) {
		s := newTestServer(t, 100)

		first := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("inv", "/user/inventory", nil, authHeaders),
		))
		require.Equal(t, http.StatusOK, first.Code)

		second := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("inv", "/user/inventory", nil, authHeaders),
		))
		require.Equal(t, http.StatusBadRequest, second.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(second.Body.Bytes(), &body))
		assert.Equal(t, "replay_rejected", body.Code)
	})

	t.Run("rejects a stale timestamp", func(t *testing.T) {
		s := newTestServer(t, 100)

		env := envelope("nonce-1", sub("inv", "/user/inventory", nil, authHeaders))
		env.Timestamp = time.Unix(1700000000, 0).Add(-time.Minute).UnixMilli()

		w := s.do(t, http.MethodPost, "/batch", "", env)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "replay_rejected", body.Code)
	})

	t.Run("one failing sub-request does not affect siblings", func(t *testing.T) {
		s := newTestServer(t, 100)
		restock(t, s, "p1", 128)

		w := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("good", "/pack/status", map[string]interface{}{"packId": "p1", "fast": true}, authHeaders),
			sub("soldout", "/pack/claim", dto.ClaimPackRequest{PackID: "ghost"}, authHeaders),
			sub("lost", "/no/such/path", nil, authHeaders),
		))
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.BatchResponse](t, w)
		assert.Equal(t, http.StatusOK, resp.Responses["good"].Status)
		assert.Equal(t, http.StatusConflict, resp.Responses["soldout"].Status)
		assert.Equal(t, http.StatusNotFound, resp.Responses["lost"].Status)
	})

	t.Run("each sub-request carries its own authentication", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("authed", "/user/inventory", nil, authHeaders),
			sub("anon", "/user/inventory", nil, nil),
		))
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.BatchResponse](t, w)
		assert.Equal(t, http.StatusOK, resp.Responses["authed"].Status)
		assert.Equal(t, http.StatusUnauthorized, resp.Responses["anon"].Status)
	})

	t.Run("lowercase authorization header is honored", func(t *testing.T) {
		s := newTestServer(t, 100)

		w := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1",
			sub("inv", "/user/inventory", nil, map[string]string{"authorization": "Bearer " + aliceToken}),
		))
		require.Equal(t, http.StatusOK, w.Code)

		resp := decode[dto.BatchResponse](t, w)
		assert.Equal(t, http.StatusOK, resp.Responses["inv"].Status)
	})

	t.Run("rejects an empty envelope", func(t *testing.T) {
		s := newTestServer(t, 100)
		w := s.do(t, http.MethodPost, "/batch", "", map[string]interface{}{
			"clientId":  "client-1",
			"batchId":   "batch-1",
			"nonce":     "nonce-1",
			"timestamp": time.Unix(1700000000, 0).UnixMilli(),
			"requests":  []interface{}{},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("caps the sub-request count", func(t *testing.T) {
		s := newTestServer(t, 100)

		subs := make([]dto.BatchSubRequest, 51)
		for i := range subs {
			subs[i] = sub(fmt.Sprintf("r%d", i), "/user/inventory", nil, authHeaders)
		}
		w := s.do(t, http.MethodPost, "/batch", "", envelope("nonce-1", subs...))
		require.Equal(t, http.StatusBadRequest, w.Code)

		var body struct {
			Code string `json:"code"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "validation_failed", body.Code)
	})

	t.Run("malformed envelope is a bad request", func(t *testing.T) {
		s := newTestServer(t, 100)

		req := httptest.NewRequest(http.MethodPost, "/batch", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
