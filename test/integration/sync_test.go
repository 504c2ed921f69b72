// Package integration runs job files end to end against fake KiotViet and
// Lark servers.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/internal/jobs"
	"github.com/agentstation/rowsync/internal/metrics"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/retry"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

type kiot struct {
	mu       sync.Mutex
	products []map[string]any
}

func (k *kiot) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /connect/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PublicApi.Access", r.FormValue("scopes"))
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "k1", "expires_in": 86400, "token_type": "Bearer"})
	})
	mux.HandleFunc("GET /products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop", r.Header.Get("Retailer"))
		k.mu.Lock()
		defer k.mu.Unlock()
		size, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
		start, _ := strconv.Atoi(r.URL.Query().Get("currentItem"))
		end := min(start+size, len(k.products))
		_ = json.NewEncoder(w).Encode(map[string]any{"total": len(k.products), "pageSize": size, "data": k.products[start:end]})
	})
	return mux
}

func (k *kiot) setCost(code string, cost float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, p := range k.products {
		if p["code"] == code {
			p["inventories"] = []any{map[string]any{"cost": cost}}
		}
	}
}

type base struct {
	mu     sync.Mutex
	rows   map[string]map[string]any
	order  []string
	writes map[string]int
}

func (b *base) reply(w http.ResponseWriter, data any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "msg": "success", "data": data})
}

func (b *base) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /open-apis/auth/v3/tenant_access_token/internal", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"code": 0, "tenant_access_token": "t1", "expire": 7200})
	})
	mux.HandleFunc("GET /open-apis/bitable/v1/apps/app1/tables", func(w http.ResponseWriter, _ *http.Request) {
		b.reply(w, map[string]any{"items": []map[string]any{{"table_id": "tblP", "name": "Products"}}, "has_more": false})
	})
	mux.HandleFunc("POST /open-apis/bitable/v1/apps/app1/tables/tblP/records/search", func(w http.ResponseWriter, _ *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		items := make([]map[string]any, 0, len(b.order))
		for _, id := range b.order {
			items = append(items, map[string]any{"record_id": id, "fields": b.rows[id]})
		}
		b.reply(w, map[string]any{"items": items, "has_more": false, "total": len(items)})
	})
	mux.HandleFunc("POST /open-apis/bitable/v1/apps/app1/tables/tblP/records/{op}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Records []struct {
				RecordID string         `json:"record_id"`
				Fields   map[string]any `json:"fields"`
			} `json:"records"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		defer b.mu.Unlock()
		op := r.PathValue("op")
		b.writes[op]++
		out := make([]map[string]any, 0, len(body.Records))
		for _, rec := range body.Records {
			switch op {
			case "batch_create":
				id := fmt.Sprintf("rec%d", len(b.order)+1)
				b.rows[id] = rec.Fields
				b.order = append(b.order, id)
				out = append(out, map[string]any{"record_id": id, "fields": rec.Fields})
			case "batch_update":
				for k, v := range rec.Fields {
					b.rows[rec.RecordID][k] = v
				}
				out = append(out, map[string]any{"record_id": rec.RecordID, "fields": rec.Fields})
			}
		}
		b.reply(w, map[string]any{"records": out})
	})
	return mux
}

const jobFile = `
sources:
  kiot:
    type: kiotviet
    retailer: shop
    client_id: id
    client_secret: ${TEST_KIOT_SECRET}
    auth_url: ${TEST_KIOT_URL}/connect/token
    api_url: ${TEST_KIOT_URL}
    lowercase: [code]
destinations:
  base:
    type: lark
    app_id: cli_1
    app_secret: secret
    base_token: app1
    base_url: ${TEST_LARK_URL}
jobs:
  - name: products
    sources: [kiot]
    destination: base
    table: Products
    identity: code
    fingerprint: hash
    fields:
      - {source: code, label: SKU}
      - {source: name, label: Name}
      - {source: cost, label: Cost, kind: number}
      - {source: hash, label: Hash}
`

func TestSyncKiotVietToLark(t *testing.T) {
	k := &kiot{products: []map[string]any{
		{"id": 1, "code": "TEA-01", "fullName": "Green tea", "inventories": []any{map[string]any{"cost": 12.5}}},
		{"id": 2, "code": "TEA-02", "fullName": "Black tea", "inventories": []any{map[string]any{"cost": 9}}},
		{"id": 3, "code": "TEA-03", "fullName": "Oolong", "inventories": []any{map[string]any{"onHand": 3}}},
	}}
	kiotSrv := httptest.NewServer(k.handler(t))
	t.Cleanup(kiotSrv.Close)

	b := &base{rows: map[string]map[string]any{}, writes: map[string]int{}}
	larkSrv := httptest.NewServer(b.handler())
	t.Cleanup(larkSrv.Close)

	t.Setenv("TEST_KIOT_URL", kiotSrv.URL)
	t.Setenv("TEST_KIOT_SECRET", "s3cret")
	t.Setenv("TEST_LARK_URL", larkSrv.URL)

	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(jobFile), 0o600))
	f, err := jobs.Load(path)
	require.NoError(t, err)

	builder := jobs.NewBuilder(f, jobs.WithLogger(logging.NewNopLogger()))
	t.Cleanup(func() { _ = builder.Close() })
	job, err := builder.Sync(context.Background(), f.Jobs[0], jobs.Range{})
	require.NoError(t, err)

	m := metrics.New()
	hooks := rowsync.NewHooks()
	m.Attach(hooks)
	opts := []rowsync.Option{
		rowsync.WithLogger(logging.NewNopLogger()),
		rowsync.WithHooks(hooks),
		rowsync.WithPageSize(2),
		rowsync.WithChunkSize(2),
		rowsync.WithRetryPolicy(retry.Policy{MaxAttempts: 2, Backoff: time.Millisecond}),
		rowsync.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	}

	res, err := rowsync.Run(context.Background(), job, opts...)
	require.NoError(t, err)
	assert.Equal(t, 3, res.SourceRecords)
	assert.Equal(t, 3, res.Inserts.Applied)
	assert.Equal(t, 2, res.Inserts.Chunks)
	assert.Equal(t, 2, b.writes["batch_create"])
	require.Len(t, b.rows, 3)
	assert.Equal(t, "tea-01", b.rows["rec1"]["SKU"])
	assert.EqualValues(t, 12.5, b.rows["rec1"]["Cost"])
	assert.EqualValues(t, 0, b.rows["rec3"]["Cost"])

	res, err = rowsync.Run(context.Background(), job, opts...)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Unchanged)
	assert.False(t, res.HasChanges())

	k.setCost("TEA-02", 10)
	res, err = rowsync.Run(context.Background(), job, opts...)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updates.Applied)
	assert.Equal(t, 2, res.Unchanged)
	assert.EqualValues(t, 10, b.rows["rec2"]["Cost"])
	assert.Equal(t, 1, b.writes["batch_update"])

	exposed, err := m.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, exposed)
}
