package reconcile_test

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/rowsync/pkg/errors"
	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/reconcile"
	"github.com/agentstation/rowsync/pkg/record"
)

func ptr(s string) *string { return &s }

func rec(id any, hash any) record.Record {
	r := record.Record{"id": id}
	if hash != nil {
		r["hash"] = hash
	}
	return r
}

func TestDiff(t *testing.T) {
	t.Run("insert update unchanged", func(t *testing.T) {
		snapshot := reconcile.FromEntries([]reconcile.Entry{
			{RowID: "r1", Identity: "1", Fingerprint: ptr("a")},
			{RowID: "r2", Identity: "2", Fingerprint: ptr("b")},
		})
		source := []record.Record{rec("1", "a"), rec("2", "c"), rec("3", "d")}

		result := reconcile.Diff(source, snapshot, "id", "hash")

		require.Len(t, result.ToInsert, 1)
		assert.Equal(t, "3", result.ToInsert[0].Identity)

		require.Len(t, result.ToUpdate, 1)
		assert.Equal(t, "r2", result.ToUpdate[0].RowID)
		assert.Equal(t, "2", result.ToUpdate[0].Identity)
		assert.Equal(t, ptr("b"), result.ToUpdate[0].Previous)

		assert.Equal(t, []string{"1"}, result.Unchanged)
		assert.Empty(t, result.Skipped)

		upsert := result.ToUpsert()
		require.Len(t, upsert, 2)
		assert.Equal(t, "3", upsert[0]["id"])
		assert.Equal(t, "2", upsert[1]["id"])
		assert.True(t, result.HasChanges())
	})

	t.Run("empty snapshot inserts everything", func(t *testing.T) {
		result := reconcile.Diff([]record.Record{rec("x", "h")}, reconcile.FromEntries(nil), "id", "hash")
		require.Len(t, result.ToInsert, 1)
		assert.Empty(t, result.ToUpdate)
		assert.Empty(t, result.Unchanged)
	})

	t.Run("second run is idempotent", func(t *testing.T) {
		source := []record.Record{rec("1", "a"), rec("2", "b")}
		snapshot := reconcile.FromMap(map[string]*string{"1": ptr("a"), "2": ptr("b")})
		result := reconcile.Diff(source, snapshot, "id", "hash")
		assert.False(t, result.HasChanges())
		assert.Equal(t, reconcile.Summary{Unchanged: 2}, result.Summary())
	})

	t.Run("missing identity is skipped", func(t *testing.T) {
		source := []record.Record{
			{"hash": "a"},
			rec(nil, "b"),
			rec("  ", "c"),
			rec("ok", "d"),
		}
		result := reconcile.Diff(source, reconcile.FromEntries(nil), "id", "hash")

		require.Len(t, result.Skipped, 3)
		for i, skip := range result.Skipped {
			assert.Equal(t, i, skip.Index)
			assert.True(t, errors.IsMalformedRecord(skip.Err))
		}
		require.Len(t, result.ToInsert, 1)
		assert.Equal(t, "ok", result.ToInsert[0].Identity)
	})

	t.Run("duplicate source identity keeps the first", func(t *testing.T) {
		source := []record.Record{rec("1", "a"), rec("1", "z")}
		result := reconcile.Diff(source, reconcile.FromEntries(nil), "id", "hash")

		require.Len(t, result.ToInsert, 1)
		assert.Equal(t, "a", result.ToInsert[0].Record["hash"])
		require.Len(t, result.Skipped, 1)
		assert.Equal(t, 1, result.Skipped[0].Index)
		assert.Equal(t, "1", result.Skipped[0].Identity)
	})

	t.Run("null fingerprints", func(t *testing.T) {
		snapshot := reconcile.FromEntries([]reconcile.Entry{
			{RowID: "r1", Identity: "both-null"},
			{RowID: "r2", Identity: "dest-null"},
			{RowID: "r3", Identity: "src-null", Fingerprint: ptr("x")},
		})
		source := []record.Record{rec("both-null", nil), rec("dest-null", "h"), rec("src-null", nil)}

		result := reconcile.Diff(source, snapshot, "id", "hash")

		assert.Equal(t, []string{"both-null"}, result.Unchanged)
		require.Len(t, result.ToUpdate, 2)
		assert.Nil(t, result.ToUpdate[0].Previous)
		assert.Equal(t, "src-null", result.ToUpdate[1].Identity)
	})

	t.Run("require fingerprint", func(t *testing.T) {
		result := reconcile.Diff([]record.Record{rec("1", nil)}, reconcile.FromEntries(nil), "id", "hash",
			reconcile.WithRequireFingerprint())
		assert.Empty(t, result.ToInsert)
		require.Len(t, result.Skipped, 1)
		assert.Contains(t, result.Skipped[0].Err.Error(), "missing fingerprint")
	})

	t.Run("numeric identities match their text form", func(t *testing.T) {
		snapshot := reconcile.FromMap(map[string]*string{"1001": ptr("a")})
		result := reconcile.Diff([]record.Record{rec(1001, "a")}, snapshot, "id", "hash")
		assert.Equal(t, []string{"1001"}, result.Unchanged)
	})

	t.Run("whitespace around fingerprints is ignored", func(t *testing.T) {
		snapshot := reconcile.FromMap(map[string]*string{"1": ptr(" a\t")})
		result := reconcile.Diff([]record.Record{rec("1", "a ")}, snapshot, "id", "hash")
		assert.Equal(t, []string{"1"}, result.Unchanged)
	})

	t.Run("fold identity", func(t *testing.T) {
		snapshot := reconcile.FromEntries([]reconcile.Entry{{RowID: "r1", Identity: "SKU-Ä", Fingerprint: ptr("a")}})
		source := []record.Record{rec("sku-ä", "a")}

		plain := reconcile.Diff(source, snapshot, "id", "hash")
		assert.Len(t, plain.ToInsert, 1)

		folded := reconcile.Diff(source, snapshot, "id", "hash", reconcile.WithFoldIdentity())
		assert.Empty(t, folded.ToInsert)
		assert.Equal(t, []string{"sku-ä"}, folded.Unchanged)
	})

	t.Run("inputs are not mutated", func(t *testing.T) {
		source := []record.Record{rec("1", "a"), rec("2", "b")}
		entries := []reconcile.Entry{{RowID: "r1", Identity: "1", Fingerprint: ptr(" a ")}}

		reconcile.Diff(source, reconcile.FromEntries(entries), "id", "hash")

		want := []record.Record{{"id": "1", "hash": "a"}, {"id": "2", "hash": "b"}}
		if diff := cmp.Diff(want, source); diff != "" {
			t.Errorf("source mutated (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]reconcile.Entry{{RowID: "r1", Identity: "1", Fingerprint: ptr(" a ")}}, entries); diff != "" {
			t.Errorf("entries mutated (-want +got):\n%s", diff)
		}
	})
}

func TestDiffCompleteness(t *testing.T) {
	snapshot := map[string]*string{}
	var source []record.Record
	for i := range 50 {
		id := fmt.Sprintf("id-%02d", i)
		source = append(source, rec(id, fmt.Sprintf("h%d", i)))
		switch i % 3 {
		case 0:
			snapshot[id] = ptr(fmt.Sprintf("h%d", i))
		case 1:
			snapshot[id] = ptr("stale")
		}
	}

	result := reconcile.Diff(source, reconcile.FromMap(snapshot), "id", "hash")

	buckets := map[string]int{}
	for _, ins := range result.ToInsert {
		buckets[ins.Identity]++
	}
	for _, upd := range result.ToUpdate {
		buckets[upd.Identity]++
	}
	for _, id := range result.Unchanged {
		buckets[id]++
	}
	assert.Len(t, buckets, 50)
	for id, n := range buckets {
		assert.Equal(t, 1, n, id)
	}
	assert.Equal(t, reconcile.Summary{Inserts: 16, Updates: 17, Unchanged: 17}, result.Summary())
}

func TestSnapshot(t *testing.T) {
	t.Run("last entry wins", func(t *testing.T) {
		s := reconcile.FromEntries([]reconcile.Entry{
			{RowID: "r1", Identity: "1", Fingerprint: ptr("a")},
			{RowID: "r2", Identity: "1", Fingerprint: ptr("b")},
			{RowID: "r3", Identity: ""},
		})
		assert.Equal(t, 1, s.Len())
		assert.Equal(t, 1, s.Duplicates())
		e, ok := s.Lookup("1")
		require.True(t, ok)
		assert.Equal(t, "r2", e.RowID)
	})

	t.Run("blank fingerprint is null", func(t *testing.T) {
		s := reconcile.FromMap(map[string]*string{"1": ptr("  "), "": ptr("x")})
		assert.Equal(t, 1, s.Len())
		e, _ := s.Lookup("1")
		assert.Nil(t, e.Fingerprint)
	})
}

func TestResultLog(t *testing.T) {
	tl := logging.NewTestLogger(t)
	result := reconcile.Diff([]record.Record{rec("1", "a"), {"hash": "b"}}, reconcile.FromEntries(nil), "id", "hash")
	result.Log(tl.Logger)

	tl.AssertContains(t, `"insert":1`)
	tl.AssertContains(t, `"skipped":1`)
	tl.AssertContains(t, `"level":"warn"`)
}
