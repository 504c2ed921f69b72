package sources

import (
	"strconv"

	"github.com/agentstation/rowsync/pkg/record"
)

// Batch is the output of one source, in priority order when merged.
type Batch struct {
	Source  ID
	Records []record.Record
}

// MergeResult is the combined record set plus per-source accounting.
type MergeResult struct {
	Records []record.Record

	// Fetched counts records received per source.
	Fetched map[ID]int

	// Contributed counts records each source added to the merged set.
	Contributed map[ID]int

	// Shadowed counts records dropped because a higher-priority source
	// already supplied the same identity.
	Shadowed map[ID]int

	// Unkeyed holds records without an identity. They are passed through so
	// the reconciler can report them.
	Unkeyed int
}

// Merge combines batches by identity. The first batch to supply an identity
// wins; later records with that identity are dropped. Records with no
// identity are kept so they can be reported downstream. Order follows the
// batches, then each batch's record order.
func Merge(identityField string, batches ...Batch) *MergeResult {
	res := &MergeResult{
		Fetched:     make(map[ID]int, len(batches)),
		Contributed: make(map[ID]int, len(batches)),
		Shadowed:    make(map[ID]int, len(batches)),
	}
	owner := make(map[string]ID)
	for _, b := range batches {
		res.Fetched[b.Source] += len(b.Records)
		for _, rec := range b.Records {
			id, ok := record.Identity(rec, identityField)
			if !ok {
				res.Unkeyed++
				res.Records = append(res.Records, rec)
				continue
			}
			if prev, taken := owner[id]; taken && prev != b.Source {
				res.Shadowed[b.Source]++
				continue
			}
			owner[id] = b.Source
			res.Contributed[b.Source]++
			res.Records = append(res.Records, rec)
		}
	}
	return res
}

// Lookup builds an identity -> value index over batches for valueField.
// Sources are consulted in order; a later source only fills identities
// whose value so far is missing or zero. fold, when set, is applied to
// identities before indexing.
func Lookup(identityField, valueField string, fold func(string) string, batches ...Batch) map[string]any {
	out := make(map[string]any)
	for _, b := range batches {
		for _, rec := range b.Records {
			id, ok := record.Identity(rec, identityField)
			if !ok {
				continue
			}
			if fold != nil {
				id = fold(id)
			}
			v, present := rec[valueField]
			if !present || v == nil {
				continue
			}
			if prev, taken := out[id]; taken && !isZero(prev) {
				continue
			}
			out[id] = v
		}
	}
	return out
}

func isZero(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == "" || x == "0"
	case bool:
		return !x
	}
	s := record.Text(v)
	f, err := strconv.ParseFloat(s, 64)
	return err == nil && f == 0
}
