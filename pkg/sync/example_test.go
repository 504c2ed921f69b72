package sync_test

import (
	"context"
	"fmt"
	"log"

	"github.com/agentstation/rowsync/pkg/logging"
	"github.com/agentstation/rowsync/pkg/normalize"
	"github.com/agentstation/rowsync/pkg/record"
	"github.com/agentstation/rowsync/pkg/sources"
	rowsync "github.com/agentstation/rowsync/pkg/sync"
)

// Example syncs two records into an empty table, then runs again to show
// that unchanged records are not rewritten.
func Example() {
	src := &memSource{id: "shop", records: []record.Record{
		{"code": "TEA-01", "cost": 12.5},
		{"code": "TEA-02", "cost": 9},
	}}
	dst := &memDestination{table: "Products"}

	job := rowsync.Job{
		Name:             "products",
		Table:            "Products",
		Sources:          []sources.Source{src},
		Destination:      dst,
		Mapping:          normalize.NewMapping(map[string]string{"code": "SKU", "cost": "Cost", "hash": "Hash"}, map[string]normalize.Kind{"cost": normalize.KindNumber}),
		IdentityField:    "code",
		FingerprintField: "hash",
	}

	for range 2 {
		res, err := rowsync.Run(context.Background(), job,
			rowsync.WithLogger(logging.NewNopLogger()),
			rowsync.WithBatchPause(0),
		)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(res)
	}
	// Output:
	// products: 2 inserts, 0 updates, 0 unchanged, 0 skipped, 2 applied, 0 failed
	// products: 0 inserts, 0 updates, 2 unchanged, 0 skipped, 0 applied, 0 failed
}
