package idempotency

import (
	"context"
	"fmt"
	"time"
)

func ExampleGuard_CheckAndMark() {
	ctx := context.Background()
	guard, _ := ForConsumer(newMemoryStore(), 30*24*time.Hour, "invoice-backfill")

	for attempt := 1; attempt <= 2; attempt++ {
		seen, _ := guard.CheckAndMark(ctx, "f47ac10b-58cc-4372-a567-0e02b2c3d479")
		if seen {
			fmt.Printf("delivery %d: skipped\n", attempt)
			continue
		}
		fmt.Printf("delivery %d: issue invoice\n", attempt)
	}
	// Output:
	// delivery 1: issue invoice
	// delivery 2: skipped
}
