package workers

import (
	"context"
	"log"
	"time"
)

// PayoutVerifier settles submitted payouts against the payment network.
type PayoutVerifier interface {
	VerifySubmittedPayouts(ctx context.Context) (int, error)
}

// PollPayouts checks submitted payouts every interval until ctx is cancelled.
func PollPayouts(ctx context.Context, verifier PayoutVerifier, pollInterval time.Duration) {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	log.Println("Starting payout verification polling...")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Payout polling stopped.")
			return
		case <-ticker.C:
			changed, err := verifier.VerifySubmittedPayouts(ctx)
			if err != nil {
				log.Printf("❌ Error verifying payouts: %v", err)
				continue
			}
			if changed > 0 {
				log.Printf("✅ Settled %d payout(s).", changed)
			}
		}
	}
}
