package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/mobility/pkg/domain"
	"github.com/aretw0/mobility/pkg/ports"
)

// MessengerContractTest is a reusable test suite that verifies if an adapter complies with ports.Messenger.
// Delivery is at-least-once, so the suite only checks that every sent envelope arrives.
func MessengerContractTest(t *testing.T, messenger ports.Messenger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	inbox, err := messenger.Subscribe(ctx, "contract-b")
	if err != nil {
		t.Fatalf("unexpected error subscribing: %v", err)
	}
	defer inbox.Close()

	// 1. Send to the subscribed agent
	t.Run("Send_Delivers", func(t *testing.T) {
		env := domain.Envelope{
			Type:      domain.EnvelopeContent,
			RelayKind: "step",
			RequestID: domain.UID{Owner: "contract-a", Seq: 1},
			From:      "contract-a",
			To:        "contract-b",
			Payload:   []byte(`{"pause_time":-1}`),
		}
		if err := messenger.Send(ctx, env); err != nil {
			t.Fatalf("unexpected error sending: %v", err)
		}

		got := waitFor(ctx, t, inbox, 1)
		if got[0].RequestID != env.RequestID || got[0].Type != env.Type {
			t.Errorf("envelope mismatch: got %+v, want %+v", got[0], env)
		}
		if string(got[0].Payload) != string(env.Payload) {
			t.Errorf("payload mismatch: got %s, want %s", got[0].Payload, env.Payload)
		}
	})

	// 2. Many envelopes all arrive
	t.Run("Send_Many", func(t *testing.T) {
		for i := int64(1); i <= 5; i++ {
			err := messenger.Send(ctx, domain.Envelope{
				Type:      domain.EnvelopeResponse,
				RelayKind: "request",
				RequestID: domain.UID{Owner: "contract-a", Seq: 100 + i},
				From:      "contract-a",
				To:        "contract-b",
			})
			if err != nil {
				t.Fatalf("send %d: %v", i, err)
			}
		}
		got := waitFor(ctx, t, inbox, 5)
		seen := make(map[int64]bool)
		for _, env := range got {
			seen[env.RequestID.Seq] = true
		}
		for i := int64(101); i <= 105; i++ {
			if !seen[i] {
				t.Errorf("envelope %d never arrived", i)
			}
		}
	})
}

func waitFor(ctx context.Context, t *testing.T, inbox ports.Inbox, n int) []domain.Envelope {
	t.Helper()
	var got []domain.Envelope
	for len(got) < n {
		got = append(got, inbox.Drain()...)
		if len(got) >= n {
			break
		}
		select {
		case <-inbox.Ready():
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			t.Fatalf("timed out waiting for %d envelopes, got %d", n, len(got))
		}
	}
	return got
}
