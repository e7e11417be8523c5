package memory

import (
	"context"
	"testing"
	"time"

	"github.com/tjfontaine/ocpp-sniffer/internal/core/domain"
)

func TestMemoryStore_AppendOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, cp := range []string{"a", "b", "c"} {
		rec := &domain.EventRecord{
			Timestamp:     time.Now().UTC(),
			ChargePointID: cp,
			Raw:           "x",
			Decoded:       &domain.DecodeError{Kind: domain.ErrorInvalidJSON, Raw: "x"},
		}
		if err := store.Append(ctx, rec); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	seq, _ := store.Records(ctx)
	var got []string
	for rec := range seq {
		got = append(got, rec.ChargePointID)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("Records() = %v, want [a b c]", got)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Append(ctx, &domain.EventRecord{})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(store.Snapshot()) != 0 {
		t.Error("record stored despite cancelled context")
	}
}
