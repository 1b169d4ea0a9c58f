package runtime

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestBootstrapRoundTrip(t *testing.T) {
	tp := New(TaskPlannerName, zap.NewNop())
	peer := New("A", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tpPort, err := tp.Listen(0)
	if err != nil {
		t.Fatalf("tp.Listen: %v", err)
	}

	tpErr := make(chan error, 1)
	go func() { tpErr <- tp.AcceptConnection(ctx, tpPort, []string{"A"}) }()

	// Give AcceptConnection a moment to start accepting before dialing.
	time.Sleep(20 * time.Millisecond)

	if err := peer.MakeConnection(ctx, "127.0.0.1", tpPort, 0); err != nil {
		t.Fatalf("peer.MakeConnection: %v", err)
	}
	if err := <-tpErr; err != nil {
		t.Fatalf("tp.AcceptConnection: %v", err)
	}

	tpEntry, ok := peer.Table().Lookup(TaskPlannerName)
	if !ok {
		t.Fatal("peer table missing TP entry")
	}
	if tpEntry.IP != "127.0.0.1" {
		t.Errorf("peer's view of TP IP = %q, want 127.0.0.1 (NAT-corrected)", tpEntry.IP)
	}

	peerEntryOnTP, ok := tp.Table().Lookup("A")
	if !ok {
		t.Fatal("tp table missing peer A entry")
	}
	if peerEntryOnTP.ID != "A" {
		t.Errorf("tp's entry for peer = %+v", peerEntryOnTP)
	}

	if len(tp.Table().Entries()) != 2 {
		t.Errorf("tp table has %d entries, want 2", len(tp.Table().Entries()))
	}
	if len(peer.Table().Entries()) != 2 {
		t.Errorf("peer table has %d entries, want 2", len(peer.Table().Entries()))
	}
}
