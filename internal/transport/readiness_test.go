package transport

import (
	"sync"
	"testing"

	"github.com/danmuck/spilink/internal/testutil/testlog"
)

func TestReadinessHoldsOnePendingActivation(t *testing.T) {
	testlog.Start(t)
	var queued, coalesced int
	r := NewReadiness(func(c bool) {
		if c {
			coalesced++
		} else {
			queued++
		}
	})

	if !r.Notify() {
		t.Fatalf("first edge should queue an activation")
	}
	for i := 0; i < 5; i++ {
		if r.Notify() {
			t.Fatalf("edge %d should coalesce into the pending activation", i)
		}
	}
	if queued != 1 || coalesced != 5 {
		t.Fatalf("unexpected edge accounting queued=%d coalesced=%d", queued, coalesced)
	}

	<-r.C()
	if r.Pending() {
		t.Fatalf("activation should be consumed")
	}
	if !r.Notify() {
		t.Fatalf("edge after consumption should queue again")
	}
}

func TestReadinessResetDropsPending(t *testing.T) {
	testlog.Start(t)
	r := NewReadiness(nil)
	r.Reset()
	r.Notify()
	r.Reset()
	if r.Pending() {
		t.Fatalf("reset should drop the pending activation")
	}
}

func TestReadinessNotifyNeverBlocks(t *testing.T) {
	testlog.Start(t)
	r := NewReadiness(nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				r.Notify()
			}
		}()
	}
	wg.Wait()
	if len(r.C()) != 1 {
		t.Fatalf("expected exactly one pending activation, got %d", len(r.C()))
	}
}
