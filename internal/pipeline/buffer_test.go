package pipeline

import (
	"sync"
	"testing"
	"time"
)

func TestGrowableBuffer_FIFOAcrossGrowth(t *testing.T) {
	buf := NewGrowableBuffer[int](4)

	for i := 0; i < 100; i++ {
		if !buf.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	stats := buf.Stats()
	if stats.Count != 100 {
		t.Errorf("Count = %d, want 100", stats.Count)
	}
	if stats.ResizeCount < 3 {
		t.Errorf("ResizeCount = %d, expected at least 3 resizes", stats.ResizeCount)
	}

	for i := 0; i < 100; i++ {
		val, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}
}

func TestGrowableBuffer_WrapAround(t *testing.T) {
	buf := NewGrowableBuffer[int](8)

	buf.Send(1)
	buf.Send(2)
	buf.Send(3)
	buf.TryReceive()
	buf.TryReceive()

	// Wrap the ring, then force growth while wrapped.
	for i := 4; i <= 10; i++ {
		buf.Send(i)
	}

	for want := 3; want <= 10; want++ {
		got, ok := buf.TryReceive()
		if !ok {
			t.Fatalf("TryReceive failed, expected %d", want)
		}
		if got != want {
			t.Errorf("got %d, want %d", got, want)
		}
	}
}

func TestGrowableBuffer_BlockingReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	received := make(chan int, 1)

	go func() {
		val, ok := buf.Receive()
		if ok {
			received <- val
		}
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Send(42)

	select {
	case val := <-received:
		if val != 42 {
			t.Errorf("received %d, want 42", val)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for blocked receive")
	}
}

func TestGrowableBuffer_CloseKeepsPending(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	buf.Send(1)
	buf.Send(2)
	buf.Close()

	if buf.Send(3) {
		t.Error("Send should return false after Close")
	}
	if !buf.Closed() {
		t.Error("Closed() = false after Close")
	}

	for _, want := range []int{1, 2} {
		val, ok := buf.Receive()
		if !ok || val != want {
			t.Errorf("Receive() = %d, %v; want %d, true", val, ok, want)
		}
	}
	if _, ok := buf.Receive(); ok {
		t.Error("Receive should return false when closed and empty")
	}
}

func TestGrowableBuffer_CloseUnblocksReceive(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	done := make(chan bool, 1)

	go func() {
		_, ok := buf.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	buf.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive should return false when closed and empty")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Receive")
	}
}

func TestGrowableBuffer_Discard(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	for i := 0; i < 6; i++ {
		buf.Send(i)
	}
	buf.TryReceive()

	if n := buf.Discard(); n != 5 {
		t.Errorf("Discard() = %d, want 5", n)
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0", buf.Len())
	}
	if got := buf.Stats().TotalDiscarded; got != 5 {
		t.Errorf("TotalDiscarded = %d, want 5", got)
	}

	// Still usable after discard.
	buf.Send(7)
	if val, ok := buf.TryReceive(); !ok || val != 7 {
		t.Errorf("TryReceive() = %d, %v; want 7, true", val, ok)
	}
}

func TestGrowableBuffer_DrainTo(t *testing.T) {
	buf := NewGrowableBuffer[int](10)
	for i := 0; i < 10; i++ {
		buf.Send(i)
	}

	items := buf.DrainTo(5)
	if len(items) != 5 {
		t.Errorf("DrainTo(5) returned %d items, want 5", len(items))
	}
	for i, val := range items {
		if val != i {
			t.Errorf("items[%d] = %d, want %d", i, val, i)
		}
	}

	items = buf.DrainTo(0)
	if len(items) != 5 {
		t.Errorf("DrainTo(0) returned %d items, want 5", len(items))
	}
	if items := buf.DrainTo(0); items != nil {
		t.Errorf("DrainTo on empty buffer = %v, want nil", items)
	}
}

func TestGrowableBuffer_ConcurrentProducerKeepsOrder(t *testing.T) {
	buf := NewGrowableBuffer[int](2)
	const numItems = 1000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < numItems; i++ {
			buf.Send(i)
		}
	}()

	for i := 0; i < numItems; i++ {
		val, ok := buf.Receive()
		if !ok {
			t.Fatalf("Receive returned false at %d", i)
		}
		if val != i {
			t.Fatalf("received %d, want %d", val, i)
		}
	}
	wg.Wait()
}

func TestNewGrowableBuffer_MinCapacity(t *testing.T) {
	for _, capacity := range []int{-5, 0, 1} {
		if got := NewGrowableBuffer[int](capacity).Cap(); got != 2 {
			t.Errorf("Cap() = %d, want 2 for initial capacity %d", got, capacity)
		}
	}
}
