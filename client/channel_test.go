package client

import "testing"

func TestAddConnectListenerInvokesSynchronouslyWithCurrentState(t *testing.T) {
	ch := newChannel("X", DefaultOptions)
	ch.setState(Connected)

	var got bool
	var calls int
	ch.AddConnectListener(NewFuncConnectListener(func(connected bool) {
		got = connected
		calls++
	}))

	if calls != 1 {
		t.Fatalf("expected exactly one synchronous call, got %d", calls)
	}
	if !got {
		t.Errorf("expected listener to observe connected=true")
	}
}

func TestAddConnectListenerIsIdempotentByIdentity(t *testing.T) {
	ch := newChannel("X", DefaultOptions)
	calls := 0
	l := NewFuncConnectListener(func(bool) { calls++ })

	ch.AddConnectListener(l)
	ch.AddConnectListener(l)

	if calls != 1 {
		t.Errorf("expected the second Add to be a no-op, got %d calls", calls)
	}
	if len(ch.listeners) != 1 {
		t.Errorf("expected exactly one listener entry, got %d", len(ch.listeners))
	}
}

func TestFailingListenerIsRemovedOthersStillNotified(t *testing.T) {
	ch := newChannel("X", DefaultOptions)

	var l2Events []bool
	l1 := NewFuncConnectListener(func(connected bool) {
		if connected {
			panic("boom")
		}
	})
	l2 := NewFuncConnectListener(func(connected bool) { l2Events = append(l2Events, connected) })

	ch.AddConnectListener(l1)
	ch.AddConnectListener(l2)
	// Drop the initial event each AddConnectListener delivers synchronously.
	l2Events = nil

	ch.setState(Connected)

	if len(l2Events) != 1 || !l2Events[0] {
		t.Fatalf("expected l2 to record one connected=true event, got %v", l2Events)
	}
	for _, l := range ch.listeners {
		if l == ConnectCallback(l1) {
			t.Errorf("expected failing listener l1 to be removed")
		}
	}

	ch.setState(Disconnected)
	if len(l2Events) != 2 || l2Events[1] {
		t.Fatalf("expected l2 to record a second connected=false event, got %v", l2Events)
	}
}

func TestRemoveConnectListener(t *testing.T) {
	ch := newChannel("X", DefaultOptions)
	calls := 0
	l := NewFuncConnectListener(func(bool) { calls++ })
	ch.AddConnectListener(l)
	ch.RemoveConnectListener(l)

	ch.setState(Connected)
	if calls != 1 {
		t.Errorf("expected no further calls after removal, got %d total", calls)
	}
}

func TestListenerOrderMatchesRegistrationOrder(t *testing.T) {
	ch := newChannel("X", DefaultOptions)
	var order []int
	ch.AddConnectListener(NewFuncConnectListener(func(bool) { order = append(order, 1) }))
	ch.AddConnectListener(NewFuncConnectListener(func(bool) { order = append(order, 2) }))
	ch.AddConnectListener(NewFuncConnectListener(func(bool) { order = append(order, 3) }))

	order = nil
	ch.setState(Connected)

	want := []int{1, 2, 3}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestOperationOnDestroyedChannelIsBornCancelled(t *testing.T) {
	ch := newChannel("X", DefaultOptions)
	ch.destroy()

	op := ch.Get()
	if !op.IsCancelled() {
		t.Errorf("expected operation from a destroyed channel to be born cancelled")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	op := newOperation("op", false)
	op.Cancel()
	op.Cancel()
	op.Cancel()
	if !op.IsCancelled() {
		t.Errorf("expected operation to be cancelled")
	}
}
