package core

import (
	"testing"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestEventBusDropsWhenFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	bus := NewEventBus(2, m, nil)

	for i := 0; i < 5; i++ {
		bus.Notify(audio.Event{Name: audio.EventDataPeriod, Data: []byte{byte(i)}})
	}

	if got := bus.Dropped(); got != 3 {
		t.Errorf("Expected 3 dropped events, got %d", got)
	}
	if got := testutil.ToFloat64(m.EventsDropped); got != 3 {
		t.Errorf("Expected dropped counter 3, got %v", got)
	}

	// 保留的是最早的两个事件，顺序不变
	for i := 0; i < 2; i++ {
		ev := <-bus.Events()
		if ev.Data.([]byte)[0] != byte(i) {
			t.Errorf("Event %d out of order", i)
		}
	}

	bus.Notify(audio.Event{Name: audio.EventPlayerStatus, Data: "Playing"})
	if ev := <-bus.Events(); ev.Data != "Playing" {
		t.Errorf("Expected delivery to resume, got %v", ev)
	}
}

func TestEventBusNotifyAfterClose(t *testing.T) {
	bus := NewEventBus(0, nil, nil)
	bus.Close()
	bus.Close()

	bus.Notify(audio.Event{Name: audio.EventRecorderStatus, Data: "Stopped"})

	if _, ok := <-bus.Events(); ok {
		t.Error("Expected closed channel")
	}
	if cap(bus.Events()) != DefaultEventBuffer {
		t.Errorf("Expected default capacity %d, got %d", DefaultEventBuffer, cap(bus.Events()))
	}
}
