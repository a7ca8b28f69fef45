package audio_test

import (
	"testing"

	"github.com/lisuiheng/soundstream-go/audio"
	"github.com/lisuiheng/soundstream-go/audio/audiotest"
)

type countingObserver struct {
	calls map[string]int
}

func (o *countingObserver) StatusChanged(component, status string) {
	o.calls[component+"/"+status]++
}

func TestStatusString(t *testing.T) {
	tests := map[audio.Status]string{
		audio.StatusUnset:       "Unset",
		audio.StatusInitialized: "Initialized",
		audio.StatusPlaying:     "Playing",
		audio.StatusStopped:     "Stopped",
	}
	for s, want := range tests {
		if s.String() != want {
			t.Errorf("Expected %q, got %q", want, s.String())
		}
	}
}

func TestStateMachineNotifiesOnTransitionOnly(t *testing.T) {
	events := &audiotest.Events{}
	obs := &countingObserver{calls: map[string]int{}}
	m := audio.NewStateMachine(events, nil)
	m.SetObserver(obs)

	if !m.SetRecorder(audio.StatusInitialized) {
		t.Error("Expected transition Unset -> Initialized")
	}
	if m.SetRecorder(audio.StatusInitialized) {
		t.Error("Repeated status should not count as a transition")
	}
	m.SetPlayer(audio.StatusInitialized)
	m.SetPlayer(audio.StatusPlaying)

	got := events.All()
	want := []audio.Event{
		{Name: audio.EventRecorderStatus, Data: "Initialized"},
		{Name: audio.EventPlayerStatus, Data: "Initialized"},
		{Name: audio.EventPlayerStatus, Data: "Playing"},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d: expected %v, got %v", i, want[i], got[i])
		}
	}

	if m.Recorder() != audio.StatusInitialized || m.Player() != audio.StatusPlaying {
		t.Errorf("Unexpected states recorder=%s player=%s", m.Recorder(), m.Player())
	}
	if obs.calls["playerStatus/Playing"] != 1 {
		t.Errorf("Observer missed transition: %v", obs.calls)
	}
}

func TestStateMachineWithoutNotifier(t *testing.T) {
	m := audio.NewStateMachine(nil, nil)
	if !m.SetPlayer(audio.StatusStopped) {
		t.Error("Transition without notifier should still apply")
	}
	if m.Player() != audio.StatusStopped {
		t.Errorf("Expected Stopped, got %s", m.Player())
	}
}
