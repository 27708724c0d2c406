package room

import "testing"

func TestTurnMachineAISlot(t *testing.T) {
	m := newTurnMachine()
	if m.state() != TurnIdle {
		t.Fatalf("expected idle, got %s", m.state())
	}
	if !m.fire(triggerCompose) || m.state() != TurnComposing {
		t.Fatalf("expected composing, got %s", m.state())
	}
	if m.fire(triggerCompose) {
		t.Fatal("a composing slot must not accept another compose")
	}
	if !m.fire(triggerSpeak) || m.state() != TurnSpeaking {
		t.Fatalf("expected speaking, got %s", m.state())
	}
	if !m.fire(triggerSettle) || m.state() != TurnIdle {
		t.Fatalf("expected idle, got %s", m.state())
	}
}

func TestTurnMachineHumanSlot(t *testing.T) {
	m := newTurnMachine()
	steps := []struct {
		trigger turnTrigger
		want    TurnState
	}{
		{triggerListen, TurnListening},
		{triggerTranscribe, TurnTranscribing},
		{triggerSettle, TurnIdle},
	}
	for _, step := range steps {
		if !m.fire(step.trigger) {
			t.Fatalf("trigger %s rejected in %s", step.trigger, m.state())
		}
		if m.state() != step.want {
			t.Fatalf("after %s expected %s, got %s", step.trigger, step.want, m.state())
		}
	}

	if m.fire(triggerTranscribe) {
		t.Fatal("transcribe must not be accepted while idle")
	}
}

func TestTurnMachineResetIsIgnoredWhenIdle(t *testing.T) {
	m := newTurnMachine()
	m.fire(triggerReset)
	if m.state() != TurnIdle {
		t.Fatalf("expected idle, got %s", m.state())
	}

	m.fire(triggerListen)
	m.fire(triggerReset)
	if m.state() != TurnIdle {
		t.Fatalf("reset should return to idle, got %s", m.state())
	}
}
