package room

import (
	"context"

	"github.com/qmuntal/stateless"
)

// Slot 房间中的一个发言位。
type Slot string

const (
	SlotHuman       Slot = "human"
	SlotHost        Slot = "host"
	SlotParticipant Slot = "participant"
)

// TurnState is the state of one slot.
type TurnState string

const (
	TurnIdle         TurnState = "idle"
	TurnListening    TurnState = "listening"
	TurnTranscribing TurnState = "transcribing"
	TurnComposing    TurnState = "composing"
	TurnSpeaking     TurnState = "speaking"
)

type turnTrigger string

const (
	triggerListen     turnTrigger = "listen"
	triggerTranscribe turnTrigger = "transcribe"
	triggerCompose    turnTrigger = "compose"
	triggerSpeak      turnTrigger = "speak"
	triggerSettle     turnTrigger = "settle"
	triggerReset      turnTrigger = "reset"
)

// turnMachine 包装 stateless 状态机，只在 actor goroutine 中使用。
type turnMachine struct {
	fsm *stateless.StateMachine
}

func newTurnMachine() *turnMachine {
	fsm := stateless.NewStateMachineWithMode(TurnIdle, stateless.FiringImmediate)

	fsm.Configure(TurnIdle).
		Permit(triggerListen, TurnListening).
		Permit(triggerCompose, TurnComposing).
		Ignore(triggerSettle).
		Ignore(triggerReset)

	fsm.Configure(TurnListening).
		Permit(triggerTranscribe, TurnTranscribing).
		Permit(triggerReset, TurnIdle)

	fsm.Configure(TurnTranscribing).
		Permit(triggerSettle, TurnIdle).
		Permit(triggerReset, TurnIdle)

	fsm.Configure(TurnComposing).
		Permit(triggerSpeak, TurnSpeaking).
		Permit(triggerSettle, TurnIdle).
		Permit(triggerReset, TurnIdle)

	fsm.Configure(TurnSpeaking).
		Permit(triggerSettle, TurnIdle).
		Permit(triggerReset, TurnIdle)

	return &turnMachine{fsm: fsm}
}

// fire reports whether the trigger was accepted in the current state.
func (m *turnMachine) fire(trigger turnTrigger) bool {
	return m.fsm.FireCtx(context.Background(), trigger) == nil
}

func (m *turnMachine) state() TurnState {
	return m.fsm.MustState().(TurnState)
}
