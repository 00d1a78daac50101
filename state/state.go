package state

import (
	"errors"
	"sync"
)

// Phase IDs for a relay room.
const (
	PhaseWaiting = "waiting"
	PhasePaired  = "paired"
	PhasePlaying = "playing"
)

// State is one phase a room can be in.
type State interface {
	GetID() string
	OnEnter()
	OnExit()
}

// Machine guards phase changes. Only registered transitions are allowed.
type Machine interface {
	ChangeState(newState State) error
	ChangeTo(id string) error
	GetCurrentState() State
	AddTransition(fromID, toID string, condition func() bool)
}

// ErrTransitionNotAllowed is returned for an unregistered or blocked transition.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// ErrUnknownState is returned by ChangeTo for a state the machine never saw.
var ErrUnknownState = errors.New("unknown state")

// BaseMachine is the standard Machine implementation.
type BaseMachine struct {
	currentState State
	states       map[string]State
	transitions  map[string]map[string]func() bool // fromID -> toID -> condition
	mutex        sync.RWMutex
}

func NewBaseMachine(initialState State) *BaseMachine {
	machine := &BaseMachine{
		currentState: initialState,
		states:       map[string]State{initialState.GetID(): initialState},
		transitions:  make(map[string]map[string]func() bool),
	}
	initialState.OnEnter()
	return machine
}

func (sm *BaseMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	currentID := sm.currentState.GetID()
	newID := newState.GetID()

	conditions, exists := sm.transitions[currentID]
	if !exists {
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newID]
	if !exists {
		return ErrTransitionNotAllowed
	}
	if condition != nil && !condition() {
		return ErrTransitionNotAllowed
	}

	sm.states[newID] = newState
	sm.currentState.OnExit()
	sm.currentState = newState
	sm.currentState.OnEnter()

	return nil
}

// ChangeTo transitions by ID. The target must have been registered either as a
// transition endpoint via a State value or by a previous ChangeState call.
func (sm *BaseMachine) ChangeTo(id string) error {
	sm.mutex.RLock()
	target, exists := sm.states[id]
	sm.mutex.RUnlock()
	if !exists {
		return ErrUnknownState
	}
	return sm.ChangeState(target)
}

func (sm *BaseMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseMachine) AddTransition(fromID, toID string, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[fromID]; !exists {
		sm.transitions[fromID] = make(map[string]func() bool)
	}
	sm.transitions[fromID][toID] = condition
}

// RegisterState makes a state reachable via ChangeTo without having been the
// target of a ChangeState call yet.
func (sm *BaseMachine) RegisterState(s State) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.states[s.GetID()] = s
}

// Phase is a plain State with no side effects on entry or exit.
type Phase struct {
	ID string
}

func (p *Phase) GetID() string { return p.ID }
func (p *Phase) OnEnter()      {}
func (p *Phase) OnExit()       {}

// NewRoomMachine builds the phase machine for a relay room: waiting until two
// occupants pair, paired until the game is started, playing until a restart or
// a peer loss. A drop below two occupants from any phase returns to waiting.
func NewRoomMachine() *BaseMachine {
	waiting := &Phase{ID: PhaseWaiting}
	paired := &Phase{ID: PhasePaired}
	playing := &Phase{ID: PhasePlaying}

	sm := NewBaseMachine(waiting)
	sm.RegisterState(paired)
	sm.RegisterState(playing)

	sm.AddTransition(PhaseWaiting, PhasePaired, nil)
	sm.AddTransition(PhaseWaiting, PhasePlaying, nil)
	sm.AddTransition(PhasePaired, PhasePlaying, nil)
	sm.AddTransition(PhasePaired, PhaseWaiting, nil)
	sm.AddTransition(PhasePlaying, PhasePaired, nil)
	sm.AddTransition(PhasePlaying, PhaseWaiting, nil)

	return sm
}
