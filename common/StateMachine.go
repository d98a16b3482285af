package common

import "sync"

type State interface {
	Equals(State) bool
}
type Event interface {
	Equals(Event) bool
}
type Context interface {
}

type Guard func(Event, Context) bool
type Action func(Event, Context)

type transition struct {
	to     State
	on     Event
	when   Guard
	action Action
}

// StateMachine is safe to query from other goroutines while one goroutine
// drives it. Actions run after the state has changed and outside the lock, so
// an action may call Handle again.
type StateMachine struct {
	mtx          sync.RWMutex
	transitions  map[State][]transition
	currentState State
}

func NewStateMachine(initial State) *StateMachine {
	return &StateMachine{currentState: initial, transitions: make(map[State][]transition)}
}

func (s *StateMachine) AddTransitions(from []State, to State, on Event, when Guard, action Action) {
	for _, f := range from {
		s.AddTransition(f, to, on, when, action)
	}
}
func (s *StateMachine) AddTransition(from State, to State, on Event, when Guard, action Action) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.transitions[from] = append(s.transitions[from], transition{to, on, when, action})
}

// Handle applies the first matching transition and reports whether one fired.
func (s *StateMachine) Handle(event Event, context Context) bool {
	s.mtx.Lock()
	var fired *transition
	for _, t := range s.transitions[s.currentState] {
		if t.on.Equals(event) && (t.when == nil || t.when(event, context)) {
			s.currentState = t.to
			fired = &t
			break
		}
	}
	s.mtx.Unlock()
	if fired == nil {
		return false
	}
	if fired.action != nil {
		fired.action(event, context)
	}
	return true
}

func (s *StateMachine) CurrentState() State {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return s.currentState
}
