package hvac

import (
	"sync"

	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// ConnState is the externally visible controller state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnectedIdle
	StateAwaitingResponse
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnectedIdle:
		return "connected_idle"
	case StateAwaitingResponse:
		return "awaiting_response"
	default:
		return "disconnected"
	}
}

// StatusSnapshot is the merged read-only view handed to callers: the last
// decoded device status plus connection state and the current setpoint map.
type StatusSnapshot struct {
	ExternalTempC  float64                    `json:"external_temp_c"`
	OverTemp       bool                       `json:"over_temp"`
	PressureFault  bool                       `json:"pressure_fault"`
	VoltageFault   bool                       `json:"voltage_fault"`
	AirflowBlocked bool                       `json:"airflow_blocked"`
	Connected      bool                       `json:"connected"`
	ZoneSetpoints  map[climate.ZoneID]float64 `json:"zone_setpoints"`
}

// Events fans controller notifications out to registered observers.
// Handlers run synchronously on the emitting goroutine in registration
// order; they must not block and must not call back into the controller.
type Events struct {
	mu       sync.Mutex
	status   []func(StatusSnapshot)
	setpoint []func(climate.ZoneID, float64)
	state    []func(ConnState)
	protoErr []func(kind string, detail error)
}

func NewEvents() *Events {
	return &Events{}
}

func (e *Events) OnStatusUpdated(fn func(StatusSnapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = append(e.status, fn)
}

func (e *Events) OnSetpointChanged(fn func(climate.ZoneID, float64)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setpoint = append(e.setpoint, fn)
}

func (e *Events) OnConnectionStateChanged(fn func(ConnState)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = append(e.state, fn)
}

func (e *Events) OnProtocolError(fn func(kind string, detail error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.protoErr = append(e.protoErr, fn)
}

func (e *Events) emitStatus(snap StatusSnapshot) {
	e.mu.Lock()
	fns := append([]func(StatusSnapshot){}, e.status...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (e *Events) emitSetpoint(zone climate.ZoneID, tempC float64) {
	e.mu.Lock()
	fns := append([]func(climate.ZoneID, float64){}, e.setpoint...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(zone, tempC)
	}
}

func (e *Events) emitState(state ConnState) {
	e.mu.Lock()
	fns := append([]func(ConnState){}, e.state...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (e *Events) emitProtocolError(kind string, detail error) {
	e.mu.Lock()
	fns := append([]func(string, error){}, e.protoErr...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn(kind, detail)
	}
}
