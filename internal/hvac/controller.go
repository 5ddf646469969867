package hvac

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonnyarndt/klimate/internal/config"
	"github.com/jonnyarndt/klimate/internal/observability"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// Protocol error event kinds.
const (
	KindTooShort       = "too_short"
	KindBadHeader      = "bad_header"
	KindLengthMismatch = "length_mismatch"
	KindTimeout        = "response_timeout"
	KindConnectionLost = "connection_lost"
)

// Controller orchestrates the link, codec, correlator and setpoint store
// behind the public command API. It is the only type consumers touch.
type Controller struct {
	cfg    config.HVACInfo
	link   *Link
	store  *Store
	corr   *Correlator
	events *Events
	log    zerolog.Logger

	// mu is the single critical section for command issuance and the
	// status fields: checking the in-flight slot, sending the frame and
	// updating setpoint state happen under it.
	mu           sync.Mutex
	lastStatus   climate.Status
	state        ConnState
	pendingSince time.Time
}

// NewController wires the given collaborators together. The store has
// already loaded persisted setpoints by the time it arrives here.
func NewController(cfg config.HVACInfo, link *Link, store *Store, log zerolog.Logger) *Controller {
	c := &Controller{
		cfg:    cfg,
		link:   link,
		store:  store,
		events: NewEvents(),
		log:    log.With().Str("component", "controller").Logger(),
		state:  StateDisconnected,
	}
	c.corr = NewCorrelator(cfg.ResponseTimeout(), c.handleTimeout)
	link.OnConnecting(c.handleConnecting)
	link.OnConnected(c.handleConnected)
	link.OnDisconnected(c.handleDisconnected)
	link.OnFrame(c.handleFrame)
	return c
}

// Events exposes the observer registry. Register handlers before Initialize.
func (c *Controller) Events() *Events {
	return c.events
}

// Initialize attempts the first connection. A false return leaves the
// controller usable: the caller may retry, or auto-reconnect takes over.
func (c *Controller) Initialize() bool {
	if err := c.link.Connect(); err != nil {
		c.log.Warn().Err(err).Msg("initial connect failed")
		return false
	}
	return true
}

// SetZoneTemperature commands one zone.
func (c *Controller) SetZoneTemperature(zone climate.ZoneID, tempC float64) error {
	return c.SetZoneTemperatures([]climate.ZoneID{zone}, tempC)
}

// SetZoneTemperatures commands up to ten zones with one frame. The call
// returns once the frame is on the wire; the device's reply arrives later
// through StatusUpdated.
func (c *Controller) SetZoneTemperatures(zones []climate.ZoneID, tempC float64) error {
	rounded := climate.RoundSetpoint(tempC)
	if rounded < c.cfg.MinTemperatureC || rounded > c.cfg.MaxTemperatureC {
		return fmt.Errorf("%w: %.1f outside [%.1f, %.1f]",
			climate.ErrTemperatureRange, rounded, c.cfg.MinTemperatureC, c.cfg.MaxTemperatureC)
	}
	frame, err := climate.EncodeSetTemperature(zones, tempC)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if !c.corr.Begin() {
		c.mu.Unlock()
		return ErrBusy
	}
	if err := c.link.SendFrame(frame); err != nil {
		c.corr.Cancel()
		c.mu.Unlock()
		return err
	}
	c.pendingSince = time.Now()
	c.state = StateAwaitingResponse
	persisted := c.store.SetAll(zones, rounded)
	c.mu.Unlock()

	observability.RecordCommandSent()
	if !persisted {
		c.log.Warn().Msg("setpoint persistence failed after send")
	}
	c.log.Info().Ints("zones", zoneInts(zones)).Float64("temp_c", rounded).Msg("setpoint command sent")
	c.events.emitState(StateAwaitingResponse)
	for _, zone := range zones {
		c.events.emitSetpoint(zone, rounded)
	}
	return nil
}

// CurrentStatus returns the last known device status merged with the
// connection state and a copy of the setpoint map. Never blocks on I/O.
func (c *Controller) CurrentStatus() StatusSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close tears down the socket, the response timer and the reconnect
// schedule on every exit path.
func (c *Controller) Close() {
	c.corr.Cancel()
	c.link.Close()
	c.setState(StateDisconnected)
}

func (c *Controller) snapshotLocked() StatusSnapshot {
	return StatusSnapshot{
		ExternalTempC:  c.lastStatus.ExternalTempC,
		OverTemp:       c.lastStatus.OverTemp,
		PressureFault:  c.lastStatus.PressureFault,
		VoltageFault:   c.lastStatus.VoltageFault,
		AirflowBlocked: c.lastStatus.AirflowBlocked,
		Connected:      c.state == StateConnectedIdle || c.state == StateAwaitingResponse,
		ZoneSetpoints:  c.store.Snapshot(),
	}
}

func (c *Controller) handleFrame(raw []byte) {
	status, err := climate.DecodeStatus(raw)
	if err != nil {
		kind := classifyProtocolError(err)
		observability.RecordFrameDropped(kind)
		c.log.Warn().Err(err).Str("kind", kind).Msg("dropping malformed frame")
		c.events.emitProtocolError(kind, err)
		return
	}
	observability.RecordFrameDecoded()

	resolved := c.corr.Resolve()
	c.mu.Lock()
	c.lastStatus = status
	var roundTrip time.Duration
	if resolved {
		roundTrip = time.Since(c.pendingSince)
		if c.state == StateAwaitingResponse && !c.corr.Busy() {
			c.state = StateConnectedIdle
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if resolved {
		observability.RecordCommandRoundTrip(roundTrip)
		c.events.emitState(StateConnectedIdle)
	} else {
		observability.RecordUnsolicitedStatus()
	}
	c.events.emitStatus(snap)
}

func (c *Controller) handleTimeout() {
	observability.RecordRequestTimeout()
	c.log.Warn().Dur("timeout", c.cfg.ResponseTimeout()).Msg("no response to setpoint command")
	c.mu.Lock()
	changed := c.state == StateAwaitingResponse
	if changed {
		c.state = StateConnectedIdle
	}
	c.mu.Unlock()
	c.events.emitProtocolError(KindTimeout, ErrResponseTimeout)
	if changed {
		c.events.emitState(StateConnectedIdle)
	}
}

func (c *Controller) handleConnecting(attempt int) {
	c.setState(StateConnecting)
}

func (c *Controller) handleConnected() {
	c.setState(StateConnectedIdle)
}

func (c *Controller) handleDisconnected(err error) {
	if c.corr.Cancel() {
		c.log.Warn().Err(err).Msg("request outstanding at disconnect")
		c.events.emitProtocolError(KindConnectionLost, ErrConnectionLostDuringRequest)
	}
	c.setState(StateDisconnected)
}

func (c *Controller) setState(state ConnState) {
	c.mu.Lock()
	changed := c.state != state
	c.state = state
	c.mu.Unlock()
	if changed {
		c.events.emitState(state)
	}
}

func classifyProtocolError(err error) string {
	switch {
	case errors.Is(err, climate.ErrTooShort):
		return KindTooShort
	case errors.Is(err, climate.ErrBadHeader):
		return KindBadHeader
	case errors.Is(err, climate.ErrLengthMismatch):
		return KindLengthMismatch
	default:
		return "decode"
	}
}

func zoneInts(zones []climate.ZoneID) []int {
	out := make([]int, len(zones))
	for i, zone := range zones {
		out[i] = int(zone)
	}
	return out
}
