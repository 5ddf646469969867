package hvac

import (
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonnyarndt/klimate/internal/config"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
	"github.com/jonnyarndt/klimate/internal/testutil/testlog"
)

// fakeUnit emulates the HVAC device end of the wire protocol.
type fakeUnit struct {
	t      *testing.T
	ln     net.Listener
	frames chan []byte

	mu    sync.Mutex
	conns []net.Conn
}

func newFakeUnit(t *testing.T) *fakeUnit {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	u := &fakeUnit{t: t, ln: ln, frames: make(chan []byte, 16)}
	go u.acceptLoop()
	t.Cleanup(u.close)
	return u
}

func (u *fakeUnit) acceptLoop() {
	for {
		conn, err := u.ln.Accept()
		if err != nil {
			return
		}
		u.mu.Lock()
		u.conns = append(u.conns, conn)
		u.mu.Unlock()
		go u.readLoop(conn)
	}
}

func (u *fakeUnit) readLoop(conn net.Conn) {
	var asm climate.Assembler
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range asm.Push(buf[:n]) {
				u.frames <- frame
			}
		}
		if err != nil {
			return
		}
	}
}

func (u *fakeUnit) addr() (string, int) {
	host, portStr, err := net.SplitHostPort(u.ln.Addr().String())
	if err != nil {
		u.t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return host, port
}

func (u *fakeUnit) send(raw []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.conns) == 0 {
		u.t.Fatal("fake unit has no connection to write to")
	}
	if _, err := u.conns[len(u.conns)-1].Write(raw); err != nil {
		u.t.Logf("fake unit write: %v", err)
	}
}

func (u *fakeUnit) pushStatus(status climate.Status) {
	u.send(climate.EncodeStatus(status))
}

func (u *fakeUnit) dropConns() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, conn := range u.conns {
		_ = conn.Close()
	}
	u.conns = nil
}

func (u *fakeUnit) close() {
	_ = u.ln.Close()
	u.dropConns()
}

func (u *fakeUnit) expectFrame(timeout time.Duration) []byte {
	u.t.Helper()
	select {
	case frame := <-u.frames:
		return frame
	case <-time.After(timeout):
		u.t.Fatal("no frame arrived at the unit")
		return nil
	}
}

func (u *fakeUnit) expectNoFrame(window time.Duration) {
	u.t.Helper()
	select {
	case frame := <-u.frames:
		u.t.Fatalf("unexpected frame at the unit: % X", frame)
	case <-time.After(window):
	}
}

type testHarness struct {
	ctrl   *Controller
	unit   *fakeUnit
	status chan StatusSnapshot
	states chan ConnState
	errs   chan string
	split  chan struct {
		zone climate.ZoneID
		temp float64
	}
	storePath string
}

func newHarness(t *testing.T, mutate func(*config.HVACInfo)) *testHarness {
	t.Helper()
	unit := newFakeUnit(t)
	host, port := unit.addr()
	cfg := config.HVACInfo{
		IP:                  host,
		Port:                port,
		IdleSetpointC:       18.0,
		ZoneIDs:             []int{1, 2, 3},
		ConnectionTimeoutMS: 1000,
		ResponseTimeoutMS:   5000,
		ReconnectDelayMS:    50,
		MinTemperatureC:     -40.0,
		MaxTemperatureC:     50.0,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	log := testlog.Logger(t)
	link := NewLink(LinkConfig{
		Addr:                 cfg.Addr(),
		ConnectTimeout:       cfg.ConnectTimeout(),
		AutoReconnect:        cfg.AutoReconnect,
		ReconnectDelay:       cfg.ReconnectDelay(),
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, log)
	storePath := filepath.Join(t.TempDir(), "setpoints.csv")
	zones := make([]climate.ZoneID, len(cfg.ZoneIDs))
	for i, z := range cfg.ZoneIDs {
		zones[i] = climate.ZoneID(z)
	}
	store := NewStore([]string{storePath}, zones, cfg.IdleSetpointC, log)
	ctrl := NewController(cfg, link, store, log)

	h := &testHarness{
		ctrl:      ctrl,
		unit:      unit,
		status:    make(chan StatusSnapshot, 16),
		states:    make(chan ConnState, 16),
		errs:      make(chan string, 16),
		storePath: storePath,
	}
	h.split = make(chan struct {
		zone climate.ZoneID
		temp float64
	}, 16)
	ctrl.Events().OnStatusUpdated(func(s StatusSnapshot) { h.status <- s })
	ctrl.Events().OnConnectionStateChanged(func(s ConnState) { h.states <- s })
	ctrl.Events().OnProtocolError(func(kind string, _ error) { h.errs <- kind })
	ctrl.Events().OnSetpointChanged(func(zone climate.ZoneID, temp float64) {
		h.split <- struct {
			zone climate.ZoneID
			temp float64
		}{zone, temp}
	})
	t.Cleanup(ctrl.Close)
	if !ctrl.Initialize() {
		t.Fatal("initialize failed")
	}
	return h
}

func (h *testHarness) expectErrKind(t *testing.T, want string) {
	t.Helper()
	select {
	case kind := <-h.errs:
		if kind != want {
			t.Fatalf("protocol error kind=%q want=%q", kind, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no %q event", want)
	}
}

func TestControllerSetZoneTemperatureFrameBytes(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.SetZoneTemperature(1, 22.3); err != nil {
		t.Fatalf("set zone: %v", err)
	}
	frame := h.unit.expectFrame(2 * time.Second)
	// 22.3 rounds to 22.5 -> raw 36250 -> LSB 0x2A MSB 0x8D.
	if len(frame) != 12 {
		t.Fatalf("frame length=%d want=12: % X", len(frame), frame)
	}
	if frame[7] != 0x01 || frame[8] != 0x2A || frame[9] != 0x8D {
		t.Fatalf("zone block mismatch: % X", frame)
	}

	select {
	case sp := <-h.split:
		if sp.zone != 1 || sp.temp != 22.5 {
			t.Fatalf("setpoint event zone=%d temp=%v", sp.zone, sp.temp)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no SetpointChanged event")
	}
	if got := h.ctrl.CurrentStatus().ZoneSetpoints[1]; got != 22.5 {
		t.Fatalf("snapshot setpoint=%v want 22.5", got)
	}
}

func TestControllerRejectsOutOfRangeWithoutSideEffects(t *testing.T) {
	h := newHarness(t, nil)
	err := h.ctrl.SetZoneTemperature(1, 55.0)
	if !errors.Is(err, climate.ErrTemperatureRange) {
		t.Fatalf("expected temperature range error, got %v", err)
	}
	h.unit.expectNoFrame(100 * time.Millisecond)
	select {
	case sp := <-h.split:
		t.Fatalf("unexpected setpoint event: %+v", sp)
	default:
	}
	if got := h.ctrl.CurrentStatus().ZoneSetpoints[1]; got != 18.0 {
		t.Fatalf("setpoint moved to %v on rejected command", got)
	}
}

func TestControllerBusySecondCommand(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.SetZoneTemperature(1, 21.0); err != nil {
		t.Fatalf("first set: %v", err)
	}
	if err := h.ctrl.SetZoneTemperature(2, 19.0); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	h.unit.expectFrame(2 * time.Second)
	h.unit.expectNoFrame(100 * time.Millisecond)
}

func TestControllerResponseResolvesRequest(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.SetZoneTemperature(1, 21.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.unit.expectFrame(2 * time.Second)
	h.unit.pushStatus(climate.Status{ExternalTempC: -5.0, OverTemp: true})

	select {
	case snap := <-h.status:
		if !snap.Connected || !snap.OverTemp || snap.ExternalTempC != -5.0 {
			t.Fatalf("snapshot mismatch: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no StatusUpdated event")
	}
	// The in-flight slot is free again.
	if err := h.ctrl.SetZoneTemperature(2, 19.0); err != nil {
		t.Fatalf("follow-up set: %v", err)
	}
}

func TestControllerBatchRejectsOversizedZoneList(t *testing.T) {
	h := newHarness(t, nil)
	zones := make([]climate.ZoneID, 11)
	for i := range zones {
		zones[i] = climate.ZoneID(i + 1)
	}
	if err := h.ctrl.SetZoneTemperatures(zones, 20.0); !errors.Is(err, climate.ErrTooManyZones) {
		t.Fatalf("expected ErrTooManyZones, got %v", err)
	}
	if err := h.ctrl.SetZoneTemperatures(nil, 20.0); !errors.Is(err, climate.ErrNoZones) {
		t.Fatalf("expected ErrNoZones, got %v", err)
	}
	h.unit.expectNoFrame(100 * time.Millisecond)
}

func TestControllerTimeoutThenLateResponseIsUnsolicited(t *testing.T) {
	h := newHarness(t, func(cfg *config.HVACInfo) {
		cfg.ResponseTimeoutMS = 80
	})
	if err := h.ctrl.SetZoneTemperature(1, 21.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.unit.expectFrame(2 * time.Second)
	h.expectErrKind(t, KindTimeout)

	// The late reply still lands as an unsolicited status update.
	h.unit.pushStatus(climate.Status{ExternalTempC: 3.5})
	select {
	case snap := <-h.status:
		if snap.ExternalTempC != 3.5 {
			t.Fatalf("late status lost: %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("late response not surfaced as StatusUpdated")
	}
	// And the controller accepts new commands.
	if err := h.ctrl.SetZoneTemperature(1, 20.0); err != nil {
		t.Fatalf("post-timeout set: %v", err)
	}
}

func TestControllerMalformedFrameEmitsProtocolError(t *testing.T) {
	h := newHarness(t, nil)
	// White-box: a frame whose declared length disagrees with its size
	// never survives reassembly, so feed the decode path directly.
	h.ctrl.handleFrame([]byte{0x1B, 0x09, 0x64, 0x00, 0x03, 0x17})
	h.expectErrKind(t, KindLengthMismatch)

	h.ctrl.handleFrame([]byte{0x00, 0x06, 0x64, 0x00, 0x03, 0x17})
	h.expectErrKind(t, KindBadHeader)

	// Malformed frames are dropped without touching the last known status.
	if snap := h.ctrl.CurrentStatus(); snap.ExternalTempC != 0 {
		t.Fatalf("dropped frame mutated status: %+v", snap)
	}
}

func TestControllerDisconnectCancelsOutstandingRequest(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.ctrl.SetZoneTemperature(1, 21.0); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.unit.expectFrame(2 * time.Second)
	h.unit.dropConns()
	h.expectErrKind(t, KindConnectionLost)

	waitFor(t, "disconnected state", func() bool {
		return !h.ctrl.CurrentStatus().Connected
	})
}

func TestControllerSendFailureLeavesSetpointUntouched(t *testing.T) {
	h := newHarness(t, nil)
	h.unit.dropConns()
	waitFor(t, "link down", func() bool { return !h.ctrl.CurrentStatus().Connected })

	err := h.ctrl.SetZoneTemperature(1, 25.0)
	if err == nil {
		t.Fatal("expected send failure")
	}
	if got := h.ctrl.CurrentStatus().ZoneSetpoints[1]; got != 18.0 {
		t.Fatalf("setpoint diverged to %v on failed send", got)
	}
	// The failed request must not leave the in-flight slot claimed.
	if errors.Is(err, ErrBusy) {
		t.Fatalf("first command reported busy: %v", err)
	}
	if err := h.ctrl.SetZoneTemperature(1, 25.0); errors.Is(err, ErrBusy) {
		t.Fatal("in-flight slot leaked after failed send")
	}
}
