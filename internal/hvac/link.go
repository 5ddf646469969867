package hvac

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonnyarndt/klimate/internal/observability"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// LinkConfig describes one TCP link to an HVAC unit.
type LinkConfig struct {
	Addr                 string
	ConnectTimeout       time.Duration
	AutoReconnect        bool
	ReconnectDelay       time.Duration
	ReconnectMultiplier  float64       // <1 treated as 1 (fixed delay)
	MaxReconnectDelay    time.Duration // 0 = uncapped
	ReconnectJitter      bool
	MaxReconnectAttempts int // 0 = unlimited
}

// Link owns the single TCP socket to the unit: dialing, the background
// read loop, frame reassembly, and the reconnect schedule.
type Link struct {
	cfg LinkConfig
	log zerolog.Logger

	onConnecting   func(attempt int)
	onConnected    func()
	onDisconnected func(err error)
	onFrame        func(frame []byte)

	mu       sync.Mutex
	conn     net.Conn
	dialing  bool
	closed   bool
	attempts int
	retry    *time.Timer
	rng      *rand.Rand
}

func NewLink(cfg LinkConfig, log zerolog.Logger) *Link {
	return &Link{
		cfg: cfg,
		log: log.With().Str("component", "link").Str("addr", cfg.Addr).Logger(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Callback setters. Wire these before the first Connect; they are not
// synchronized against a live link.
func (l *Link) OnConnecting(fn func(attempt int)) { l.onConnecting = fn }
func (l *Link) OnConnected(fn func())             { l.onConnected = fn }
func (l *Link) OnDisconnected(fn func(err error)) { l.onDisconnected = fn }
func (l *Link) OnFrame(fn func(frame []byte))     { l.onFrame = fn }

// Connected reports whether a socket is currently established.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Connect dials the unit and starts the read loop. Connecting an
// already-connected link is a no-op.
func (l *Link) Connect() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLinkClosed
	}
	if l.conn != nil || l.dialing {
		l.mu.Unlock()
		return nil
	}
	l.dialing = true
	attempt := l.attempts + 1
	l.mu.Unlock()

	if l.onConnecting != nil {
		l.onConnecting(attempt)
	}
	dialer := net.Dialer{Timeout: l.cfg.ConnectTimeout}
	conn, err := dialer.Dial("tcp", l.cfg.Addr)

	l.mu.Lock()
	l.dialing = false
	if err != nil {
		l.attempts = attempt
		l.mu.Unlock()
		l.log.Warn().Err(err).Int("attempt", attempt).Msg("dial failed")
		if l.onDisconnected != nil {
			l.onDisconnected(err)
		}
		l.scheduleReconnect()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	if l.closed {
		l.mu.Unlock()
		_ = conn.Close()
		return ErrLinkClosed
	}
	l.conn = conn
	l.attempts = 0
	l.mu.Unlock()

	l.log.Info().Msg("connected")
	if l.onConnected != nil {
		l.onConnected()
	}
	go l.readLoop(conn)
	return nil
}

// SendFrame writes one already-encoded frame to the socket.
func (l *Link) SendFrame(frame []byte) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(frame); err != nil {
		l.log.Warn().Err(err).Msg("write failed")
		if l.detach(conn) {
			_ = conn.Close()
			// The command path may hold the controller's critical section;
			// the disconnect notification must not re-enter it inline.
			go l.afterDrop(err)
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}

// Disconnect closes the socket without scheduling a retry.
func (l *Link) Disconnect() {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	if l.retry != nil {
		l.retry.Stop()
		l.retry = nil
	}
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
		if l.onDisconnected != nil {
			l.onDisconnected(nil)
		}
	}
}

// Close tears the link down for good: no further connects or retries.
func (l *Link) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.Disconnect()
}

func (l *Link) readLoop(conn net.Conn) {
	var asm climate.Assembler
	buf := make([]byte, 512)
	dropped := 0
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range asm.Push(buf[:n]) {
				if l.onFrame != nil {
					l.onFrame(frame)
				}
			}
			if asm.Dropped > dropped {
				l.log.Warn().Int("bytes", asm.Dropped-dropped).Msg("discarded stream garbage")
				dropped = asm.Dropped
			}
		}
		if err != nil {
			if l.detach(conn) {
				_ = conn.Close()
				l.afterDrop(err)
			}
			return
		}
	}
}

// detach removes conn from the link if it is still current. Stale callers
// (a read loop whose conn was already replaced) get false.
func (l *Link) detach(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != conn {
		return false
	}
	l.conn = nil
	return true
}

// afterDrop reports an involuntary socket loss and schedules the retry.
func (l *Link) afterDrop(err error) {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return
	}
	l.log.Warn().Err(err).Msg("link lost")
	if l.onDisconnected != nil {
		l.onDisconnected(err)
	}
	l.scheduleReconnect()
}

func (l *Link) scheduleReconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.cfg.AutoReconnect || l.closed || l.conn != nil || l.dialing || l.retry != nil {
		return
	}
	if l.cfg.MaxReconnectAttempts > 0 && l.attempts >= l.cfg.MaxReconnectAttempts {
		l.log.Error().Int("attempts", l.attempts).Msg("reconnect attempts exhausted")
		return
	}
	delay := l.reconnectDelay(l.attempts + 1)
	l.retry = time.AfterFunc(delay, func() {
		l.mu.Lock()
		l.retry = nil
		l.mu.Unlock()
		observability.RecordReconnectAttempt()
		_ = l.Connect()
	})
}

// reconnectDelay computes the wait before reconnect attempt n (1-based):
// the configured delay grown by the multiplier per prior failed attempt,
// capped at MaxReconnectDelay, then jittered across 0.5x-1.5x so a fleet
// of controllers does not redial a recovering unit in lockstep.
// Callers hold l.mu.
func (l *Link) reconnectDelay(attempt int) time.Duration {
	d := l.cfg.ReconnectDelay
	if attempt <= 1 || d <= 0 {
		return d
	}
	mult := l.cfg.ReconnectMultiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(d) * math.Pow(mult, float64(attempt-1))
	if limit := l.cfg.MaxReconnectDelay; limit > 0 && delay > float64(limit) {
		delay = float64(limit)
	}
	if l.cfg.ReconnectJitter {
		delay *= 0.5 + l.rng.Float64()
	}
	return time.Duration(delay)
}
