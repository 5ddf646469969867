package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonnyarndt/klimate/internal/observability"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// klimate-sim is a bench stand-in for the HVAC unit: it answers setpoint
// commands with a status frame and pushes unsolicited status on a timer.
func main() {
	configPath := flag.String("config", "", "optional sim config path")
	flag.Parse()

	logger := observability.InitLogger("klimate-sim")
	cfg, err := loadSimConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration rejected")
	}

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		logger.Fatal().Err(err).Str("listen", cfg.Listen).Msg("listen failed")
	}
	logger.Info().Str("addr", ln.Addr().String()).Msg("simulated unit listening")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	sim := &simulator{cfg: cfg, log: logger, setpoints: make(map[climate.ZoneID]float64)}
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("accept failed")
			return
		}
		go sim.handleConn(ctx, conn)
	}
}

type simulator struct {
	cfg simConfig
	log zerolog.Logger

	mu        sync.Mutex
	setpoints map[climate.ZoneID]float64
}

func (s *simulator) status() climate.Status {
	return climate.Status{
		ExternalTempC:  s.cfg.ExternalTempC,
		OverTemp:       s.cfg.OverTemp,
		PressureFault:  s.cfg.PressureFault,
		VoltageFault:   s.cfg.VoltageFault,
		AirflowBlocked: s.cfg.AirflowBlocked,
	}
}

func (s *simulator) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	s.log.Info().Str("remote", remote).Msg("controller connected")
	defer func() {
		_ = conn.Close()
		s.log.Info().Str("remote", remote).Msg("controller disconnected")
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	if s.cfg.PushInterval > 0 {
		go s.pushLoop(conn, done)
	}

	var asm climate.Assembler
	buf := make([]byte, 256)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			for _, frame := range asm.Push(buf[:n]) {
				s.handleCommand(conn, frame)
			}
		}
		if err != nil {
			return
		}
	}
}

func (s *simulator) handleCommand(conn net.Conn, frame []byte) {
	zones, tempC, err := climate.DecodeSetTemperature(frame)
	if err != nil {
		s.log.Warn().Err(err).Msg("ignoring unrecognized frame")
		return
	}
	s.mu.Lock()
	for _, zone := range zones {
		s.setpoints[zone] = tempC
	}
	s.mu.Unlock()
	s.log.Info().Ints("zones", zoneInts(zones)).Float64("temp_c", tempC).Msg("setpoint command")

	if s.cfg.ReplyDelay > 0 {
		time.Sleep(s.cfg.ReplyDelay)
	}
	if _, err := conn.Write(climate.EncodeStatus(s.status())); err != nil {
		s.log.Warn().Err(err).Msg("status reply failed")
	}
}

func (s *simulator) pushLoop(conn net.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := conn.Write(climate.EncodeStatus(s.status())); err != nil {
				return
			}
		}
	}
}

func zoneInts(zones []climate.ZoneID) []int {
	out := make([]int, len(zones))
	for i, zone := range zones {
		out[i] = int(zone)
	}
	return out
}
