package hvac

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

// Store keeps per-zone setpoints in memory and mirrors them to the first
// usable path from an ordered candidate list. The in-memory map stays
// authoritative: persistence failures are logged, never fatal.
type Store struct {
	log   zerolog.Logger
	paths []string

	mu        sync.Mutex
	setpoints map[climate.ZoneID]float64
}

// NewStore seeds every configured zone with the idle setpoint and then
// overlays records from the first candidate path that exists.
func NewStore(paths []string, zones []climate.ZoneID, idleSetpointC float64, log zerolog.Logger) *Store {
	s := &Store{
		log:       log.With().Str("component", "setpoint-store").Logger(),
		paths:     paths,
		setpoints: make(map[climate.ZoneID]float64, len(zones)),
	}
	for _, zone := range zones {
		s.setpoints[zone] = idleSetpointC
	}
	s.load()
	return s
}

func (s *Store) load() {
	for _, path := range s.paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("setpoint file unreadable, keeping defaults")
			return
		}
		loaded := 0
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			zone, temp, err := parseRecord(line)
			if err != nil {
				s.log.Warn().Err(err).Str("line", line).Msg("skipping unparsable setpoint record")
				continue
			}
			s.setpoints[zone] = temp
			loaded++
		}
		s.log.Info().Str("path", path).Int("records", loaded).Msg("setpoints loaded")
		return
	}
	s.log.Info().Msg("no persisted setpoints, all zones at idle setpoint")
}

func parseRecord(line string) (climate.ZoneID, float64, error) {
	parts := strings.SplitN(line, ",", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want \"<zone>,<temp>\", got %q", line)
	}
	zone, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	if zone < 1 || zone > 255 {
		return 0, 0, fmt.Errorf("zone id %d out of range", zone)
	}
	temp, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, err
	}
	return climate.ZoneID(zone), temp, nil
}

// Snapshot returns a copy of the current map.
func (s *Store) Snapshot() map[climate.ZoneID]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[climate.ZoneID]float64, len(s.setpoints))
	for zone, temp := range s.setpoints {
		out[zone] = temp
	}
	return out
}

// Get returns the setpoint for one zone.
func (s *Store) Get(zone climate.ZoneID) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	temp, ok := s.setpoints[zone]
	return temp, ok
}

// SetAll updates the given zones and rewrites the full map to disk.
// It reports whether the rewrite reached any candidate path.
func (s *Store) SetAll(zones []climate.ZoneID, tempC float64) bool {
	s.mu.Lock()
	for _, zone := range zones {
		s.setpoints[zone] = tempC
	}
	body := s.encodeLocked()
	s.mu.Unlock()

	for _, path := range s.paths {
		if err := os.WriteFile(path, body, 0o644); err != nil {
			s.log.Warn().Err(err).Str("path", path).Msg("setpoint write failed, trying next candidate")
			continue
		}
		return true
	}
	s.log.Error().Msg("setpoints not persisted, in-memory state remains authoritative")
	return false
}

func (s *Store) encodeLocked() []byte {
	zones := make([]int, 0, len(s.setpoints))
	for zone := range s.setpoints {
		zones = append(zones, int(zone))
	}
	sort.Ints(zones)
	var b strings.Builder
	for _, zone := range zones {
		fmt.Fprintf(&b, "%d,%.1f\n", zone, s.setpoints[climate.ZoneID(zone)])
	}
	return []byte(b.String())
}
