package sim

import (
	"context"
	"fmt"
	"time"

	"loadalert-sim/internal/logging"
	"loadalert-sim/internal/telemetry"
)

// Run starts the simulation loop and stops when the context is done.
// A failing tick stops the loop and its error is returned.
func (s *Simulator) Run(ctx context.Context) error {
	log := logging.FromContext(ctx).With().Str("component", "simulator").Logger()
	log.Info().
		Dur("tick_interval", s.tickInterval).
		Int("points_per_tick", s.cfg.PointsPerTick).
		Str("session_id", s.sessionID).
		Msg("starting simulator")
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				log.Error().Err(err).Msg("tick failed")
				return err
			}
		case <-ctx.Done():
			log.Info().Int("readings", s.log.Len()).Msg("stopping simulator")
			return nil
		}
	}
}

// Step runs n ticks back to back without waiting for the ticker.
func (s *Simulator) Step(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// tick generates points_per_tick readings and writes them. Readings produced before a
// failure stay in the log; the failed one leaves log and state untouched.
func (s *Simulator) tick(ctx context.Context) error {
	batch := make([]telemetry.Reading, 0, s.cfg.PointsPerTick)
	var err error

	s.mu.Lock()
	for i := 0; i < s.cfg.PointsPerTick; i++ {
		var r telemetry.Reading
		if r, err = s.generate(); err != nil {
			break
		}
		batch = append(batch, r)
	}
	ticket, ok := s.ticket(len(batch))
	s.mu.Unlock()

	if ok {
		s.flush(ctx, ticket, batch)
	}
	return err
}

// generate advances the truck by one reading. Callers hold s.mu.
func (s *Simulator) generate() (telemetry.Reading, error) {
	seq := s.seq + 1
	var (
		r    telemetry.Reading
		next telemetry.State
		err  error
	)
	if ev, ok := s.scenario.At(seq); ok {
		r, next, err = s.gen.NextWithJump(s.state, ev.Delta())
	} else {
		r, next, err = s.gen.Next(s.state)
	}
	if err != nil {
		return telemetry.Reading{}, fmt.Errorf("tick %d: %w", seq, err)
	}
	r.SessionID = s.sessionID
	s.log.Append(r)
	s.state = next
	s.seq = seq
	return r, nil
}

// ticket reserves the next sink write slot when there is something to write.
// Callers hold s.mu.
func (s *Simulator) ticket(n int) (uint64, bool) {
	if s.writer == nil || n == 0 {
		return 0, false
	}
	t := s.issued
	s.issued++
	return t, true
}

// flush mirrors readings to the sinks once every earlier ticket has been written.
// Sink failures are logged; the log already holds the readings.
func (s *Simulator) flush(ctx context.Context, ticket uint64, batch []telemetry.Reading) {
	log := logging.FromContext(ctx)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for s.serving != ticket {
		s.turn.Wait()
	}
	defer func() {
		s.serving++
		s.turn.Broadcast()
	}()

	// Batch support if writer implements WriteBatch
	if bw, ok := s.writer.(batchWriter); ok {
		if err := bw.WriteBatch(batch); err != nil {
			log.Error().Err(err).Int("rows", len(batch)).Msg("batch write failed")
		}
		return
	}
	for _, r := range batch {
		if err := s.writer.Write(r); err != nil {
			log.Error().Err(err).Str("truck_id", r.TruckID).Msg("write failed")
		}
	}
}
