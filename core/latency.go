package orchestration

import (
	"encoding/csv"
	"fmt"
	"io"
	"sync"
	"time"
)

const (
	latencyStageTranscription = iota
	latencyStageGeneration
	latencyStageSynthesis
	latencyStageCount
)

// LatencyRecord accumulates per-stage wall times for one turn. Fields are
// populated incrementally as stages complete and never edited afterwards; a
// turn that fails mid-pipeline leaves the later columns blank.
type LatencyRecord struct {
	stages  [latencyStageCount]time.Duration
	reached int
}

func (r *LatencyRecord) record(stage int, elapsed time.Duration) {
	if stage < 0 || stage >= latencyStageCount || stage != r.reached {
		return
	}
	r.stages[stage] = elapsed
	r.reached = stage + 1
}

// TranscriptionSeconds returns the recorded transcription time, or zero when
// the stage was not reached.
func (r LatencyRecord) TranscriptionSeconds() float64 {
	return r.stages[latencyStageTranscription].Seconds()
}

func (r LatencyRecord) GenerationSeconds() float64 {
	return r.stages[latencyStageGeneration].Seconds()
}

func (r LatencyRecord) SynthesisSeconds() float64 {
	return r.stages[latencyStageSynthesis].Seconds()
}

func (r LatencyRecord) columns() []string {
	columns := make([]string, latencyStageCount)
	for i := 0; i < r.reached; i++ {
		columns[i] = fmt.Sprintf("%.3f", r.stages[i].Seconds())
	}
	return columns
}

// LatencyLog persists one CSV row per turn in fixed column order:
// transcription, generation, synthesis seconds.
type LatencyLog struct {
	mu     sync.Mutex
	writer *csv.Writer
	closer io.Closer
}

func NewLatencyLog(w io.Writer) (*LatencyLog, error) {
	log := &LatencyLog{writer: csv.NewWriter(w)}
	if closer, ok := w.(io.Closer); ok {
		log.closer = closer
	}

	if err := log.writer.Write([]string{"transcription_seconds", "generation_seconds", "synthesis_seconds"}); err != nil {
		return nil, fmt.Errorf("failed to write latency log header: %w", err)
	}
	log.writer.Flush()
	if err := log.writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush latency log header: %w", err)
	}

	return log, nil
}

func (l *LatencyLog) Append(record LatencyRecord) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.writer.Write(record.columns()); err != nil {
		return fmt.Errorf("failed to write latency row: %w", err)
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush latency row: %w", err)
	}
	return nil
}

func (l *LatencyLog) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return fmt.Errorf("failed to flush latency log: %w", err)
	}
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}
