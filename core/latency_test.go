package orchestration

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"
)

func TestLatencyRecordTracksStagesInOrder(t *testing.T) {
	var record LatencyRecord
	record.record(latencyStageTranscription, 250*time.Millisecond)
	record.record(latencyStageGeneration, 1500*time.Millisecond)

	if got := record.TranscriptionSeconds(); got != 0.25 {
		t.Fatalf("expected transcription time 0.25s, got %v", got)
	}
	if got := record.GenerationSeconds(); got != 1.5 {
		t.Fatalf("expected generation time 1.5s, got %v", got)
	}
	if got := record.SynthesisSeconds(); got != 0 {
		t.Fatalf("expected unreached synthesis time to be zero, got %v", got)
	}
}

func TestLatencyRecordIgnoresOutOfOrderStages(t *testing.T) {
	var record LatencyRecord
	record.record(latencyStageSynthesis, time.Second)

	if got := record.SynthesisSeconds(); got != 0 {
		t.Fatalf("expected skipped-ahead stage to be ignored, got %v", got)
	}

	record.record(latencyStageTranscription, time.Second)
	record.record(latencyStageTranscription, 2*time.Second)
	if got := record.TranscriptionSeconds(); got != 1 {
		t.Fatalf("expected first recording to win, got %v", got)
	}
}

func TestLatencyLogWritesPartialRowsForFailedTurns(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewLatencyLog(&buf)
	if err != nil {
		t.Fatalf("failed to create latency log: %v", err)
	}

	var full LatencyRecord
	full.record(latencyStageTranscription, 100*time.Millisecond)
	full.record(latencyStageGeneration, 200*time.Millisecond)
	full.record(latencyStageSynthesis, 300*time.Millisecond)
	if err := log.Append(full); err != nil {
		t.Fatalf("failed to append full record: %v", err)
	}

	var partial LatencyRecord
	partial.record(latencyStageTranscription, 100*time.Millisecond)
	if err := log.Append(partial); err != nil {
		t.Fatalf("failed to append partial record: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse written csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d rows", len(rows))
	}
	if rows[0][0] != "transcription_seconds" {
		t.Fatalf("expected header row first, got %v", rows[0])
	}
	if rows[1][2] != "0.300" {
		t.Fatalf("expected full row synthesis column 0.300, got %q", rows[1][2])
	}
	if rows[2][0] != "0.100" || rows[2][1] != "" || rows[2][2] != "" {
		t.Fatalf("expected partial row with blank unreached columns, got %v", rows[2])
	}
}

func TestLatencyLogNilReceiverIsSafe(t *testing.T) {
	var log *LatencyLog
	if err := log.Append(LatencyRecord{}); err != nil {
		t.Fatalf("expected nil log append to be a no-op, got %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("expected nil log close to be a no-op, got %v", err)
	}
}
