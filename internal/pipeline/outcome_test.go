package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/iabetor/pivoice/internal/asr"
	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/command"
	"github.com/iabetor/pivoice/internal/voiceprint"
)

func TestOutcomeStatus(t *testing.T) {
	cmd := &command.Command{Phrase: "turn on led 1", URL: "http://led.local/LED1=HIGH"}
	matched := voiceprint.Result{Matched: true, Key: "alice0", User: "alice", Similarity: 100}

	tests := []struct {
		name     string
		out      Outcome
		want     string
		wantSent bool
	}{
		{"no match", Outcome{Verification: voiceprint.Result{Key: voiceprint.NoMatchKey}, Transcript: "turn on led 1"}, StatusNoMatch, false},
		{"not understood", Outcome{Verification: matched, TranscriptErr: asr.ErrNotUnderstood}, StatusNotUnderstood, false},
		{"asr unavailable", Outcome{Verification: matched, TranscriptErr: asr.ErrUnavailable}, StatusASRUnavailable, false},
		{"unknown command", Outcome{Verification: matched, Transcript: "make coffee"}, StatusUnknownCommand, false},
		{"analyzed only", Outcome{Verification: matched, Transcript: "turn on led 1", Command: cmd}, StatusNotSent, false},
		{"sent", Outcome{Verification: matched, Command: cmd, Dispatched: true}, StatusSent, true},
		{"timeout", Outcome{Verification: matched, Command: cmd, Dispatched: true, DispatchErr: command.ErrTimeout}, StatusTimeout, false},
		{"network error", Outcome{Verification: matched, Command: cmd, Dispatched: true, DispatchErr: command.ErrNetwork}, StatusNetworkError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.out.Status(); got != tt.want {
				t.Errorf("Status() = %s, want %s", got, tt.want)
			}
			if got := tt.out.Sent(); got != tt.wantSent {
				t.Errorf("Sent() = %v, want %v", got, tt.wantSent)
			}
		})
	}
}

func TestAnalyze_DoesNotDispatch(t *testing.T) {
	env := newTestEnv(t)
	env.enroll(t, "alice")

	buf, err := env.recorder.Record(context.Background(), env.p.manager.RecordDuration())
	if err != nil {
		t.Fatal(err)
	}
	out, err := Analyze(context.Background(), buf, env.p.manager, env.asr, env.p.table)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out.Command == nil || out.Command.Phrase != "turn on led 1" {
		t.Fatalf("Command = %+v, want turn on led 1", out.Command)
	}
	if out.Dispatched || out.Sent() || out.Status() != StatusNotSent {
		t.Errorf("Dispatched/Sent/Status = %v/%v/%s, want false/false/%s", out.Dispatched, out.Sent(), out.Status(), StatusNotSent)
	}
	if len(env.dispatcher.sent) != 0 {
		t.Errorf("dispatched %d times, want 0", len(env.dispatcher.sent))
	}
}

func TestAnalyze_UnmatchedVoiceHasNoCommand(t *testing.T) {
	env := newTestEnv(t)

	buf, err := env.recorder.Record(context.Background(), env.p.manager.RecordDuration())
	if err != nil {
		t.Fatal(err)
	}
	out, err := Analyze(context.Background(), buf, env.p.manager, env.asr, env.p.table)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if out.Command != nil {
		t.Errorf("Command = %+v, want nil for an unmatched voice", out.Command)
	}
	if out.Status() != StatusNoMatch {
		t.Errorf("Status() = %s, want %s", out.Status(), StatusNoMatch)
	}
}

func TestAnalyze_InvalidAudioKeepsTranscript(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.empty = true

	buf, _ := env.recorder.Record(context.Background(), env.p.manager.RecordDuration())
	out, err := Analyze(context.Background(), buf, env.p.manager, env.asr, env.p.table)
	if !errors.Is(err, audio.ErrInvalidAudio) {
		t.Fatalf("expected ErrInvalidAudio, got %v", err)
	}
	if out.Transcript != "turn on led 1" || out.Command != nil {
		t.Errorf("out = %+v, want transcript kept and no command", out)
	}
}
