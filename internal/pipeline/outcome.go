package pipeline

import (
	"errors"

	"github.com/iabetor/pivoice/internal/asr"
	"github.com/iabetor/pivoice/internal/command"
	"github.com/iabetor/pivoice/internal/database"
	"github.com/iabetor/pivoice/internal/voiceprint"
)

// Outcome 是一次语音指令的完整结果。
type Outcome struct {
	ID           string
	Verification voiceprint.Result
	Transcript   string
	// TranscriptErr 为 asr.ErrNotUnderstood 或 asr.ErrUnavailable。
	TranscriptErr error
	// Command 为 nil 表示没有可发送的指令（未验证通过、未识别或没有匹配的指令）。
	Command *command.Command
	// Dispatched 表示已对 Command 发起过请求；只分析不发送时为 false。
	Dispatched bool
	// DispatchErr 为 command.ErrTimeout、command.ErrNetwork 或 *command.StatusError。
	DispatchErr error
}

// 结果状态。
const (
	StatusNoMatch        = "no match"
	StatusNotUnderstood  = "not understood"
	StatusASRUnavailable = "asr unavailable"
	StatusUnknownCommand = "unknown command"
	StatusNotSent        = "not sent"
	StatusSent           = "sent"
	StatusTimeout        = "timeout"
	StatusNetworkError   = "network error"
)

// Sent 报告指令是否成功发送。
func (o *Outcome) Sent() bool {
	return o.Command != nil && o.Dispatched && o.DispatchErr == nil
}

// Status 返回简短的结果状态。
func (o *Outcome) Status() string {
	switch {
	case !o.Verification.Matched:
		return StatusNoMatch
	case errors.Is(o.TranscriptErr, asr.ErrNotUnderstood):
		return StatusNotUnderstood
	case o.TranscriptErr != nil:
		return StatusASRUnavailable
	case o.Command == nil:
		return StatusUnknownCommand
	case !o.Dispatched:
		return StatusNotSent
	case o.DispatchErr == nil:
		return StatusSent
	case errors.Is(o.DispatchErr, command.ErrTimeout):
		return StatusTimeout
	default:
		return StatusNetworkError
	}
}

func (o *Outcome) attempt(status string) database.Attempt {
	a := database.Attempt{
		ID:         o.ID,
		Kind:       database.KindCommand,
		UserKey:    o.Verification.Key,
		Matched:    o.Verification.Matched,
		Similarity: o.Verification.Similarity,
		Transcript: o.Transcript,
		Outcome:    status,
	}
	if o.Command != nil {
		a.Command = o.Command.Phrase
	}
	return a
}
