package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iabetor/pivoice/internal/asr"
	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/command"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/database"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/voiceprint"
)

// ErrBusy 表示上一个操作尚未结束。
var ErrBusy = errors.New("正在处理另一项操作")

// AuditLog 记录每次操作的结果，可为 nil。
type AuditLog interface {
	RecordAttempt(a database.Attempt) error
}

// Components 是 Pipeline 依赖的全部组件。
type Components struct {
	Manager     *voiceprint.Manager
	Recorder    audio.Recorder
	Transcriber asr.Transcriber
	Table       command.Table
	Dispatcher  command.Dispatcher
	Audit       AuditLog
	// Cue 在每次录音前播放提示音，可为 nil。
	Cue audio.Cue
}

// Pipeline 是主编排器，实现注册、删除和语音指令三个用户操作。
// 同一时间只处理一个操作。
type Pipeline struct {
	manager     *voiceprint.Manager
	recorder    audio.Recorder
	transcriber asr.Transcriber
	table       command.Table
	dispatcher  command.Dispatcher
	audit       AuditLog
	cue         audio.Cue

	state *StateMachine

	// New 创建的资源，Close 时释放
	closers []func()
}

// New 根据配置创建并初始化完整的 Pipeline（麦克风、特征表、识别引擎、审计库）。
func New(cfg *config.Config) (*Pipeline, error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	mgr, err := voiceprint.NewManager(cfg)
	if err != nil {
		return nil, err
	}

	capture, err := audio.NewCapture(cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameSize)
	if err != nil {
		return nil, fmt.Errorf("初始化音频采集失败: %w", err)
	}
	closers = append(closers, capture.Close)

	transcriber, err := asr.New(cfg.ASR)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("初始化语音识别失败: %w", err)
	}
	closers = append(closers, transcriber.Close)

	var audit AuditLog
	db, err := database.Open(filepath.Join(cfg.DataDir, "pivoice.db"))
	if err == nil {
		err = db.Migrate()
	}
	if err != nil {
		// 审计日志不可用不影响主流程
		logger.Warnf("[pipeline] 审计日志不可用: %v", err)
		if db != nil {
			db.Close()
		}
	} else {
		audit = db
		closers = append(closers, func() { db.Close() })
	}

	var cue audio.Cue
	if cfg.Audio.Beep {
		player, err := audio.NewPlayer()
		if err != nil {
			logger.Warnf("[pipeline] 提示音不可用: %v", err)
		} else {
			cue = player
			closers = append(closers, player.Close)
		}
	}

	p := NewWith(Components{
		Manager:     mgr,
		Recorder:    capture,
		Transcriber: transcriber,
		Table:       command.FromConfig(cfg.Commands),
		Dispatcher:  command.NewHTTPDispatcher(time.Duration(cfg.Commands.TimeoutSeconds) * time.Second),
		Audit:       audit,
		Cue:         cue,
	})
	p.closers = closers

	logger.Infof("[pipeline] 初始化完成 (asr=%s, commands=%d, users=%d)",
		transcriber.Name(), len(p.table), len(mgr.ListUsers()))
	return p, nil
}

// NewWith 使用现成的组件创建 Pipeline。
func NewWith(c Components) *Pipeline {
	return &Pipeline{
		manager:     c.Manager,
		recorder:    c.Recorder,
		transcriber: c.Transcriber,
		table:       c.Table,
		dispatcher:  c.Dispatcher,
		audit:       c.Audit,
		cue:         c.Cue,
		state:       NewStateMachine(),
	}
}

// State 返回当前状态。
func (p *Pipeline) State() State {
	return p.state.Current()
}

// Table 返回指令表。
func (p *Pipeline) Table() command.Table {
	return p.table
}

// Users 返回已注册用户。
func (p *Pipeline) Users() []string {
	return p.manager.ListUsers()
}

// AddUser 录制多轮样本注册用户。prompt 在每轮录音前调用，可为 nil。
func (p *Pipeline) AddUser(ctx context.Context, name string, prompt func(round, total int)) ([]string, error) {
	if !p.state.Transition(StateRecording) {
		return nil, ErrBusy
	}
	defer p.state.ForceIdle()

	keys, err := p.manager.Enroll(ctx, name, p.recorder, func(round, total int) {
		if prompt != nil {
			prompt(round, total)
		}
		p.beep(ctx)
	})

	outcome := "enrolled"
	if err != nil {
		outcome = "failed: " + err.Error()
	}
	p.record(database.Attempt{Kind: database.KindEnroll, UserKey: name, Outcome: outcome})
	return keys, err
}

// DeleteUser 删除用户的全部样本。用户不存在时返回 voiceprint.ErrUserNotFound。
func (p *Pipeline) DeleteUser(name string) error {
	if p.state.Current() != StateIdle {
		return ErrBusy
	}
	err := p.manager.DeleteUser(name)

	outcome := "deleted"
	if err != nil {
		outcome = "failed: " + err.Error()
	}
	p.record(database.Attempt{Kind: database.KindDelete, UserKey: name, Outcome: outcome})
	return err
}

// GiveCommand 录音一次，并行完成语音识别与声纹验证，
// 验证通过且识别出指令时发送一次请求。
// 录音失败或特征无法提取时返回 error；其余结果都记录在 Outcome 中。
func (p *Pipeline) GiveCommand(ctx context.Context) (*Outcome, error) {
	if !p.state.Transition(StateRecording) {
		return nil, ErrBusy
	}
	defer p.state.ForceIdle()

	p.beep(ctx)
	buf, err := p.recorder.Record(ctx, p.manager.RecordDuration())
	if err != nil {
		return nil, fmt.Errorf("录音失败: %w", err)
	}
	p.state.Transition(StateAnalyzing)

	out, err := Analyze(ctx, buf, p.manager, p.transcriber, p.table)
	out.ID = uuid.NewString()
	if err != nil {
		p.record(out.attempt("failed: " + err.Error()))
		return nil, err
	}

	if out.Command != nil {
		p.state.Transition(StateDispatching)
		out.DispatchErr = p.dispatcher.Dispatch(ctx, *out.Command)
		out.Dispatched = true
	}

	logger.Infof("[pipeline] 指令 %s: %s (user=%s, similarity=%.2f, transcript=%q)",
		out.ID, out.Status(), out.Verification.Key, out.Verification.Similarity, out.Transcript)
	p.record(out.attempt(out.Status()))
	return out, nil
}

// Analyze 并行完成语音识别与声纹验证，不发送任何请求。
// 只有声纹通过且识别出表中指令时才填充 Outcome.Command。
// 声纹验证出错时返回 error，此时 Outcome 仍包含识别结果。
func Analyze(ctx context.Context, buf *audio.Buffer, mgr *voiceprint.Manager, tr asr.Transcriber, table command.Table) (*Outcome, error) {
	out := &Outcome{}

	// 识别走网络、验证占 CPU，两者互不依赖
	var (
		wg    sync.WaitGroup
		idErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.Transcript, out.TranscriptErr = tr.Transcribe(ctx, buf)
	}()
	go func() {
		defer wg.Done()
		out.Verification, idErr = mgr.Identify(buf)
	}()
	wg.Wait()

	if idErr != nil {
		return out, fmt.Errorf("声纹验证失败: %w", idErr)
	}

	if out.Verification.Matched && out.TranscriptErr == nil {
		if cmd, ok := table.Match(out.Transcript); ok {
			out.Command = &cmd
		}
	}
	return out, nil
}

func (p *Pipeline) beep(ctx context.Context) {
	if p.cue == nil {
		return
	}
	if err := p.cue.Beep(ctx); err != nil {
		logger.Debugf("[pipeline] 播放提示音失败: %v", err)
	}
}

// record 写入审计日志，失败只记录警告。
func (p *Pipeline) record(a database.Attempt) {
	if p.audit == nil {
		return
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if err := p.audit.RecordAttempt(a); err != nil {
		logger.Warnf("[pipeline] 写入审计日志失败: %v", err)
	}
}

// Close 释放 New 创建的资源。
func (p *Pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
	logger.Info("[pipeline] 已关闭")
}
