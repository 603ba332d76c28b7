package pipeline

import (
	"sync"

	"github.com/iabetor/pivoice/internal/logger"
)

// State 表示流水线的当前运行状态。
type State int

const (
	// StateIdle 空闲，可以接受新的操作。
	StateIdle State = iota
	// StateRecording 正在录音（注册或指令）。
	StateRecording
	// StateAnalyzing 并行进行语音识别和声纹验证。
	StateAnalyzing
	// StateDispatching 正在向设备发送指令。
	StateDispatching
)

var stateNames = [...]string{
	"Idle",
	"Recording",
	"Analyzing",
	"Dispatching",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
	}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle       → Recording    （开始注册或指令）
//	Recording  → Analyzing    （录音完成）
//	Analyzing  → Dispatching  （声纹通过且识别出指令）
//
// 任何状态都可以转换到 Idle（操作结束或出错）。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Debugf("[state] 非法转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to
	logger.Debugf("[state] %s → %s", from, to)

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle {
		logger.Debugf("[state] 重置 %s → Idle", from)
		if sm.onChange != nil {
			sm.onChange(from, StateIdle)
		}
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateRecording
	case StateRecording:
		return to == StateAnalyzing
	case StateAnalyzing:
		return to == StateDispatching
	}
	return false
}
