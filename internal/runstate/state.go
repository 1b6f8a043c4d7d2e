package runstate

import "sync"

// State 调试目标的运行状态
type State int

const (
	// Running 初始状态，调试目标在运行
	Running State = iota
	// Paused 调试目标停在断点或单步位置
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// Machine 运行状态机
// 只由 Pause/Resume 驱动（即只响应暂停、恢复事件），没有终止状态
type Machine struct {
	mu       sync.RWMutex
	state    State
	location string

	onChange func(old, new State)
}

// NewMachine 创建状态机，初始为 Running
// onChange 可为 nil；每次 Pause/Resume 都会回调，包括状态未变的刷新
func NewMachine(onChange func(old, new State)) *Machine {
	return &Machine{
		state:    Running,
		onChange: onChange,
	}
}

// Pause 进入 Paused 并记录暂停位置；已暂停时视为刷新位置
func (m *Machine) Pause(location string) {
	m.mu.Lock()
	old := m.state
	m.state = Paused
	m.location = location
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(old, Paused)
	}
}

// Resume 进入 Running；已在运行时无副作用
func (m *Machine) Resume() {
	m.mu.Lock()
	old := m.state
	m.state = Running
	m.location = ""
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(old, Running)
	}
}

// State 当前状态
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsPaused 当前是否暂停
func (m *Machine) IsPaused() bool {
	return m.State() == Paused
}

// Location 最近一次暂停的位置，运行中为空
func (m *Machine) Location() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.location
}
