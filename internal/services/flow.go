// internal/services/flow.go
package services

import (
	"fmt"
	"sync"

	"github.com/Corphon/YouTubeNotes/internal/models"
)

// 合法的状态迁移
var transitions = map[models.NotesState][]models.NotesState{
	models.StateIdle:                {models.StateFetching, models.StateAwaitingManualInput},
	models.StateFetching:            {models.StateSummarizing, models.StateAwaitingManualInput},
	models.StateAwaitingManualInput: {models.StateSummarizing},
	models.StateSummarizing:         {models.StateDisplaying},
}

// StateObserver 状态变化回调
type StateObserver func(state models.NotesState)

// Flow 单次按钮点击的状态机，每次点击都从 Idle 重新开始
type Flow struct {
	mu       sync.Mutex
	state    models.NotesState
	history  []models.NotesState
	observer StateObserver
}

// NewFlow 创建处于 Idle 状态的流程
func NewFlow(observer StateObserver) *Flow {
	return &Flow{
		state:    models.StateIdle,
		history:  []models.NotesState{models.StateIdle},
		observer: observer,
	}
}

// CanTransition 检查迁移是否合法
func CanTransition(from, to models.NotesState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition 迁移到下一个状态
func (f *Flow) Transition(to models.NotesState) error {
	f.mu.Lock()
	from := f.state
	if !CanTransition(from, to) {
		f.mu.Unlock()
		return fmt.Errorf("非法的状态迁移: %s -> %s", from, to)
	}
	f.state = to
	f.history = append(f.history, to)
	observer := f.observer
	f.mu.Unlock()

	if observer != nil {
		observer(to)
	}
	return nil
}

// State 当前状态
func (f *Flow) State() models.NotesState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Transitions 返回经过的状态序列
func (f *Flow) Transitions() []models.NotesState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.NotesState, len(f.history))
	copy(out, f.history)
	return out
}
