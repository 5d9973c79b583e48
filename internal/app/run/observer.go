package run

import (
	"time"

	"github.com/John-Robertt/vmcr/internal/domain"
)

// Observer 用于把“运行进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// 执行是单 goroutine 顺序进行的，事件按发生顺序到达。
type Observer interface {
	// OnStart 在运行开始时调用；rr 只填好了头部字段（路径/方向/模式）。
	OnStart(rr domain.RunReport)
	// OnPhaseDone 在阶段结束时调用（plan/validate/backup/apply/prune）。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnItemDone 在每个计划条目得出最终状态时调用。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(domain.RunReport)                              {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)     {}
func (nopObserver) OnItemDone(int, int, domain.ItemResult, time.Duration) {}
