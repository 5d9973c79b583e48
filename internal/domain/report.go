package domain

import (
	"encoding/json"
	"time"
)

const (
	StatusPlanned = "planned"
	StatusCopied  = "copied"
	StatusMoved   = "moved"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
	// StatusNotRun：计划中存在，但因前序失败/整体中止而未执行。
	StatusNotRun = "not_run"
)

const (
	ErrCodeConfigInvalid   = "config_invalid"
	ErrCodeConfigNotFound  = "config_not_found"
	ErrCodeSourceNotFound  = "source_not_found"
	ErrCodeMissingMapping  = "missing_mapping"
	ErrCodeParseFailed     = "parse_failed"
	ErrCodeDuplicateTarget = "duplicate_target"
	ErrCodeTargetConflict  = "target_conflict"
	ErrCodePlanInvalid     = "plan_invalid"
	ErrCodeBackupFailed    = "backup_failed"
	ErrCodeIOFailed        = "io_failed"
	ErrCodeMoveFailed      = "move_failed"
	ErrCodeCopyFailed      = "copy_failed"
)

// RunReport 是对外稳定输出（--report 文件 / stdout JSON）的结构。
type RunReport struct {
	RunID    string `json:"run_id"`
	SDRoot   string `json:"sd_root"`
	OutRoot  string `json:"out_root"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	CopyMode bool   `json:"copy_mode"`
	DryRun   bool   `json:"dry_run"`
	Force    bool   `json:"force"`

	// Aborted 表示整体中止（冲突/非法条目/备份失败），此时未做任何修改。
	Aborted   bool   `json:"aborted"`
	BackupDir string `json:"backup_dir,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Planned int `json:"planned"`
	Copied  int `json:"copied"`
	Moved   int `json:"moved"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	NotRun  int `json:"not_run"`
}

type ItemResult struct {
	GameID    string `json:"game_id"`
	Src       string `json:"src"`
	Dst       string `json:"dst"`
	Action    string `json:"action"`
	Overwrite bool   `json:"overwrite"`

	Status    string `json:"status"`
	Reason    string `json:"reason"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`
}

// Finalize 做两件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) summary 由 items 计算得出
//
// items 保持计划顺序，不重新排序：计划本身已经按源目录名稳定排序。
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusPlanned:
			s.Planned++
		case StatusCopied:
			s.Copied++
		case StatusMoved:
			s.Moved++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		case StatusNotRun:
			s.NotRun++
		}
	}
	r.Summary = s
}

// OK 报告本次运行是否可以视为成功（决定进程退出码）。
func (r RunReport) OK() bool {
	return !r.Aborted && r.Summary.Failed == 0 && r.Summary.NotRun == 0
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
