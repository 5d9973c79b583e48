package domain

// Action 是计划条目的分类结果。
type Action string

const (
	ActionCreate   Action = "create"
	ActionSkip     Action = "skip"
	ActionConflict Action = "conflict"
	// ActionError 表示条目无法安全规划（解析失败、地区码缺失、目标重复）。--force 不能覆盖它。
	ActionError Action = "error"
)

// PlanItem 规划一个卡槽的转换（只描述 src/dst；真正执行在 run 包）。
//
// 生命周期：由 planner 创建，执行器只消费一次，创建后不再修改。
type PlanItem struct {
	SrcDir  string
	SrcFile string
	DstDir  string
	DstFile string

	GameID GameID
	Action Action
	// Overwrite 表示该条目原本是 conflict，因 --force 转为 create 并覆盖目标。
	Overwrite bool

	Reason    string
	ErrorCode string
}

// PlanSummary 是按 Action 统计的条目数量。
type PlanSummary struct {
	Create    int `json:"create"`
	Skip      int `json:"skip"`
	Conflict  int `json:"conflict"`
	Error     int `json:"error"`
	Overwrite int `json:"overwrite"`
}

// Plan 是一次运行的完整执行计划。Items 的顺序就是执行顺序。
type Plan struct {
	SDRoot   string
	OutRoot  string
	Source   Scheme
	Target   Scheme
	CopyMode bool
	Force    bool

	Items   []PlanItem
	Summary PlanSummary
}

// Summarize 由 Items 重新计算 Summary。
func (p *Plan) Summarize() {
	var s PlanSummary
	for _, it := range p.Items {
		switch it.Action {
		case ActionCreate:
			s.Create++
			if it.Overwrite {
				s.Overwrite++
			}
		case ActionSkip:
			s.Skip++
		case ActionConflict:
			s.Conflict++
		case ActionError:
			s.Error++
		}
	}
	p.Summary = s
}

// Blocked 报告计划是否包含阻断执行的条目。
// allowPartial=true 时 error 条目只被跳过，不再阻断；conflict 永远阻断。
func (p Plan) Blocked(allowPartial bool) bool {
	if p.Summary.Conflict > 0 {
		return true
	}
	return p.Summary.Error > 0 && !allowPartial
}
