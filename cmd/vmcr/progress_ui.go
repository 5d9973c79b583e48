package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/vmcr/internal/app/run"
	"github.com/John-Robertt/vmcr/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约。
// run 层只发事件，CLI 决定如何展示。
type progressUI struct {
	w io.Writer

	startedAt time.Time
	ok        int
	fail      int
	skip      int
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("76")).Bold(true)
	planStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	skipStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	notRunStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(rr domain.RunReport) {
	p.startedAt = time.Now()

	mode := "apply"
	modeHint := ""
	if rr.DryRun {
		mode = "dry-run"
		modeHint = " (不写入/不移动/不备份)"
	}
	op := "move"
	if rr.CopyMode {
		op = "copy"
	}

	fmt.Fprintf(p.w, "[%s] %s %s -> %s (%s)\n", p.startedAt.Format("15:04:05"),
		titleStyle.Render("vmcr"), strings.ToUpper(rr.Source), strings.ToUpper(rr.Target), mode)
	fmt.Fprintln(p.w, labelStyle.Render("配置（生效）:"))
	fmt.Fprintf(p.w, "  sd_root: %s\n", rr.SDRoot)
	fmt.Fprintf(p.w, "  out_root: %s\n", rr.OutRoot)
	fmt.Fprintf(p.w, "  mode: %s, %s%s\n", op, mode, modeHint)
	fmt.Fprintf(p.w, "  force: %s\n", onOff(rr.Force))
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	switch name {
	case "plan":
		fmt.Fprintf(p.w, "规划: create=%d skip=%d conflict=%d error=%d overwrite=%d (%s)\n",
			intField(fields, "create"),
			intField(fields, "skip"),
			intField(fields, "conflict"),
			intField(fields, "error"),
			intField(fields, "overwrite"),
			formatShortDuration(dur),
		)
	case "validate":
		if boolField(fields, "blocked") {
			fmt.Fprintf(p.w, "校验: %s conflict=%d error=%d\n",
				failStyle.Render("存在阻断条目"), intField(fields, "conflict"), intField(fields, "error"))
			return
		}
		fmt.Fprintln(p.w, "校验: ok")
	case "backup":
		if boolField(fields, "dry_run") {
			fmt.Fprintf(p.w, "备份: %s（dry-run，不写入）\n", stringField(fields, "dir"))
			return
		}
		fmt.Fprintf(p.w, "备份: %s files=%d (%s)\n", stringField(fields, "dir"), intField(fields, "files"), formatShortDuration(dur))
	case "apply":
		fmt.Fprintf(p.w, "执行: items=%d ok=%d fail=%d skip=%d (%s)\n",
			intField(fields, "items"), p.ok, p.fail, p.skip, formatShortDuration(dur))
	case "prune":
		fmt.Fprintf(p.w, "清理: removed_dirs=%d\n", intField(fields, "removed"))
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	switch res.Status {
	case domain.StatusCopied, domain.StatusMoved, domain.StatusPlanned:
		p.ok++
	case domain.StatusFailed:
		p.fail++
	case domain.StatusSkipped:
		p.skip++
	}

	label := statusLabel(res.Status)
	switch res.Status {
	case domain.StatusFailed:
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s: %s\n",
			idx, total, label, res.GameID, res.ErrorCode, truncate(res.ErrorMsg, 160))
	case domain.StatusSkipped:
		note := "目标已一致"
		if res.ErrorCode != "" {
			note = res.ErrorCode + ": " + truncate(res.ErrorMsg, 120)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n", idx, total, label, res.GameID, note)
	default:
		over := ""
		if res.Overwrite {
			over = " overwrite"
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s %s -> %s%s (%s)\n",
			idx, total, label, res.GameID, res.Src, res.Dst, over, formatShortDuration(dur))
	}
}

func statusLabel(status string) string {
	switch status {
	case domain.StatusCopied:
		return okStyle.Render("COPY")
	case domain.StatusMoved:
		return okStyle.Render("MOVE")
	case domain.StatusPlanned:
		return planStyle.Render("PLAN")
	case domain.StatusSkipped:
		return skipStyle.Render("SKIP")
	case domain.StatusNotRun:
		return notRunStyle.Render("NOT_RUN")
	case domain.StatusFailed:
		return failStyle.Render("FAIL")
	default:
		return strings.ToUpper(status)
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func intField(fields map[string]any, key string) int {
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func boolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
