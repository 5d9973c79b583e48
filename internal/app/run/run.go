package run

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/vmcr/internal/app/planner"
	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/infra/backup"
	"github.com/John-Robertt/vmcr/internal/infra/fsx"
)

// Options 控制一次执行。
type Options struct {
	DryRun bool
	// Force 同时允许替换已存在的备份。条目级覆盖在规划阶段已经决定（PlanItem.Overwrite）。
	Force        bool
	AllowPartial bool
	// BackupDir 为空表示不备份。
	BackupDir string
	Logger    *slog.Logger
}

// Run 扫描 + 规划 + 执行。规划阶段的 Force 取 opts.Force。
// 来源根目录缺失等整次失败也会返回完整的 RunReport（带一条 synthetic failed item）。
func Run(in planner.Input, opts Options, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	in.Force = opts.Force

	rr := newReport(in.SDRoot, in.OutRoot, in.Source, opts)
	obs.OnStart(rr)

	planStarted := time.Now()
	plan, err := planner.Build(in)
	if err != nil {
		code := domain.ErrCodeIOFailed
		if errors.Is(err, planner.ErrSourceNotFound) {
			code = domain.ErrCodeSourceNotFound
		}
		rr.Aborted = true
		rr.Items = append(rr.Items, syntheticFailed(code, err.Error()))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	obs.OnPhaseDone("plan", planFields(plan), time.Since(planStarted))

	return execute(rr, plan, opts, obs)
}

// Execute 执行一份已构建的计划，并返回对外稳定的 RunReport。
//
// 顺序固定：校验（不写入）→ dry-run 或 备份 → 按计划顺序执行 → 移动模式下清理空的源目录。
// 第一条失败即停止，其后条目记为 not_run；重新运行会按新的文件系统状态重新规划。
func Execute(plan domain.Plan, opts Options, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	rr := newReport(plan.SDRoot, plan.OutRoot, plan.Source, opts)
	obs.OnStart(rr)
	return execute(rr, plan, opts, obs)
}

func execute(rr domain.RunReport, plan domain.Plan, opts Options, obs Observer) domain.RunReport {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log = log.With("run_id", rr.RunID)

	total := len(plan.Items)
	rr.Items = make([]domain.ItemResult, 0, total+1)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	validateStarted := time.Now()
	blocked := plan.Blocked(opts.AllowPartial)
	obs.OnPhaseDone("validate", map[string]any{
		"conflict": plan.Summary.Conflict,
		"error":    plan.Summary.Error,
		"blocked":  blocked,
	}, time.Since(validateStarted))

	// dry-run 与被阻断的运行都不写入：逐条报告计划结果。
	if opts.DryRun || blocked {
		for i, it := range plan.Items {
			res := dryResult(it, opts.AllowPartial, blocked && !opts.DryRun)
			rr.Items = append(rr.Items, res)
			obs.OnItemDone(i+1, total, res, 0)
		}
		if blocked && !opts.DryRun {
			rr.Aborted = true
			rr.Items = append(rr.Items, abortItem(plan))
			log.Warn("计划存在阻断条目，未做任何修改", "conflict", plan.Summary.Conflict, "error", plan.Summary.Error)
			return finish()
		}
		if opts.BackupDir != "" && plan.Summary.Create > 0 {
			rr.BackupDir = filepath.Join(opts.BackupDir, backup.DirName)
			obs.OnPhaseDone("backup", map[string]any{"dir": rr.BackupDir, "dry_run": true}, 0)
		}
		return finish()
	}

	if opts.BackupDir != "" && plan.Summary.Create > 0 {
		backupStarted := time.Now()
		target, m, err := backup.Create(plan.SDRoot, opts.BackupDir, opts.Force)
		if err != nil {
			log.Error("备份失败", "err", err)
			rr.Aborted = true
			for i, it := range plan.Items {
				res := notRunResult(it, opts.AllowPartial)
				rr.Items = append(rr.Items, res)
				obs.OnItemDone(i+1, total, res, 0)
			}
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeBackupFailed, err.Error()))
			return finish()
		}
		rr.BackupDir = target
		log.Debug("备份完成", "dir", target, "files", len(m.Files))
		obs.OnPhaseDone("backup", map[string]any{"dir": target, "files": len(m.Files)}, time.Since(backupStarted))
	}

	applyStarted := time.Now()
	stopped := false
	for i, it := range plan.Items {
		itemStarted := time.Now()
		var res domain.ItemResult
		switch {
		case it.Action != domain.ActionCreate:
			res = dryResult(it, opts.AllowPartial, false)
		case stopped:
			res = baseResult(it)
			res.Status = domain.StatusNotRun
		default:
			res = applyOne(it, plan.CopyMode, log)
			if res.Status == domain.StatusFailed {
				stopped = true
			}
		}
		rr.Items = append(rr.Items, res)
		obs.OnItemDone(i+1, total, res, time.Since(itemStarted))
	}
	obs.OnPhaseDone("apply", map[string]any{"items": total, "stopped": stopped}, time.Since(applyStarted))

	if !plan.CopyMode {
		pruneStarted := time.Now()
		removed := prune(plan, rr.Items, log)
		obs.OnPhaseDone("prune", map[string]any{"removed": removed}, time.Since(pruneStarted))
	}

	return finish()
}

func applyOne(it domain.PlanItem, copyMode bool, log *slog.Logger) domain.ItemResult {
	res := baseResult(it)

	var err error
	if copyMode {
		err = fsx.CopyFileAtomic(it.SrcFile, it.DstFile, it.Overwrite)
	} else {
		err = fsx.MoveFile(it.SrcFile, it.DstFile, it.Overwrite)
	}
	if err != nil {
		res.Status = domain.StatusFailed
		res.ErrorMsg = err.Error()
		switch {
		case fsx.IsPathTypeConflict(err):
			res.ErrorCode = domain.ErrCodeTargetConflict
		case copyMode:
			res.ErrorCode = domain.ErrCodeCopyFailed
		default:
			res.ErrorCode = domain.ErrCodeMoveFailed
		}
		log.Error("条目执行失败", "src", it.SrcFile, "dst", it.DstFile, "err", err)
		return res
	}

	if copyMode {
		res.Status = domain.StatusCopied
	} else {
		res.Status = domain.StatusMoved
	}
	log.Debug("条目完成", "status", res.Status, "src", it.SrcFile, "dst", it.DstFile, "overwrite", it.Overwrite)
	return res
}

// prune 删除已移走卡槽文件后变空的源目录（绝不递归删除）。返回删除的目录数。
// 非空目录（例如还有 -2.raw）保留，并在条目 reason 中注明。
func prune(plan domain.Plan, results []domain.ItemResult, log *slog.Logger) int {
	removed := 0
	for i, it := range plan.Items {
		if results[i].Status != domain.StatusMoved {
			continue
		}
		ok, err := fsx.RemoveIfEmpty(it.SrcDir)
		switch {
		case err != nil:
			log.Warn("清理源目录失败", "dir", it.SrcDir, "err", err)
			results[i].Reason += "；源目录清理失败：" + err.Error()
		case ok:
			removed++
		default:
			log.Debug("源目录非空，保留", "dir", it.SrcDir)
			results[i].Reason += "；源目录非空，已保留"
		}
	}
	return removed
}

// dryResult 给出条目在“不写入”时的状态。aborted=true 表示整次运行被阻断：create 条目记为 not_run。
func dryResult(it domain.PlanItem, allowPartial, aborted bool) domain.ItemResult {
	res := baseResult(it)
	switch it.Action {
	case domain.ActionCreate:
		if aborted {
			res.Status = domain.StatusNotRun
		} else {
			res.Status = domain.StatusPlanned
		}
	case domain.ActionSkip:
		res.Status = domain.StatusSkipped
	case domain.ActionConflict:
		res.Status = domain.StatusFailed
		res.ErrorMsg = it.Reason
	case domain.ActionError:
		res.ErrorMsg = it.Reason
		if allowPartial {
			res.Status = domain.StatusSkipped
		} else {
			res.Status = domain.StatusFailed
		}
	}
	return res
}

// notRunResult 用于备份失败：create 条目一律 not_run，其余保持计划结论。
func notRunResult(it domain.PlanItem, allowPartial bool) domain.ItemResult {
	if it.Action == domain.ActionCreate {
		res := baseResult(it)
		res.Status = domain.StatusNotRun
		return res
	}
	return dryResult(it, allowPartial, false)
}

func baseResult(it domain.PlanItem) domain.ItemResult {
	return domain.ItemResult{
		GameID:    string(it.GameID),
		Src:       it.SrcFile,
		Dst:       it.DstFile,
		Action:    string(it.Action),
		Overwrite: it.Overwrite,
		Reason:    it.Reason,
		ErrorCode: it.ErrorCode,
	}
}

func abortItem(plan domain.Plan) domain.ItemResult {
	if plan.Summary.Conflict > 0 {
		return syntheticFailed(domain.ErrCodeTargetConflict,
			fmt.Sprintf("%d 个目标已存在且内容不同，未做任何修改；确认后使用 --force 覆盖", plan.Summary.Conflict))
	}
	return syntheticFailed(domain.ErrCodePlanInvalid,
		fmt.Sprintf("%d 个条目无法规划，未做任何修改；使用 --allow-partial 跳过它们", plan.Summary.Error))
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func newReport(sdRoot, outRoot string, source domain.Scheme, opts Options) domain.RunReport {
	return domain.RunReport{
		RunID:     uuid.NewString(),
		SDRoot:    sdRoot,
		OutRoot:   outRoot,
		Source:    string(source),
		Target:    string(source.Opposite()),
		CopyMode:  filepath.Clean(outRoot) != filepath.Clean(sdRoot),
		DryRun:    opts.DryRun,
		Force:     opts.Force,
		StartedAt: time.Now().UTC(),
		Items:     []domain.ItemResult{},
	}
}

func planFields(p domain.Plan) map[string]any {
	return map[string]any{
		"create":    p.Summary.Create,
		"skip":      p.Summary.Skip,
		"conflict":  p.Summary.Conflict,
		"error":     p.Summary.Error,
		"overwrite": p.Summary.Overwrite,
	}
}
