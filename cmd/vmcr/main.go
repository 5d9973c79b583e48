package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/John-Robertt/vmcr/internal/app/planner"
	"github.com/John-Robertt/vmcr/internal/app/run"
	"github.com/John-Robertt/vmcr/internal/config"
	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/infra/fsx"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 让子命令只通过退出码表达结果（信息已经打印过或已写入 RunReport）。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// execute 运行 CLI 并返回退出码：0 成功；1 运行失败/中止；2 参数或配置错误。
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)

	err := root.Execute()
	if err == nil {
		return 0
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintln(stderr, ee.err)
		}
		return ee.code
	}
	// 其余都来自 cobra 的参数解析/flag 组校验。
	fmt.Fprintf(stderr, "参数错误：%v\n使用 \"vmcr --help\" 查看用法。\n", err)
	return 2
}

type rootFlags struct {
	sdRoot        string
	toGCMCE       bool
	toMCGCP       bool
	outputSDRoot  string
	backupDir     string
	regionMap     string
	regionMapJSON string
	force         bool
	dryRun        bool
	allowPartial  bool
	verbose       bool
	report        string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:   "vmcr --sd-root DIR (--rename-to-gcmce | --rename-to-mcgcp)",
		Short: "在 MCGCP 与 GCMCE 两种 GameCube 虚拟记忆卡目录布局之间转换",
		Long: `vmcr 把 SD 卡上的 GameCube 虚拟记忆卡（VMC）在两种命名布局之间转换：

  MCGCP: MemoryCards/{GAMEID}0100/{GAMEID}0100-1.raw
  GCMCE: MemoryCards/GC/DL-DOL-{GAMEID}-{REGION}/DL-DOL-{GAMEID}-{REGION}-1.raw

默认在 sd-root 内原地移动；指定 --output-sd-root 时改为复制（来源不动）。
目标已存在且内容不同时整次中止，除非使用 --force。`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, f, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true

	fl := cmd.Flags()
	fl.StringVar(&f.sdRoot, "sd-root", "", "SD 卡根目录（包含 MemoryCards/）")
	fl.BoolVar(&f.toGCMCE, "rename-to-gcmce", false, "MCGCP -> GCMCE")
	fl.BoolVar(&f.toMCGCP, "rename-to-mcgcp", false, "GCMCE -> MCGCP")
	fl.StringVar(&f.outputSDRoot, "output-sd-root", "", "输出到另一个 SD 根目录（复制模式，来源不动）")
	fl.StringVar(&f.backupDir, "backup-dir", "", "执行前把 MemoryCards 备份到该目录下的 MemoryCards.backup")
	fl.StringVar(&f.regionMap, "region-map", "", "地区码覆盖文件（.json 或 .toml）")
	fl.StringVar(&f.regionMapJSON, "region-map-json", "", "同 --region-map")
	fl.BoolVar(&f.force, "force", false, "覆盖内容不同的已有目标，并允许替换已有备份")
	fl.BoolVar(&f.dryRun, "dry-run", false, "只打印计划，不做任何写入")
	fl.BoolVar(&f.allowPartial, "allow-partial", false, "跳过无法规划的条目（解析失败/缺少地区码映射），继续执行其余条目")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "在 stderr 输出调试日志")
	fl.StringVar(&f.report, "report", "", "把 RunReport JSON 写入该文件")

	_ = cmd.MarkFlagRequired("sd-root")
	cmd.MarkFlagsMutuallyExclusive("rename-to-gcmce", "rename-to-mcgcp")
	cmd.MarkFlagsOneRequired("rename-to-gcmce", "rename-to-mcgcp")
	cmd.MarkFlagsMutuallyExclusive("region-map", "region-map-json")

	cmd.AddCommand(newRegionsCmd(stdout))
	return cmd
}

func runRoot(cmd *cobra.Command, f rootFlags, stdout, stderr io.Writer) error {
	cwd, err := os.Getwd()
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
	}

	target := domain.SchemeMCGCP
	if f.toGCMCE {
		target = domain.SchemeGCMCE
	}
	regionMap := f.regionMap
	if regionMap == "" {
		regionMap = f.regionMapJSON
	}

	eff, err := config.LoadEffective(cwd, config.CLIArgs{
		SDRoot:          f.sdRoot,
		Target:          string(target),
		OutputSDRoot:    f.outputSDRoot,
		BackupDir:       f.backupDir,
		RegionMap:       regionMap,
		Force:           f.force,
		ForceSet:        cmd.Flags().Changed("force"),
		AllowPartial:    f.allowPartial,
		AllowPartialSet: cmd.Flags().Changed("allow-partial"),
		DryRun:          f.dryRun,
		Verbose:         f.verbose,
		Report:          f.report,
	})
	if err != nil {
		emitReport(stdout, stderr, reportForConfigError(f, target, err))
		code := 2
		if config.Code(err) == config.ErrCodeSourceNotFound {
			code = 1
		}
		return &exitError{code: code}
	}

	if eff.DryRun && eff.ReportPath != "" && (isUnder(eff.ReportPath, eff.SDRoot) || isUnder(eff.ReportPath, eff.OutRoot)) {
		return &exitError{code: 2, err: fmt.Errorf("参数错误：dry-run 不写入 SD 卡，--report 不能位于 %q 或 %q 内", eff.SDRoot, eff.OutRoot)}
	}

	var logger *slog.Logger
	if eff.Verbose {
		logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	progressW, interactive := pickProgressWriter(stdout, stderr)
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.Run(planner.Input{
		SDRoot:  eff.SDRoot,
		OutRoot: eff.OutRoot,
		Source:  eff.Source,
		Regions: eff.Regions,
	}, run.Options{
		DryRun:       eff.DryRun,
		Force:        eff.Force,
		AllowPartial: eff.AllowPartial,
		BackupDir:    eff.BackupDir,
		Logger:       logger,
	}, obs)

	if eff.ReportPath != "" {
		if err := writeReportFile(eff.ReportPath, rr); err != nil {
			emitReport(stdout, stderr, rr)
			return &exitError{code: 1, err: fmt.Errorf("写入 report 失败：%w", err)}
		}
	}

	emitReport(stdout, stderr, rr)
	if interactive && eff.ReportPath != "" {
		fmt.Fprintf(progressW, "report: %s\n", eff.ReportPath)
	}
	if !rr.OK() {
		return &exitError{code: 1}
	}
	return nil
}

func emitReport(stdout, stderr io.Writer, rr domain.RunReport) {
	if isTTY(stdout) {
		fmt.Fprintln(stdout, summaryLine(rr))
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := it.Src
			if key == "" {
				key = "<run>"
			}
			fmt.Fprintf(stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(stdout)
	_ = enc.Encode(rr)
	fmt.Fprintln(stderr, summaryLine(rr))
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	line := fmt.Sprintf("完成：planned=%d copied=%d moved=%d skipped=%d failed=%d not_run=%d",
		s.Planned, s.Copied, s.Moved, s.Skipped, s.Failed, s.NotRun,
	)
	switch {
	case rr.Aborted:
		line += "（已中止）"
	case rr.DryRun:
		line += "（dry-run，未写入）"
	}
	return line
}

func reportForConfigError(f rootFlags, target domain.Scheme, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		SDRoot:     f.sdRoot,
		OutRoot:    f.outputSDRoot,
		Source:     string(target.Opposite()),
		Target:     string(target),
		DryRun:     f.dryRun,
		Force:      f.force,
		Aborted:    true,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(path string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Dir(path), filepath.Base(path), b)
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func pickProgressWriter(stdout, stderr io.Writer) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(stderr) {
		return stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTTY(stdout) {
		return stdout, true
	}
	return nil, false
}
