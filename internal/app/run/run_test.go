package run

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vmcr/internal/app/planner"
	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/infra/backup"
	"github.com/John-Robertt/vmcr/internal/region"
)

func TestRun_MCGCPToGCMCE_Move(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.StatusMoved, rr.Items[0].Status)
	assert.Equal(t, "GAFE", rr.Items[0].GameID)
	assert.NotEmpty(t, rr.RunID)
	assert.False(t, rr.CopyMode)

	assertFile(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GAFE-USA", "DL-DOL-GAFE-USA-1.raw"), "gafe")
	assertMissing(t, filepath.Join(sd, "MemoryCards", "GAFE0100"))
}

func TestRun_GCMCEToMCGCP_Move(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GAFE-USA", "DL-DOL-GAFE-USA-1.raw"), "gafe")

	rr := Run(input(sd, sd, domain.SchemeGCMCE), Options{}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	assert.Equal(t, domain.SchemeMCGCP, domain.Scheme(rr.Target))

	assertFile(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	assertMissing(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GAFE-USA"))
}

func TestRun_DryRunLeavesTreeUnchanged(t *testing.T) {
	sd := t.TempDir()
	bk := filepath.Join(t.TempDir(), "bk")
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "new")
	write(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GZLE-USA", "DL-DOL-GZLE-USA-1.raw"), "old")
	before := listTree(t, sd)

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{DryRun: true, BackupDir: bk}, nil)
	assert.True(t, rr.DryRun)
	assert.False(t, rr.Aborted)
	assert.Equal(t, before, listTree(t, sd))
	assertMissing(t, bk)

	require.Len(t, rr.Items, 2)
	assert.Equal(t, domain.StatusPlanned, rr.Items[0].Status)
	assert.Equal(t, domain.StatusFailed, rr.Items[1].Status)
	assert.Equal(t, domain.ErrCodeTargetConflict, rr.Items[1].ErrorCode)
	assert.False(t, rr.OK(), "含冲突的 dry-run 不应视为成功")
}

func TestRun_ConflictWithoutForceAppliesNothing(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "new")
	write(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GZLE-USA", "DL-DOL-GZLE-USA-1.raw"), "old")
	before := listTree(t, sd)

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
	assert.True(t, rr.Aborted)
	assert.False(t, rr.OK())
	assert.Equal(t, before, listTree(t, sd))

	require.Len(t, rr.Items, 3)
	assert.Equal(t, domain.StatusNotRun, rr.Items[0].Status)
	assert.Equal(t, domain.StatusFailed, rr.Items[1].Status)
	last := rr.Items[2]
	assert.Equal(t, domain.ErrCodeTargetConflict, last.ErrorCode)
	assert.Empty(t, last.Src)
}

func TestRun_ForceOverwritesAndDropsNothing(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "new")
	write(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GZLE-USA", "DL-DOL-GZLE-USA-1.raw"), "old")

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{Force: true}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	assert.Equal(t, 2, rr.Summary.Moved)
	assert.True(t, rr.Items[1].Overwrite)

	assertFile(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GAFE-USA", "DL-DOL-GAFE-USA-1.raw"), "gafe")
	assertFile(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GZLE-USA", "DL-DOL-GZLE-USA-1.raw"), "new")
}

func TestRun_MoveKeepsNonEmptySourceDir(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "slot1")
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-2.raw"), "slot2")

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	assert.Contains(t, rr.Items[0].Reason, "源目录非空")

	assertFile(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-2.raw"), "slot2")
	assertMissing(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"))
}

func TestRun_SecondRunIsNoop(t *testing.T) {
	t.Run("move", func(t *testing.T) {
		sd := t.TempDir()
		write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")

		require.True(t, Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil).OK())
		after := listTree(t, sd)

		rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
		require.True(t, rr.OK())
		assert.Empty(t, rr.Items)
		assert.Equal(t, after, listTree(t, sd))
	})

	t.Run("copy", func(t *testing.T) {
		sd := t.TempDir()
		out := t.TempDir()
		bk := t.TempDir()
		write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")

		require.True(t, Run(input(sd, out, domain.SchemeMCGCP), Options{BackupDir: bk}, nil).OK())
		after := listTree(t, out)

		// 没有需要写入的条目时不做备份，所以已存在的备份不会让第二次运行失败。
		rr := Run(input(sd, out, domain.SchemeMCGCP), Options{BackupDir: bk}, nil)
		require.True(t, rr.OK(), "report: %+v", rr)
		require.Len(t, rr.Items, 1)
		assert.Equal(t, domain.StatusSkipped, rr.Items[0].Status)
		assert.Equal(t, after, listTree(t, out))
	})
}

func TestRun_CopyModeLeavesSourceUntouched(t *testing.T) {
	sd := t.TempDir()
	out := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GC", "DL-DOL-GAFE-USA", "DL-DOL-GAFE-USA-1.raw"), "gafe")
	before := listTree(t, sd)

	rr := Run(input(sd, out, domain.SchemeGCMCE), Options{}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	assert.True(t, rr.CopyMode)
	assert.Equal(t, domain.StatusCopied, rr.Items[0].Status)

	assert.Equal(t, before, listTree(t, sd))
	assertFile(t, filepath.Join(out, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
}

func TestRun_BackupBeforeApply(t *testing.T) {
	sd := t.TempDir()
	bk := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{BackupDir: bk}, nil)
	require.True(t, rr.OK(), "report: %+v", rr)
	assert.Equal(t, filepath.Join(bk, backup.DirName), rr.BackupDir)

	// 备份是执行前的状态。
	assertFile(t, filepath.Join(bk, backup.DirName, "GAFE0100", "GAFE0100-1.raw"), "gafe")
	_, err := os.Stat(filepath.Join(bk, backup.ManifestName))
	require.NoError(t, err)
}

func TestRun_BackupFailureAbortsBeforeAnyChange(t *testing.T) {
	sd := t.TempDir()
	bk := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(bk, backup.DirName, "old.raw"), "old backup")
	before := listTree(t, sd)

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{BackupDir: bk}, nil)
	assert.True(t, rr.Aborted)
	assert.False(t, rr.OK())
	assert.Equal(t, before, listTree(t, sd))
	assertFile(t, filepath.Join(bk, backup.DirName, "old.raw"), "old backup")

	require.Len(t, rr.Items, 2)
	assert.Equal(t, domain.StatusNotRun, rr.Items[0].Status)
	assert.Equal(t, domain.ErrCodeBackupFailed, rr.Items[1].ErrorCode)
}

func TestRun_InvalidEntryBlocksUnlessAllowPartial(t *testing.T) {
	setup := func(t *testing.T) string {
		sd := t.TempDir()
		write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
		write(t, filepath.Join(sd, "MemoryCards", "GAFQ0100", "GAFQ0100-1.raw"), "no region")
		return sd
	}

	t.Run("blocked", func(t *testing.T) {
		sd := setup(t)
		before := listTree(t, sd)

		rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
		assert.True(t, rr.Aborted)
		assert.Equal(t, before, listTree(t, sd))
		assert.Equal(t, domain.ErrCodePlanInvalid, rr.Items[len(rr.Items)-1].ErrorCode)
	})

	t.Run("allow partial", func(t *testing.T) {
		sd := setup(t)

		rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{AllowPartial: true}, nil)
		require.True(t, rr.OK(), "report: %+v", rr)
		require.Len(t, rr.Items, 2)
		assert.Equal(t, domain.StatusMoved, rr.Items[0].Status)
		assert.Equal(t, domain.StatusSkipped, rr.Items[1].Status)
		assert.Equal(t, domain.ErrCodeMissingMapping, rr.Items[1].ErrorCode)
		assertFile(t, filepath.Join(sd, "MemoryCards", "GAFQ0100", "GAFQ0100-1.raw"), "no region")
	})
}

func TestRun_SourceNotFound(t *testing.T) {
	sd := t.TempDir()

	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{}, nil)
	assert.True(t, rr.Aborted)
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeSourceNotFound, rr.Items[0].ErrorCode)
}

func TestExecute_FirstFailureStopsRemaining(t *testing.T) {
	sd := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "gzle")

	plan, err := planner.Build(input(sd, sd, domain.SchemeMCGCP))
	require.NoError(t, err)
	require.Len(t, plan.Items, 2)

	// 计划之后源文件消失：第一条失败，第二条不再执行。
	require.NoError(t, os.Remove(plan.Items[0].SrcFile))

	rr := Execute(plan, Options{}, nil)
	require.Len(t, rr.Items, 2)
	assert.Equal(t, domain.StatusFailed, rr.Items[0].Status)
	assert.Equal(t, domain.ErrCodeMoveFailed, rr.Items[0].ErrorCode)
	assert.Equal(t, domain.StatusNotRun, rr.Items[1].Status)
	assert.Equal(t, 1, rr.Summary.NotRun)
	assertFile(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "gzle")
}

type recordObserver struct {
	starts int
	phases []string
	items  []string
}

func (o *recordObserver) OnStart(domain.RunReport) { o.starts++ }

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, _ time.Duration) {
	o.items = append(o.items, res.GameID)
}

func TestRun_EmitsPhaseAndItemEvents(t *testing.T) {
	sd := t.TempDir()
	bk := t.TempDir()
	write(t, filepath.Join(sd, "MemoryCards", "GAFE0100", "GAFE0100-1.raw"), "gafe")
	write(t, filepath.Join(sd, "MemoryCards", "GZLE0100", "GZLE0100-1.raw"), "gzle")

	obs := &recordObserver{}
	rr := Run(input(sd, sd, domain.SchemeMCGCP), Options{BackupDir: bk}, obs)
	require.True(t, rr.OK(), "report: %+v", rr)

	assert.Equal(t, 1, obs.starts)
	assert.Equal(t, []string{"plan", "validate", "backup", "apply", "prune"}, obs.phases)
	assert.Equal(t, []string{"GAFE", "GZLE"}, obs.items)
}

func input(sd, out string, src domain.Scheme) planner.Input {
	return planner.Input{
		SDRoot:  sd,
		OutRoot: out,
		Source:  src,
		Regions: region.Default(),
	}
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func assertFile(t *testing.T, path, want string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(b))
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	_, err := os.Lstat(path)
	assert.True(t, os.IsNotExist(err), "期望 %q 不存在，实际 err=%v", path, err)
}

// listTree 返回 root 下所有条目的相对路径（目录带 '/' 后缀）与文件内容。
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if d.IsDir() {
			out = append(out, filepath.ToSlash(rel)+"/")
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel)+"="+string(b))
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}
