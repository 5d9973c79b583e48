package planner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/infra/fsx"
	"github.com/John-Robertt/vmcr/internal/layout"
	"github.com/John-Robertt/vmcr/internal/region"
	"github.com/John-Robertt/vmcr/internal/scan"
)

// Regions 是规划需要的地区码能力（region.Map 实现了它）。
type Regions interface {
	LetterToRegion3(letter string) (string, error)
	Region3ToLetter(region3 string) (string, error)
}

// Input 是构建计划所需的全部输入。相同输入 + 相同文件系统状态 => 相同计划。
type Input struct {
	SDRoot  string // clean + absolute
	OutRoot string // clean + absolute；等于 SDRoot 表示原地移动
	Source  domain.Scheme
	Regions Regions
	Force   bool
}

// ErrSourceNotFound 表示 <sd-root>/MemoryCards 不存在（整次运行失败）。
var ErrSourceNotFound = errors.New("MemoryCards 目录不存在")

// TargetState 描述目标位置的现状（只做 stat + 必要时比较字节，不写入）。
type TargetState struct {
	DirKind  fsx.Kind
	FileKind fsx.Kind
	// Identical 仅在 FileKind==KindFile 时有意义：与源文件字节完全一致。
	Identical bool
}

// ReadTargetState 读取 dst 的现状。若目标不存在，返回空状态且不报错。
func ReadTargetState(srcFile string, dst layout.Dest) (TargetState, error) {
	var st TargetState
	var err error

	st.DirKind, err = fsx.KindOf(dst.Dir)
	if err != nil {
		return TargetState{}, err
	}
	if st.DirKind != fsx.KindDir {
		return st, nil
	}

	st.FileKind, err = fsx.KindOf(dst.File)
	if err != nil {
		return TargetState{}, err
	}
	if st.FileKind == fsx.KindFile {
		st.Identical, err = fsx.SameContent(srcFile, dst.File)
		if err != nil {
			return TargetState{}, err
		}
	}
	return st, nil
}

// Build 扫描来源并生成确定性的执行计划（不做任何写入/移动）。
//
// 单条失败（解析/地区码缺失/目标重复/读取目标状态失败）记为 error 条目，不影响其他条目。
// 只有来源根目录缺失或无法列目录时返回 error。
func Build(in Input) (domain.Plan, error) {
	plan := domain.Plan{
		SDRoot:   in.SDRoot,
		OutRoot:  in.OutRoot,
		Source:   in.Source,
		Target:   in.Source.Opposite(),
		CopyMode: filepath.Clean(in.OutRoot) != filepath.Clean(in.SDRoot),
		Force:    in.Force,
	}

	mc := filepath.Join(in.SDRoot, layout.MemoryCardsDir)
	if fi, err := os.Stat(mc); err != nil || !fi.IsDir() {
		return domain.Plan{}, fmt.Errorf("%w：%q", ErrSourceNotFound, mc)
	}

	res, err := scan.ScanCards(in.SDRoot, in.Source)
	if err != nil {
		return domain.Plan{}, fmt.Errorf("扫描 %q 失败：%w", layout.SourceRoot(in.SDRoot, in.Source), err)
	}

	items := make([]domain.PlanItem, 0, len(res.Cards)+len(res.Invalid))
	for _, c := range res.Cards {
		items = append(items, planCard(in, c))
	}
	for _, bad := range res.Invalid {
		items = append(items, domain.PlanItem{
			SrcDir:    bad.SrcDir,
			SrcFile:   bad.SrcFile,
			Action:    domain.ActionError,
			Reason:    bad.ErrorMsg,
			ErrorCode: bad.ErrorCode,
		})
	}

	SortItems(items)
	markDuplicateTargets(items)

	plan.Items = items
	plan.Summarize()
	return plan, nil
}

func planCard(in Input, c domain.CardEntry) domain.PlanItem {
	it := domain.PlanItem{
		SrcDir:  c.SrcDir,
		SrcFile: c.SrcFile,
		GameID:  c.GameID,
	}

	dst, note, err := mapCard(in, c)
	if err != nil {
		it.Action = domain.ActionError
		it.Reason = err.Error()
		it.ErrorCode = domain.ErrCodeParseFailed
		var me *region.MissingMappingError
		if errors.As(err, &me) {
			it.ErrorCode = domain.ErrCodeMissingMapping
		}
		return it
	}
	it.DstDir = dst.Dir
	it.DstFile = dst.File

	base := fmt.Sprintf("%s→%s %s -> %s", upper(in.Source), upper(in.Source.Opposite()), c.Name, dst.DirName)
	if note != "" {
		base += "（" + note + "）"
	}

	st, err := ReadTargetState(c.SrcFile, dst)
	if err != nil {
		it.Action = domain.ActionError
		it.ErrorCode = domain.ErrCodeIOFailed
		it.Reason = fmt.Sprintf("读取目标状态失败：%v", err)
		return it
	}

	conflict := classify(st)
	switch {
	case conflict == "" && st.FileKind == fsx.KindFile:
		it.Action = domain.ActionSkip
		it.Reason = base + "；目标已存在且内容一致"
	case conflict == "":
		it.Action = domain.ActionCreate
		it.Reason = base
	case in.Force:
		it.Action = domain.ActionCreate
		it.Overwrite = true
		it.Reason = base + "；--force 覆盖：" + conflict
	default:
		it.Action = domain.ActionConflict
		it.ErrorCode = domain.ErrCodeTargetConflict
		it.Reason = base + "；" + conflict
	}
	return it
}

// classify 返回冲突描述；空串表示无冲突（目标不存在，或存在且字节一致）。
func classify(st TargetState) string {
	switch st.DirKind {
	case fsx.KindMissing:
		return ""
	case fsx.KindDir:
	default:
		return fmt.Sprintf("目标目录位置已被 %s 占用", st.DirKind)
	}

	switch st.FileKind {
	case fsx.KindMissing:
		return ""
	case fsx.KindFile:
		if st.Identical {
			return ""
		}
		return "目标已存在且内容不同"
	default:
		return fmt.Sprintf("目标卡槽文件位置已被 %s 占用", st.FileKind)
	}
}

func mapCard(in Input, c domain.CardEntry) (layout.Dest, string, error) {
	switch in.Source {
	case domain.SchemeMCGCP:
		d, err := layout.MapToGCMCE(in.OutRoot, c.GameID, in.Regions)
		return d, "", err
	case domain.SchemeGCMCE:
		d := layout.MapToMCGCP(in.OutRoot, c.GameID, c.Region3)
		return d, regionNote(in.Regions, c), nil
	default:
		return layout.Dest{}, "", fmt.Errorf("未知命名方案：%q", in.Source)
	}
}

// regionNote 在 GCMCE 地区码与 GameID 第 4 位不一致时给出提示。GameID 始终是唯一依据。
func regionNote(regions Regions, c domain.CardEntry) string {
	letter, err := regions.Region3ToLetter(c.Region3)
	if err != nil || letter == c.GameID.RegionLetter() {
		return ""
	}
	return fmt.Sprintf("目录地区码 %s 对应 %s，与 GameID 第 4 位 %s 不一致，以 GameID 为准", c.Region3, letter, c.GameID.RegionLetter())
}

// markDuplicateTargets 把目标路径已被更早条目占用的条目改为 error。
// 覆盖会静默丢掉一张卡，所以 --force 也不能放行。
func markDuplicateTargets(items []domain.PlanItem) {
	owners := make(map[string]string, len(items))
	for i := range items {
		it := &items[i]
		if it.Action == domain.ActionError || it.DstFile == "" {
			continue
		}
		if owner, ok := owners[it.DstFile]; ok {
			it.Action = domain.ActionError
			it.Overwrite = false
			it.ErrorCode = domain.ErrCodeDuplicateTarget
			it.Reason = fmt.Sprintf("目标 %q 已被 %q 占用（同一 GameID 的多个来源目录）", it.DstFile, owner)
			continue
		}
		owners[it.DstFile] = it.SrcDir
	}
}

func upper(s domain.Scheme) string {
	switch s {
	case domain.SchemeMCGCP:
		return "MCGCP"
	case domain.SchemeGCMCE:
		return "GCMCE"
	default:
		return string(s)
	}
}
