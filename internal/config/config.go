package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/region"
)

const (
	// ErrCodeInvalid 表示配置文件 / region map 无法读取、解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeNotFound 表示显式指定的 region map 文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeSourceNotFound 表示 --sd-root 不存在或不是目录。
	ErrCodeSourceNotFound = domain.ErrCodeSourceNotFound
)

// FileName 是 sd-root 下可选的配置文件名。
const FileName = "vmcr.json"

// CLIArgs 是 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --force=false 必须能覆盖 config.force=true。
type CLIArgs struct {
	SDRoot string
	// Target 是转换目标方案："gcmce"（--rename-to-gcmce）或 "mcgcp"（--rename-to-mcgcp）。
	Target string

	OutputSDRoot string
	BackupDir    string
	RegionMap    string

	Force    bool
	ForceSet bool

	AllowPartial    bool
	AllowPartialSet bool

	DryRun  bool
	Verbose bool
	Report  string
}

// FileConfig 对应 <sd-root>/vmcr.json 的解析结构。
type FileConfig struct {
	OutputSDRoot    string            `json:"output_sd_root"`
	BackupDir       string            `json:"backup_dir"`
	RegionMap       string            `json:"region_map"`
	Force           *bool             `json:"force"`
	AllowPartial    *bool             `json:"allow_partial"`
	LetterToRegion3 map[string]string `json:"letter_to_region3"`
	Region3ToLetter map[string]string `json:"region3_to_letter"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	SDRoot  string
	OutRoot string
	// CopyMode：OutRoot 与 SDRoot 不同 => 复制（源不动）；相同 => 原地移动。
	CopyMode bool

	Source domain.Scheme
	Target domain.Scheme

	BackupDir     string
	RegionMapPath string
	Regions       region.Map

	Force        bool
	AllowPartial bool
	DryRun       bool
	Verbose      bool
	ReportPath   string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到文件 %q", e.Code, e.Path)
	case ErrCodeSourceNotFound:
		return fmt.Sprintf("%s：SD 根目录 %q 不存在或不是目录", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：%q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：%q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 读取可选的 <sd-root>/vmcr.json，并与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定）：
// - 路径类（output/backup/region_map）：CLI > 配置文件 > 默认（空）
// - force / allow_partial：CLI 显式值 > 配置文件 > 默认 false
// - 地区覆盖：默认表 < 配置文件内联表 < region map 文件
// - dry_run / verbose / report：仅 CLI
//
// CLI 路径相对 cwd 解析；配置文件中的路径相对 sd-root 解析。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	if strings.TrimSpace(cli.SDRoot) == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: "--sd-root", Err: errors.New("必须指定 --sd-root")}
	}
	sdRoot := absCleanFrom(cwdAbs, cli.SDRoot)
	if fi, err := os.Stat(sdRoot); err != nil || !fi.IsDir() {
		return EffectiveConfig{}, &Error{Code: ErrCodeSourceNotFound, Path: sdRoot, Err: err}
	}

	cfgPath := filepath.Join(sdRoot, FileName)
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	return merge(cwdAbs, sdRoot, cli, fc, cfgPath)
}

// LoadRegions 只解析地区码映射（诊断用）。SDRoot 可为空：此时不读配置文件，只叠加 RegionMap。
// 返回值第二项是实际使用的 region map 文件路径（可能为空）。
func LoadRegions(cwd string, cli CLIArgs) (region.Map, string, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return region.Map{}, "", &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var fc FileConfig
	cfgPath := ""
	sdRoot := ""
	if strings.TrimSpace(cli.SDRoot) != "" {
		sdRoot = absCleanFrom(cwdAbs, cli.SDRoot)
		cfgPath = filepath.Join(sdRoot, FileName)
		fc, _, err = readFileConfig(cfgPath)
		if err != nil {
			return region.Map{}, "", &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	}

	inline := region.Overrides{LetterToRegion3: fc.LetterToRegion3, Region3ToLetter: fc.Region3ToLetter}
	if err := ValidateOverrides(inline); err != nil {
		return region.Map{}, "", &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	regionPath := pick(cwdAbs, cli.RegionMap, sdRoot, fc.RegionMap)
	if regionPath == "" {
		return region.New(inline), "", nil
	}
	fromFile, err := LoadRegionOverrides(regionPath)
	if err != nil {
		return region.Map{}, "", err
	}
	return region.New(MergeOverrides(inline, fromFile)), regionPath, nil
}

func merge(cwdAbs, sdRoot string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	target, err := domain.ParseScheme(strings.TrimSpace(cli.Target))
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: "--rename-to-*", Err: err}
	}

	outRoot := sdRoot
	if p := pick(cwdAbs, cli.OutputSDRoot, sdRoot, fc.OutputSDRoot); p != "" {
		outRoot = p
	}
	backupDir := pick(cwdAbs, cli.BackupDir, sdRoot, fc.BackupDir)
	regionPath := pick(cwdAbs, cli.RegionMap, sdRoot, fc.RegionMap)

	force := false
	if cli.ForceSet {
		force = cli.Force
	} else if fc.Force != nil {
		force = *fc.Force
	}
	allowPartial := false
	if cli.AllowPartialSet {
		allowPartial = cli.AllowPartial
	} else if fc.AllowPartial != nil {
		allowPartial = *fc.AllowPartial
	}

	inline := region.Overrides{LetterToRegion3: fc.LetterToRegion3, Region3ToLetter: fc.Region3ToLetter}
	if err := ValidateOverrides(inline); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	ov := inline
	if regionPath != "" {
		fromFile, err := LoadRegionOverrides(regionPath)
		if err != nil {
			return EffectiveConfig{}, err
		}
		ov = MergeOverrides(inline, fromFile)
	}

	reportPath := ""
	if strings.TrimSpace(cli.Report) != "" {
		reportPath = absCleanFrom(cwdAbs, cli.Report)
	}

	return EffectiveConfig{
		SDRoot:        sdRoot,
		OutRoot:       outRoot,
		CopyMode:      outRoot != sdRoot,
		Source:        target.Opposite(),
		Target:        target,
		BackupDir:     backupDir,
		RegionMapPath: regionPath,
		Regions:       region.New(ov),
		Force:         force,
		AllowPartial:  allowPartial,
		DryRun:        cli.DryRun,
		Verbose:       cli.Verbose,
		ReportPath:    reportPath,
	}, nil
}

// pick 返回 CLI 值（相对 cwd）或配置文件值（相对 sd-root）；都为空返回空串。
func pick(cwdAbs, cliVal, sdRoot, fileVal string) string {
	if strings.TrimSpace(cliVal) != "" {
		return absCleanFrom(cwdAbs, cliVal)
	}
	if strings.TrimSpace(fileVal) != "" {
		return absCleanFrom(sdRoot, fileVal)
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
