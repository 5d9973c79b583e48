package layout

import (
	"path/filepath"

	"github.com/John-Robertt/vmcr/internal/domain"
)

// LetterMapper 是 MapToGCMCE 需要的最小地区码能力（region.Map 实现了它）。
type LetterMapper interface {
	LetterToRegion3(letter string) (string, error)
}

// Dest 是映射出的目标目录与卡槽文件（clean + absolute，前提是 outRoot 是绝对路径）。
type Dest struct {
	DirName string
	Dir     string
	File    string
}

// MCGCPDirName 返回 "{GAMEID}0100"。
func MCGCPDirName(g domain.GameID) string {
	return string(g) + mcgcpSuffix
}

// GCMCEDirName 返回 "DL-DOL-{GAMEID}-{REGION3}"。
func GCMCEDirName(g domain.GameID, region3 string) string {
	return gcmcePrefix + string(g) + "-" + region3
}

// MapToGCMCE 计算 GCMCE 目标路径；Region3 由 GameID 第 4 位经 regions 映射得到。
//
//	{outRoot}/MemoryCards/GC/DL-DOL-{G}-{R3}/DL-DOL-{G}-{R3}-1.raw
func MapToGCMCE(outRoot string, g domain.GameID, regions LetterMapper) (Dest, error) {
	r3, err := regions.LetterToRegion3(g.RegionLetter())
	if err != nil {
		return Dest{}, err
	}
	name := GCMCEDirName(g, r3)
	return dest(SourceRoot(outRoot, domain.SchemeGCMCE), name), nil
}

// MapToMCGCP 计算 MCGCP 目标路径。GameID 是唯一依据：来源路径中的 region3 被丢弃。
//
//	{outRoot}/MemoryCards/{G}0100/{G}0100-1.raw
func MapToMCGCP(outRoot string, g domain.GameID, _ string) Dest {
	return dest(SourceRoot(outRoot, domain.SchemeMCGCP), MCGCPDirName(g))
}

func dest(parent, name string) Dest {
	dir := filepath.Join(parent, name)
	return Dest{
		DirName: name,
		Dir:     dir,
		File:    filepath.Join(dir, SlotFileName(name)),
	}
}
