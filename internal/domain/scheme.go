package domain

import "fmt"

// Scheme 表示一种记忆卡目录命名方案。
type Scheme string

const (
	// SchemeMCGCP：MemoryCards/{GAMEID}0100/{GAMEID}0100-1.raw
	SchemeMCGCP Scheme = "mcgcp"
	// SchemeGCMCE：MemoryCards/GC/DL-DOL-{GAMEID}-{REGION3}/DL-DOL-{GAMEID}-{REGION3}-1.raw
	SchemeGCMCE Scheme = "gcmce"
)

// Opposite 返回转换目标方案。
func (s Scheme) Opposite() Scheme {
	if s == SchemeMCGCP {
		return SchemeGCMCE
	}
	return SchemeMCGCP
}

func (s Scheme) Valid() bool {
	return s == SchemeMCGCP || s == SchemeGCMCE
}

// ParseScheme 解析 "mcgcp" / "gcmce"。
func ParseScheme(s string) (Scheme, error) {
	switch Scheme(s) {
	case SchemeMCGCP, SchemeGCMCE:
		return Scheme(s), nil
	default:
		return "", fmt.Errorf("未知命名方案：%q（只能是 mcgcp 或 gcmce）", s)
	}
}
