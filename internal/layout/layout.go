// Package layout 描述两种记忆卡目录命名方案：识别目录名（PathParser）与生成目标路径（PathMapper）。
//
// 本包只做字符串处理，不访问文件系统。
package layout

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/John-Robertt/vmcr/internal/domain"
)

const (
	// MemoryCardsDir 是 SD 卡根目录下的记忆卡目录名。
	MemoryCardsDir = "MemoryCards"
	// GCDir 是 GCMCE 方案在 MemoryCards 下的子目录名。
	GCDir = "GC"

	mcgcpSuffix = "0100"
	gcmcePrefix = "DL-DOL-"
	slotSuffix  = "-1.raw"
)

// 形态匹配故意比合法值宽：形态对但内容不合法的目录要报 ParseError，而不是静默忽略。
var (
	mcgcpShapeRE = regexp.MustCompile(`^([A-Za-z0-9]+)0100$`)
	gcmceShapeRE = regexp.MustCompile(`^DL-DOL-([A-Za-z0-9]+)-([A-Za-z]+)$`)
	region3RE    = regexp.MustCompile(`^[A-Z]{3}$`)
)

// ErrNotCard 表示目录名与方案形态完全不符（不是卡槽目录，直接忽略）。
var ErrNotCard = errors.New("not a memory card directory")

// ParseError 表示目录名形态匹配，但嵌入的 GameID / Region3 不合法。
type ParseError struct {
	Scheme domain.Scheme
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("无法解析 %s 目录名 %q：%s", e.Scheme, e.Name, e.Reason)
}

// Parsed 是从目录名中提取出的字段。
type Parsed struct {
	Scheme  domain.Scheme
	GameID  domain.GameID
	Region3 string
}

// Parse 按 scheme 解析目录名。
func Parse(scheme domain.Scheme, name string) (Parsed, error) {
	switch scheme {
	case domain.SchemeMCGCP:
		return ParseMCGCP(name)
	case domain.SchemeGCMCE:
		return ParseGCMCE(name)
	default:
		return Parsed{}, fmt.Errorf("未知命名方案：%q", scheme)
	}
}

// ParseMCGCP 解析 "{GAMEID}0100"。
func ParseMCGCP(name string) (Parsed, error) {
	m := mcgcpShapeRE.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, ErrNotCard
	}
	g, ok := domain.ParseGameID(m[1])
	if !ok {
		return Parsed{}, &ParseError{Scheme: domain.SchemeMCGCP, Name: name, Reason: gameIDReason(m[1])}
	}
	return Parsed{Scheme: domain.SchemeMCGCP, GameID: g}, nil
}

// ParseGCMCE 解析 "DL-DOL-{GAMEID}-{REGION3}"。
func ParseGCMCE(name string) (Parsed, error) {
	m := gcmceShapeRE.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, ErrNotCard
	}
	g, ok := domain.ParseGameID(m[1])
	if !ok {
		return Parsed{}, &ParseError{Scheme: domain.SchemeGCMCE, Name: name, Reason: gameIDReason(m[1])}
	}
	if !region3RE.MatchString(m[2]) {
		return Parsed{}, &ParseError{Scheme: domain.SchemeGCMCE, Name: name, Reason: fmt.Sprintf("地区码 %q 必须是 3 位大写字母", m[2])}
	}
	return Parsed{Scheme: domain.SchemeGCMCE, GameID: g, Region3: m[2]}, nil
}

func gameIDReason(s string) string {
	if len(s) != 4 {
		return fmt.Sprintf("GameID %q 长度为 %d，必须是 4", s, len(s))
	}
	return fmt.Sprintf("GameID %q 只能包含大写字母与数字", s)
}

// SlotFileName 返回目录 dirName 的卡槽 1 文件名（"{dirName}-1.raw"）。
func SlotFileName(dirName string) string {
	return dirName + slotSuffix
}

// SourceRoot 返回 scheme 在 root 下存放卡槽目录的父目录。
func SourceRoot(root string, scheme domain.Scheme) string {
	if scheme == domain.SchemeGCMCE {
		return filepath.Join(root, MemoryCardsDir, GCDir)
	}
	return filepath.Join(root, MemoryCardsDir)
}
