package domain

import (
	"regexp"
	"strings"
)

// GameID 是卡带目录名中嵌入的 4 位游戏标识（例如 GAFE）。
//
// 约束：固定 4 位，仅大写字母与数字；第 4 位是单字母地区码。
type GameID string

var gameIDRE = regexp.MustCompile(`^[A-Z0-9]{4}$`)

// ParseGameID 校验 GameID。输入必须已经是大写形态（不做隐式大小写转换）。
func ParseGameID(s string) (GameID, bool) {
	s = strings.TrimSpace(s)
	if !gameIDRE.MatchString(s) {
		return "", false
	}
	return GameID(s), true
}

// RegionLetter 返回 GameID 的第 4 位（地区字母）。
func (g GameID) RegionLetter() string {
	if len(g) != 4 {
		return ""
	}
	return string(g[3])
}
