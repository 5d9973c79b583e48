// Package region 提供单字母地区码与三字母地区码（Region3）之间的双向映射。
package region

import (
	"fmt"
	"sort"
	"strings"
)

// 内置默认表。只读：New 会复制一份再叠加覆盖项。
var (
	defaultLetterToRegion3 = map[string]string{
		"E": "USA",
		"J": "JPN",
		"P": "EUR", // PAL
		"K": "KOR",
		"D": "GER",
		"F": "FRA",
		"I": "ITA",
		"S": "ESP",
		"X": "OTH",
		"Y": "OTH",
		"Z": "OTH",
	}
	defaultRegion3ToLetter = map[string]string{
		"USA": "E",
		"JPN": "J",
		"EUR": "P",
		"KOR": "K",
		"GER": "D",
		"FRA": "F",
		"ITA": "I",
		"ESP": "S",
		"OTH": "X",
	}
)

// Overrides 是用户提供的覆盖表（键值大小写不敏感，合并时统一转大写）。
type Overrides struct {
	LetterToRegion3 map[string]string
	Region3ToLetter map[string]string
}

// Map 是合并后的最终映射。构造后不可变，可按值传递。
type Map struct {
	l2r map[string]string
	r2l map[string]string
}

// MissingMappingError 表示某个地区码在默认表与覆盖表中都不存在。
type MissingMappingError struct {
	// Direction: "letter_to_region3" 或 "region3_to_letter"
	Direction string
	Key       string
}

func (e *MissingMappingError) Error() string {
	return fmt.Sprintf("地区码 %q 没有映射（%s）；请在 region map 覆盖文件中补充", e.Key, e.Direction)
}

// Default 返回只包含内置默认表的 Map。
func Default() Map {
	return New(Overrides{})
}

// New 以默认表为底，叠加 ov（同键时覆盖项优先）。
func New(ov Overrides) Map {
	m := Map{
		l2r: make(map[string]string, len(defaultLetterToRegion3)+len(ov.LetterToRegion3)),
		r2l: make(map[string]string, len(defaultRegion3ToLetter)+len(ov.Region3ToLetter)),
	}
	for k, v := range defaultLetterToRegion3 {
		m.l2r[k] = v
	}
	for k, v := range defaultRegion3ToLetter {
		m.r2l[k] = v
	}
	for k, v := range ov.LetterToRegion3 {
		m.l2r[norm(k)] = norm(v)
	}
	for k, v := range ov.Region3ToLetter {
		m.r2l[norm(k)] = norm(v)
	}
	return m
}

// LetterToRegion3 把单字母地区码映射为 Region3（例如 E -> USA）。
func (m Map) LetterToRegion3(letter string) (string, error) {
	k := norm(letter)
	if v, ok := m.l2r[k]; ok {
		return v, nil
	}
	return "", &MissingMappingError{Direction: "letter_to_region3", Key: k}
}

// Region3ToLetter 把 Region3 映射为单字母地区码（例如 USA -> E）。
func (m Map) Region3ToLetter(region3 string) (string, error) {
	k := norm(region3)
	if v, ok := m.r2l[k]; ok {
		return v, nil
	}
	return "", &MissingMappingError{Direction: "region3_to_letter", Key: k}
}

// Entry 是映射表中的一行（用于展示）。
type Entry struct {
	From string
	To   string
}

// LetterEntries 按键排序返回 letter -> region3 全表。
func (m Map) LetterEntries() []Entry { return sortedEntries(m.l2r) }

// Region3Entries 按键排序返回 region3 -> letter 全表。
func (m Map) Region3Entries() []Entry { return sortedEntries(m.r2l) }

func sortedEntries(src map[string]string) []Entry {
	out := make([]Entry, 0, len(src))
	for k, v := range src {
		out = append(out, Entry{From: k, To: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}

func norm(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
