package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/John-Robertt/vmcr/internal/region"
)

// regionFile 是 region map 覆盖文件的结构（JSON 与 TOML 共用）。
//
//	{"letter_to_region3": {"U": "AUS"}, "region3_to_letter": {"AUS": "U"}}
type regionFile struct {
	LetterToRegion3 map[string]string `json:"letter_to_region3" toml:"letter_to_region3"`
	Region3ToLetter map[string]string `json:"region3_to_letter" toml:"region3_to_letter"`
}

var (
	letterRE  = regexp.MustCompile(`^[A-Z0-9]$`)
	region3RE = regexp.MustCompile(`^[A-Z]{3}$`)
)

// LoadRegionOverrides 读取 region map 覆盖文件：.toml 按 TOML 解析，其余按 JSON 解析。
// 两张表都可省略；覆盖项只叠加在默认表之上，不替换默认表。
func LoadRegionOverrides(path string) (region.Overrides, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return region.Overrides{}, &Error{Code: ErrCodeNotFound, Path: path, Err: err}
		}
		return region.Overrides{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	var rf regionFile
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err = toml.Decode(string(b), &rf)
	} else {
		err = json.Unmarshal(b, &rf)
	}
	if err != nil {
		return region.Overrides{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	ov := region.Overrides{LetterToRegion3: rf.LetterToRegion3, Region3ToLetter: rf.Region3ToLetter}
	if err := ValidateOverrides(ov); err != nil {
		return region.Overrides{}, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return ov, nil
}

// ValidateOverrides 校验覆盖表的键值形态（大小写不敏感）。
// 错误信息按键排序，保证同一输入总是报同一个错误。
func ValidateOverrides(ov region.Overrides) error {
	for _, k := range sortedKeys(ov.LetterToRegion3) {
		v := ov.LetterToRegion3[k]
		if !letterRE.MatchString(norm(k)) {
			return fmt.Errorf("letter_to_region3 的键 %q 必须是单个字母或数字", k)
		}
		if !region3RE.MatchString(norm(v)) {
			return fmt.Errorf("letter_to_region3[%q] 的值 %q 必须是 3 位字母", k, v)
		}
	}
	for _, k := range sortedKeys(ov.Region3ToLetter) {
		v := ov.Region3ToLetter[k]
		if !region3RE.MatchString(norm(k)) {
			return fmt.Errorf("region3_to_letter 的键 %q 必须是 3 位字母", k)
		}
		if !letterRE.MatchString(norm(v)) {
			return fmt.Errorf("region3_to_letter[%q] 的值 %q 必须是单个字母或数字", k, v)
		}
	}
	return nil
}

// MergeOverrides 把 top 叠加到 base 上（同键 top 优先），返回新的 Overrides。
func MergeOverrides(base, top region.Overrides) region.Overrides {
	return region.Overrides{
		LetterToRegion3: mergeMap(base.LetterToRegion3, top.LetterToRegion3),
		Region3ToLetter: mergeMap(base.Region3ToLetter, top.Region3ToLetter),
	}
}

func mergeMap(base, top map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		out[norm(k)] = v
	}
	for k, v := range top {
		out[norm(k)] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func norm(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }
