package scan

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/layout"
)

// Result 是一次扫描的结果：可转换的卡槽 + 形态匹配但无法解析的条目。
type Result struct {
	Cards   []domain.CardEntry
	Invalid []domain.InvalidEntry
}

// ScanCards 扫描 root 下 scheme 方案的卡槽目录（只看直接子目录）。
//
// 规则（硬约束）：
// - 只识别包含 "{目录名}-1.raw" 普通文件的目录；其他卡槽（-2.raw 等）、无关文件/目录一律忽略
// - 目录名形态匹配但 GameID 不合法：记入 Invalid（不影响其他条目）
// - 来源父目录不存在：返回空结果，不报错（例如没有 MemoryCards/GC）
//
// 注意：扫描阶段只做 stat，不读文件内容。
func ScanCards(root string, scheme domain.Scheme) (Result, error) {
	parent := layout.SourceRoot(filepath.Clean(root), scheme)

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, nil
		}
		return Result{}, err
	}

	res := Result{
		Cards:   make([]domain.CardEntry, 0, len(entries)),
		Invalid: make([]domain.InvalidEntry, 0),
	}
	for _, e := range entries {
		// DirEntry.IsDir 不跟随 symlink：指向目录的链接也被忽略。
		if !e.IsDir() {
			continue
		}
		name := e.Name()

		p, perr := layout.Parse(scheme, name)
		if errors.Is(perr, layout.ErrNotCard) {
			continue
		}

		dir := filepath.Join(parent, name)
		slot := filepath.Join(dir, layout.SlotFileName(name))
		ok, err := isRegular(slot)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			continue
		}

		if perr != nil {
			res.Invalid = append(res.Invalid, domain.InvalidEntry{
				SrcDir:    dir,
				SrcFile:   slot,
				Name:      name,
				ErrorCode: domain.ErrCodeParseFailed,
				ErrorMsg:  perr.Error(),
			})
			continue
		}

		res.Cards = append(res.Cards, domain.CardEntry{
			SrcDir:  dir,
			SrcFile: slot,
			Name:    name,
			Scheme:  scheme,
			GameID:  p.GameID,
			Region3: p.Region3,
		})
	}

	// 强制稳定输出：ReadDir 已按名称排序，这里显式再排一次，不依赖实现细节。
	sort.Slice(res.Cards, func(i, j int) bool { return res.Cards[i].Name < res.Cards[j].Name })
	sort.Slice(res.Invalid, func(i, j int) bool { return res.Invalid[i].Name < res.Invalid[j].Name })
	return res, nil
}

func isRegular(path string) (bool, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return fi.Mode().IsRegular(), nil
}
