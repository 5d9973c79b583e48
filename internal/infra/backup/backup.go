// Package backup 在任何破坏性操作之前，把 <sd-root>/MemoryCards 完整复制到备份目录。
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/vmcr/internal/infra/fsx"
	"github.com/John-Robertt/vmcr/internal/layout"
)

const (
	// DirName 是备份目录下存放 MemoryCards 副本的目录名。
	DirName = "MemoryCards.backup"
	// ManifestName 是与副本并列的清单文件名（不放进副本内，保证副本与来源逐字节一致）。
	ManifestName = DirName + ".json"
)

// Manifest 描述一次备份。
type Manifest struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Files     []File    `json:"files"`
}

type File struct {
	Path string `json:"path"` // 相对 MemoryCards，使用 '/' 分隔
	Size int64  `json:"size"`
}

// Error 表示备份失败。备份失败永远是致命的：调用方必须在修改任何卡槽之前中止。
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("备份失败（%s）：%v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Create 把 <sdRoot>/MemoryCards 复制到 <backupDir>/MemoryCards.backup。
//
// 过程：先复制到同目录的临时 staging 目录，全部成功后再 rename 到最终位置；
// 任一步失败都会清理 staging，最终位置要么不存在、要么是旧备份、要么是完整的新备份。
//
// replace=false 时若最终位置已存在则失败（不覆盖旧备份）。
func Create(sdRoot, backupDir string, replace bool) (string, Manifest, error) {
	src := filepath.Join(filepath.Clean(sdRoot), layout.MemoryCardsDir)
	backupDir = filepath.Clean(backupDir)
	target := filepath.Join(backupDir, DirName)

	if isUnder(backupDir, src) {
		return "", Manifest{}, &Error{Path: backupDir, Err: errors.New("备份目录不能位于 MemoryCards 内部")}
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", Manifest{}, &Error{Path: backupDir, Err: err}
	}

	k, err := fsx.KindOf(target)
	if err != nil {
		return "", Manifest{}, &Error{Path: target, Err: err}
	}
	if k != fsx.KindMissing && !replace {
		return "", Manifest{}, &Error{Path: target, Err: fmt.Errorf("%w；使用 --force 替换旧备份", os.ErrExist)}
	}

	id := uuid.NewString()
	staging := filepath.Join(backupDir, "."+DirName+".tmp-"+id)
	cleanup := func() { _ = os.RemoveAll(staging) }

	if err := fsx.CopyTree(src, staging); err != nil {
		cleanup()
		return "", Manifest{}, &Error{Path: src, Err: err}
	}

	files, err := listFiles(staging)
	if err != nil {
		cleanup()
		return "", Manifest{}, &Error{Path: staging, Err: err}
	}

	if k != fsx.KindMissing {
		// 先把旧备份挪开，新备份就位后再删除，避免中途失败两头落空。
		old := filepath.Join(backupDir, "."+DirName+".old-"+id)
		if err := fsx.Rename(target, old); err != nil {
			cleanup()
			return "", Manifest{}, &Error{Path: target, Err: err}
		}
		if err := fsx.Rename(staging, target); err != nil {
			_ = fsx.Rename(old, target)
			cleanup()
			return "", Manifest{}, &Error{Path: target, Err: err}
		}
		_ = os.RemoveAll(old)
	} else if err := fsx.Rename(staging, target); err != nil {
		cleanup()
		return "", Manifest{}, &Error{Path: target, Err: err}
	}

	m := Manifest{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		Source:    src,
		Target:    target,
		Files:     files,
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", Manifest{}, &Error{Path: backupDir, Err: err}
	}
	b = append(b, '\n')
	if err := fsx.WriteFileAtomicReplace(backupDir, ManifestName, b); err != nil {
		return "", Manifest{}, &Error{Path: filepath.Join(backupDir, ManifestName), Err: err}
	}
	return target, m, nil
}

func listFiles(root string) ([]File, error) {
	files := make([]File, 0, 32)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, File{Path: filepath.ToSlash(rel), Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}
