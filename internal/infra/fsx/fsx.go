package fsx

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
)

// 通过可替换的函数指针，让测试能稳定模拟 EXDEV 等错误。
var renameFunc = os.Rename

// PathTypeConflictError 表示目标路径类型冲突（例如期望文件但实际是目录）。
// 上层可把它映射为 error_code=target_conflict。
type PathTypeConflictError struct {
	Path string
	Want string
	Got  string
}

func (e *PathTypeConflictError) Error() string {
	return fmt.Sprintf("目标路径类型冲突：%q（期望 %s，实际 %s）", e.Path, e.Want, e.Got)
}

func IsPathTypeConflict(err error) bool {
	var e *PathTypeConflictError
	return errors.As(err, &e)
}

// CrossDeviceError 表示跨盘（EXDEV）导致的 rename 失败。
// 移动模式只做 rename：遇到 EXDEV 必须失败并提示用户改用 --output-sd-root（复制模式）。
type CrossDeviceError struct {
	Src string
	Dst string
	Err error
}

func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("跨盘移动失败（EXDEV）：%q -> %q；请改用 --output-sd-root 复制（本工具不会隐式 copy+delete）：%v", e.Src, e.Dst, e.Err)
}

func (e *CrossDeviceError) Unwrap() error { return e.Err }

// IsCrossDevice 判断 err 是否为跨盘（EXDEV）错误。
func IsCrossDevice(err error) bool {
	var e *CrossDeviceError
	return errors.As(err, &e)
}

// Kind 描述路径的现状（只做 Lstat）。
type Kind int

const (
	KindMissing Kind = iota
	KindFile
	KindDir
	KindOther // symlink/device/... 一律视为不可覆盖的异物
)

func (k Kind) String() string {
	switch k {
	case KindMissing:
		return "missing"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	default:
		return "other"
	}
}

// KindOf 返回 path 的类型；不存在返回 KindMissing 且不报错。
func KindOf(path string) (Kind, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return KindMissing, nil
		}
		return KindMissing, err
	}
	switch {
	case fi.Mode().IsRegular():
		return KindFile, nil
	case fi.IsDir():
		return KindDir, nil
	default:
		return KindOther, nil
	}
}

// Rename 封装 os.Rename，并把 EXDEV 显式标记为 CrossDeviceError。
func Rename(src, dst string) error {
	if err := renameFunc(src, dst); err != nil {
		if isEXDEV(err) {
			return &CrossDeviceError{Src: src, Dst: dst, Err: err}
		}
		return err
	}
	return nil
}

// MoveFile 把 src 移动到 dst（只用 rename），自动创建 dst 的父目录。
//
// - overwrite=false：dst 已存在返回 os.ErrExist（或 PathTypeConflictError）
// - overwrite=true：dst 是文件则由 rename 直接替换；是目录/异物则先删除
func MoveFile(src, dst string, overwrite bool) error {
	if err := prepareDst(dst, overwrite); err != nil {
		return err
	}
	return Rename(src, dst)
}

// CopyFileAtomic 把 src 复制为 dst：同目录临时文件 + rename，保证 dst 要么是旧内容要么是完整新内容。
// 语义与 MoveFile 相同地处理已存在的 dst。源文件的权限位与 mtime 会被保留。
func CopyFileAtomic(src, dst string, overwrite bool) error {
	fi, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := prepareDst(dst, overwrite); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dir, name := filepath.Split(dst)
	return writeAtomic(filepath.Clean(dir), name, fi.Mode().Perm(), func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}, func(tmpName string) {
		_ = os.Chtimes(tmpName, fi.ModTime(), fi.ModTime())
	})
}

// prepareDst 确保 dst 的父目录存在，并按 overwrite 处理已存在的 dst。
func prepareDst(dst string, overwrite bool) error {
	if err := ensureDir(filepath.Dir(dst), overwrite); err != nil {
		return err
	}
	k, err := KindOf(dst)
	if err != nil {
		return err
	}
	switch k {
	case KindMissing:
		return nil
	case KindFile:
		if !overwrite {
			return os.ErrExist
		}
		// rename 会原子替换已有文件，无需先删除。
		return nil
	default:
		if !overwrite {
			return &PathTypeConflictError{Path: dst, Want: "file", Got: k.String()}
		}
		return os.RemoveAll(dst)
	}
}

// ensureDir 确保 dir 是目录。若 dir 位置被文件占用：overwrite=true 时删除该文件后创建，否则报类型冲突。
func ensureDir(dir string, overwrite bool) error {
	k, err := KindOf(dir)
	if err != nil {
		return err
	}
	switch k {
	case KindDir:
		return nil
	case KindMissing:
		return os.MkdirAll(dir, 0o755)
	default:
		if !overwrite {
			return &PathTypeConflictError{Path: dir, Want: "dir", Got: k.String()}
		}
		if err := os.Remove(dir); err != nil {
			return err
		}
		return os.MkdirAll(dir, 0o755)
	}
}

// CopyTree 递归复制 srcDir 到 dstDir（dstDir 不存在时创建）。不跟随 symlink：遇到即报错。
func CopyTree(srcDir, dstDir string) error {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		src := filepath.Join(srcDir, e.Name())
		dst := filepath.Join(dstDir, e.Name())
		info, err := e.Info()
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("不支持 symlink：%q", src)
		}
		if info.IsDir() {
			if err := CopyTree(src, dst); err != nil {
				return err
			}
			continue
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("不支持的文件类型：%q（%s）", src, info.Mode().Type())
		}
		if err := CopyFileAtomic(src, dst, false); err != nil {
			return err
		}
	}
	return nil
}

// RemoveIfEmpty 仅当 dir 为空目录时删除它；返回是否删除。
// 非空、不存在都不算错误。绝不做递归删除。
func RemoveIfEmpty(dir string) (bool, error) {
	f, err := os.Open(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	names, err := f.Readdirnames(1)
	_ = f.Close()
	if len(names) > 0 {
		return false, nil
	}
	if err != nil && err != io.EOF {
		return false, err
	}
	if err := os.Remove(dir); err != nil {
		return false, err
	}
	return true, nil
}

// SameContent 判断两个普通文件的字节是否完全一致（先比大小，再按块比较）。
func SameContent(a, b string) (bool, error) {
	fa, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	fb, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	if !fa.Mode().IsRegular() || !fb.Mode().IsRegular() {
		return false, nil
	}
	if fa.Size() != fb.Size() {
		return false, nil
	}

	ra, err := os.Open(a)
	if err != nil {
		return false, err
	}
	defer ra.Close()
	rb, err := os.Open(b)
	if err != nil {
		return false, err
	}
	defer rb.Close()

	const chunk = 64 * 1024
	bufA := make([]byte, chunk)
	bufB := make([]byte, chunk)
	for {
		na, ea := io.ReadFull(ra, bufA)
		nb, eb := io.ReadFull(rb, bufB)
		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		aDone := ea == io.EOF || ea == io.ErrUnexpectedEOF
		bDone := eb == io.EOF || eb == io.ErrUnexpectedEOF
		if ea != nil && !aDone {
			return false, ea
		}
		if eb != nil && !bDone {
			return false, eb
		}
		if aDone || bDone {
			return aDone && bDone, nil
		}
	}
}

// WriteFileAtomicReplace 写入并覆盖同名文件（临时文件 + rename；Windows 上为 best-effort）。
func WriteFileAtomicReplace(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return writeAtomic(dir, name, 0o644, func(w io.Writer) error {
		return writeAll(w, data)
	}, nil)
}

func writeAtomic(dir, name string, perm os.FileMode, fill func(io.Writer) error, beforeRename func(tmpName string)) error {
	dst := filepath.Join(dir, name)

	// 创建同目录临时文件（前缀带 '.'，避免被扫描当作卡槽目录/文件）。
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := fill(tmp); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if beforeRename != nil {
		beforeRename(tmpName)
	}

	if err := Rename(tmpName, dst); err != nil {
		return err
	}

	// 目录 fsync：best-effort（不同平台/文件系统的语义差异很大）。
	_ = syncDirBestEffort(dir)
	return nil
}

func writeAll(w io.Writer, b []byte) error {
	for len(b) > 0 {
		n, err := w.Write(b)
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

func syncDirBestEffort(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
