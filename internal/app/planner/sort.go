package planner

import (
	"sort"

	"github.com/John-Robertt/vmcr/internal/domain"
)

// SortItems 按源目录稳定排序，保证 dry-run 输出可复现（不依赖 ReadDir 的平台行为）。
func SortItems(items []domain.PlanItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].SrcDir < items[j].SrcDir })
}
