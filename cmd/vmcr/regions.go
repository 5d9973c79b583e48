package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/vmcr/internal/config"
	"github.com/John-Robertt/vmcr/internal/region"
)

func newRegionsCmd(stdout io.Writer) *cobra.Command {
	var sdRoot, regionMap, regionMapJSON string

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "打印生效的地区码映射表（默认表 + 覆盖项）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cwd, err := os.Getwd()
			if err != nil {
				return &exitError{code: 1, err: fmt.Errorf("读取当前目录失败：%w", err)}
			}
			path := regionMap
			if path == "" {
				path = regionMapJSON
			}
			m, used, err := config.LoadRegions(cwd, config.CLIArgs{SDRoot: sdRoot, RegionMap: path})
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			renderRegions(stdout, m, used)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&sdRoot, "sd-root", "", "读取 <sd-root>/vmcr.json 中的内联覆盖项")
	fl.StringVar(&regionMap, "region-map", "", "地区码覆盖文件（.json 或 .toml）")
	fl.StringVar(&regionMapJSON, "region-map-json", "", "同 --region-map")
	cmd.MarkFlagsMutuallyExclusive("region-map", "region-map-json")
	return cmd
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keyStyle    = lipgloss.NewStyle().Width(6).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

func renderRegions(w io.Writer, m region.Map, source string) {
	if source != "" {
		fmt.Fprintln(w, mutedStyle.Render("覆盖文件: "+source))
	}
	fmt.Fprintln(w, headerStyle.Render("letter -> region3"))
	for _, e := range m.LetterEntries() {
		fmt.Fprintf(w, "  %s%s\n", keyStyle.Render(e.From), e.To)
	}
	fmt.Fprintln(w, headerStyle.Render("region3 -> letter"))
	for _, e := range m.Region3Entries() {
		fmt.Fprintf(w, "  %s%s\n", keyStyle.Render(e.From), e.To)
	}
}
