package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/vmcr/internal/domain"
	"github.com/John-Robertt/vmcr/internal/region"
)

func TestLoadEffective_Defaults(t *testing.T) {
	cwd := t.TempDir()
	sd := mkdir(t, filepath.Join(cwd, "sd"))

	eff, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "gcmce"})
	require.NoError(t, err)

	assert.Equal(t, sd, eff.SDRoot)
	assert.Equal(t, sd, eff.OutRoot)
	assert.False(t, eff.CopyMode)
	assert.Equal(t, domain.SchemeMCGCP, eff.Source)
	assert.Equal(t, domain.SchemeGCMCE, eff.Target)
	assert.Empty(t, eff.BackupDir)
	assert.False(t, eff.Force)

	r3, err := eff.Regions.LetterToRegion3("E")
	require.NoError(t, err)
	assert.Equal(t, "USA", r3)
}

func TestLoadEffective_SDRootMissing(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{SDRoot: "nope", Target: "gcmce"})
	assert.Equal(t, ErrCodeSourceNotFound, Code(err), "err=%v", err)

	_, err = LoadEffective(cwd, CLIArgs{Target: "gcmce"})
	assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
}

func TestLoadEffective_BadTarget(t *testing.T) {
	cwd := t.TempDir()
	mkdir(t, filepath.Join(cwd, "sd"))

	_, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "psx"})
	assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
}

func TestLoadEffective_OutputRootEnablesCopyMode(t *testing.T) {
	cwd := t.TempDir()
	mkdir(t, filepath.Join(cwd, "sd"))

	eff, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "mcgcp", OutputSDRoot: "out"})
	require.NoError(t, err)
	assert.True(t, eff.CopyMode)
	assert.Equal(t, filepath.Join(cwd, "out"), eff.OutRoot)
	assert.Equal(t, domain.SchemeGCMCE, eff.Source)

	// 指向同一路径（仅写法不同）仍是原地移动。
	eff, err = LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "mcgcp", OutputSDRoot: "./sd/"})
	require.NoError(t, err)
	assert.False(t, eff.CopyMode)
}

func TestLoadEffective_FileConfigAndCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	sd := mkdir(t, filepath.Join(cwd, "sd"))
	writeFile(t, filepath.Join(sd, FileName), `{"backup_dir":"bk","force":true,"allow_partial":true}`)

	eff, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "gcmce"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(sd, "bk"), eff.BackupDir, "配置文件路径相对 sd-root")
	assert.True(t, eff.Force)
	assert.True(t, eff.AllowPartial)

	eff, err = LoadEffective(cwd, CLIArgs{
		SDRoot:    "sd",
		Target:    "gcmce",
		BackupDir: "elsewhere",
		Force:     false,
		ForceSet:  true, // --force=false
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "elsewhere"), eff.BackupDir, "CLI 路径相对 cwd")
	assert.False(t, eff.Force)
	assert.True(t, eff.AllowPartial)
}

func TestLoadEffective_BadFileConfig(t *testing.T) {
	cwd := t.TempDir()
	sd := mkdir(t, filepath.Join(cwd, "sd"))
	writeFile(t, filepath.Join(sd, FileName), `{"force":"yes"}`)

	_, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "gcmce"})
	assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
}

func TestLoadEffective_RegionOverridePrecedence(t *testing.T) {
	cwd := t.TempDir()
	sd := mkdir(t, filepath.Join(cwd, "sd"))
	writeFile(t, filepath.Join(sd, FileName), `{"letter_to_region3":{"E":"ZZZ","U":"AUS"}}`)
	writeFile(t, filepath.Join(cwd, "regions.toml"), "[letter_to_region3]\nU = \"UKV\"\n")

	eff, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "gcmce", RegionMap: "regions.toml"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "regions.toml"), eff.RegionMapPath)

	// 默认 < 内联 < 覆盖文件
	r3, err := eff.Regions.LetterToRegion3("E")
	require.NoError(t, err)
	assert.Equal(t, "ZZZ", r3)
	r3, err = eff.Regions.LetterToRegion3("U")
	require.NoError(t, err)
	assert.Equal(t, "UKV", r3)
	r3, err = eff.Regions.LetterToRegion3("J")
	require.NoError(t, err)
	assert.Equal(t, "JPN", r3)
}

func TestLoadEffective_RegionMapNotFound(t *testing.T) {
	cwd := t.TempDir()
	mkdir(t, filepath.Join(cwd, "sd"))

	_, err := LoadEffective(cwd, CLIArgs{SDRoot: "sd", Target: "gcmce", RegionMap: "missing.json"})
	assert.Equal(t, ErrCodeNotFound, Code(err), "err=%v", err)
}

func TestLoadRegionOverrides_JSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "regions.json")
	writeFile(t, p, `{"letter_to_region3":{"u":"aus"},"region3_to_letter":{"AUS":"U"}}`)

	ov, err := LoadRegionOverrides(p)
	require.NoError(t, err)

	m := region.New(ov)
	r3, err := m.LetterToRegion3("U")
	require.NoError(t, err)
	assert.Equal(t, "AUS", r3)
	l, err := m.Region3ToLetter("aus")
	require.NoError(t, err)
	assert.Equal(t, "U", l)
}

func TestLoadRegionOverrides_Invalid(t *testing.T) {
	cases := map[string]string{
		"shape.json":       `{"letter_to_region3":["U"]}`,
		"syntax.json":      `{`,
		"long-letter.json": `{"letter_to_region3":{"UK":"GBR"}}`,
		"bad-r3.json":      `{"letter_to_region3":{"U":"AU"}}`,
		"bad-r3-key.json":  `{"region3_to_letter":{"A1B":"U"}}`,
		"bad.toml":         "letter_to_region3 = 3\n",
	}
	dir := t.TempDir()
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, name)
			writeFile(t, p, body)
			_, err := LoadRegionOverrides(p)
			assert.Equal(t, ErrCodeInvalid, Code(err), "err=%v", err)
		})
	}
}

func TestMergeOverrides_TopWins(t *testing.T) {
	got := MergeOverrides(
		region.Overrides{LetterToRegion3: map[string]string{"u": "AUS", "E": "USA"}},
		region.Overrides{LetterToRegion3: map[string]string{"U": "UKV"}},
	)
	assert.Equal(t, map[string]string{"U": "UKV", "E": "USA"}, got.LetterToRegion3)
	assert.Empty(t, got.Region3ToLetter)
}

func mkdir(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRegions_WithoutSDRoot(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "r.json"), `{"region3_to_letter":{"AUS":"U"}}`)

	m, path, err := LoadRegions(cwd, CLIArgs{RegionMap: "r.json"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "r.json"), path)

	l, err := m.Region3ToLetter("AUS")
	require.NoError(t, err)
	assert.Equal(t, "U", l)

	m, path, err = LoadRegions(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Empty(t, path)
	_, err = m.Region3ToLetter("AUS")
	assert.Error(t, err)
}
