package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehrlich-b/go-blockbench/internal/blocks"
	"github.com/ehrlich-b/go-blockbench/internal/errs"
	"github.com/ehrlich-b/go-blockbench/internal/uring"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// isolated returns a work dir and an env whose global config dir is empty
func isolated(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	work := filepath.Join(root, "work")
	require.NoError(t, os.MkdirAll(work, 0o755))
	return work, []string{"XDG_CONFIG_HOME=" + filepath.Join(root, "xdg")}
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadDefaults(t *testing.T) {
	work, env := isolated(t)
	cfg, sources, err := Load(work, "", env, nil, Config{})
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, Sources{}, sources)
}

func TestLoadPrecedence(t *testing.T) {
	work, env := isolated(t)
	xdg := env[0][len("XDG_CONFIG_HOME="):]

	writeFile(t, filepath.Join(xdg, "blockbench", "config.json"), `{
		// global
		"workers": 2,
		"window": 64,
		"engine": "emulated",
	}`)
	writeFile(t, filepath.Join(work, FileName), `{"workers": 4, "size": "64M"}`)
	writeFile(t, filepath.Join(work, "explicit.json"), `{"workers": 6, "pattern": "sequential"}`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cli := Default()
	BindFlags(flags, &cli)
	require.NoError(t, flags.Parse([]string{"-w", "3", "--strategies", "seek,bulk"}))

	cfg, sources, err := Load(work, "explicit.json", env, flags, cli)
	require.NoError(t, err)

	want := Default()
	want.Workers = 3
	want.Window = 64
	want.Engine = "emulated"
	want.Size = "64M"
	want.Pattern = "sequential"
	want.Strategies = []string{"seek", "bulk"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, filepath.Join(xdg, "blockbench", "config.json"), sources.Global)
	assert.Equal(t, filepath.Join(work, FileName), sources.Project)
	assert.Equal(t, filepath.Join(work, "explicit.json"), sources.Explicit)
}

func TestLoadUnchangedFlagsDoNotOverride(t *testing.T) {
	work, env := isolated(t)
	writeFile(t, filepath.Join(work, FileName), `{"window": 128}`)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cli := Default()
	BindFlags(flags, &cli)
	require.NoError(t, flags.Parse([]string{"--direct"}))

	cfg, _, err := Load(work, "", env, flags, cli)
	require.NoError(t, err)
	assert.Equal(t, 128, cfg.Window, "default flag value must not beat the file")
	assert.True(t, cfg.Direct)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		project  string
		explicit string
	}{
		{"missing explicit file", "", "nope.json"},
		{"bad jsonc", `{"workers": `, ""},
		{"unknown key", `{"wokers": 2}`, ""},
		{"wrong type", `{"workers": "many"}`, ""},
		{"window above ring", `{"window": 8192}`, ""},
		{"unknown engine", `{"engine": "spdk"}`, ""},
		{"unknown strategy", `{"strategies": ["mmap", "aio"]}`, ""},
		{"unknown pattern", `{"pattern": "zigzag"}`, ""},
		{"non-coprime stride", `{"stride": 1024}`, ""},
		{"partial block", `{"size": "100000"}`, ""},
		{"page above block", `{"page_size": 131072}`, ""},
		{"bad size", `{"size": "lots"}`, ""},
		{"bad log format", `{"log_format": "xml"}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work, env := isolated(t)
			if tt.project != "" {
				writeFile(t, filepath.Join(work, FileName), tt.project)
			}
			_, _, err := Load(work, tt.explicit, env, nil, Config{})
			require.Error(t, err)
			assert.True(t, errs.IsCode(err, errs.CodeConfiguration), "got %v", err)
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"4096", 4096},
		{"512K", 512 << 10},
		{"64M", 64 << 20},
		{"64MB", 64 << 20},
		{"10G", 10 << 30},
		{"10GiB", 10 << 30},
		{"1t", 1 << 40},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	for _, bad := range []string{"", "G", "-1M", "1.5G"} {
		_, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestStrategyOptions(t *testing.T) {
	cfg := Default()
	cfg.Size = "64M"
	cfg.Pattern = "sequential"
	cfg.Engine = "emulated"
	cfg.Direct = true

	opts, err := cfg.StrategyOptions()
	require.NoError(t, err)
	assert.Equal(t, blocks.Geometry{TotalBytes: 64 << 20, BlockSize: 65536, PageReadSize: 4096}, opts.Geometry)
	assert.Equal(t, blocks.SequentialPattern(), opts.Pattern)
	assert.Equal(t, uring.EngineEmulated, opts.Engine)
	assert.Equal(t, "datei", opts.Path)
	assert.True(t, opts.Direct)
}

func TestStrategyNames(t *testing.T) {
	cfg := Default()
	assert.Len(t, cfg.StrategyNames(), 7)
	cfg.Strategies = []string{"bulk"}
	assert.Equal(t, []string{"bulk"}, cfg.StrategyNames())
}
