package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/oblique/memsec/internal/config"
	mserrors "github.com/oblique/memsec/internal/errors"
	"github.com/oblique/memsec/internal/logging"
	"github.com/oblique/memsec/internal/platform"
)

// testConfig writes content to a temporary memsec.yaml and returns a config
// pointing at it, with log output captured in the returned buffer.
func testConfig(t *testing.T, content string) (*config.Config, *bytes.Buffer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "memsec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	var logs bytes.Buffer
	return &config.Config{
		Path:      path,
		Logger:    logging.NewWithWriter(&logs, true, true),
		Overrides: config.NewOverrides(),
	}, &logs
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestInfoCommand(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "version: 0\n")
	out, err := execute(t, NewInfoCommand(cfg))
	require.NoError(t, err)

	assert.Contains(t, out, "Page size:")
	assert.Contains(t, out, "Canary size:")
	assert.Contains(t, out, "0xd0")
	assert.Contains(t, out, "Memlock limit:")
}

func TestLayoutCommand_YAML(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "version: 0\n")
	out, err := execute(t, NewLayoutCommand(cfg), "100", "--page-size", "4096", "-o", "yaml")
	require.NoError(t, err)

	var report layoutReport
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, uint64(100), report.Size)
	assert.Equal(t, uint64(4096), report.PayloadRegion)
	assert.Equal(t, uint64(4*4096), report.Total)
	assert.Equal(t, uint64(4*4096-100), report.Overhead)
	assert.Equal(t, uint64(4096), report.Offsets.LeadingGuard)
	assert.Equal(t, uint64(3*4096-100-16), report.Offsets.Canary)
	assert.Equal(t, uint64(3*4096-100), report.Offsets.User)
	assert.Equal(t, uint64(3*4096), report.Offsets.TrailingGuard)
}

func TestLayoutCommand_Text(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "version: 0\n")
	out, err := execute(t, NewLayoutCommand(cfg), "0x1000", "--page-size", "4096")
	require.NoError(t, err)

	assert.Contains(t, out, "leading guard")
	assert.Contains(t, out, "canary")
	assert.Contains(t, out, "Total: 20480 bytes")
}

func TestLayoutCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad size", args: []string{"lots"}, want: "Invalid size"},
		{name: "odd page size", args: []string{"10", "--page-size", "6000"}, want: "No layout"},
		{name: "huge size", args: []string{"18446744073709551615"}, want: "No layout"},
		{name: "bad format", args: []string{"10", "-o", "json"}, want: "Unknown output format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, _ := testConfig(t, "version: 0\n")
			_, err := execute(t, NewLayoutCommand(cfg), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSelfChecks(t *testing.T) {
	t.Parallel()

	for _, c := range selfChecks() {
		t.Run(c.Name, func(t *testing.T) {
			assert.NoError(t, c.Run())
		})
	}
}

func TestSelftestCommand(t *testing.T) {
	t.Parallel()

	cfg, logs := testConfig(t, "version: 0\n")
	_, err := execute(t, NewSelftestCommand(cfg), "--skip", "guard-fault")
	require.NoError(t, err)

	assert.Contains(t, logs.String(), "protect-round-trip")
	assert.Contains(t, logs.String(), "Skipping guard-fault")
	assert.NotContains(t, logs.String(), "✗")
}

func TestBenchCommand(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "bench:\n  size: 64\n  iterations: 10\n")
	out, err := execute(t, NewBenchCommand(cfg), "--iterations", "5")
	require.NoError(t, err)

	assert.Contains(t, out, "NS/OP")
	for _, name := range []string{"memeq", "memcmp", "equal", "differ-first", "differ-last"} {
		assert.Contains(t, out, name)
	}
	assert.Equal(t, 5, cfg.Definition.Bench.Iterations)
	assert.Equal(t, 64, cfg.Definition.Bench.Size)
}

func TestRunBench(t *testing.T) {
	t.Parallel()

	results := runBench(1, 3)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.PerOp.Nanoseconds(), int64(0))
	}
}

func TestSoakCommand(t *testing.T) {
	t.Parallel()

	cfg, logs := testConfig(t, `soak:
  workers: 2
  min_size: 0
  max_size: 300
  duration: 200ms
metrics:
  enabled: true
  addr: 127.0.0.1:0
`)
	out, err := execute(t, NewSoakCommand(cfg), "--workers", "3")
	require.NoError(t, err)

	assert.Contains(t, out, "cycles")
	assert.Contains(t, logs.String(), "Soaking with 3 workers")
	assert.Contains(t, logs.String(), "Serving metrics on http://127.0.0.1:")
}

func TestSoakCommand_InvalidConfig(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "soak:\n  min_size: 10\n  max_size: 1\n")
	_, err := execute(t, NewSoakCommand(cfg))

	var cfgErr mserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "soak.max_size", cfgErr.Field)
}

func TestSoakCommand_MaxSizeCapped(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "soak:\n  duration: 50ms\n")
	_, err := execute(t, NewSoakCommand(cfg), "--min-size", "0", "--max-size", "9223372036854775807")

	var cfgErr mserrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "soak.max_size", cfgErr.Field)
}

func TestSoakCycle(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 4080, 4081, 20000} {
		assert.NoError(t, soakCycle(size, byte(size)), "size %d", size)
	}
}

func TestRunDoctor(t *testing.T) {
	t.Parallel()

	results := runDoctor(platform.Default())
	require.Len(t, results, 6)

	byName := map[string]CheckHealth{}
	for _, r := range results {
		byName[r.Name] = r
		assert.NotEmpty(t, r.Message, r.Name)
	}
	assert.Equal(t, statusHealthy, byName["allocate"].Status)
	assert.Equal(t, statusHealthy, byName["mprotect"].Status)
	assert.Equal(t, statusHealthy, byName["platform-modes"].Status)
}

func TestDoctorCommand(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "version: 0\n")
	out, err := execute(t, NewDoctorCommand(cfg), "--verbose")
	require.NoError(t, err)

	assert.Contains(t, out, "CHECK")
	assert.Contains(t, out, "allocate")
	assert.Contains(t, out, "Summary:")
}

func TestDisplayHealthResults(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	displayHealthResults(&out, []CheckHealth{
		{Name: "mlock", Status: statusWarning, Message: "refused", Suggestions: []string{"raise the limit"}},
		{Name: "allocate", Status: statusHealthy, Message: "ok", Suggestions: []string{"hidden"}},
	}, true)

	assert.Contains(t, out.String(), "⚠ warning")
	assert.Contains(t, out.String(), "✓ healthy")
	assert.Contains(t, out.String(), "mlock suggestions:")
	assert.Contains(t, out.String(), "raise the limit")
	assert.NotContains(t, out.String(), "hidden")
}

func TestCompletionCommand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		shell string
		want  string
	}{
		{shell: "bash", want: "# bash completion for memsec"},
		{shell: "zsh", want: "#compdef memsec"},
		{shell: "fish", want: "# fish completion for memsec"},
		{shell: "powershell", want: "# powershell completion for memsec"},
	}

	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			t.Parallel()

			cfg, _ := testConfig(t, "version: 0\n")
			root := &cobra.Command{Use: "memsec"}
			root.AddCommand(NewCompletionCommand(cfg))

			out, err := execute(t, root, "completion", tt.shell)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestCompletionCommand_InvalidShell(t *testing.T) {
	t.Parallel()

	cfg, _ := testConfig(t, "version: 0\n")
	for _, args := range [][]string{{"tcsh"}, {"bash", "zsh"}} {
		_, err := execute(t, NewCompletionCommand(cfg), args...)
		assert.Error(t, err, "args %v", args)
	}
}
