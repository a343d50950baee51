package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testTable = `
hosts:
  mac:
    address: hydric
    dir: devel/nacl/native_client
  win:
    address: win32vm
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc
  win64:
    address: win32vm
    dir: devel/nacl/native_client
    wrapper: nacl-try setenv ~/env-vc64
targets:
  "32":  {host: local, opts: "platform=x86-32"}
  mac:   {host: mac, opts: "--mode=dbg-mac,nacl"}
  mac64: {host: mac, opts: "--mode=dbg-mac,nacl platform=x86-64"}
  win:   {host: win, opts: "--mode=dbg-win,nacl"}
  win64: {host: win64, opts: "--mode=dbg-win,nacl platform=x86-64"}
`

type fakeCommander struct {
	fs       afero.Fs
	calls    []string
	fileList []string
	paths    []string
	failOn   string
}

func (f *fakeCommander) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(append([]string{name}, args...), " "))
	return []byte("SConstruct\nsrc/main.c\n"), nil
}

func (f *fakeCommander) Run(ctx context.Context, name string, args ...string) error {
	call := strings.Join(append([]string{name}, args...), " ")
	if name == "rsync" {
		for _, a := range args {
			if path, ok := strings.CutPrefix(a, "--files-from="); ok {
				data, err := afero.ReadFile(f.fs, path)
				if err != nil {
					return err
				}
				f.fileList = append(f.fileList, string(data))
				f.paths = append(f.paths, path)
				call = strings.Replace(call, path, "LIST", 1)
			}
		}
	}
	f.calls = append(f.calls, call)
	if f.failOn != "" && strings.Contains(call, f.failOn) {
		return fmt.Errorf("%s: exit status 1", name)
	}
	return nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeCommander) {
	t.Helper()
	cfg, err := Parse([]byte(testTable))
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	cmd := &fakeCommander{fs: fs}
	d := NewDispatcher(cfg, cmd, fs, zaptest.NewLogger(t))

	clock := time.Date(2012, 5, 2, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time {
		clock = clock.Add(1500 * time.Millisecond)
		return clock
	}
	return d, cmd
}

func TestDispatch_SyncsEachLocationOnce(t *testing.T) {
	d, cmd := newTestDispatcher(t)

	results, err := d.Dispatch(context.Background(), "run_hello_world_test", []string{"mac", "mac64", "32"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"git ls-files",
		"rsync -avz --files-from=LIST . hydric:devel/nacl/native_client",
		"ssh -t hydric cd devel/nacl/native_client && ./scons sysinfo=0 target_stats=0 --mode=dbg-mac,nacl run_hello_world_test",
		"ssh -t hydric cd devel/nacl/native_client && ./scons sysinfo=0 target_stats=0 --mode=dbg-mac,nacl platform=x86-64 run_hello_world_test",
		"sh -c ./scons sysinfo=0 target_stats=0 platform=x86-32 run_hello_world_test",
	}, cmd.calls)
	assert.Equal(t, []string{"SConstruct\nsrc/main.c\n"}, cmd.fileList)

	assert.Equal(t, "mac: OK, took 1.5s\nmac64: OK, took 1.5s\n32: OK, took 1.5s", Summary(results))
}

func TestDispatch_SameAddressDifferentHosts(t *testing.T) {
	d, cmd := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "", []string{"win", "win64"})
	require.NoError(t, err)

	var rsyncs int
	for _, c := range cmd.calls {
		if strings.HasPrefix(c, "rsync") {
			rsyncs++
		}
	}
	assert.Equal(t, 1, rsyncs, "one location, one sync")
	assert.Contains(t, cmd.calls, "ssh -t win32vm cd devel/nacl/native_client && nacl-try setenv ~/env-vc ./scons sysinfo=0 target_stats=0 --mode=dbg-win,nacl")
	assert.Contains(t, cmd.calls, "ssh -t win32vm cd devel/nacl/native_client && nacl-try setenv ~/env-vc64 ./scons sysinfo=0 target_stats=0 --mode=dbg-win,nacl platform=x86-64")
}

func TestDispatch_SyncOnly(t *testing.T) {
	d, cmd := newTestDispatcher(t)

	results, err := d.Dispatch(context.Background(), SyncOnly, []string{"32", "mac"})
	require.NoError(t, err)

	assert.Empty(t, results)
	assert.Equal(t, []string{
		"git ls-files",
		"rsync -avz --files-from=LIST . hydric:devel/nacl/native_client",
	}, cmd.calls)
}

func TestDispatch_Errors(t *testing.T) {
	d, cmd := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), "x", nil)
	assert.True(t, errors.Is(err, ErrNoTargets))

	_, err = d.Dispatch(context.Background(), "x", []string{"mac", "nope"})
	assert.True(t, errors.Is(err, ErrUnknownTarget))
	assert.Empty(t, cmd.calls, "nothing runs when a target is unknown")
}

func TestDispatch_StopsOnFailure(t *testing.T) {
	d, cmd := newTestDispatcher(t)
	cmd.failOn = "platform=x86-64"

	results, err := d.Dispatch(context.Background(), "", []string{"mac", "mac64", "32"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target mac64")

	require.Len(t, results, 1)
	assert.Equal(t, "mac", results[0].Target)
	for _, c := range cmd.calls {
		assert.NotContains(t, c, "sh -c")
	}
}

func TestDispatch_RemovesFileList(t *testing.T) {
	d, cmd := newTestDispatcher(t)

	_, err := d.Dispatch(context.Background(), SyncOnly, []string{"mac"})
	require.NoError(t, err)

	require.Len(t, cmd.paths, 1)
	exists, err := afero.Exists(d.fs, cmd.paths[0])
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultCommand, cfg.Command)
	assert.Contains(t, cfg.TargetNames(), "32")
	assert.Contains(t, cfg.TargetNames(), "win64")

	_, h, local, err := cfg.Lookup("mac64")
	require.NoError(t, err)
	assert.False(t, local)
	assert.Equal(t, "hydric", h.Address)

	_, _, local, err = cfg.Lookup("arm")
	require.NoError(t, err)
	assert.True(t, local)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		table string
		want  string
	}{
		{"unknown host", "targets:\n  a: {host: nowhere}\n", `unknown host "nowhere"`},
		{"host without dir", "hosts:\n  h: {address: h}\ntargets: {}\n", "address and dir are required"},
		{"reserved name", "hosts:\n  local: {address: h, dir: d}\n", "reserved"},
		{"bad yaml", "targets: [", "parsing target table"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.table))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/targets.yaml", []byte(testTable), 0644))

	cfg, err := Load(fs, "/etc/targets.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"32", "mac", "mac64", "win", "win64"}, cfg.TargetNames())

	cfg, err = Load(fs, "")
	require.NoError(t, err)
	assert.Equal(t, Default().TargetNames(), cfg.TargetNames())

	_, err = Load(fs, "/missing.yaml")
	assert.Error(t, err)
}
