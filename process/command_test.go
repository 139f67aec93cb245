package process

import (
	"errors"
	"reflect"
	"testing"

	"github.com/victoralfred/subproc/stream"
)

func TestBuilderDefaults(t *testing.T) {
	cmd, err := NewCmd("ls", "-la").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if !cmd.CloseFds {
		t.Error("CloseFds not defaulted on")
	}
	if !cmd.RestoreSignals {
		t.Error("RestoreSignals not defaulted on")
	}
	if !cmd.Stdin.IsInherit() || !cmd.Stdout.IsInherit() || !cmd.Stderr.IsInherit() {
		t.Error("streams not defaulted to inherit")
	}
}

func TestBuilderValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() (*Cmd, error)
	}{
		{
			name:  "no arguments",
			build: func() (*Cmd, error) { return NewCmd().Build() },
		},
		{
			name:  "empty program name",
			build: func() (*Cmd, error) { return NewCmd("").Build() },
		},
		{
			name:  "empty shell line",
			build: func() (*Cmd, error) { return NewShell("").Build() },
		},
		{
			name: "both argv and shell",
			build: func() (*Cmd, error) {
				b := NewCmd("ls")
				b.cmd.Shell = "ls"
				return b.Build()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.build(); !errors.Is(err, ErrInvalidCommand) {
				t.Errorf("Build error = %v, want ErrInvalidCommand", err)
			}
		})
	}
}

func TestBuilderFluent(t *testing.T) {
	cmd, err := NewCmd("env").
		WithDir("/tmp").
		WithEnv([]string{"A=1"}).
		WithEnvVar("B", "2").
		WithStdout(stream.UsePipe()).
		WithStderr(stream.MergeWithStdout()).
		WithCloseFds(false).
		WithRestoreSignals(false).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if cmd.Dir != "/tmp" {
		t.Errorf("Dir = %q", cmd.Dir)
	}
	if want := []string{"A=1", "B=2"}; !reflect.DeepEqual(cmd.Env, want) {
		t.Errorf("Env = %v, want %v", cmd.Env, want)
	}
	if !cmd.Stdout.IsPipe() {
		t.Error("stdout not piped")
	}
	if cmd.CloseFds || cmd.RestoreSignals {
		t.Error("flag overrides not applied")
	}
}

func TestBuilderEnvMap(t *testing.T) {
	cmd, err := NewCmd("env").
		WithEnvMap(map[string]string{"B": "2", "A": "1"}).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if want := []string{"A=1", "B=2"}; !reflect.DeepEqual(cmd.Env, want) {
		t.Errorf("Env = %v, want sorted %v", cmd.Env, want)
	}
}

func TestMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustBuild did not panic on an invalid command")
		}
	}()
	NewCmd().MustBuild()
}

func TestArguments(t *testing.T) {
	argCmd := NewCmd("ls", "-la").MustBuild()
	if want := []string{"ls", "-la"}; !reflect.DeepEqual(argCmd.arguments(), want) {
		t.Errorf("arguments = %v, want %v", argCmd.arguments(), want)
	}

	shellCmd := NewShell("ls -la | wc").MustBuild()
	if want := []string{"ls -la | wc"}; !reflect.DeepEqual(shellCmd.arguments(), want) {
		t.Errorf("shell arguments = %v, want %v", shellCmd.arguments(), want)
	}
}
