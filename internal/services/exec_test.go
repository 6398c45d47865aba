package services_test

import (
	"context"
	"os/exec"
	"slices"
	"testing"

	"nxinfo/internal/services"
)

func TestCommandExecutorCollectsBothStreams(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	var lines []string
	err = services.CommandExecutor{}.Run(context.Background(), sh,
		[]string{"-c", "echo out; echo err 1>&2"},
		func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	slices.Sort(lines)
	if !slices.Equal(lines, []string{"err", "out"}) {
		t.Fatalf("lines = %q", lines)
	}
}

func TestCommandExecutorReportsExitFailure(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	if err := (services.CommandExecutor{}).Run(context.Background(), sh, []string{"-c", "exit 3"}, nil); err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}
