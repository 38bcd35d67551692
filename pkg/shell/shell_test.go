package shell

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRunMergesOutputAndCode(t *testing.T) {
	res, err := Run(context.Background(), 5*time.Second, "/bin/sh", "-c", "echo out; echo err 1>&2; exit 3")
	if err == nil || !IsExit(err) {
		t.Fatalf("want exit error, got %v", err)
	}
	if res.Code != 3 {
		t.Fatalf("want code 3, got %d", res.Code)
	}
	got := string(res.Output)
	if !strings.Contains(got, "out") || !strings.Contains(got, "err") {
		t.Fatalf("missing merged output: %q", got)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	res, err := Run(context.Background(), 0, "/nonexistent/ogkb-test-binary")
	if err == nil || IsExit(err) {
		t.Fatalf("want spawn error, got %v", err)
	}
	if res.Code != -1 {
		t.Fatalf("want -1, got %d", res.Code)
	}
}

func TestRunTimeout(t *testing.T) {
	res, err := Run(context.Background(), 50*time.Millisecond, "/bin/sleep", "5")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("want ErrTimeout, got %v", err)
	}
	if res.Code != -1 {
		t.Fatalf("killed process should report -1, got %d", res.Code)
	}
}

func TestIsSignal(t *testing.T) {
	_, err := Run(context.Background(), 5*time.Second, "/bin/sh", "-c", "kill -TERM $$")
	if !IsSignal(err) || IsExit(err) {
		t.Fatalf("want signal error, got %v", err)
	}
	_, err = Run(context.Background(), 5*time.Second, "/bin/sh", "-c", "exit 2")
	if IsSignal(err) {
		t.Fatalf("plain exit reported as signal: %v", err)
	}
	_, err = Run(context.Background(), 0, "/nonexistent/ogkb-test-binary")
	if IsSignal(err) {
		t.Fatalf("spawn failure reported as signal: %v", err)
	}
}
