package main

import (
	"bytes"
	"regexp"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "variantctl dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("help command failed: %v", err)
	}
	for _, sub := range []string{"append", "retry", "variants", "branch", "branches", "migrate", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
	for _, flag := range []string{"--driver", "--pebble-path", "--database-url"} {
		if !strings.Contains(out, flag) {
			t.Errorf("expected help to list %s flag, got: %s", flag, out)
		}
	}
}

func TestRetryCmd_RequiresMessageID(t *testing.T) {
	if _, err := run(t, "retry"); err == nil {
		t.Error("retry without a message id should fail")
	}
}

func TestAppendCmd_RequiresThread(t *testing.T) {
	if _, err := run(t, "append", "--driver", "pebble", "--pebble-path", t.TempDir()); err == nil {
		t.Error("append without --thread should fail")
	}
}

func TestUnknownDriver(t *testing.T) {
	_, err := run(t, "branches", "t1", "--driver", "sqlite")
	if err == nil || !strings.Contains(err.Error(), "unknown store driver") {
		t.Errorf("error = %v, want unknown store driver", err)
	}
}

var idPattern = regexp.MustCompile(`(?:Appended message|Created variant) (\S+)`)

func firstID(t *testing.T, out string) string {
	t.Helper()
	m := idPattern.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no id in output: %s", out)
	}
	return m[1]
}

func TestRetryWorkflow_Pebble(t *testing.T) {
	dir := t.TempDir()
	store := []string{"--driver", "pebble", "--pebble-path", dir}

	out, err := run(t, append([]string{"append", "--thread", "t1", "--role", "user", "--content", "hi"}, store...)...)
	if err != nil {
		t.Fatalf("append user: %v", err)
	}
	userID := firstID(t, out)

	out, err = run(t, append([]string{"append", "--thread", "t1", "--role", "assistant", "--content", "hello", "--parent", userID}, store...)...)
	if err != nil {
		t.Fatalf("append assistant: %v", err)
	}
	rootID := firstID(t, out)

	out, err = run(t, append([]string{"retry", rootID}, store...)...)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !strings.Contains(out, "sequence 1") || !strings.Contains(out, "forked") || !strings.Contains(out, "branch point "+userID) {
		t.Errorf("unexpected retry output: %s", out)
	}
	variantID := firstID(t, out)

	out, err = run(t, append([]string{"retry", variantID, "--content", "edited"}, store...)...)
	if err != nil {
		t.Fatalf("retry of variant: %v", err)
	}
	if !strings.Contains(out, "of "+rootID) || !strings.Contains(out, "sequence 2") || strings.Contains(out, "forked") {
		t.Errorf("retry of a variant should collapse onto the root and stay in branch: %s", out)
	}

	out, err = run(t, append([]string{"variants", variantID}, store...)...)
	if err != nil {
		t.Fatalf("variants: %v", err)
	}
	if !strings.Contains(out, "Root "+rootID+": 3 version(s)") {
		t.Errorf("unexpected variants output: %s", out)
	}

	out, err = run(t, append([]string{"branches", "t1"}, store...)...)
	if err != nil {
		t.Fatalf("branches: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "main" {
		t.Errorf("branches = %q", lines)
	}

	out, err = run(t, append([]string{"branch", lines[1]}, store...)...)
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if !strings.Contains(out, variantID) {
		t.Errorf("branch listing missing %s: %s", variantID, out)
	}
}
