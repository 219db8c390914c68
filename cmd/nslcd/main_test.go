package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/oxzi/gonslcd/internal"
)

// withTerminal replaces the terminal detection of the standard input.
func withTerminal(t *testing.T, terminal bool) {
	t.Helper()

	orig := stdinIsTerminal
	stdinIsTerminal = func() bool { return terminal }
	t.Cleanup(func() { stdinIsTerminal = orig })
}

func TestParseArgs(t *testing.T) {
	withTerminal(t, false)

	tests := []struct {
		name   string
		args   []string
		status int
		exit   bool
		stdout string
		stderr string
	}{
		{name: "none", args: nil},
		{name: "debug", args: []string{"-d"}},
		{name: "config", args: []string{"--config", "/tmp/nslcd.yml", "--debug"}},
		{name: "help", args: []string{"--help"}, exit: true, stdout: "Usage: nslcd"},
		{name: "version", args: []string{"--version"}, exit: true, stdout: "nslcd " + internal.Version},
		{name: "bogus", args: []string{"--bogus"}, status: 1, exit: true, stderr: usageHint},
		{name: "positional", args: []string{"-d", "foo"}, status: 1, exit: true, stderr: "unrecognized option 'foo'"},
		{name: "missing value", args: []string{"-f"}, status: 1, exit: true, stderr: usageHint},
		{name: "detach stage", args: []string{"--" + internal.DetachedFlag + "=7"}, status: 1, exit: true, stderr: "invalid detach stage"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer

			_, status, exit := parseArgs(test.args, &stdout, &stderr)
			assert.Equal(t, test.status, status)
			assert.Equal(t, test.exit, exit)

			if test.stdout == "" {
				assert.Empty(t, stdout.String())
			} else {
				assert.Contains(t, stdout.String(), test.stdout)
			}

			if test.stderr == "" {
				assert.Empty(t, stderr.String())
			} else {
				assert.Contains(t, stderr.String(), test.stderr)
				assert.Contains(t, stderr.String(), usageHint)
				assert.Equal(t, 1, strings.Count(stderr.String(), "\n"), "usage errors are a single line")
			}
		})
	}
}

func TestParseArgsOptions(t *testing.T) {
	withTerminal(t, false)

	var stdout, stderr bytes.Buffer

	opts, _, exit := parseArgs(nil, &stdout, &stderr)
	assert.False(t, exit)
	assert.Equal(t, internal.DefaultConfigFile, opts.configFile)
	assert.False(t, opts.configSet)
	assert.False(t, opts.debug)
	assert.Equal(t, internal.DetachNone, opts.detachStage)

	opts, _, exit = parseArgs([]string{"-d", "-f", "nslcd.yml", "--" + internal.DetachedFlag + "=2"}, &stdout, &stderr)
	assert.False(t, exit)
	assert.Equal(t, "nslcd.yml", opts.configFile)
	assert.True(t, opts.configSet)
	assert.True(t, opts.debug)
	assert.Equal(t, internal.DetachDaemon, opts.detachStage)

	opts, _, exit = parseArgs([]string{"--" + internal.DetachedFlag, "1"}, &stdout, &stderr)
	assert.False(t, exit)
	assert.Equal(t, internal.DetachSession, opts.detachStage)
}

func TestParseArgsDetachedFromTerminal(t *testing.T) {
	withTerminal(t, true)

	var stdout, stderr bytes.Buffer

	opts, status, exit := parseArgs([]string{"--" + internal.DetachedFlag + "=2"}, &stdout, &stderr)
	assert.True(t, exit)
	assert.Equal(t, 1, status)
	assert.Equal(t, internal.DetachNone, opts.detachStage)
	assert.Equal(t,
		"nslcd: unrecognized option '--"+internal.DetachedFlag+"'; "+usageHint+"\n", stderr.String())
	assert.Empty(t, stdout.String())

	stderr.Reset()
	_, status, exit = parseArgs([]string{"-d"}, &stdout, &stderr)
	assert.False(t, exit)
	assert.Equal(t, 0, status)
	assert.Empty(t, stderr.String())
}

func TestUsageHidesDetached(t *testing.T) {
	withTerminal(t, false)

	var stdout, stderr bytes.Buffer

	_, _, _ = parseArgs([]string{"--help"}, &stdout, &stderr)
	assert.True(t, strings.Contains(stdout.String(), "--config FILE"))
	assert.False(t, strings.Contains(stdout.String(), internal.DetachedFlag))
}
