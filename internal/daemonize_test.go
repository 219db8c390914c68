package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetachArgs(t *testing.T) {
	tests := []struct {
		args  []string
		stage DetachStage
		want  []string
	}{
		{nil, DetachSession, []string{"--detached=1"}},
		{[]string{"-f", "nslcd.yml"}, DetachSession, []string{"--detached=1", "-f", "nslcd.yml"}},
		{[]string{"--detached=1", "-f", "nslcd.yml"}, DetachDaemon, []string{"--detached=2", "-f", "nslcd.yml"}},
		{[]string{"--detached", "1", "--config=x"}, DetachDaemon, []string{"--detached=2", "--config=x"}},
		{[]string{"-f", "x", "--", "--detached=1"}, DetachDaemon, []string{"--detached=2", "-f", "x", "--", "--detached=1"}},
	}

	for _, test := range tests {
		assert.Equal(t, test.want, detachArgs(test.args, test.stage), "%v", test.args)
	}
}

func TestParseDetachStage(t *testing.T) {
	stage, err := ParseDetachStage("1")
	require.NoError(t, err)
	assert.Equal(t, DetachSession, stage)

	stage, err = ParseDetachStage("2")
	require.NoError(t, err)
	assert.Equal(t, DetachDaemon, stage)

	for _, s := range []string{"", "0", "3", "-1", "daemon"} {
		_, err := ParseDetachStage(s)
		assert.Error(t, err, s)
	}

	assert.Equal(t, "DetachStage(5)", DetachStage(5).String())
}
