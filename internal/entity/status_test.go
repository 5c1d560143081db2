package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusCodes(t *testing.T) {
	tests := []struct {
		status   Status
		code     int
		name     string
		terminal bool
	}{
		{StatusInitialized, -3, "initialized", false},
		{StatusRunning, -2, "running", false},
		{StatusReRunning, -1, "re_running", false},
		{StatusFinished, 0, "finished", true},
		{StatusUnsuccessful, 1, "unsuccessful", false},
		{StatusFailure, 2, "failure", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.code, int(tt.status))
			require.Equal(t, tt.name, tt.status.String())
			require.Equal(t, tt.terminal, tt.status.IsTerminal())

			parsed, err := ParseStatus(tt.name)
			require.NoError(t, err)
			require.Equal(t, tt.status, parsed)
		})
	}

	_, err := ParseStatus("bogus")
	require.Error(t, err)
}

func TestObjectTypePrefixes(t *testing.T) {
	require.Equal(t, "J", ObjectTypeJob.Prefix())
	require.Equal(t, "JG", ObjectTypeJobGroup.Prefix())
	require.Equal(t, "P", ObjectTypeProcess.Prefix())
	require.Equal(t, "S", ObjectTypeScheduler.Prefix())
}

func TestParseEnums(t *testing.T) {
	runType, err := ParseRunType("cmd")
	require.NoError(t, err)
	require.Equal(t, RunTypeCmd, runType)
	_, err = ParseRunType("shell")
	require.Error(t, err)

	policy, err := ParseExceptionPolicy("skip")
	require.NoError(t, err)
	require.Equal(t, PolicySkip, policy)
	_, err = ParseExceptionPolicy("retry")
	require.Error(t, err)

	objectType, err := ParseObjectType("JobGroup")
	require.NoError(t, err)
	require.Equal(t, ObjectTypeJobGroup, objectType)
	_, err = ParseObjectType("Task")
	require.Error(t, err)
}
