package entity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestJob(id, name string, deps ...string) *Job {
	job := NewJob(id)
	job.Name = name
	job.RunType = RunTypeCmd
	job.Command = "true"
	for _, dep := range deps {
		job.AddDependency(dep, "")
	}
	return job
}

func TestMatrix(t *testing.T) {
	m := NewMatrix([]string{"a", "b", "c"})
	m.Set("b", "a")
	m.Set("c", "b")

	require.Equal(t, 2, m.Sum())
	require.Equal(t, 0, m.RowSum("a"))
	require.Equal(t, 1, m.RowSum("b"))
	require.Equal(t, 1, m.Cell("b", "a"))

	m.ZeroColumn("a")
	require.Equal(t, 0, m.RowSum("b"))
	require.Equal(t, 1, m.Sum())

	t.Run("UnknownIdsIgnored", func(t *testing.T) {
		m := NewMatrix([]string{"a"})
		m.Set("a", "ghost")
		m.Set("ghost", "a")
		require.Equal(t, 0, m.Sum())
	})
}

func TestMatrixDictRoundTrip(t *testing.T) {
	m := NewMatrix([]string{"a", "b"})
	m.Set("b", "a")

	dict := m.ToDict()
	require.Equal(t, 1, dict["a"]["b"])
	require.Equal(t, 0, dict["a"]["a"])

	rebuilt := MatrixFromDict([]string{"a", "b"}, dict)
	require.True(t, m.Equal(rebuilt))
}

func TestGenerateGraph(t *testing.T) {
	group := NewJobGroup("S-1.P-1.JG-1")
	first := newTestJob("S-1.P-1.JG-1.J-1", "first")
	second := newTestJob("S-1.P-1.JG-1.J-2", "second")
	second.AddDependency("first", "S-1.P-1.JG-1.J-1")
	group.Append(first)
	group.Append(second)

	t.Run("BuildsDependencyMatrix", func(t *testing.T) {
		m := group.GenerateGraph(true)
		require.Equal(t, 1, m.Cell("S-1.P-1.JG-1.J-2", "S-1.P-1.JG-1.J-1"))
		require.Equal(t, 1, m.Sum())
	})

	t.Run("Idempotent", func(t *testing.T) {
		first := group.GenerateGraph(false)
		second := group.GenerateGraph(false)
		require.True(t, first.Equal(second))
	})

	t.Run("ApplyFalseLeavesGraph", func(t *testing.T) {
		applied := group.GenerateGraph(true)
		applied.ZeroColumn("S-1.P-1.JG-1.J-1")
		rebuilt := group.GenerateGraph(false)
		require.False(t, rebuilt.Equal(group.Matrix()))
	})
}

func TestGraphAccessors(t *testing.T) {
	group := NewJobGroup("S-1.P-1.JG-1")
	first := newTestJob("S-1.P-1.JG-1.J-1", "first")
	group.Append(first)
	group.Append(first) // duplicate append keeps one entry

	require.Equal(t, []string{"S-1.P-1.JG-1.J-1"}, group.EntityIDs())
	require.Len(t, group.Entities(), 1)
	require.Same(t, first, group.Entity("S-1.P-1.JG-1.J-1"))
}
