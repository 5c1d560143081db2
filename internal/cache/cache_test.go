package cache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetChild(t *testing.T) {
	c := New("S-1", nil, nil, nil)

	t.Run("MaterializesUnderRoot", func(t *testing.T) {
		require.NoError(t, c.SetChild("S-1.P-1"))
		require.True(t, c.HasNode("S-1.P-1"))
		require.True(t, c.IsChild("S-1", "S-1.P-1"))
	})

	t.Run("MaterializesNested", func(t *testing.T) {
		require.NoError(t, c.SetChild("S-1.P-1.J-1"))
		require.True(t, c.IsChild("S-1.P-1", "S-1.P-1.J-1"))
	})

	t.Run("MissingParentFails", func(t *testing.T) {
		err := c.SetChild("S-1.P-9.J-1")
		require.ErrorIs(t, err, ErrBadID)
	})

	t.Run("RootLevelFails", func(t *testing.T) {
		err := c.SetChild("S-2")
		require.ErrorIs(t, err, ErrBadID)
	})
}

func TestGetParametersInheritance(t *testing.T) {
	c := New("S-1", map[string]any{"env": "dev", "region": "eu"}, nil, nil)
	require.NoError(t, c.SetChild("S-1.P-1"))
	require.NoError(t, c.SetChild("S-1.P-1.J-1"))
	c.SetParameters("S-1.P-1", map[string]any{"env": "prod"})

	t.Run("NearerAncestorWins", func(t *testing.T) {
		params := c.GetParameters("S-1.P-1.J-1", true)
		require.Equal(t, "prod", params["env"])
		require.Equal(t, "eu", params["region"])
	})

	t.Run("ReservedEntityID", func(t *testing.T) {
		params := c.GetParameters("S-1.P-1.J-1", true)
		require.Equal(t, "S-1.P-1.J-1", params[KeyEntityID])
	})

	t.Run("AncestorCannotShadowEntityID", func(t *testing.T) {
		c.SetParameters("S-1", map[string]any{KeyEntityID: "spoofed"})
		params := c.GetParameters("S-1.P-1.J-1", true)
		require.Equal(t, "S-1.P-1.J-1", params[KeyEntityID])
		c.SetParameters("S-1", map[string]any{"env": "dev", "region": "eu"})
	})

	t.Run("NoLookBack", func(t *testing.T) {
		params := c.GetParameters("S-1.P-1.J-1", false)
		require.NotContains(t, params, "env")
		require.Equal(t, "S-1.P-1.J-1", params[KeyEntityID])
	})
}

func TestUpdateParameters(t *testing.T) {
	c := New("S-1", nil, nil, nil)
	require.NoError(t, c.SetChild("S-1.P-1"))
	c.SetParameters("S-1.P-1", map[string]any{"a": 1, "b": 2})
	c.UpdateParameters("S-1.P-1", map[string]any{"b": 3, "c": 4})

	params := c.GetParameters("S-1.P-1", false)
	require.Equal(t, 1, params["a"])
	require.Equal(t, 3, params["b"])
	require.Equal(t, 4, params["c"])
}

func TestReadState(t *testing.T) {
	t.Run("StoresMetadataByEntityID", func(t *testing.T) {
		c := New("S-1", nil, nil, nil)
		c.ReadState(map[string]any{KeyMetadataID: "S-1.P-1", "status": "running"}, false)
		meta := c.GetMetadata("S-1.P-1")
		require.NotNil(t, meta)
		require.Equal(t, "running", meta["status"])
	})

	t.Run("RunsHandlers", func(t *testing.T) {
		var snapshots []Snapshot
		var reported []map[string]any
		c := New("S-1", map[string]any{"env": "prod"},
			func(s Snapshot) { snapshots = append(snapshots, s) },
			func(meta, params map[string]any) { reported = append(reported, params) },
		)
		require.NoError(t, c.SetChild("S-1.P-1"))

		c.ReadState(map[string]any{KeyMetadataID: "S-1.P-1"}, true)
		require.Len(t, snapshots, 1)
		require.Equal(t, "S-1", snapshots[0].ID)
		require.Len(t, reported, 1)
		require.Equal(t, "prod", reported[0]["env"])
	})

	t.Run("HandlersSuppressed", func(t *testing.T) {
		calls := 0
		c := New("S-1", nil, func(Snapshot) { calls++ }, nil)
		c.ReadState(map[string]any{KeyMetadataID: "S-1.P-1"}, false)
		require.Zero(t, calls)
	})
}

func TestUpdateHelpers(t *testing.T) {
	c := New("S-1", nil, nil, nil)
	require.NoError(t, c.SetChild("S-1.P-1"))
	require.NoError(t, c.SetChild("S-1.P-1.JG-1"))
	require.NoError(t, c.SetChild("S-1.P-1.JG-1.J-1"))

	UpdateParentParameters(c, "S-1.P-1.JG-1.J-1", map[string]any{"result": 9})
	require.Equal(t, 9, c.GetParameters("S-1.P-1.JG-1", false)["result"])

	UpdateProcessParameters(c, "S-1.P-1.JG-1.J-1", map[string]any{"done": true})
	require.Equal(t, true, c.GetParameters("S-1.P-1", false)["done"])
}

func TestSplitID(t *testing.T) {
	require.Equal(t, []string{"S-1", "P-2", "J-3"}, SplitID("S-1.P-2.J-3"))
	require.Equal(t, "S-1.P-2", ParentID("S-1.P-2.J-3"))
	require.Equal(t, "", ParentID("S-1"))
}
