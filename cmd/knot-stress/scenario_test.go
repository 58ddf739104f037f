package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/oliverbestmann/knot"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")

	require.NoError(t, os.WriteFile(path, []byte("duration: 250ms\nentities: 42\nworlds: 3\n"), 0o644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	require.Equal(t, 250*time.Millisecond, scenario.Duration)
	require.Equal(t, 42, scenario.Entities)
	require.Equal(t, 3, scenario.Worlds)

	// unset values keep their defaults
	require.Equal(t, DefaultScenario().Churn, scenario.Churn)
}

func TestLoadScenario_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")

	require.NoError(t, os.WriteFile(path, []byte("worlds: 0\n"), 0o644))

	_, err := LoadScenario(path)
	require.ErrorIs(t, err, ErrInvalidScenario)

	_, err = LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSimulation(t *testing.T) {
	scenario := DefaultScenario()
	scenario.Entities = 500
	scenario.Bounds = 5

	w := newSimulation(scenario, 0)

	parents, _ := knot.ResourceOf[Parents](w)
	require.Len(t, parents.Items, scenario.Churn)

	for range 20 {
		w.Update()
	}

	// every frozen entity lost its velocity
	require.Equal(t, 0, knot.NewQuery1[Velocity](w, knot.With[Frozen]()).Count())

	// churn keeps the number of families stable
	require.Len(t, parents.Items, scenario.Churn)
	for _, parent := range parents.Items {
		require.Len(t, w.ChildrenOf(parent), scenario.Children)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result := runSimulation(ctx, w, 0)
	require.Positive(t, result.Updates)
	require.Positive(t, result.Archetypes)
	require.NotEmpty(t, result.Systems)

	report := &Report{RunId: "test", Scenario: scenario, Worlds: []WorldResult{result}}

	var buf bytes.Buffer
	require.NoError(t, report.Generate(&buf))
	require.Contains(t, buf.String(), "knot stress report test")
	require.Contains(t, buf.String(), "moveSystem")
}
