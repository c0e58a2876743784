package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/vetcheck/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestExtract(t *testing.T) {
	out, err := run(t, "extract", "My", "2 year old <b>Labrador</b>", "dog is vomiting")
	require.NoError(t, err)

	var got extractResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "dog", got.Species)
	assert.Equal(t, "labrador", got.Breed)
	assert.Equal(t, "large", got.Size)
	require.NotNil(t, got.AgeYears)
	assert.Equal(t, 2, *got.AgeYears)
	assert.Equal(t, []string{"vomiting"}, got.Symptoms)
}

func TestClassifyYAML(t *testing.T) {
	out, err := run(t, "classify", "-o", "yaml", "my cat had a seizure")
	require.NoError(t, err)

	var got classifyResult
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "CRITICAL", got.Urgency)
	assert.True(t, got.Emergency)
	assert.Contains(t, got.MatchedKeywords, "seizure")
	assert.NotEmpty(t, got.Instructions)
}

func TestClassifyPrior(t *testing.T) {
	out, err := run(t, "classify", "--prior", "high", "he seems fine now")
	require.NoError(t, err)

	var got classifyResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "HIGH", got.Urgency, "urgency never drops below the prior")

	_, err = run(t, "classify", "--prior", "severe", "x")
	assert.Error(t, err)
}

func TestUnknownOutput(t *testing.T) {
	_, err := run(t, "extract", "-o", "xml", "dog")
	assert.Error(t, err)
}

func TestSweep(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sweep.db")

	past := time.Now().Add(-48 * time.Hour)
	old, err := store.NewSQLite(ctx, dbPath, store.WithClock(func() time.Time { return past }))
	require.NoError(t, err)
	_, err = old.GetOrCreate(ctx, "3f1c2a7e-5b8d-4e9a-9c1f-0a2b3c4d5e6f")
	require.NoError(t, err)
	require.NoError(t, old.Close())

	fresh, err := store.NewSQLite(ctx, dbPath)
	require.NoError(t, err)
	_, err = fresh.GetOrCreate(ctx, "8a7b6c5d-4e3f-4a1b-8c2d-1e0f9a8b7c6d")
	require.NoError(t, err)
	require.NoError(t, fresh.Close())

	out, err := run(t, "sweep", "--database-url", dbPath, "--idle", "1h", "--dry-run")
	require.NoError(t, err)
	var dry sweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &dry))
	assert.True(t, dry.DryRun)
	assert.Equal(t, []string{"3f1c2a7e-5b8d-4e9a-9c1f-0a2b3c4d5e6f"}, dry.Closed)

	out, err = run(t, "sweep", "--database-url", dbPath, "--idle", "1h", "--retention", "24h")
	require.NoError(t, err)
	var got sweepResult
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"3f1c2a7e-5b8d-4e9a-9c1f-0a2b3c4d5e6f"}, got.Closed)
	assert.Equal(t, int64(1), got.Purged)

	st, err := store.NewSQLite(ctx, dbPath)
	require.NoError(t, err)
	defer st.Close()
	gone, err := st.Get(ctx, "3f1c2a7e-5b8d-4e9a-9c1f-0a2b3c4d5e6f")
	require.NoError(t, err)
	assert.Nil(t, gone)
	kept, err := st.Get(ctx, "8a7b6c5d-4e3f-4a1b-8c2d-1e0f9a8b7c6d")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
