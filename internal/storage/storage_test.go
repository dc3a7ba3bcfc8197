package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceda-hhs/onecho/internal/model"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reg.Close()) })
	return reg
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "runs.db")
	reg, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, reg.Close())
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	runID, err := reg.BeginRun(ctx, "convert")
	require.NoError(t, err)
	require.Positive(t, runID)

	require.NoError(t, reg.RecordFile(ctx, runID, FileResult{
		InputFile:  "data/VAKHAVW.asc",
		LayoutName: "Bestandsbeschrijving VAKHAVW.asc",
		OutputFile: "output/VAKHAVW.csv",
		Status:     FileStatusSuccess,
		Records:    1204,
		Malformed:  1,
		Reason:     "exact",
	}))
	require.NoError(t, reg.RecordFile(ctx, runID, FileResult{
		InputFile: "data/unknown.dat",
		Status:    FileStatusSkipped,
		Reason:    "no layout found",
	}))

	var report model.ValidationReport
	report.Warnf("Volgnummer", "gap of 2 positions")
	report.Errorf("", "observed record length 50 does not match declared 48")
	require.NoError(t, reg.RecordReport(ctx, runID, "data/VAKHAVW.asc", report))

	require.NoError(t, reg.FinishRun(ctx, runID, RunStatusCompleted))

	runs, err := reg.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
	assert.Equal(t, "convert", runs[0].Command)
	assert.Equal(t, RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 2, runs[0].Files)
	assert.Equal(t, 1, runs[0].Errors)
	assert.Equal(t, 1, runs[0].Warnings)
	assert.NotNil(t, runs[0].FinishedAt)

	files, err := reg.RunFiles(ctx, runID)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "data/VAKHAVW.asc", files[0].InputFile)
	assert.Equal(t, int64(1204), files[0].Records)
	assert.Equal(t, 1, files[0].Malformed)
	assert.Equal(t, FileStatusSkipped, files[1].Status)
}

func TestFinishRun_UnknownRun(t *testing.T) {
	reg := openTestRegistry(t)
	err := reg.FinishRun(context.Background(), 9999, RunStatusFailed)
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns_Ordering(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	first, err := reg.BeginRun(ctx, "extract")
	require.NoError(t, err)
	second, err := reg.BeginRun(ctx, "convert")
	require.NoError(t, err)

	runs, err := reg.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second, runs[0].ID, "newest run first")
	assert.Equal(t, first, runs[1].ID)
}

func TestListRuns_Limit(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	for i := 0; i < 5; i++ {
		_, err := reg.BeginRun(ctx, "validate")
		require.NoError(t, err)
	}

	runs, err := reg.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRecordReport_EmptyReportIsNoop(t *testing.T) {
	ctx := context.Background()
	reg := openTestRegistry(t)

	runID, err := reg.BeginRun(ctx, "validate")
	require.NoError(t, err)
	require.NoError(t, reg.RecordReport(ctx, runID, "file", model.ValidationReport{}))
}

func TestNilContext(t *testing.T) {
	reg := openTestRegistry(t)

	//nolint:staticcheck // nil context is exactly what is under test
	_, err := reg.BeginRun(nil, "x")
	require.ErrorIs(t, err, ErrNilContext)
	//nolint:staticcheck
	require.ErrorIs(t, reg.FinishRun(nil, 1, RunStatusFailed), ErrNilContext)
	//nolint:staticcheck
	require.ErrorIs(t, reg.RecordFile(nil, 1, FileResult{}), ErrNilContext)
}
