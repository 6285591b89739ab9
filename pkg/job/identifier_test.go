package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fileident/pkg/batch"
	"fileident/pkg/isopath"
	"fileident/pkg/meta"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIdentifier_Scenario(t *testing.T) {
	// A, B, C 内容相同 (h1)，D 不同 (h2)，阈值 = 2
	f := newFixture(t)
	a := f.file("a.txt", "same bytes")
	b := f.file("b.txt", "same bytes")
	c := f.file("docs/c.txt", "same bytes")
	d := f.file("d.txt", "different")

	j, err := New(Options{LocationID: f.loc.ID, ChunkSize: 2}, f.deps())
	require.NoError(t, err)

	report, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Succeeded())
	assert.False(t, report.HasWarnings())

	// 恰好两个单元：{h1:[A,B,C]} 单独派发，{h2:[D]} 作为剩余部分
	units := f.spy.dispatched()
	require.Len(t, units, 2)
	assert.Len(t, units[0].batch, 1)
	assert.Equal(t, 3, units[0].batch.Len())
	assert.Len(t, units[1].batch, 1)
	assert.Equal(t, 1, units[1].batch.Len())

	stored := f.reload(a, b, c, d)
	oa := *stored[a.ID].ObjectID
	assert.Equal(t, oa, *stored[b.ID].ObjectID)
	assert.Equal(t, oa, *stored[c.ID].ObjectID)
	assert.NotEqual(t, oa, *stored[d.ID].ObjectID)
	assert.Equal(t, *stored[a.ID].CasID, *stored[c.ID].CasID)

	assert.Equal(t, int64(2), f.countObjects())
	assert.Equal(t, Stats{
		Orphans:         4,
		Identified:      4,
		Units:           2,
		CreatedObjects:  2,
		LinkedFilePaths: 4,
		Steps:           1,
	}, report.Stats)
}

func TestFileIdentifier_EmptyFilesNeverIdentified(t *testing.T) {
	f := newFixture(t)
	empty := f.file("empty.txt", "")
	full := f.file("full.txt", "x")

	for i := 0; i < 2; i++ {
		j, err := New(Options{LocationID: f.loc.ID}, f.deps())
		require.NoError(t, err)
		_, err = j.Run(context.Background())
		require.NoError(t, err)
	}

	stored := f.reload(empty, full)
	assert.Nil(t, stored[empty.ID].CasID)
	assert.Nil(t, stored[empty.ID].ObjectID)
	assert.NotNil(t, stored[full.ID].ObjectID)
	assert.Equal(t, int64(1), f.countObjects())
}

func TestFileIdentifier_ShrunkToEmptyIsSkipped(t *testing.T) {
	f := newFixture(t)
	row := f.record("shrunk.bin", 42)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "shrunk.bin"), nil, 0644))

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Stats.Skipped)
	assert.Equal(t, 0, report.Stats.Units)
	assert.Nil(t, f.reload(row)[row.ID].ObjectID)
}

func TestFileIdentifier_Idempotent(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.file(fmt.Sprintf("f%d.txt", i), fmt.Sprintf("content %d", i%2))
	}

	run := func() *Report {
		j, err := New(Options{LocationID: f.loc.ID, ChunkSize: 2}, f.deps())
		require.NoError(t, err)
		report, err := j.Run(context.Background())
		require.NoError(t, err)
		return report
	}

	first := run()
	assert.Equal(t, 5, first.Stats.Orphans)
	assert.Equal(t, int64(2), f.countObjects())

	f.spy.reset()
	second := run()
	assert.Equal(t, 0, second.Stats.Orphans)
	assert.Equal(t, 0, second.Stats.Units)
	assert.Empty(t, f.spy.dispatched())
	assert.Equal(t, int64(2), f.countObjects())
}

func TestFileIdentifier_ConservationAndChunkingBound(t *testing.T) {
	f := newFixture(t)
	// 30 个文件，7 种内容，分多页扫描
	for i := 0; i < 30; i++ {
		f.file(fmt.Sprintf("dir%d/f%02d.dat", i%3, i), fmt.Sprintf("payload-%d", i%7))
	}

	const chunk = 4
	j, err := New(Options{LocationID: f.loc.ID, ChunkSize: chunk, PageSize: 8}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)

	units := f.spy.dispatched()
	total := 0
	for i, u := range units {
		total += u.batch.Len()
		if i == len(units)-1 {
			continue
		}
		// 非最后一个单元不低于阈值；超过阈值的分组只能单独成为一个单元
		assert.GreaterOrEqual(t, u.batch.Len(), chunk)
		for _, paths := range u.batch {
			if len(paths) >= chunk {
				assert.Len(t, u.batch, 1)
			}
		}
	}

	assert.Equal(t, 30, report.Stats.Orphans)
	assert.Equal(t, report.Stats.Orphans, total)
	assert.Equal(t, 4, report.Stats.Steps)
	assert.Equal(t, int64(7), f.countObjects())
}

func TestFileIdentifier_DedupAcrossSteps(t *testing.T) {
	// 相同内容分布在不同的页里，最终仍然只对应一个对象
	f := newFixture(t)
	var rows []meta.FilePath
	for i := 0; i < 9; i++ {
		rows = append(rows, f.file(fmt.Sprintf("f%d.txt", i), "identical"))
	}

	j, err := New(Options{LocationID: f.loc.ID, ChunkSize: 100, PageSize: 2}, f.deps())
	require.NoError(t, err)
	_, err = j.Run(context.Background())
	require.NoError(t, err)

	stored := f.reload(rows...)
	want := *stored[rows[0].ID].ObjectID
	for _, r := range rows {
		assert.Equal(t, want, *stored[r.ID].ObjectID)
	}
	assert.Equal(t, int64(1), f.countObjects())
	// 累加器跨页保留，最后一次性派发
	assert.Len(t, f.spy.dispatched(), 1)
}

func TestFileIdentifier_ResumeMatchesContinuousRun(t *testing.T) {
	f := newFixture(t)
	contents := []string{"a", "b", "a", "c", "b", "a", "d"}
	var rows []meta.FilePath
	for i, c := range contents {
		rows = append(rows, f.file(fmt.Sprintf("f%d.txt", i), c))
	}
	ctx := context.Background()

	j, err := New(Options{LocationID: f.loc.ID, ChunkSize: 3, PageSize: 3}, f.deps())
	require.NoError(t, err)

	done, err := j.Step(ctx)
	require.NoError(t, err)
	require.False(t, done)
	assert.Equal(t, PhaseScanning, j.Phase())

	blob, err := j.Snapshot()
	require.NoError(t, err)

	state, err := DecodeState(blob)
	require.NoError(t, err)
	assert.Equal(t, rows[2].ID, state.Cursor)
	assert.Equal(t, 3, state.Stats.Orphans)

	// 换一个新的进程继续
	resumed, err := Resume(blob, f.deps())
	require.NoError(t, err)
	report, err := resumed.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(contents), report.Stats.Orphans)
	assert.True(t, report.Succeeded())

	// 相同内容 <=> 相同对象
	stored := f.reload(rows...)
	for i := range rows {
		for k := range rows {
			same := *stored[rows[i].ID].ObjectID == *stored[rows[k].ID].ObjectID
			assert.Equal(t, contents[i] == contents[k], same, "rows %d and %d", i, k)
		}
	}
	assert.Equal(t, int64(4), f.countObjects())
}

func TestFileIdentifier_ResumeCompleted(t *testing.T) {
	f := newFixture(t)
	f.file("a.txt", "a")

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	_, err = j.Run(context.Background())
	require.NoError(t, err)

	blob, err := j.Snapshot()
	require.NoError(t, err)

	resumed, err := Resume(blob, f.deps())
	require.NoError(t, err)
	assert.True(t, resumed.Done())

	f.spy.reset()
	done, err := resumed.Step(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, f.spy.dispatched())
}

func TestFileIdentifier_InterruptKeepsCheckpoint(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 4; i++ {
		f.file(fmt.Sprintf("f%d.txt", i), fmt.Sprintf("%d", i))
	}

	j, err := New(Options{LocationID: f.loc.ID, PageSize: 2}, f.deps())
	require.NoError(t, err)

	_, err = j.Step(context.Background())
	require.NoError(t, err)
	before, err := j.Snapshot()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done, err := j.Step(ctx)
	assert.False(t, done)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PhaseInterrupted, j.Phase())

	after, err := j.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// 中断之后可以继续
	report, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, report.Stats.Orphans)
}

func TestFileIdentifier_NonCriticalErrors(t *testing.T) {
	f := newFixture(t)
	ok := f.file("ok.txt", "fine")
	missing := f.record("gone.txt", 10)

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Succeeded())
	require.Len(t, report.Errors, 1)
	assert.Equal(t, FailedToExtractFileMetadata, report.Errors[0].Kind)
	assert.Equal(t, filepath.Join(f.root, "gone.txt"), report.Errors[0].Path)
	assert.Contains(t, report.Errors[0].String(), "gone.txt")
	assert.Equal(t, 1, report.Stats.Failed)

	stored := f.reload(ok, missing)
	assert.NotNil(t, stored[ok.ID].ObjectID)
	assert.Nil(t, stored[missing.ID].ObjectID, "failed record stays orphan")
	assert.Nil(t, stored[missing.ID].CasID)
}

func TestFileIdentifier_DirectoryOnDiskIsNonCritical(t *testing.T) {
	f := newFixture(t)
	row := f.record("weird.txt", 10)
	require.NoError(t, os.Mkdir(filepath.Join(f.root, "weird.txt"), 0755))

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, FailedToExtractFileMetadata, report.Errors[0].Kind)
	assert.Nil(t, f.reload(row)[row.ID].ObjectID)
}

func TestFileIdentifier_InvalidIsolatedPath(t *testing.T) {
	f := newFixture(t)
	rows := []meta.FilePath{{
		LocationID:       f.loc.ID,
		MaterializedPath: "no-leading-slash/",
		Name:             "x",
		Extension:        "txt",
		SizeInBytes:      3,
	}}
	require.NoError(t, f.repo.UpsertFilePaths(context.Background(), rows))

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, FailedToExtractIsolatedFilePathData, report.Errors[0].Kind)
}

func TestFileIdentifier_DeepSubPath(t *testing.T) {
	f := newFixture(t)
	inside := f.file("photos/2024/cat.jpg", "meow")
	nested := f.file("photos/2024/trip/dog.jpg", "woof")
	outside := f.file("music/song.mp3", "la la")

	j, err := New(Options{LocationID: f.loc.ID, SubPath: "photos/2024"}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stats.Orphans)

	stored := f.reload(inside, nested, outside)
	assert.NotNil(t, stored[inside.ID].ObjectID)
	assert.NotNil(t, stored[nested.ID].ObjectID)
	assert.Nil(t, stored[outside.ID].ObjectID)
}

func TestFileIdentifier_DeepSubPathCaseSensitive(t *testing.T) {
	f := newFixture(t)
	inside := f.file("Photos/cat.jpg", "meow")
	sibling := f.file("photos/dog.jpg", "woof")

	j, err := New(Options{LocationID: f.loc.ID, SubPath: "Photos"}, f.deps())
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Orphans)

	stored := f.reload(inside, sibling)
	assert.NotNil(t, stored[inside.ID].ObjectID)
	assert.Nil(t, stored[sibling.ID].ObjectID, "/photos/ is not under /Photos/")
}

func TestShallow(t *testing.T) {
	f := newFixture(t)
	direct := f.file("photos/cat.jpg", "meow")
	nested := f.file("photos/2024/dog.jpg", "woof")
	root := f.file("readme.md", "# hi")

	report, err := Shallow(context.Background(), f.deps(), f.loc.ID, "photos", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Orphans)

	stored := f.reload(direct, nested, root)
	assert.NotNil(t, stored[direct.ID].ObjectID)
	assert.Nil(t, stored[nested.ID].ObjectID)
	assert.Nil(t, stored[root.ID].ObjectID)

	units := f.spy.dispatched()
	require.Len(t, units, 1)
	assert.True(t, units[0].priority)

	// 空子路径表示根目录的直接子文件
	report, err = Shallow(context.Background(), f.deps(), f.loc.ID, "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Orphans)
	assert.NotNil(t, f.reload(root)[root.ID].ObjectID)
}

func TestFileIdentifier_SubPathErrors(t *testing.T) {
	f := newFixture(t)
	f.file("file.txt", "not a dir")

	tests := []struct {
		name    string
		subPath string
		want    error
	}{
		{"missing", "nope", isopath.ErrSubPathNotFound},
		{"not a directory", "file.txt", isopath.ErrNotDirectory},
		{"outside location", "../elsewhere", isopath.ErrOutsideLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, err := New(Options{LocationID: f.loc.ID, SubPath: tt.subPath}, f.deps())
			require.NoError(t, err)

			done, err := j.Step(context.Background())
			assert.True(t, done)
			assert.ErrorIs(t, err, tt.want)

			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindSubPath, kind)
			assert.Equal(t, PhaseFailed, j.Phase())

			// 失败之后不再前进
			_, again := j.Step(context.Background())
			assert.Equal(t, err, again)
		})
	}
}

func TestFileIdentifier_LocationNotFound(t *testing.T) {
	f := newFixture(t)
	j, err := New(Options{LocationID: 9999}, f.deps())
	require.NoError(t, err)

	_, err = j.Run(context.Background())
	assert.ErrorIs(t, err, meta.ErrLocationNotFound)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindDatabase, kind)
}

func TestFileIdentifier_UnitFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	row := f.file("a.txt", "a")
	boom := errors.New("connection reset")

	deps := f.deps()
	deps.Objects = failingStore{Store: f.repo, err: boom}

	j, err := New(Options{LocationID: f.loc.ID}, deps)
	require.NoError(t, err)
	report, err := j.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	kind, _ := KindOf(err)
	assert.Equal(t, KindDatabase, kind)
	assert.Equal(t, PhaseFailed, report.Phase)
	assert.Nil(t, f.reload(row)[row.ID].ObjectID)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := New(Options{LocationID: f.loc.ID}, Deps{})
	assert.Error(t, err)

	_, err = New(Options{}, f.deps())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMissingField, kind)

	j, err := New(Options{LocationID: f.loc.ID}, f.deps())
	require.NoError(t, err)
	assert.Equal(t, batch.DefaultChunkSize, j.state.Options.ChunkSize)
	assert.Equal(t, PhaseIdle, j.Phase())
}

func TestFileIdentifier_PendingSurvivesSnapshot(t *testing.T) {
	f := newFixture(t)
	f.file("a.txt", "x")
	f.file("b.txt", "y")
	f.file("c.txt", "z")

	j, err := New(Options{LocationID: f.loc.ID, ChunkSize: 10, PageSize: 2}, f.deps())
	require.NoError(t, err)
	_, err = j.Step(context.Background())
	require.NoError(t, err)

	blob, err := j.Snapshot()
	require.NoError(t, err)
	state, err := DecodeState(blob)
	require.NoError(t, err)

	// 两条记录仍在累加器中，尚未派发
	assert.Equal(t, 2, state.Pending.Len())
	assert.Empty(t, f.spy.dispatched())
	for casID := range state.Pending {
		assert.True(t, casID.IsValid())
		assert.False(t, strings.ContainsAny(casID.String(), "ABCDEF"))
	}
}
