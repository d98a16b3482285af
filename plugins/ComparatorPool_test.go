package plugins

import (
	"context"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"ywwzwb/imagearchive/interfaces"
	"ywwzwb/imagearchive/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startPool(t *testing.T, transcoder interfaces.ITranscoderService) *ComparatorPool {
	t.Helper()
	pool := newComparatorPool()
	require.NoError(t, pool.start(defaultConfig().Comparator, transcoder))
	t.Cleanup(pool.Unload)
	return pool
}

func TestComparatorPoolFindMatch(t *testing.T) {
	dir := t.TempDir()
	base := scene(160, 120)
	writeJPEG(t, filepath.Join(dir, "dog.jpg"), invert(base), 90)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("garbage"), 0644))
	writeJPEG(t, filepath.Join(dir, "cat.jpg"), base, 90)
	writeJPEG(t, filepath.Join(dir, "temp_1.jpg"), base, 60)

	pool := startPool(t, nil)
	result, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.jpg"),
		Dir:           dir,
		Filenames:     []string{"dog.jpg", "broken.jpg", "missing.jpg", "cat.jpg"},
		Threshold:     25,
	})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "cat.jpg", result.Filename)
	assert.Less(t, result.Score, 25.0)
	assert.Equal(t, 2, result.Compared)
}

func TestComparatorPoolNoMatch(t *testing.T) {
	dir := t.TempDir()
	base := scene(160, 120)
	writeJPEG(t, filepath.Join(dir, "cat.jpg"), base, 90)
	writeJPEG(t, filepath.Join(dir, "temp_1.jpg"), invert(base), 90)

	pool := startPool(t, nil)
	result, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.jpg"),
		Dir:           dir,
		Filenames:     []string{"cat.jpg"},
		Threshold:     25,
	})
	require.NoError(t, err)
	assert.False(t, result.Found)
	assert.Equal(t, 1, result.Compared)
}

func TestComparatorPoolUndecodableCandidate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp_1.jpg"), []byte("garbage"), 0644))

	pool := startPool(t, nil)
	_, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.jpg"),
		Dir:           dir,
		Threshold:     25,
	})
	assert.ErrorIs(t, err, util.ErrUndecodableImage)
}

func TestComparatorPoolClosed(t *testing.T) {
	pool := newComparatorPool()
	require.NoError(t, pool.start(defaultConfig().Comparator, nil))
	pool.Unload()

	_, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{CandidatePath: "x.jpg"})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

// copyTranscoder pretends every .heic file needs converting and copies it.
type copyTranscoder struct {
	calls atomic.Int32
}

func (c *copyTranscoder) NeedsTranscode(path string) bool {
	return filepath.Ext(path) == ".heic"
}

func (c *copyTranscoder) ToPNG(ctx context.Context, input, output string) error {
	c.calls.Add(1)
	src, err := os.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(output)
	if err != nil {
		return err
	}
	defer dst.Close()
	_, err = io.Copy(dst, src)
	return err
}

func TestComparatorPoolTranscodesCandidate(t *testing.T) {
	dir := t.TempDir()
	base := scene(160, 120)
	writeJPEG(t, filepath.Join(dir, "cat.jpg"), base, 90)
	f, err := os.Create(filepath.Join(dir, "temp_1.heic"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, base))
	require.NoError(t, f.Close())

	transcoder := &copyTranscoder{}
	pool := newComparatorPool()
	require.NoError(t, pool.start(defaultConfig().Comparator, transcoder))
	t.Cleanup(pool.Unload)
	scratch := pool.scratchDir
	require.DirExists(t, scratch)
	result, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.heic"),
		Dir:           dir,
		Filenames:     []string{"cat.jpg"},
		Threshold:     25,
	})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, int32(1), transcoder.calls.Load())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	converted, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, converted)

	pool.Unload()
	assert.NoDirExists(t, scratch)
}

func TestComparatorPoolFirstMatchWins(t *testing.T) {
	dir := t.TempDir()
	base := scene(160, 120)
	writeJPEG(t, filepath.Join(dir, "rough.jpg"), base, 60)
	writeJPEG(t, filepath.Join(dir, "exact.jpg"), base, 90)
	writeJPEG(t, filepath.Join(dir, "temp_1.jpg"), base, 90)

	pool := startPool(t, nil)
	result, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.jpg"),
		Dir:           dir,
		Filenames:     []string{"rough.jpg", "exact.jpg"},
		Threshold:     25,
	})
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "rough.jpg", result.Filename)
	assert.Equal(t, 1, result.Compared)

	exact, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
		CandidatePath: filepath.Join(dir, "temp_1.jpg"),
		Dir:           dir,
		Filenames:     []string{"exact.jpg"},
		Threshold:     25,
	})
	require.NoError(t, err)
	assert.Equal(t, "exact.jpg", exact.Filename)
	assert.LessOrEqual(t, exact.Score, result.Score)
}

func TestComparatorPoolConcurrentRequests(t *testing.T) {
	dir := t.TempDir()
	base := scene(96, 96)
	writeJPEG(t, filepath.Join(dir, "cat.jpg"), base, 90)
	writeJPEG(t, filepath.Join(dir, "temp_1.jpg"), base, 70)

	cfg := defaultConfig().Comparator
	cfg.Workers = 3
	pool := newComparatorPool()
	require.NoError(t, pool.start(cfg, nil))
	defer pool.Unload()

	results := make(chan interfaces.MatchResult, 6)
	for idx := 0; idx < 6; idx++ {
		go func() {
			result, err := pool.FindMatch(context.Background(), interfaces.MatchRequest{
				CandidatePath: filepath.Join(dir, "temp_1.jpg"),
				Dir:           dir,
				Filenames:     []string{"cat.jpg"},
				Threshold:     25,
			})
			assert.NoError(t, err)
			results <- result
		}()
	}
	for idx := 0; idx < 6; idx++ {
		assert.True(t, (<-results).Found)
	}
}
