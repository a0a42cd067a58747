package program

import (
	"context"
	"testing"
	"time"

	"storycast/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manifestWith(key model.GenerationKey, files []string) *model.CombinedManifest {
	m := &model.CombinedManifest{}
	m.Merge(&model.ProgramManifest{
		GeneratedAt:    time.Now(),
		OwnerID:        key.OwnerID,
		World:          key.World,
		Language:       key.Language,
		Variant:        key.Variant,
		RecordingCount: len(files),
		RecordingFiles: files,
		ProgramURL:     "http://media.local/p.mp3",
		Version:        model.ManifestVersion,
	})
	return m
}

func TestCheckUnchangedSetSkipsGeneration(t *testing.T) {
	key := testKey()
	store := newFakeStore()
	require.NoError(t, store.PutManifest(context.Background(), key, manifestWith(key, []string{"a.mp3", "b.mp3"})))

	c := NewChecker(store, &fakeLister{recordings: []string{"b.mp3", "a.mp3"}})
	d, err := c.Check(context.Background(), key)
	require.NoError(t, err)

	assert.False(t, d.ShouldGenerate)
	assert.Equal(t, "recording set unchanged", d.Reason)
}

func TestCheckChangedSetTriggersGeneration(t *testing.T) {
	key := testKey()
	store := newFakeStore()
	require.NoError(t, store.PutManifest(context.Background(), key, manifestWith(key, []string{"a.mp3"})))

	c := NewChecker(store, &fakeLister{recordings: []string{"a.mp3", "new.mp3"}})
	d, err := c.Check(context.Background(), key)
	require.NoError(t, err)

	assert.True(t, d.ShouldGenerate)
}

func TestCheckCountComparisonForOldManifests(t *testing.T) {
	key := testKey()
	store := newFakeStore()
	// 旧版清单没有文件名列表，退化为计数对比
	m := manifestWith(key, nil)
	m.Kids.RecordingCount = 2
	require.NoError(t, store.PutManifest(context.Background(), key, m))

	c := NewChecker(store, &fakeLister{recordings: []string{"x.mp3", "y.mp3"}})
	d, err := c.Check(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, d.ShouldGenerate)

	c = NewChecker(store, &fakeLister{recordings: []string{"x.mp3", "y.mp3", "z.mp3"}})
	d, err = c.Check(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, d.ShouldGenerate)
}

func TestCheckNoManifestWithRecordings(t *testing.T) {
	c := NewChecker(newFakeStore(), &fakeLister{recordings: []string{"a.mp3"}})
	d, err := c.Check(context.Background(), testKey())
	require.NoError(t, err)
	assert.True(t, d.ShouldGenerate)
}

func TestCheckNoManifestNoRecordings(t *testing.T) {
	c := NewChecker(newFakeStore(), &fakeLister{})
	d, err := c.Check(context.Background(), testKey())
	require.NoError(t, err)
	assert.False(t, d.ShouldGenerate)
	assert.Equal(t, "no recordings yet", d.Reason)
}

func TestCheckCooldownSuppressesGeneration(t *testing.T) {
	key := testKey()
	store := newFakeStore()

	retryAfter := time.Now().Add(10 * time.Minute)
	m := &model.CombinedManifest{}
	m.Merge(&model.ProgramManifest{
		OwnerID: key.OwnerID, World: key.World, Language: key.Language, Variant: key.Variant,
		Version: model.ManifestVersion,
		Error:   true, FailureCount: 3, RetryAfter: &retryAfter,
	})
	require.NoError(t, store.PutManifest(context.Background(), key, m))

	// 录音明明有变化，冷却期内也不触发
	c := NewChecker(store, &fakeLister{recordings: []string{"a.mp3", "b.mp3"}})
	d, err := c.Check(context.Background(), key)
	require.NoError(t, err)

	assert.False(t, d.ShouldGenerate)
	assert.True(t, d.CoolingDown)
}

func TestCheckExpiredCooldownAllowsGeneration(t *testing.T) {
	key := testKey()
	store := newFakeStore()

	retryAfter := time.Now().Add(-time.Minute)
	m := &model.CombinedManifest{}
	m.Merge(&model.ProgramManifest{
		OwnerID: key.OwnerID, World: key.World, Language: key.Language, Variant: key.Variant,
		Version: model.ManifestVersion,
		Error:   true, FailureCount: 1, RetryAfter: &retryAfter,
	})
	require.NoError(t, store.PutManifest(context.Background(), key, m))

	c := NewChecker(store, &fakeLister{recordings: []string{"a.mp3"}})
	d, err := c.Check(context.Background(), key)
	require.NoError(t, err)

	assert.True(t, d.ShouldGenerate)
	assert.False(t, d.CoolingDown)
}

func TestSameFileSet(t *testing.T) {
	assert.True(t, sameFileSet([]string{"a", "b"}, []string{"b", "a"}))
	assert.False(t, sameFileSet([]string{"a"}, []string{"a", "a"}))
	assert.False(t, sameFileSet([]string{"a", "b"}, []string{"a", "c"}))
	assert.True(t, sameFileSet(nil, nil))
}
