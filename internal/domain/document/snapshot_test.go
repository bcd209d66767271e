package document

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemsu-schedule/schedule-bot/internal/domain/shared"
	"github.com/kemsu-schedule/schedule-bot/internal/domain/timetable"
)

const sampleText = "ИС-951\n01.09.2025\n8:30-\n10:05\nАлгебра\nПИ-101\n02.09.2025\nФизика"

func TestNewSnapshot(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	snap, err := NewSnapshot(1, "abc", "https://example.org/schedule.pdf", 3, sampleText, now)
	require.NoError(t, err)

	assert.NotEqual(t, [16]byte{}, [16]byte(snap.ID))
	assert.Equal(t, []string{"ИС", "ПИ"}, snap.Index.Units())
	assert.Equal(t, int64(2), snap.NextVersion())
	assert.Contains(t, snap.Schedule("ИС-951", 0, timetable.DefaultLabels()), "8:30-10:05  —  Алгебра")

	_, err = NewSnapshot(1, "", "", 0, sampleText, now)
	assert.True(t, shared.IsValidation(err))

	_, err = NewSnapshot(0, "abc", "", 0, sampleText, now)
	assert.True(t, shared.IsValidation(err))
}

func TestSnapshot_NextVersionOfNil(t *testing.T) {
	var snap *Snapshot
	assert.Equal(t, int64(1), snap.NextVersion())
}

func TestRestore(t *testing.T) {
	orig, err := NewSnapshot(7, "abc", "src", 1, sampleText, time.Now())
	require.NoError(t, err)

	restored := Restore(orig.ID, orig.Version, orig.Fingerprint, orig.SourceURL, orig.PageCount, orig.Text, orig.FetchedAt)
	assert.Equal(t, orig, restored)
}

func TestStore(t *testing.T) {
	store := NewStore()

	_, err := store.Current()
	assert.True(t, errors.Is(err, shared.ErrDocumentNotLoaded))
	assert.False(t, store.Loaded())

	first, err := NewSnapshot(1, "a", "", 0, sampleText, time.Now())
	require.NoError(t, err)
	second, err := NewSnapshot(2, "b", "", 0, sampleText, time.Now())
	require.NoError(t, err)

	assert.Nil(t, store.Swap(first))
	assert.Same(t, first, store.Swap(second))

	cur, err := store.Current()
	require.NoError(t, err)
	assert.Same(t, second, cur)
}

func TestStore_ConcurrentSwapAndRead(t *testing.T) {
	store := NewStore()
	snaps := make([]*Snapshot, 8)
	for i := range snaps {
		s, err := NewSnapshot(int64(i+1), "fp", "", 0, sampleText, time.Now())
		require.NoError(t, err)
		snaps[i] = s
	}
	store.Swap(snaps[0])

	var wg sync.WaitGroup
	for _, s := range snaps {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Swap(s)
		}()
		go func() {
			defer wg.Done()
			cur, err := store.Current()
			if assert.NoError(t, err) {
				assert.True(t, cur.Index.Contains("ИС-951"))
			}
		}()
	}
	wg.Wait()
}
