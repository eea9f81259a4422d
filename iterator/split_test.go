package iterator

import (
	"fmt"
	"testing"

	"github.com/INLOpen/avromr/core"
	"github.com/INLOpen/avromr/internal/testutil"
	"github.com/INLOpen/avromr/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readSplits(t *testing.T, fs sys.FileSystem, splits []core.Split, opts Options) []testutil.Pair {
	t.Helper()
	var all []testutil.Pair
	for _, s := range splits {
		it, err := Open[testutil.Pair](fs, s, opts)
		require.NoError(t, err, "split %s", s)
		records, err := Collect[testutil.Pair](it)
		require.NoError(t, err, "split %s", s)
		all = append(all, records...)
	}
	return all
}

func TestSplitIterator_NWayPartition(t *testing.T) {
	n := 500
	if testutil.LargeTestsEnabled() {
		n = 50000
	}
	records := testutil.Pairs(n)

	for _, codec := range []core.CompressionType{core.CompressionNone, core.CompressionSnappy, core.CompressionDeflate} {
		fs := sys.NewMem()
		c := testutil.WriteContainer(t, fs, "input.avro", codec, 7, records)

		for _, ways := range []int{1, 2, 3, 5, 8, 13, 64, len(c.Blocks) * 3} {
			t.Run(fmt.Sprintf("%s/%d-way", codec, ways), func(t *testing.T) {
				splits := core.EvenSplits(c.Name, c.Size, ways)
				assert.Equal(t, records, readSplits(t, fs, splits, Options{}))
			})
		}
	}
}

func TestSplitIterator_CutsAroundMarkers(t *testing.T) {
	records := testutil.Pairs(120)
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionNone, 10, records)
	require.Len(t, c.Blocks, 12)

	deltas := []int64{-1, 0, 1, core.SyncSize - 1, core.SyncSize, core.SyncSize + 1}
	for _, delta := range deltas {
		t.Run(fmt.Sprintf("delta=%d", delta), func(t *testing.T) {
			var cuts []int64
			for _, b := range c.Blocks[:len(c.Blocks)-1] {
				cuts = append(cuts, b.SyncOffset()+delta)
			}
			splits := testutil.CutSplits(c.Name, c.Size, cuts...)
			assert.Equal(t, records, readSplits(t, fs, splits, Options{}))
		})
	}

	t.Run("cut inside the header", func(t *testing.T) {
		splits := testutil.CutSplits(c.Name, c.Size, 3, c.Header.Size-core.SyncSize, c.Header.Size+1)
		assert.Equal(t, records, readSplits(t, fs, splits, Options{}))
	})
}

func TestSplitIterator_Ownership(t *testing.T) {
	records := testutil.Pairs(30)
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionNone, 10, records)
	require.Len(t, c.Blocks, 3)

	// A split starting exactly on the marker that closes block 0 owns block 1.
	split := core.Split{Filename: c.Name, Offset: c.Blocks[0].SyncOffset(), Length: 1}
	it, err := Open[testutil.Pair](fs, split, Options{})
	require.NoError(t, err)
	got, err := Collect[testutil.Pair](it)
	require.NoError(t, err)
	assert.Equal(t, records[10:20], got)

	// The split ending right before that marker does not.
	split = core.Split{Filename: c.Name, Offset: 0, Length: c.Blocks[0].SyncOffset()}
	it, err = Open[testutil.Pair](fs, split, Options{})
	require.NoError(t, err)
	got, err = Collect[testutil.Pair](it)
	require.NoError(t, err)
	assert.Equal(t, records[:10], got)
}

func TestSplitIterator_SmallScanWindow(t *testing.T) {
	records := testutil.Pairs(300)
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionZSTD, 9, records)

	for _, window := range []int{core.SyncSize, core.SyncSize + 1, 31} {
		t.Run(fmt.Sprintf("window=%d", window), func(t *testing.T) {
			splits := core.EvenSplits(c.Name, c.Size, 11)
			assert.Equal(t, records, readSplits(t, fs, splits, Options{WindowSize: window}))
		})
	}
}

func TestSplitIterator_EmptySplits(t *testing.T) {
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionNone, 10, testutil.Pairs(25))
	last := c.Blocks[len(c.Blocks)-1]

	testCases := []struct {
		name  string
		split core.Split
	}{
		{name: "zero length", split: core.Split{Filename: c.Name, Offset: 100, Length: 0}},
		{name: "after last marker", split: core.Split{Filename: c.Name, Offset: last.SyncOffset() + 1, Length: core.SyncSize}},
		{name: "past end of file", split: core.Split{Filename: c.Name, Offset: c.Size + 10, Length: 100}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := Open[testutil.Pair](fs, tc.split, Options{})
			require.NoError(t, err)
			defer it.Close()

			assert.False(t, it.Next())
			assert.NoError(t, it.Error())
			assert.Equal(t, 1.0, it.Progress())
			assert.Equal(t, tc.split, it.Split())
		})
	}
}

func TestSplitIterator_Progress(t *testing.T) {
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionNone, 5, testutil.Pairs(200))

	for _, split := range core.EvenSplits(c.Name, c.Size, 3) {
		it, err := Open[testutil.Pair](fs, split, Options{})
		require.NoError(t, err)

		prev := it.Progress()
		assert.GreaterOrEqual(t, prev, 0.0)
		for it.Next() {
			p := it.Progress()
			require.GreaterOrEqual(t, p, prev)
			require.LessOrEqual(t, p, 1.0)
			prev = p

			pos, rec := it.At()
			assert.GreaterOrEqual(t, pos, split.Offset)
			assert.NotEmpty(t, rec.Key)
		}
		require.NoError(t, it.Error())
		assert.Equal(t, 1.0, it.Progress())
		require.NoError(t, it.Close())
	}
}

func TestSplitIterator_ProgressWithinBlock(t *testing.T) {
	fs := sys.NewMem()
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionNone, 10, testutil.Pairs(10))
	require.Len(t, c.Blocks, 1)

	it, err := Open[testutil.Pair](fs, core.Split{Filename: c.Name, Length: c.Size}, Options{})
	require.NoError(t, err)
	defer it.Close()

	prev := it.Progress()
	for i := 0; i < 9; i++ {
		require.True(t, it.Next())
		p := it.Progress()
		assert.Greater(t, p, prev, "record %d", i)
		assert.Less(t, p, 1.0)
		prev = p

		pos, _ := it.At()
		assert.Equal(t, c.Blocks[0].Offset, pos)
	}
	require.True(t, it.Next())
	require.False(t, it.Next())
	assert.Equal(t, 1.0, it.Progress())
}

func TestSplitIterator_AllStopsEarly(t *testing.T) {
	fs := sys.NewMem()
	records := testutil.Pairs(50)
	c := testutil.WriteContainer(t, fs, "input.avro", core.CompressionLZ4, 10, records)

	it, err := Open[testutil.Pair](fs, core.Split{Filename: c.Name, Length: c.Size}, Options{})
	require.NoError(t, err)
	defer it.Close()

	var got []testutil.Pair
	for _, rec := range it.All() {
		got = append(got, rec)
		if len(got) == 15 {
			break
		}
	}
	assert.Equal(t, records[:15], got)

	// The iterator continues where the loop stopped.
	require.True(t, it.Next())
	_, rec := it.At()
	assert.Equal(t, records[15], rec)
}

func TestOpen_ReleasesFiles(t *testing.T) {
	mem := sys.NewMem()
	c := testutil.WriteContainer(t, mem, "input.avro", core.CompressionNone, 10, testutil.Pairs(20))
	mem.WriteFile("garbage.avro", []byte("definitely not a container"))
	fs := sys.NewDebug(mem, nil)

	t.Run("missing file", func(t *testing.T) {
		_, err := Open[testutil.Pair](fs, core.Split{Filename: "absent.avro", Length: 10}, Options{})
		require.Error(t, err)
		assert.True(t, sys.IsNotExist(err))
	})

	t.Run("bad header closes the file", func(t *testing.T) {
		_, err := Open[testutil.Pair](fs, core.Split{Filename: "garbage.avro", Length: 10}, Options{})
		require.ErrorIs(t, err, core.ErrCorrupted)
		assert.Empty(t, fs.OpenFiles())
	})

	t.Run("close releases the file", func(t *testing.T) {
		it, err := Open[testutil.Pair](fs, core.Split{Filename: c.Name, Length: c.Size}, Options{})
		require.NoError(t, err)
		assert.Equal(t, []string{c.Name}, fs.OpenFiles())
		require.True(t, it.Next())
		require.NoError(t, it.Close())
		assert.Empty(t, fs.OpenFiles())
		assert.False(t, it.Next())
	})
}

func TestSplitIterator_CorruptBlock(t *testing.T) {
	mem := sys.NewMem()
	c := testutil.WriteContainer(t, mem, "input.avro", core.CompressionNone, 5, testutil.Pairs(20))
	data, err := mem.ReadFile(c.Name)
	require.NoError(t, err)
	data[c.Blocks[2].SyncOffset()+3] ^= 0x01
	mem.WriteFile(c.Name, data)

	it, err := Open[testutil.Pair](mem, core.Split{Filename: c.Name, Length: c.Size}, Options{})
	require.NoError(t, err)
	records, err := Collect[testutil.Pair](it)
	require.ErrorIs(t, err, core.ErrCorrupted)
	assert.Len(t, records, 10)
}

func BenchmarkSplitIterator(b *testing.B) {
	fs := sys.NewMem()
	c := testutil.WriteContainer(b, fs, "input.avro", core.CompressionSnappy, 100, testutil.Pairs(10000))
	splits := core.EvenSplits(c.Name, c.Size, 4)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for _, s := range splits {
			it, err := Open[testutil.Pair](fs, s, Options{})
			if err != nil {
				b.Fatal(err)
			}
			for it.Next() {
			}
			if err := it.Error(); err != nil {
				b.Fatal(err)
			}
			it.Close()
		}
	}
}
