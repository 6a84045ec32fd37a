package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetail_IsError(t *testing.T) {
	assert.True(t, DetailError.IsError())
	for _, d := range []Detail{DetailAuthentication, DetailPersonGet, DetailPersonSet, DetailLogout} {
		assert.False(t, d.IsError(), d)
	}
}

func TestSink_PreservesPerProducerOrder(t *testing.T) {
	const producers = 8
	const perProducer = 200

	sink := NewSink(16)
	got := make(map[string][]uint64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range sink.Entries() {
			got[e.Actor] = append(got[e.Actor], e.Seq)
		}
	}()

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			for i := uint64(0); i < perProducer; i++ {
				assert.NoError(t, sink.Publish(Entry{Actor: actor, Seq: i}))
			}
		}(string(rune('a' + p)))
	}
	wg.Wait()
	sink.Close()
	<-done

	require.Len(t, got, producers)
	for actor, seqs := range got {
		require.Len(t, seqs, perProducer, actor)
		for i, s := range seqs {
			assert.Equal(t, uint64(i), s, "actor %s out of order", actor)
		}
	}
}

func TestSink_Closed(t *testing.T) {
	sink := NewSink(0)
	sink.Close()
	sink.Close()

	err := sink.Publish(Entry{Actor: "a"})
	assert.ErrorIs(t, err, ErrSinkClosed)
}

func TestWriter(t *testing.T) {
	entry := Entry{
		Actor:  "alice",
		Seq:    7,
		Action: "login",
		Record: Record{
			Start:    time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
			Duration: 15 * time.Millisecond,
			Details:  DetailAuthentication,
		},
	}

	t.Run("plain buffer", func(t *testing.T) {
		var buf bytes.Buffer
		w := NewWriter(&buf)
		require.NoError(t, w.Write(entry))
		require.NoError(t, w.Close())

		var decoded Entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, entry, decoded)
	})

	t.Run("gzip file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "events.jsonl.gz")
		w, err := CreateFile(path)
		require.NoError(t, err)
		require.NoError(t, w.Write(entry))
		require.NoError(t, w.Write(entry))
		require.NoError(t, w.Close())

		f, err := os.Open(path)
		require.NoError(t, err)
		defer f.Close()
		zr, err := gzip.NewReader(f)
		require.NoError(t, err)

		lines := 0
		scanner := bufio.NewScanner(zr)
		for scanner.Scan() {
			var decoded Entry
			require.NoError(t, json.Unmarshal(scanner.Bytes(), &decoded))
			assert.Equal(t, entry, decoded)
			lines++
		}
		require.NoError(t, scanner.Err())
		assert.Equal(t, 2, lines)
	})

	t.Run("create fails", func(t *testing.T) {
		_, err := CreateFile(filepath.Join(t.TempDir(), "missing", "events.jsonl"))
		assert.Error(t, err)
	})
}
