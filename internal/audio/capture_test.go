package audio

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlahtolli/internal/config"
)

// writeScript drops an executable shell script standing in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testRecorder(t *testing.T, script string) *Recorder {
	t.Helper()
	return NewRecorder(config.AudioConfig{
		CaptureCommand: writeScript(t, script),
		InputFormat:    "pulse",
		InputDevice:    "default",
		SampleRate:     16000,
		Channels:       1,
	})
}

func TestRecorderCapturesPCMAsWAV(t *testing.T) {
	t.Parallel()

	r := testRecorder(t, `printf 'hello pcm'; exec sleep 5`)

	rec, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Recording())

	// Let the drain goroutine pick up the chunk.
	time.Sleep(300 * time.Millisecond)

	audio, contentType, err := rec.Stop()
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", contentType)
	assert.False(t, r.Recording())

	require.GreaterOrEqual(t, len(audio), 44)
	assert.Equal(t, "RIFF", string(audio[:4]))
	assert.Equal(t, "WAVE", string(audio[8:12]))
	assert.Equal(t, []byte("hello pcm"), audio[44:])
}

func TestRecorderRejectsConcurrentStart(t *testing.T) {
	t.Parallel()

	r := testRecorder(t, `exec sleep 5`)

	rec, err := r.Start(context.Background())
	require.NoError(t, err)

	_, err = r.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	_, _, err = rec.Stop()
	require.NoError(t, err)

	// Released: a fresh recording may start.
	rec2, err := r.Start(context.Background())
	require.NoError(t, err)
	_, _, err = rec2.Stop()
	require.NoError(t, err)
}

func TestRecorderStartClaimCoversSpinUp(t *testing.T) {
	t.Parallel()

	r := testRecorder(t, `exec sleep 5`)

	// Two Starts land inside the spin-up probe window; exactly one may open
	// a stream.
	type result struct {
		rec *Recording
		err error
	}
	results := make(chan result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			rec, err := r.Start(context.Background())
			results <- result{rec: rec, err: err}
		}()
	}

	var open []*Recording
	var refused []error
	for i := 0; i < 2; i++ {
		got := <-results
		if got.err != nil {
			refused = append(refused, got.err)
			continue
		}
		open = append(open, got.rec)
	}

	require.Len(t, open, 1, "expected exactly one open recording")
	require.Len(t, refused, 1)
	assert.ErrorIs(t, refused[0], ErrAlreadyRecording)

	_, _, err := open[0].Stop()
	require.NoError(t, err)
}

func TestRecorderFailsClosedOnEarlyExit(t *testing.T) {
	t.Parallel()

	r := testRecorder(t, `echo 'no such device' >&2; exit 1`)

	_, err := r.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited before recording started")
	assert.Contains(t, err.Error(), "no such device")
	assert.False(t, r.Recording())

	// The claim is released on failure: the retry fails the same way, not
	// with ErrAlreadyRecording.
	_, err = r.Start(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRecording)
	assert.Contains(t, err.Error(), "exited before recording started")
}

func TestRecorderStartFailsOnMissingCommand(t *testing.T) {
	t.Parallel()

	r := NewRecorder(config.AudioConfig{
		CaptureCommand: filepath.Join(t.TempDir(), "does-not-exist"),
	})

	_, err := r.Start(context.Background())
	require.Error(t, err)
	assert.False(t, r.Recording())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	r := testRecorder(t, `printf 'abc'; exec sleep 5`)

	rec, err := r.Start(context.Background())
	require.NoError(t, err)
	time.Sleep(300 * time.Millisecond)

	first, _, err := rec.Stop()
	require.NoError(t, err)

	second, ct, err := rec.Stop()
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", ct)
	assert.Equal(t, first, second)
}

func TestWAVFromPCMHeader(t *testing.T) {
	t.Parallel()

	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WAVFromPCM(pcm, 16000, 1, 2)

	require.Len(t, wav, 44+len(pcm))
	assert.Equal(t, "RIFF", string(wav[:4]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, "fmt ", string(wav[12:16]))
	assert.Equal(t, "data", string(wav[36:40]))

	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(16000*1*2), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(len(pcm)), binary.LittleEndian.Uint32(wav[40:44]))
	assert.Equal(t, pcm, wav[44:])
}
