package bridge_test

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
)

func TestResponse_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, []byte("module.exports = 1;"), []byte(`{"version":3}`)))

	resp, err := bridge.ReadResponse(&buf)
	require.NoError(t, err)
	assert.True(t, resp.Found)
	assert.Equal(t, "module.exports = 1;", string(resp.Code))
	assert.JSONEq(t, `{"version":3}`, string(resp.Map))
	assert.Zero(t, buf.Len(), "both frames must be consumed")
}

func TestResponse_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, []byte("abc"), nil))

	want := []byte{0, 0, 0, 3, 'a', 'b', 'c', 0, 0, 0, 0}
	assert.Equal(t, want, buf.Bytes())
}

func TestResponse_ZeroLengthIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, nil, nil))
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0}, buf.Bytes())

	resp, err := bridge.ReadResponse(&buf)
	require.NoError(t, err)
	assert.False(t, resp.Found)
	assert.Nil(t, resp.Code)
}

func TestResponse_EmptyCodeWithMapIsNotFound(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, []byte{}, []byte("map")))

	resp, err := bridge.ReadResponse(&buf)
	require.NoError(t, err)
	assert.False(t, resp.Found)
}

func TestResponse_ShortReadsAreProgress(t *testing.T) {
	code := bytes.Repeat([]byte("x"), 70_000)
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, code, []byte("m")))

	resp, err := bridge.ReadResponse(iotest.OneByteReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, code, resp.Code)
	assert.Equal(t, []byte("m"), resp.Map)
}

func TestResponse_SequentialExchanges(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, bridge.WriteResponse(&buf, []byte("first"), nil))
	require.NoError(t, bridge.WriteResponse(&buf, nil, nil))
	require.NoError(t, bridge.WriteResponse(&buf, []byte("third"), []byte("map")))

	r := iotest.HalfReader(&buf)
	first, err := bridge.ReadResponse(r)
	require.NoError(t, err)
	second, err := bridge.ReadResponse(r)
	require.NoError(t, err)
	third, err := bridge.ReadResponse(r)
	require.NoError(t, err)

	assert.Equal(t, "first", string(first.Code))
	assert.False(t, second.Found)
	assert.Equal(t, "third", string(third.Code))
	assert.Equal(t, "map", string(third.Map))
}

func TestResponse_Truncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty channel", data: nil},
		{name: "partial prefix", data: []byte{0, 0}},
		{name: "partial payload", data: append(binary.BigEndian.AppendUint32(nil, 10), "abc"...)},
		{name: "missing map frame", data: append(binary.BigEndian.AppendUint32(nil, 3), "abc"...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bridge.ReadResponse(bytes.NewReader(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrFrameTruncated)
		})
	}
}

func TestResponse_ReadErrorIsNotTruncation(t *testing.T) {
	_, err := bridge.ReadResponse(iotest.ErrReader(io.ErrNoProgress))
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrFrameTruncated)
}

func TestWriteResponse_BrokenPipe(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, r.Close())
	t.Cleanup(func() { _ = w.Close() })

	err = bridge.WriteResponse(w, []byte("code"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrWorkerGone)
}

func TestWriteResponse_ClosedWriter(t *testing.T) {
	_, w, err := os.Pipe()
	require.NoError(t, err)
	require.NoError(t, w.Close())

	err = bridge.WriteResponse(w, []byte("code"), nil)
	assert.ErrorIs(t, err, domain.ErrWorkerGone)
}
