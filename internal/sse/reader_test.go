package sse

import (
	"errors"
	"io"
	"strings"
	"testing"

	ai "github.com/spetersoncode/openagent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) ([]Record, error) {
	t.Helper()
	r := NewReader(strings.NewReader(input))
	var out []Record
	for {
		rec, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return out, err
		}
		out = append(out, rec)
	}
}

func TestReaderFraming(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "single record",
			input:    "data: {\"a\":1}\n\n",
			expected: []string{`{"a":1}`},
		},
		{
			name:     "multiple records",
			input:    "data: one\n\ndata: two\n\n",
			expected: []string{"one", "two"},
		},
		{
			name:     "marker without space",
			input:    "data:compact\n\n",
			expected: []string{"compact"},
		},
		{
			name:     "multi line payload",
			input:    "data: first\ndata: second\n\n",
			expected: []string{"first\nsecond"},
		},
		{
			name:     "heartbeat skipped",
			input:    "data: \n\ndata: real\n\n",
			expected: []string{"real"},
		},
		{
			name:     "comments and fields ignored",
			input:    ": keep-alive\nevent: message\nid: 7\nretry: 1000\ndata: x\n\n",
			expected: []string{"x"},
		},
		{
			name:     "crlf line endings",
			input:    "data: x\r\n\r\ndata: y\r\n\r\n",
			expected: []string{"x", "y"},
		},
		{
			name:     "sentinel terminates",
			input:    "data: a\n\ndata: [DONE]\n\ndata: after\n\n",
			expected: []string{"a"},
		},
		{
			name:     "trailing record without blank line",
			input:    "data: a\n\ndata: b",
			expected: []string{"a", "b"},
		},
		{
			name:     "empty stream",
			input:    "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := collect(t, tt.input)
			require.NoError(t, err)
			var payloads []string
			for _, rec := range records {
				require.False(t, rec.IsMalformed())
				payloads = append(payloads, rec.Data)
			}
			assert.Equal(t, tt.expected, payloads)
		})
	}
}

func TestReaderEventName(t *testing.T) {
	records, err := collect(t, "event: delta\ndata: x\n\ndata: y\n\n")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "delta", records[0].Event)
	assert.Equal(t, "", records[1].Event)
}

func TestReaderMalformedLineIsSkipped(t *testing.T) {
	records, err := collect(t, "data: a\n\ngarbage line\ndata: b\n\n")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "a", records[0].Data)
	assert.True(t, records[1].IsMalformed())
	assert.Equal(t, "garbage line", records[1].Malformed)
	assert.Equal(t, "b", records[2].Data)
}

func TestReaderNotRestartable(t *testing.T) {
	r := NewReader(strings.NewReader("data: a\n\ndata: [DONE]\n\n"))
	_, err := r.Next()
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = r.Next()
		assert.ErrorIs(t, err, io.EOF)
	}
}

func TestReaderLineTooLong(t *testing.T) {
	input := "data: " + strings.Repeat("x", MaxLineSize+1) + "\n\n"
	_, err := collect(t, input)

	var decodeErr *ai.ProtocolDecodeError
	require.True(t, errors.As(err, &decodeErr))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReaderTransportFailure(t *testing.T) {
	r := NewReader(failingReader{})
	_, err := r.Next()

	var transportErr *ai.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, "read", transportErr.Op)

	_, again := r.Next()
	assert.Equal(t, err, again)
}
