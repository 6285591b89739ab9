package job

import (
	"testing"

	"fileident/pkg/batch"
	"fileident/pkg/core"
	"fileident/pkg/kind"
	"fileident/pkg/meta"
	"fileident/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleState() *ResumableState {
	h := types.CasID("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	return &ResumableState{
		Options: Options{
			LocationID:   7,
			SubPath:      "photos",
			Mode:         meta.ShallowScan,
			ChunkSize:    50,
			PageSize:     25,
			WithPriority: true,
		},
		Phase:  PhaseScanning,
		Cursor: 1234,
		Pending: batch.Batch{
			h: {{ID: 1, PubID: "p1", Kind: kind.Image}, {ID: 9, PubID: "p9", Kind: kind.Image}},
		},
		Stats: Stats{Orphans: 10, Identified: 8, Failed: 2, Units: 1, Steps: 3},
		Errors: []NonCriticalError{
			{Kind: FailedToExtractFileMetadata, Path: "/tmp/x", Message: "permission denied"},
		},
	}
}

func TestState_RoundTrip(t *testing.T) {
	in := sampleState()
	blob, err := EncodeState(in)
	require.NoError(t, err)
	assert.Equal(t, "FIJS", string(blob[:4]))

	out, err := DecodeState(blob)
	require.NoError(t, err)
	assert.Equal(t, StateVersion, out.Version)
	assert.Equal(t, in, out)
}

func TestState_EncodingIsDeterministic(t *testing.T) {
	a, err := EncodeState(sampleState())
	require.NoError(t, err)
	b, err := EncodeState(sampleState())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDecodeState_Corrupt(t *testing.T) {
	valid, err := EncodeState(sampleState())
	require.NoError(t, err)

	future := sampleState()
	future.Version = StateVersion + 1
	payload, err := core.EncodeCanonical(future)
	require.NoError(t, err)

	noLocation := sampleState()
	noLocation.Options.LocationID = 0
	noLocationBlob, err := EncodeState(noLocation)
	require.NoError(t, err)

	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("JUNKJUNKJUNK")},
		{"truncated payload", valid[:len(valid)-5]},
		{"garbage payload", append([]byte("FIJS"), 0xff, 0x00, 0x13)},
		{"future version", append([]byte("FIJS"), payload...)},
		{"missing location", noLocationBlob},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(tt.blob)
			require.Error(t, err)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindCorruptState, kind)
		})
	}
}

func TestResume_CorruptStateIsFatal(t *testing.T) {
	f := newFixture(t)
	_, err := Resume([]byte("not a state"), f.deps())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindCorruptState, kind)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "awaiting_results", PhaseAwaitingResults.String())
	assert.Equal(t, "interrupted", PhaseInterrupted.String())
	assert.Equal(t, "phase(42)", Phase(42).String())
}
