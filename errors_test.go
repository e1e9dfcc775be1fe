package nativebind

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoadErrorMessage(t *testing.T) {
	cause := errors.New("cannot open shared object file")

	err := &ModuleLoadError{Path: "/opt/lib/libexample.so", Err: cause}
	assert.Equal(t, `nativebind: load "/opt/lib/libexample.so": cannot open shared object file`, err.Error())
	assert.ErrorIs(t, err, cause)

	err = &ModuleLoadError{Path: "lib.so", Symbol: "use_udf", Err: cause}
	assert.Equal(t, `nativebind: load "lib.so": resolve symbol "use_udf": cannot open shared object file`, err.Error())
}

func TestWorkerErrorWrapsRoundTripAcrossProcesses(t *testing.T) {
	local := newWorkerError(1, 4242, 7, &RoundTripError{Seed: 7, Got: 9})

	var rt *RoundTripError
	require.ErrorAs(t, local, &rt)
	assert.Equal(t, int32(9), rt.Got)

	// What the parent sees after the error crossed the pipe.
	var s MsgpackSerializer
	data, err := s.Marshal(local)
	require.NoError(t, err)
	var remote WorkerError
	require.NoError(t, s.Unmarshal(data, &remote))

	assert.Equal(t, local.Error(), remote.Error())
	rt = nil
	require.ErrorAs(t, &remote, &rt)
	assert.Equal(t, &RoundTripError{Seed: 7, Got: 9}, rt)
}

func TestWorkerErrorKeepsLocalCause(t *testing.T) {
	err := newWorkerError(0, 1, 3, context.Canceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, err.Mismatch)
	assert.Contains(t, err.Error(), "worker 0 (pid 1) seed 3")

	exited := &WorkerError{Worker: 2, Message: "signal: segmentation fault", cause: io.EOF}
	assert.ErrorIs(t, exited, io.EOF)
}
