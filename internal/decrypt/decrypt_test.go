package decrypt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"41.neocities.org/dashhls/internal/dasherr"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "decrypt.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestRunner_Run_Success(t *testing.T) {
	script := writeScript(t, "exit 0\n")
	r := NewRunner(script)
	err := r.Run(context.Background(), []byte{0x01}, []byte{0x02}, "/tmp/src.m4s", "/tmp/out.m4s", "/repo", "video")
	assert.NoError(t, err)
}

func TestRunner_Run_NonZeroExitWrapsError(t *testing.T) {
	script := writeScript(t, "exit 1\n")
	r := NewRunner(script)
	err := r.Run(context.Background(), []byte{0x01}, []byte{0x02}, "/tmp/src.m4s", "/tmp/out.m4s", "/repo", "video")
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.SegmentManipulationFailed, de.Code)
}

func TestRunner_Run_PassesHexEncodedArgs(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "args.txt")
	script := writeScript(t, `printf '%s\n' "$1" "$2" "$3" "$4" "$5" "$6" > `+marker+"\n")
	r := NewRunner(script)
	err := r.Run(context.Background(), []byte{0xde, 0xad}, []byte{0xbe, 0xef}, "/tmp/src.m4s", "/tmp/out.m4s", "/repo", "video")
	require.NoError(t, err)

	got, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "dead\nbeef\n/tmp/src.m4s\n/tmp/out.m4s\n/repo\nvideo\n", string(got))
}
