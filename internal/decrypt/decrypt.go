// Package decrypt invokes the external decrypter sub-process contract and
// performs the pre-decrypt moov rewrite the sofia dependency makes possible
// (init-segment PSSH stripping, Firefox box-type patching).
package decrypt

import (
	"context"
	"encoding/hex"
	"os/exec"

	"41.neocities.org/dashhls/internal/dasherr"
)

// Runner invokes decrypt.sh (or an operator-supplied equivalent) with the
// fixed positional argument contract.
type Runner struct {
	ScriptPath string
}

func NewRunner(scriptPath string) *Runner {
	return &Runner{ScriptPath: scriptPath}
}

// Run shells out: decrypt.sh {hex_keyId} {hex_key} {srcPath} {outPath} {repoRoot} {trackName}.
// A non-zero exit is SEGMENT_MANIPULATION_FAILED.
func (r *Runner) Run(ctx context.Context, keyID, key []byte, srcPath, outPath, repoRoot, trackName string) error {
	cmd := exec.CommandContext(ctx, r.ScriptPath,
		hex.EncodeToString(keyID), hex.EncodeToString(key),
		srcPath, outPath, repoRoot, trackName)
	if err := cmd.Run(); err != nil {
		return dasherr.New(dasherr.Critical, dasherr.Segment, dasherr.SegmentManipulationFailed, err)
	}
	return nil
}
