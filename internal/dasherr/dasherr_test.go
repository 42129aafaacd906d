package dasherr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_MessageFormat(t *testing.T) {
	err := New(Critical, Manifest, DashInvalidXML, nil)
	assert.Equal(t, "CRITICAL/MANIFEST/DASH_INVALID_XML", err.Error())

	wrapped := New(Recoverable, Network, "", errors.New("dial tcp: timeout"))
	assert.Equal(t, "RECOVERABLE/NETWORK/: dial tcp: timeout", wrapped.Error())
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := New(Critical, Segment, SegmentManipulationFailed, inner)
	assert.ErrorIs(t, err, inner)
}

func TestReclassify_DowngradesSeverity(t *testing.T) {
	original := New(Critical, Manifest, DashEmptyPeriod, errors.New("no periods"))
	reclassified := Reclassify(original)

	var de *Error
	require.ErrorAs(t, reclassified, &de)
	assert.Equal(t, Recoverable, de.Severity)
	assert.Equal(t, Manifest, de.Category)
	assert.Equal(t, DashEmptyPeriod, de.Code)
}

func TestReclassify_WrapsPlainError(t *testing.T) {
	plain := errors.New("some network blip")
	reclassified := Reclassify(plain)

	var de *Error
	require.ErrorAs(t, reclassified, &de)
	assert.Equal(t, Recoverable, de.Severity)
	assert.Equal(t, Network, de.Category)
	assert.ErrorIs(t, de, plain)
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "CRITICAL", Critical.String())
	assert.Equal(t, "RECOVERABLE", Recoverable.String())
}
