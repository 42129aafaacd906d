package mpd

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/model"
)

// buildPsshBoxV0 assembles a minimal version-0 pssh box for tests that need
// a real parsable box rather than a placeholder buffer.
func buildPsshBoxV0(systemID, data []byte) []byte {
	size := 4 + 4 + 4 + 16 + 4 + len(data)
	box := make([]byte, 0, size)
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(size))
	box = append(box, sizeBuf[:]...)
	box = append(box, 'p', 's', 's', 'h')
	box = append(box, 0, 0, 0, 0) // version 0, flags 0
	box = append(box, systemID...)
	var dataSizeBuf [4]byte
	binary.BigEndian.PutUint32(dataSizeBuf[:], uint32(len(data)))
	box = append(box, dataSizeBuf[:]...)
	box = append(box, data...)
	return box
}

func parseElement(t *testing.T, xml string) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(xml))
	return doc.Root()
}

func TestParseContentProtection_WidevineWithPSSH(t *testing.T) {
	elem := parseElement(t, `<AdaptationSet xmlns:cenc="urn:mpeg:cenc:2013">
		<ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" cenc:default_KID="12345678-1234-1234-1234-123456789012"/>
		<ContentProtection schemeIdUri="urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed">
			<cenc:pssh>AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=</cenc:pssh>
		</ContentProtection>
	</AdaptationSet>`)

	infos, defaultKID, err := ParseContentProtection(elem)
	require.NoError(t, err)
	assert.Equal(t, "12345678123412341234123456789012", defaultKID)
	require.Len(t, infos, 1)
	assert.Equal(t, "com.widevine.alpha", infos[0].KeySystem)
	require.Len(t, infos[0].InitData, 1)
}

func TestParseContentProtection_WidevinePSSHExtractedFromBox(t *testing.T) {
	innerData := []byte("widevine-content-id-payload")
	box := buildPsshBoxV0(widevineSystemID, innerData)
	elem := parseElement(t, fmt.Sprintf(`<AdaptationSet xmlns:cenc="urn:mpeg:cenc:2013">
		<ContentProtection schemeIdUri="urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed">
			<cenc:pssh>%s</cenc:pssh>
		</ContentProtection>
	</AdaptationSet>`, base64.StdEncoding.EncodeToString(box)))

	infos, _, err := ParseContentProtection(elem)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, innerData, infos[0].WidevinePSSH)
}

func TestParseContentProtection_ConflictingKeyIDsFails(t *testing.T) {
	elem := parseElement(t, `<AdaptationSet xmlns:cenc="urn:mpeg:cenc:2013">
		<ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" cenc:default_KID="11111111-1111-1111-1111-111111111111"/>
		<ContentProtection schemeIdUri="urn:mpeg:dash:mp4protection:2011" cenc:default_KID="22222222-2222-2222-2222-222222222222"/>
	</AdaptationSet>`)

	_, _, err := ParseContentProtection(elem)
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.DashConflictingKeyIDs, de.Code)
}

func TestParseContentProtection_UnknownSchemeIsSkipped(t *testing.T) {
	elem := parseElement(t, `<AdaptationSet>
		<ContentProtection schemeIdUri="urn:uuid:deadbeef-0000-0000-0000-000000000000"/>
	</AdaptationSet>`)
	infos, _, err := ParseContentProtection(elem)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestIntersectKeySystems_EmptyAdaptationSetPassesThroughRepresentation(t *testing.T) {
	rep := []model.DrmInfo{{KeySystem: "com.widevine.alpha"}}
	out, err := IntersectKeySystems(nil, rep)
	require.NoError(t, err)
	assert.Equal(t, rep, out)
}

func TestIntersectKeySystems_Intersects(t *testing.T) {
	as := []model.DrmInfo{{KeySystem: "com.widevine.alpha"}, {KeySystem: "com.microsoft.playready"}}
	rep := []model.DrmInfo{{KeySystem: "com.widevine.alpha"}}
	out, err := IntersectKeySystems(as, rep)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "com.widevine.alpha", out[0].KeySystem)
}

func TestIntersectKeySystems_EmptyIntersectionFails(t *testing.T) {
	as := []model.DrmInfo{{KeySystem: "com.widevine.alpha"}}
	rep := []model.DrmInfo{{KeySystem: "com.microsoft.playready"}}
	_, err := IntersectKeySystems(as, rep)
	require.Error(t, err)
	var de *dasherr.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, dasherr.DashNoCommonKeySystem, de.Code)
}
