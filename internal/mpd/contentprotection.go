package mpd

import (
	"bytes"
	"encoding/base64"
	"log/slog"
	"strings"

	"github.com/beevik/etree"

	"41.neocities.org/dashhls/internal/dasherr"
	"41.neocities.org/dashhls/internal/isobmff"
	"41.neocities.org/dashhls/internal/model"
)

// widevineSystemID is the Widevine system ID, matched against parsed pssh
// records to pull the license-client payload out of a manifest-embedded
// cenc:pssh box.
var widevineSystemID = []byte{0xed, 0xef, 0x8b, 0xa9, 0x79, 0xd6, 0x4a, 0xce, 0xa3, 0xc8, 0x27, 0xdc, 0xd5, 0x1d, 0x21, 0xed}

// schemeToKeySystem is the DRM scheme→keySystem lookup table.
var schemeToKeySystem = map[string]string{
	"urn:uuid:1077efec-c0b2-4d02-ace3-3c1e52e2fb4b": "org.w3.clearkey",
	"urn:uuid:e2719d58-a985-b3c9-781a-b030af78d30e": "org.w3.clearkey",
	"urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed": "com.widevine.alpha",
	"urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95": "com.microsoft.playready",
	"urn:uuid:79f0049a-4098-8642-ab92-e65be0885f95": "com.microsoft.playready",
	"urn:uuid:f239e769-efa3-4850-9c16-a903c6932efb": "com.adobe.primetime",
}

const mp4ProtectionScheme = "urn:mpeg:dash:mp4protection:2011"

// ParseContentProtection parses all ContentProtection children of an
// element (AdaptationSet or Representation).
func ParseContentProtection(elem *etree.Element) ([]model.DrmInfo, string, error) {
	var infos []model.DrmInfo
	var defaultKID string
	var initDataOverrides [][]byte
	var psshRecords []*model.PsshRecord
	widevineIdx := -1

	for _, cp := range elem.SelectElements("ContentProtection") {
		scheme := strings.ToLower(cp.SelectAttrValue("schemeIdUri", ""))
		if kid := cp.SelectAttrValue("cenc:default_KID", ""); kid != "" {
			normalized := strings.ToLower(strings.ReplaceAll(kid, "-", ""))
			if strings.Contains(normalized, " ") {
				return nil, "", dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashMultipleKeyIDsNotSupported, nil)
			}
			if defaultKID != "" && defaultKID != normalized {
				return nil, "", dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashConflictingKeyIDs, nil)
			}
			defaultKID = normalized
		}
		if pssh := cp.SelectElement("cenc:pssh"); pssh != nil {
			data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(pssh.Text()))
			if err != nil {
				return nil, "", dasherr.New(dasherr.Recoverable, dasherr.Manifest, dasherr.DashPsshBadEncoding, err)
			}
			initDataOverrides = append(initDataOverrides, data)
			if recs, err := isobmff.FindPssh(data, 0); err != nil {
				slog.Warn("content protection: pssh box unparsable", "err", err)
			} else {
				psshRecords = append(psshRecords, recs...)
			}
		}
		if scheme == mp4ProtectionScheme {
			continue // contributes init data only, not a DrmInfo entry
		}
		keySystem, ok := schemeToKeySystem[scheme]
		if !ok {
			continue
		}
		info := model.DrmInfo{KeySystem: keySystem, InitData: initDataOverrides}
		switch keySystem {
		case "com.widevine.alpha":
			if laurl := cp.SelectAttrValue("ms:laurl", ""); laurl != "" {
				info.LicenseServer = laurl
			} else if el := cp.SelectElement("ms:laurl"); el != nil {
				info.LicenseServer = el.SelectAttrValue("licenseUrl", "")
			}
		case "org.w3.clearkey":
			if el := cp.FindElement(".//clearkey:Laurl"); el != nil {
				info.LicenseServer = strings.TrimSpace(el.Text())
			}
		case "com.microsoft.playready":
			if el := cp.SelectElement("pro"); el != nil {
				info.LicenseServer = extractPlayReadyLAURL(strings.TrimSpace(el.Text()))
			}
		}
		infos = append(infos, info)
		if keySystem == "com.widevine.alpha" {
			widevineIdx = len(infos) - 1
		}
	}

	if widevineIdx >= 0 {
		for _, rec := range isobmff.DedupPssh(psshRecords) {
			if bytes.Equal(rec.SystemID, widevineSystemID) {
				infos[widevineIdx].WidevinePSSH = rec.Data
				break
			}
		}
	}
	return infos, defaultKID, nil
}

// extractPlayReadyLAURL parses the base64 PRO object and pulls
// WRMHEADER/DATA/LA_URL via a PRO record walk. It tolerates a
// missing/unparsable PRO by returning "".
func extractPlayReadyLAURL(base64PRO string) string {
	data, err := base64.StdEncoding.DecodeString(base64PRO)
	if err != nil || len(data) < 4 {
		return ""
	}
	size := int(data[0]) | int(data[1])<<8 | int(data[2])<<16 | int(data[3])<<24
	if size != len(data) {
		return ""
	}
	if len(data) < 6 {
		return ""
	}
	pos := 6 // skip u32 pro_size (LE) + u16 record_count
	for pos+4 <= len(data) {
		recType := int(data[pos]) | int(data[pos+1])<<8
		recSize := int(data[pos+2]) | int(data[pos+3])<<8
		pos += 4
		if recSize%2 != 0 || pos+recSize > len(data) {
			return ""
		}
		if recType == 1 { // RIGHTS_MANAGEMENT record, UTF-16LE XML
			xmlStr := utf16leToString(data[pos : pos+recSize])
			if doc := etree.NewDocument(); doc.ReadFromString(xmlStr) == nil {
				if el := doc.FindElement(".//DATA/LA_URL"); el != nil {
					return strings.TrimSpace(el.Text())
				}
			}
		}
		pos += recSize
	}
	return ""
}

func utf16leToString(b []byte) string {
	if len(b)%2 != 0 {
		b = b[:len(b)-1]
	}
	runes := make([]uint16, len(b)/2)
	for i := range runes {
		runes[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16Decode(runes))
}

func utf16Decode(u []uint16) []rune {
	out := make([]rune, 0, len(u))
	for _, r := range u {
		out = append(out, rune(r))
	}
	return out
}

// IntersectKeySystems implements the Representation-level update policy:
// replace if the AdaptationSet was unknown/unencrypted, otherwise
// intersect; an empty intersection fails DASH_NO_COMMON_KEY_SYSTEM.
func IntersectKeySystems(adaptationSet, representation []model.DrmInfo) ([]model.DrmInfo, error) {
	if len(adaptationSet) == 0 {
		return representation, nil
	}
	if len(representation) == 0 {
		return adaptationSet, nil
	}
	seen := make(map[string]bool)
	for _, d := range representation {
		seen[d.KeySystem] = true
	}
	var out []model.DrmInfo
	for _, d := range adaptationSet {
		if seen[d.KeySystem] {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Manifest, dasherr.DashNoCommonKeySystem, nil)
	}
	return out, nil
}
