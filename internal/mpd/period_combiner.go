package mpd

import (
	"sort"
	"strings"

	"41.neocities.org/dashhls/internal/model"
)

// combinerKey groups representations across periods into a single Stream:
// same language, role set, channel count, label, and codec family are
// treated as the same logical track continuing into the next period.
type combinerKey struct {
	language     string
	roles        string
	channelCount int
	label        string
	codecBase    string
}

func keyFor(rep *RawRepresentation) combinerKey {
	lang := rep.AdaptationElem.SelectAttrValue("lang", "")
	var roles []string
	for _, r := range rep.AdaptationElem.SelectElements("Role") {
		roles = append(roles, r.SelectAttrValue("value", ""))
	}
	sort.Strings(roles)
	label := ""
	if l := rep.AdaptationElem.SelectElement("Label"); l != nil {
		label = strings.TrimSpace(l.Text())
	}
	return combinerKey{
		language:     lang,
		roles:        strings.Join(roles, ","),
		channelCount: rep.Frame.ChannelCount,
		label:        label,
		codecBase:    strings.SplitN(rep.Codecs, ".", 2)[0],
	}
}

// CombinePeriods merges representations from different periods that share
// a combinerKey into one Stream whose SegmentIndex concatenates each
// period's segments back-to-back.
func CombinePeriods(reps []*RawRepresentation, indexes map[*RawRepresentation]*model.SegmentIndex) ([]*model.Stream, error) {
	groups := make(map[combinerKey][]*RawRepresentation)
	var order []combinerKey
	for _, r := range reps {
		k := keyFor(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	var streams []*model.Stream
	nextID := 1
	for _, k := range order {
		members := groups[k]
		sort.SliceStable(members, func(i, j int) bool { return members[i].PeriodStart < members[j].PeriodStart })
		first := members[0]

		var merged []*model.SegmentReference
		for _, m := range members {
			idx := indexes[m]
			if idx == nil {
				continue
			}
			idx.ForEachTopLevelReference(func(r *model.SegmentReference) {
				shifted := *r
				shifted.StartTime += m.PeriodStart
				shifted.EndTime += m.PeriodStart
				merged = append(merged, &shifted)
			})
		}

		keyIDs := make(map[string]struct{})
		for _, m := range members {
			if m.KeyID != "" {
				keyIDs[m.KeyID] = struct{}{}
			}
		}
		if len(keyIDs) == 0 {
			keyIDs = nil
		}

		stream := &model.Stream{
			ID:          nextID,
			PeriodID:    first.PeriodID,
			RepID:       first.ID,
			ContentType: first.ContentType,
			MimeType:    first.MimeType,
			Codecs:      first.Codecs,
			Language:    k.language,
			Label:       k.label,
			Bandwidth:   first.Bandwidth,
			DrmInfos:    first.DrmInfos,
			KeyIDs:      keyIDs,
		}
		nextID++
		idx := model.NewSegmentIndex(merged)
		stream.SetSegmentIndexFactory(func() (*model.SegmentIndex, error) { return idx, nil })
		streams = append(streams, stream)
	}
	return streams, nil
}
