package extract

import (
	"strconv"
)

// PadValue is written in every numeric field of an empty slot.
const PadValue = "0.0"

// FormatScalar renders v as the shortest decimal that parses back to v.
func FormatScalar(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Flatten turns buf into one CSV row of exactly Schema{n}.Width() fields.
// Slots past the kept records are padded with padType and PadValue; kept
// records past n are dropped. It returns nil when buf holds no records: such
// events produce no row at all.
func Flatten(buf *Buffer, n int, padType string) []string {
	if buf.Len() == 0 || n <= 0 {
		return nil
	}
	row := make([]string, 0, Schema{MaxObjects: n}.Width())
	row = append(row,
		strconv.FormatUint(buf.Run, 10),
		strconv.FormatUint(buf.Event, 10),
	)
	for j := 0; j < n; j++ {
		if j >= buf.Len() {
			row = append(row, padType)
			for k := 1; k < GroupWidth; k++ {
				row = append(row, PadValue)
			}
			continue
		}
		r := buf.Kept[j]
		row = append(row,
			r.Tag,
			FormatScalar(r.Energy),
			FormatScalar(r.Px),
			FormatScalar(r.Py),
			FormatScalar(r.Pz),
			FormatScalar(r.Pt),
			FormatScalar(r.Eta),
			FormatScalar(r.Phi),
			FormatScalar(r.Charge),
		)
	}
	return row
}
