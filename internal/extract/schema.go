package extract

import (
	"strconv"
	"strings"
)

// groupColumns are the per-object column stems, in output order.
var groupColumns = [...]string{"type", "E", "px", "py", "pz", "pt", "eta", "phi", "Q"}

// GroupWidth is the number of columns written per object slot.
const GroupWidth = len(groupColumns)

// Schema is the fixed CSV layout for a job: Run, Event and MaxObjects groups.
type Schema struct {
	MaxObjects int
}

// Width is the number of fields in every line, header included.
func (s Schema) Width() int {
	return 2 + GroupWidth*s.MaxObjects
}

// Columns returns the header fields.
func (s Schema) Columns() []string {
	cols := make([]string, 0, s.Width())
	cols = append(cols, "Run", "Event")
	for j := 1; j <= s.MaxObjects; j++ {
		idx := strconv.Itoa(j)
		for _, stem := range groupColumns {
			cols = append(cols, stem+idx)
		}
	}
	return cols
}

// Header returns the header line without the trailing newline.
func (s Schema) Header() string {
	return strings.Join(s.Columns(), ",")
}
