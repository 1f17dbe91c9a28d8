package extract

import (
	"fmt"
	"sync/atomic"

	"github.com/gyaneshwarpardhi/electrondump/internal/condition"
	"github.com/gyaneshwarpardhi/electrondump/internal/event"
)

// Filter keeps the records that satisfy a single predicate and stamps them
// with a fixed tag. The predicate can be swapped while a job runs; the tag
// cannot.
type Filter struct {
	pred atomic.Pointer[condition.Predicate]
	tag  string
}

// NewFilter compiles predicate and returns a Filter tagging matches with tag.
func NewFilter(predicate, tag string) (*Filter, error) {
	p, err := condition.CompileFor(predicate, event.IsRecordField)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	f := &Filter{tag: tag}
	f.pred.Store(p)
	return f, nil
}

// Tag is the value written in the type column of kept records.
func (f *Filter) Tag() string { return f.tag }

// Predicate returns the active predicate source.
func (f *Filter) Predicate() string { return f.pred.Load().String() }

// SetPredicate compiles and installs a new predicate. On error the previous
// predicate stays active.
func (f *Filter) SetPredicate(src string) error {
	p, err := condition.CompileFor(src, event.IsRecordField)
	if err != nil {
		return fmt.Errorf("filter: %w", err)
	}
	f.pred.Store(p)
	return nil
}

// Apply appends the matching records to buf in input order. A record whose
// predicate cannot be evaluated is skipped and counted in evalErrs.
func (f *Filter) Apply(records []event.ObjectRecord, buf *Buffer) (evalErrs int) {
	p := f.pred.Load()
	for i := range records {
		ok, err := p.Match(&records[i])
		if err != nil {
			evalErrs++
			continue
		}
		if ok {
			buf.Kept = append(buf.Kept, Tagged{Tag: f.tag, ObjectRecord: records[i]})
		}
	}
	return evalErrs
}
