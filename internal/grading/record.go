package grading

import (
	"fmt"

	appErrors "github.com/noah-isme/course-admin-api/pkg/errors"
)

// Record is an ordered list of components whose grade is always derived on demand.
type Record struct {
	components []ScoredComponent
}

// NewRecord validates every component and returns a record preserving their order.
func NewRecord(components []ScoredComponent) (*Record, error) {
	r := &Record{components: make([]ScoredComponent, 0, len(components))}
	for i, c := range components {
		if err := c.Validate(); err != nil {
			return nil, indexed(err, i)
		}
		r.components = append(r.components, c)
	}
	return r, nil
}

// Components returns a copy of the components in display order.
func (r *Record) Components() []ScoredComponent {
	out := make([]ScoredComponent, len(r.components))
	copy(out, r.components)
	return out
}

// Len returns the number of components.
func (r *Record) Len() int {
	return len(r.components)
}

// Grade recomputes the derived grade from the current components.
func (r *Record) Grade() Result {
	return ComputeFinalGrade(r.components)
}

// Add appends a validated component.
func (r *Record) Add(c ScoredComponent) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	r.components = append(r.components, c)
	return r.Grade(), nil
}

// Update replaces the component at index.
func (r *Record) Update(index int, c ScoredComponent) (Result, error) {
	if err := r.checkIndex(index); err != nil {
		return Result{}, err
	}
	if err := c.Validate(); err != nil {
		return Result{}, err
	}
	r.components[index] = c
	return r.Grade(), nil
}

// Remove deletes the component at index keeping the order of the rest.
func (r *Record) Remove(index int) (Result, error) {
	if err := r.checkIndex(index); err != nil {
		return Result{}, err
	}
	r.components = append(r.components[:index], r.components[index+1:]...)
	return r.Grade(), nil
}

func (r *Record) checkIndex(index int) error {
	if index < 0 || index >= len(r.components) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("component %d not found", index))
	}
	return nil
}

func indexed(err error, index int) error {
	appErr := appErrors.FromError(err)
	clone := *appErr
	clone.Field = fmt.Sprintf("components[%d].%s", index, appErr.Field)
	return &clone
}
