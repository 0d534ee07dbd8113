package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReviewEditableAtWindowBoundary(t *testing.T) {
	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	review := Review{CreatedAt: created}

	assert.True(t, review.EditableAt(created.Add(47*time.Hour)))
	assert.True(t, review.EditableAt(created.Add(48*time.Hour)), "the edit window is inclusive")
	assert.False(t, review.EditableAt(created.Add(48*time.Hour+time.Second)))
	assert.False(t, review.EditableAt(created.Add(49*time.Hour)))
}

func TestValidRating(t *testing.T) {
	assert.False(t, ValidRating(0))
	assert.True(t, ValidRating(1))
	assert.True(t, ValidRating(5))
	assert.False(t, ValidRating(6))
	assert.False(t, ValidRating(-1))
}

func TestAggregateRating(t *testing.T) {
	rating, count := AggregateRating([]int{4, 5, 3})
	assert.Equal(t, 4.0, rating)
	assert.Equal(t, 3, count)

	// after dropping the 3, the mean is 4.5
	rating, count = AggregateRating([]int{4, 5})
	assert.Equal(t, 4.5, rating)
	assert.Equal(t, 2, count)

	// 1/3 rounds to one decimal, not truncates
	rating, count = AggregateRating([]int{4, 4, 5})
	assert.Equal(t, 4.3, rating)
	assert.Equal(t, 3, count)

	rating, count = AggregateRating(nil)
	assert.Equal(t, 0.0, rating)
	assert.Equal(t, 0, count)
}
