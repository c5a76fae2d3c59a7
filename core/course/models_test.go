package course

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		completed, total int
		want             float64
	}{
		{0, 0, 0},
		{0, 3, 0},
		{1, 3, 33.33},
		{2, 3, 66.67},
		{3, 3, 100},
		{4, 3, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ProgressPercent(tt.completed, tt.total), "%d/%d", tt.completed, tt.total)
	}
}

func TestMergeProgress(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	prev := LectureProgress{WatchedSeconds: 120}
	got := MergeProgress(prev, ProgressUpdate{WatchedSeconds: 60, Completed: true}, t1)
	assert.Equal(t, 120, got.WatchedSeconds, "watched seconds never decrease")
	assert.True(t, got.Completed)
	assert.Equal(t, null.TimeFrom(t1), got.CompletedAt)

	got = MergeProgress(got, ProgressUpdate{WatchedSeconds: 300}, t2)
	assert.Equal(t, 300, got.WatchedSeconds)
	assert.True(t, got.Completed, "completion is sticky")
	assert.Equal(t, null.TimeFrom(t1), got.CompletedAt)
	assert.Equal(t, t2, got.UpdatedAt)
}

func TestCourseUpdate_merge(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	earlier := now.Add(-24 * time.Hour)
	bPtr := func(b bool) *bool { return &b }
	sPtr := func(s string) *string { return &s }

	c := Course{Slug: "go", Title: "Go"}
	c = CourseUpdate{Published: bPtr(true), Title: sPtr("Go 101")}.merge(c, now)
	assert.True(t, c.Published)
	assert.Equal(t, null.TimeFrom(now), c.PublishedAt)
	assert.Equal(t, "Go 101", c.Title)

	c.PublishedAt = null.TimeFrom(earlier)
	c = CourseUpdate{Published: bPtr(true)}.merge(c, now)
	assert.Equal(t, null.TimeFrom(earlier), c.PublishedAt, "republishing keeps the first date")

	c = CourseUpdate{Published: bPtr(false)}.merge(c, now)
	assert.False(t, c.Published)
	assert.False(t, c.PublishedAt.Valid)
}

func TestNewCourse_Validate(t *testing.T) {
	validate := validator.New()

	nc := NewCourse{Slug: "  ", Title: "Go"}
	assert.Equal(t, ErrSlugTitleRequired, nc.Validate(validate))

	nc = NewCourse{Slug: " Go-101 ", Title: " Go "}
	assert.NoError(t, nc.Validate(validate))
	assert.Equal(t, "go-101", nc.Slug)
	assert.Equal(t, "Go", nc.Title)
}
