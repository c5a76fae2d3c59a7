package course

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core"
)

// Enrollment statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

type Course struct {
	ID               string       `db:"id" json:"id"`
	Slug             string       `db:"slug" json:"slug"`
	Title            string       `db:"title" json:"title"`
	ShortDescription null.String  `db:"short_description" json:"shortDescription"`
	Description      null.String  `db:"description" json:"description"`
	Price            null.Float64 `db:"price" json:"price"`
	Currency         null.String  `db:"currency" json:"currency"`
	Published        bool         `db:"published" json:"published"`
	PublishedAt      null.Time    `db:"published_at" json:"publishedAt"`
	CreatorID        string       `db:"creator_id" json:"creatorId"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updatedAt"`
}

type Lecture struct {
	ID              string      `db:"id" json:"id"`
	CourseID        string      `db:"course_id" json:"courseId"`
	Title           string      `db:"title" json:"title"`
	Content         null.String `db:"content" json:"content"`
	VideoS3Key      null.String `db:"video_s3_key" json:"videoS3Key"`
	VideoURL        *string     `db:"-" json:"videoUrl,omitempty"`
	DurationSeconds null.Int    `db:"duration_seconds" json:"durationSeconds"`
	Sequence        int         `db:"sequence" json:"sequence"`
	IsPreview       bool        `db:"is_preview" json:"isPreview"`
	CreatedAt       time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// Detail is a published course with its ordered lectures.
type Detail struct {
	Course
	Lectures []Lecture `json:"lectures"`
}

type Enrollment struct {
	ID              string    `db:"id" json:"id"`
	UserID          string    `db:"user_id" json:"userId"`
	CourseID        string    `db:"course_id" json:"courseId"`
	Status          string    `db:"status" json:"status"`
	ProgressPercent float64   `db:"progress_percent" json:"progressPercent"`
	EnrolledAt      time.Time `db:"enrolled_at" json:"enrolledAt"`
	CompletedAt     null.Time `db:"completed_at" json:"completedAt"`
	LastAccessedAt  null.Time `db:"last_accessed_at" json:"lastAccessedAt"`
}

type LectureProgress struct {
	UserID         string    `db:"user_id" json:"userId"`
	LectureID      string    `db:"lecture_id" json:"lectureId"`
	CourseID       string    `db:"course_id" json:"courseId"`
	WatchedSeconds int       `db:"watched_seconds" json:"watchedSeconds"`
	Completed      bool      `db:"completed" json:"completed"`
	CompletedAt    null.Time `db:"completed_at" json:"completedAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

type CourseProgress struct {
	UserID          string  `json:"userId"`
	CourseID        string  `json:"courseId"`
	ProgressPercent float64 `json:"progressPercent"`
	Status          string  `json:"status"`
}

// MyCourse is an enrolled course seen by the enrolled user.
type MyCourse struct {
	Course
	EnrollmentID    string    `db:"enrollment_id" json:"enrollmentId"`
	Status          string    `db:"enrollment_status" json:"status"`
	ProgressPercent float64   `db:"progress_percent" json:"progressPercent"`
	EnrolledAt      time.Time `db:"enrolled_at" json:"enrolledAt"`
	CompletedAt     null.Time `db:"completed_at" json:"completedAt"`
	LastAccessedAt  null.Time `db:"last_accessed_at" json:"lastAccessedAt"`
}

// ProgressPercent is the share of completed lectures, rounded to 2 decimals.
func ProgressPercent(completed, total int) float64 {
	if total <= 0 || completed <= 0 {
		return 0
	}
	if completed > total {
		completed = total
	}
	return math.Round(10000*float64(completed)/float64(total)) / 100
}

// MergeProgress applies a progress report on top of the stored one.
// Watched seconds never decrease and completion is sticky.
func MergeProgress(prev LectureProgress, upd ProgressUpdate, now time.Time) LectureProgress {
	next := prev
	if upd.WatchedSeconds > next.WatchedSeconds {
		next.WatchedSeconds = upd.WatchedSeconds
	}
	if upd.Completed && !next.Completed {
		next.Completed = true
		next.CompletedAt = null.TimeFrom(now)
	}
	next.UpdatedAt = now
	return next
}

type NewCourse struct {
	Slug             string   `json:"slug" validate:"max=255"`
	Title            string   `json:"title" validate:"max=255"`
	ShortDescription *string  `json:"shortDescription" validate:"omitempty,max=500"`
	Description      *string  `json:"description"`
	Price            *float64 `json:"price" validate:"omitempty,min=0"`
	Currency         *string  `json:"currency" validate:"omitempty,len=3"`
	Published        bool     `json:"published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Title = core.CleanString(nc.Title)
	nc.ShortDescription = core.CleanStringPtr(nc.ShortDescription)
	nc.Currency = core.CleanStringPtr(nc.Currency)
	if nc.Slug == "" || nc.Title == "" {
		return ErrSlugTitleRequired
	}
	return validate.Struct(nc)
}

type CourseUpdate struct {
	Slug             *string  `json:"slug" validate:"omitempty,max=255"`
	Title            *string  `json:"title" validate:"omitempty,max=255"`
	ShortDescription *string  `json:"shortDescription" validate:"omitempty,max=500"`
	Description      *string  `json:"description"`
	Price            *float64 `json:"price" validate:"omitempty,min=0"`
	Currency         *string  `json:"currency" validate:"omitempty,len=3"`
	Published        *bool    `json:"published"`
}

func (cu *CourseUpdate) Validate(validate *validator.Validate) error {
	cu.Slug = core.CleanStringPtr(cu.Slug, true /* lower */)
	cu.Title = core.CleanStringPtr(cu.Title)
	cu.ShortDescription = core.CleanStringPtr(cu.ShortDescription)
	cu.Currency = core.CleanStringPtr(cu.Currency)
	if (cu.Slug != nil && *cu.Slug == "") || (cu.Title != nil && *cu.Title == "") {
		return ErrSlugTitleRequired
	}
	return validate.Struct(cu)
}

// merge applies the update on c. publishedAt follows the published flag.
func (cu CourseUpdate) merge(c Course, now time.Time) Course {
	if cu.Slug != nil {
		c.Slug = *cu.Slug
	}
	if cu.Title != nil {
		c.Title = *cu.Title
	}
	if cu.ShortDescription != nil {
		c.ShortDescription = null.StringFrom(*cu.ShortDescription)
	}
	if cu.Description != nil {
		c.Description = null.StringFrom(*cu.Description)
	}
	if cu.Price != nil {
		c.Price = null.Float64From(*cu.Price)
	}
	if cu.Currency != nil {
		c.Currency = null.StringFrom(*cu.Currency)
	}
	if cu.Published != nil {
		switch {
		case *cu.Published && !c.Published:
			c.PublishedAt = null.TimeFrom(now)
		case !*cu.Published:
			c.PublishedAt = null.Time{}
		}
		c.Published = *cu.Published
	}
	return c
}

type NewLecture struct {
	Title           string  `json:"title" validate:"required,max=255"`
	Content         *string `json:"content"`
	VideoS3Key      *string `json:"videoS3Key" validate:"omitempty,max=1024"`
	DurationSeconds *int    `json:"durationSeconds" validate:"omitempty,min=0"`
	Sequence        *int    `json:"sequence" validate:"omitempty,min=1"`
	IsPreview       bool    `json:"isPreview"`
}

func (nl *NewLecture) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.VideoS3Key = core.CleanStringPtr(nl.VideoS3Key)
	return validate.Struct(nl)
}

type LectureUpdate struct {
	Title           *string `json:"title" validate:"omitempty,min=1,max=255"`
	Content         *string `json:"content"`
	VideoS3Key      *string `json:"videoS3Key" validate:"omitempty,max=1024"`
	DurationSeconds *int    `json:"durationSeconds" validate:"omitempty,min=0"`
	Sequence        *int    `json:"sequence" validate:"omitempty,min=1"`
	IsPreview       *bool   `json:"isPreview"`
}

func (lu *LectureUpdate) Validate(validate *validator.Validate) error {
	lu.Title = core.CleanStringPtr(lu.Title)
	lu.VideoS3Key = core.CleanStringPtr(lu.VideoS3Key)
	return validate.Struct(lu)
}

func (lu LectureUpdate) merge(l Lecture) Lecture {
	if lu.Title != nil {
		l.Title = *lu.Title
	}
	if lu.Content != nil {
		l.Content = null.StringFrom(*lu.Content)
	}
	if lu.VideoS3Key != nil {
		l.VideoS3Key = null.NewString(*lu.VideoS3Key, *lu.VideoS3Key != "")
	}
	if lu.DurationSeconds != nil {
		l.DurationSeconds = null.IntFrom(*lu.DurationSeconds)
	}
	if lu.Sequence != nil {
		l.Sequence = *lu.Sequence
	}
	if lu.IsPreview != nil {
		l.IsPreview = *lu.IsPreview
	}
	return l
}

type ProgressUpdate struct {
	WatchedSeconds int  `json:"watchedSeconds" validate:"min=0"`
	Completed      bool `json:"completed"`
}

func (pu *ProgressUpdate) Validate(validate *validator.Validate) error {
	return validate.Struct(pu)
}
