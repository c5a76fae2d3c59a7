package course

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

const videoURLExpiry = time.Hour

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = errors.New("course not found")
	ErrNotPublished       = errors.New("course not found or not published")
	ErrLectureNotFound    = errors.New("lecture not found in this course")
	ErrLectureNotInCourse = errors.New("lecture does not belong to this course")
	ErrSlugExists         = errors.New("slug already exists")
	ErrSlugTitleRequired  = errors.New("slug and title are required")
	ErrForbidden          = errors.New("not the creator of this course")
	ErrNotEnrolled        = errors.New("user is not enrolled in this course")
	ErrDeleteFailed       = errors.New("delete course failed")
	ErrInvalidStatus      = errors.New("status must be active or completed")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourseByID(ctx context.Context, id string) (Course, error)
		// QueryCourses lists courses created by creatorID, or all courses when creatorID is empty.
		QueryCourses(ctx context.Context, creatorID string) ([]Course, error)
		QueryPublishedCourses(ctx context.Context) ([]Course, error)
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) (int64, error)

		// CreateLecture appends the lecture after the last one when its sequence is 0.
		CreateLecture(ctx context.Context, l Lecture) (Lecture, error)
		GetLecture(ctx context.Context, courseID, lectureID string) (Lecture, error)
		QueryLectures(ctx context.Context, courseID string) ([]Lecture, error)
		UpdateLecture(ctx context.Context, l Lecture) (Lecture, error)
		DeleteLecture(ctx context.Context, courseID, lectureID string) (int64, error)

		GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error)
		// CreateEnrollment reports whether a new enrollment was created.
		CreateEnrollment(ctx context.Context, userID, courseID string) (Enrollment, bool, error)
		// SaveLectureProgress upserts the lecture progress and recomputes the enrollment in one transaction.
		SaveLectureProgress(ctx context.Context, upd ProgressUpdate, userID, courseID, lectureID string) (CourseProgress, error)
		QueryMyCourses(ctx context.Context, userID, status string) ([]MyCourse, error)
	}

	// URLSigner presigns object keys, see upload.Service.
	URLSigner interface {
		PresignedGetURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	}

	Service struct {
		repo   Repository
		signer URLSigner
		logger core.Logger
	}
)

func NewService(repo Repository, signer URLSigner, logger core.Logger) *Service {
	return &Service{repo: repo, signer: signer, logger: logger}
}

// authorize lets Admins manage any course and Teachers only the ones they created.
func authorize(p identity.Principal, c Course) error {
	if p.IsAdmin() || c.CreatorID == p.LocalUserID {
		return nil
	}
	return ErrForbidden
}

func (svc *Service) getManaged(ctx context.Context, p identity.Principal, courseID string) (Course, error) {
	c, err := svc.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		return Course{}, err
	}
	return c, authorize(p, c)
}

// ListManaged returns all courses to Admins and own courses to Teachers.
func (svc *Service) ListManaged(ctx context.Context, p identity.Principal) ([]Course, error) {
	creatorID := p.LocalUserID
	if p.IsAdmin() {
		creatorID = ""
	}
	courses, err := svc.repo.QueryCourses(ctx, creatorID)
	return courses, errors.Wrap(err, "querying courses")
}

func (svc *Service) Create(ctx context.Context, p identity.Principal, nc NewCourse) (Course, error) {
	now := NowFunc().UTC()
	c := Course{
		Slug:             nc.Slug,
		Title:            nc.Title,
		ShortDescription: null.StringFromPtr(nc.ShortDescription),
		Description:      null.StringFromPtr(nc.Description),
		Price:            null.Float64FromPtr(nc.Price),
		Currency:         null.StringFromPtr(nc.Currency),
		Published:        nc.Published,
		CreatorID:        p.LocalUserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if c.Published {
		c.PublishedAt = null.TimeFrom(now)
	}
	c, err := svc.repo.CreateCourse(ctx, c)
	return c, errors.Wrap(err, "creating course")
}

func (svc *Service) Update(ctx context.Context, p identity.Principal, courseID string, cu CourseUpdate) (Course, error) {
	c, err := svc.getManaged(ctx, p, courseID)
	if err != nil {
		return Course{}, err
	}
	now := NowFunc().UTC()
	c = cu.merge(c, now)
	c.UpdatedAt = now
	c, err = svc.repo.UpdateCourse(ctx, c)
	return c, errors.Wrap(err, "updating course")
}

func (svc *Service) Delete(ctx context.Context, p identity.Principal, courseID string) error {
	if _, err := svc.getManaged(ctx, p, courseID); err != nil {
		return err
	}
	n, err := svc.repo.DeleteCourse(ctx, courseID)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if n == 0 {
		return ErrDeleteFailed
	}
	return nil
}

func (svc *Service) CreateLecture(ctx context.Context, p identity.Principal, courseID string, nl NewLecture) (Lecture, error) {
	if _, err := svc.getManaged(ctx, p, courseID); err != nil {
		return Lecture{}, err
	}
	now := NowFunc().UTC()
	l := Lecture{
		CourseID:        courseID,
		Title:           nl.Title,
		Content:         null.StringFromPtr(nl.Content),
		VideoS3Key:      null.StringFromPtr(nl.VideoS3Key),
		DurationSeconds: null.IntFromPtr(nl.DurationSeconds),
		IsPreview:       nl.IsPreview,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if nl.Sequence != nil {
		l.Sequence = *nl.Sequence
	}
	l, err := svc.repo.CreateLecture(ctx, l)
	return l, errors.Wrap(err, "creating lecture")
}

func (svc *Service) UpdateLecture(ctx context.Context, p identity.Principal, courseID, lectureID string, lu LectureUpdate) (Lecture, error) {
	if _, err := svc.getManaged(ctx, p, courseID); err != nil {
		return Lecture{}, err
	}
	l, err := svc.repo.GetLecture(ctx, courseID, lectureID)
	if err != nil {
		return Lecture{}, err
	}
	l = lu.merge(l)
	l.UpdatedAt = NowFunc().UTC()
	l, err = svc.repo.UpdateLecture(ctx, l)
	return l, errors.Wrap(err, "updating lecture")
}

func (svc *Service) DeleteLecture(ctx context.Context, p identity.Principal, courseID, lectureID string) error {
	if _, err := svc.getManaged(ctx, p, courseID); err != nil {
		return err
	}
	n, err := svc.repo.DeleteLecture(ctx, courseID, lectureID)
	if err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	if n == 0 {
		return ErrLectureNotFound
	}
	return nil
}

func (svc *Service) ListPublished(ctx context.Context) ([]Course, error) {
	courses, err := svc.repo.QueryPublishedCourses(ctx)
	return courses, errors.Wrap(err, "querying published courses")
}

func (svc *Service) getPublished(ctx context.Context, courseID string) (Course, error) {
	c, err := svc.repo.GetCourseByID(ctx, courseID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Course{}, ErrNotPublished
		}
		return Course{}, err
	}
	if !c.Published {
		return Course{}, ErrNotPublished
	}
	return c, nil
}

// GetPublished returns a published course with its lectures. Video URLs are presigned when possible.
func (svc *Service) GetPublished(ctx context.Context, courseID string) (Detail, error) {
	c, err := svc.getPublished(ctx, courseID)
	if err != nil {
		return Detail{}, err
	}
	lectures, err := svc.repo.QueryLectures(ctx, courseID)
	if err != nil {
		return Detail{}, errors.Wrap(err, "querying lectures")
	}
	for i := range lectures {
		l := &lectures[i]
		if !l.VideoS3Key.Valid || svc.signer == nil {
			continue
		}
		u, err := svc.signer.PresignedGetURL(ctx, l.VideoS3Key.String, videoURLExpiry)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("presigning lecture %s video: %v", l.ID, err), err)
			continue
		}
		l.VideoURL = &u
	}
	return Detail{Course: c, Lectures: lectures}, nil
}

// Enroll reports whether a new enrollment was created.
func (svc *Service) Enroll(ctx context.Context, p identity.Principal, courseID string) (Enrollment, bool, error) {
	if _, err := svc.getPublished(ctx, courseID); err != nil {
		return Enrollment{}, false, err
	}
	e, created, err := svc.repo.CreateEnrollment(ctx, p.LocalUserID, courseID)
	return e, created, errors.Wrap(err, "enrolling")
}

func (svc *Service) UpdateProgress(ctx context.Context, p identity.Principal, courseID, lectureID string, pu ProgressUpdate) (CourseProgress, error) {
	if _, err := svc.repo.GetLecture(ctx, courseID, lectureID); err != nil {
		if errors.Cause(err) == ErrLectureNotFound {
			return CourseProgress{}, ErrLectureNotInCourse
		}
		return CourseProgress{}, err
	}
	if _, err := svc.repo.GetEnrollment(ctx, p.LocalUserID, courseID); err != nil {
		return CourseProgress{}, err
	}
	cp, err := svc.repo.SaveLectureProgress(ctx, pu, p.LocalUserID, courseID, lectureID)
	return cp, errors.Wrap(err, "saving lecture progress")
}

func (svc *Service) MyCourses(ctx context.Context, p identity.Principal, status string) ([]MyCourse, error) {
	status = core.CleanString(status, true /* lower */)
	if status != "" && status != StatusActive && status != StatusCompleted {
		return nil, ErrInvalidStatus
	}
	courses, err := svc.repo.QueryMyCourses(ctx, p.LocalUserID, status)
	return courses, errors.Wrap(err, "querying my courses")
}
