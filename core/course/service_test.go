package course_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core/course"
	"github.com/trezcool/learninghub/core/identity"
	inmemdb "github.com/trezcool/learninghub/storage/database/inmem"
	testutil "github.com/trezcool/learninghub/tests"
)

type signerMock struct {
	err error
}

func (s signerMock) PresignedGetURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://cdn.test/" + key + "?ttl=" + expiry.String(), nil
}

var (
	admin    = identity.Principal{LocalUserID: "admin-1", RoleID: identity.RoleAdmin}
	teacher  = identity.Principal{LocalUserID: "teacher-1", RoleID: identity.RoleTeacher}
	teacher2 = identity.Principal{LocalUserID: "teacher-2", RoleID: identity.RoleTeacher}
	student  = identity.Principal{LocalUserID: "student-1", RoleID: identity.RoleMember}
)

func newService(signer course.URLSigner) *course.Service {
	return course.NewService(inmemdb.NewCourseRepository(inmemdb.Open()), signer, testutil.NopLogger{})
}

func createCourse(t *testing.T, svc *course.Service, p identity.Principal, slug string, published bool) course.Course {
	t.Helper()
	c, err := svc.Create(context.Background(), p, course.NewCourse{Slug: slug, Title: slug, Published: published})
	require.NoError(t, err)
	return c
}

func TestService_ownership(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	own := createCourse(t, svc, teacher, "go-101", false)
	createCourse(t, svc, teacher2, "rust-101", false)

	title := "Go 101"
	_, err := svc.Update(ctx, teacher2, own.ID, course.CourseUpdate{Title: &title})
	assert.Equal(t, course.ErrForbidden, errors.Cause(err))

	updated, err := svc.Update(ctx, admin, own.ID, course.CourseUpdate{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Go 101", updated.Title)

	mine, err := svc.ListManaged(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, own.ID, mine[0].ID)

	all, err := svc.ListManaged(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Create(ctx, teacher2, course.NewCourse{Slug: "go-101", Title: "dup"})
	assert.Equal(t, course.ErrSlugExists, errors.Cause(err))

	assert.Equal(t, course.ErrForbidden, errors.Cause(svc.Delete(ctx, teacher2, own.ID)))
	require.NoError(t, svc.Delete(ctx, teacher, own.ID))
	assert.Equal(t, course.ErrNotFound, errors.Cause(svc.Delete(ctx, teacher, own.ID)))
}

func TestService_lectures(t *testing.T) {
	ctx := context.Background()
	svc := newService(signerMock{})
	c := createCourse(t, svc, teacher, "go-101", true)

	key := "lectures/intro.mp4"
	first, err := svc.CreateLecture(ctx, teacher, c.ID, course.NewLecture{Title: "Intro", VideoS3Key: &key})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Sequence)
	second, err := svc.CreateLecture(ctx, teacher, c.ID, course.NewLecture{Title: "Types"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Sequence)

	_, err = svc.CreateLecture(ctx, teacher2, c.ID, course.NewLecture{Title: "Nope"})
	assert.Equal(t, course.ErrForbidden, errors.Cause(err))

	detail, err := svc.GetPublished(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, detail.Lectures, 2)
	assert.Equal(t, first.ID, detail.Lectures[0].ID)
	require.NotNil(t, detail.Lectures[0].VideoURL)
	assert.Equal(t, "https://cdn.test/lectures/intro.mp4?ttl=1h0m0s", *detail.Lectures[0].VideoURL)
	assert.Nil(t, detail.Lectures[1].VideoURL)

	assert.Equal(t, course.ErrLectureNotFound, errors.Cause(svc.DeleteLecture(ctx, teacher, c.ID, "missing")))
	require.NoError(t, svc.DeleteLecture(ctx, teacher, c.ID, second.ID))
}

func TestService_GetPublished_signerFailure(t *testing.T) {
	ctx := context.Background()
	svc := newService(signerMock{err: errors.New("boom")})
	c := createCourse(t, svc, teacher, "go-101", true)
	key := "lectures/intro.mp4"
	_, err := svc.CreateLecture(ctx, teacher, c.ID, course.NewLecture{Title: "Intro", VideoS3Key: &key})
	require.NoError(t, err)

	detail, err := svc.GetPublished(ctx, c.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Lectures[0].VideoURL)
}

func TestService_unpublished(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	draft := createCourse(t, svc, teacher, "draft", false)

	_, err := svc.GetPublished(ctx, draft.ID)
	assert.Equal(t, course.ErrNotPublished, errors.Cause(err))
	_, _, err = svc.Enroll(ctx, student, draft.ID)
	assert.Equal(t, course.ErrNotPublished, errors.Cause(err))
	_, err = svc.GetPublished(ctx, "missing")
	assert.Equal(t, course.ErrNotPublished, errors.Cause(err))

	published, err := svc.ListPublished(ctx)
	require.NoError(t, err)
	assert.Empty(t, published)
}

func TestService_progress(t *testing.T) {
	ctx := context.Background()
	svc := newService(nil)
	c := createCourse(t, svc, teacher, "go-101", true)
	l1, err := svc.CreateLecture(ctx, teacher, c.ID, course.NewLecture{Title: "One"})
	require.NoError(t, err)
	l2, err := svc.CreateLecture(ctx, teacher, c.ID, course.NewLecture{Title: "Two"})
	require.NoError(t, err)
	other := createCourse(t, svc, teacher, "other", true)

	_, err = svc.UpdateProgress(ctx, student, c.ID, l1.ID, course.ProgressUpdate{Completed: true})
	assert.Equal(t, course.ErrNotEnrolled, errors.Cause(err))

	_, created, err := svc.Enroll(ctx, student, c.ID)
	require.NoError(t, err)
	assert.True(t, created)
	_, created, err = svc.Enroll(ctx, student, c.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = svc.UpdateProgress(ctx, student, other.ID, l1.ID, course.ProgressUpdate{Completed: true})
	assert.Equal(t, course.ErrLectureNotInCourse, errors.Cause(err))

	cp, err := svc.UpdateProgress(ctx, student, c.ID, l1.ID, course.ProgressUpdate{WatchedSeconds: 30, Completed: true})
	require.NoError(t, err)
	assert.Equal(t, 50.0, cp.ProgressPercent)
	assert.Equal(t, course.StatusActive, cp.Status)

	// completion is sticky
	cp, err = svc.UpdateProgress(ctx, student, c.ID, l1.ID, course.ProgressUpdate{WatchedSeconds: 10})
	require.NoError(t, err)
	assert.Equal(t, 50.0, cp.ProgressPercent)

	cp, err = svc.UpdateProgress(ctx, student, c.ID, l2.ID, course.ProgressUpdate{Completed: true})
	require.NoError(t, err)
	assert.Equal(t, 100.0, cp.ProgressPercent)
	assert.Equal(t, course.StatusCompleted, cp.Status)

	done, err := svc.MyCourses(ctx, student, "Completed")
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, c.ID, done[0].ID)
	assert.True(t, done[0].CompletedAt.Valid)

	active, err := svc.MyCourses(ctx, student, "active")
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = svc.MyCourses(ctx, student, "paused")
	assert.Equal(t, course.ErrInvalidStatus, err)
}
