package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/learninghub/core/course"
)

type courseRepository struct {
	db *courseTable
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *DB) *courseRepository {
	return &courseRepository{db: db.course}
}

func (repo *courseRepository) slugTaken(slug, exceptID string) bool {
	for _, c := range repo.db.courses {
		if c.Slug == slug && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if repo.slugTaken(c.Slug, "") {
		return course.Course{}, course.ErrSlugExists
	}
	c.ID = newID()
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourseByID(_ context.Context, id string) (course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if c, ok := repo.db.courses[id]; ok {
		return *c, nil
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) list(match func(c *course.Course) bool) []course.Course {
	courses := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if match(c) {
			courses = append(courses, *c)
		}
	}
	return courses
}

func (repo *courseRepository) QueryCourses(_ context.Context, creatorID string) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := repo.list(func(c *course.Course) bool { return creatorID == "" || c.CreatorID == creatorID })
	sort.Slice(courses, func(i, j int) bool { return courses[i].CreatedAt.After(courses[j].CreatedAt) })
	return courses, nil
}

func (repo *courseRepository) QueryPublishedCourses(_ context.Context) ([]course.Course, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := repo.list(func(c *course.Course) bool { return c.Published })
	sort.Slice(courses, func(i, j int) bool { return courses[i].PublishedAt.Time.After(courses[j].PublishedAt.Time) })
	return courses, nil
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[c.ID]; !ok {
		return course.Course{}, course.ErrNotFound
	}
	if repo.slugTaken(c.Slug, c.ID) {
		return course.Course{}, course.ErrSlugExists
	}
	repo.db.courses[c.ID] = &c
	return c, nil
}

// DeleteCourse cascades to the course lectures, enrollments and progress.
func (repo *courseRepository) DeleteCourse(_ context.Context, id string) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[id]; !ok {
		return 0, nil
	}
	delete(repo.db.courses, id)
	for k, l := range repo.db.lectures {
		if l.CourseID == id {
			delete(repo.db.lectures, k)
		}
	}
	for k, e := range repo.db.enrollments {
		if e.CourseID == id {
			delete(repo.db.enrollments, k)
		}
	}
	for k, p := range repo.db.progress {
		if p.CourseID == id {
			delete(repo.db.progress, k)
		}
	}
	return 1, nil
}

func (repo *courseRepository) lecturesOf(courseID string) []course.Lecture {
	lectures := make([]course.Lecture, 0)
	for _, l := range repo.db.lectures {
		if l.CourseID == courseID {
			lectures = append(lectures, *l)
		}
	}
	sort.Slice(lectures, func(i, j int) bool {
		if lectures[i].Sequence == lectures[j].Sequence {
			return lectures[i].CreatedAt.Before(lectures[j].CreatedAt)
		}
		return lectures[i].Sequence < lectures[j].Sequence
	})
	return lectures
}

func (repo *courseRepository) CreateLecture(_ context.Context, l course.Lecture) (course.Lecture, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.courses[l.CourseID]; !ok {
		return course.Lecture{}, course.ErrNotFound
	}
	if l.Sequence <= 0 {
		l.Sequence = 1
		for _, other := range repo.lecturesOf(l.CourseID) {
			if other.Sequence >= l.Sequence {
				l.Sequence = other.Sequence + 1
			}
		}
	}
	l.ID = newID()
	repo.db.lectures[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) GetLecture(_ context.Context, courseID, lectureID string) (course.Lecture, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if l, ok := repo.db.lectures[lectureID]; ok && l.CourseID == courseID {
		return *l, nil
	}
	return course.Lecture{}, course.ErrLectureNotFound
}

func (repo *courseRepository) QueryLectures(_ context.Context, courseID string) ([]course.Lecture, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return repo.lecturesOf(courseID), nil
}

func (repo *courseRepository) UpdateLecture(_ context.Context, l course.Lecture) (course.Lecture, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if old, ok := repo.db.lectures[l.ID]; !ok || old.CourseID != l.CourseID {
		return course.Lecture{}, course.ErrLectureNotFound
	}
	repo.db.lectures[l.ID] = &l
	return l, nil
}

func (repo *courseRepository) DeleteLecture(_ context.Context, courseID, lectureID string) (int64, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if l, ok := repo.db.lectures[lectureID]; !ok || l.CourseID != courseID {
		return 0, nil
	}
	delete(repo.db.lectures, lectureID)
	for k, p := range repo.db.progress {
		if p.LectureID == lectureID {
			delete(repo.db.progress, k)
		}
	}
	return 1, nil
}

func (repo *courseRepository) GetEnrollment(_ context.Context, userID, courseID string) (course.Enrollment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.enrollments[pairKey(userID, courseID)]; ok {
		return *e, nil
	}
	return course.Enrollment{}, course.ErrNotEnrolled
}

func (repo *courseRepository) CreateEnrollment(_ context.Context, userID, courseID string) (course.Enrollment, bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := pairKey(userID, courseID)
	if e, ok := repo.db.enrollments[key]; ok {
		return *e, false, nil
	}
	if _, ok := repo.db.courses[courseID]; !ok {
		return course.Enrollment{}, false, course.ErrNotFound
	}
	ts := now()
	e := &course.Enrollment{
		ID:         newID(),
		UserID:     userID,
		CourseID:   courseID,
		Status:     course.StatusActive,
		EnrolledAt: ts,
	}
	e.LastAccessedAt.SetValid(ts)
	repo.db.enrollments[key] = e
	return *e, true, nil
}

func (repo *courseRepository) SaveLectureProgress(
	_ context.Context, upd course.ProgressUpdate, userID, courseID, lectureID string,
) (course.CourseProgress, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e, ok := repo.db.enrollments[pairKey(userID, courseID)]
	if !ok {
		return course.CourseProgress{}, course.ErrNotEnrolled
	}

	ts := now()
	key := pairKey(userID, lectureID)
	prev := course.LectureProgress{UserID: userID, LectureID: lectureID, CourseID: courseID}
	if p, ok := repo.db.progress[key]; ok {
		prev = *p
	}
	next := course.MergeProgress(prev, upd, ts)
	repo.db.progress[key] = &next

	lectures := repo.lecturesOf(courseID)
	var done int
	for _, l := range lectures {
		if p, ok := repo.db.progress[pairKey(userID, l.ID)]; ok && p.Completed {
			done++
		}
	}

	cp := course.CourseProgress{
		UserID:          userID,
		CourseID:        courseID,
		ProgressPercent: course.ProgressPercent(done, len(lectures)),
		Status:          course.StatusActive,
	}
	if cp.ProgressPercent >= 100 {
		cp.Status = course.StatusCompleted
	}
	e.ProgressPercent = cp.ProgressPercent
	e.Status = cp.Status
	if cp.Status == course.StatusCompleted {
		if !e.CompletedAt.Valid {
			e.CompletedAt.SetValid(ts)
		}
	} else {
		e.CompletedAt.Valid = false
	}
	e.LastAccessedAt.SetValid(ts)
	return cp, nil
}

func (repo *courseRepository) QueryMyCourses(_ context.Context, userID, status string) ([]course.MyCourse, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	courses := make([]course.MyCourse, 0)
	for _, e := range repo.db.enrollments {
		if e.UserID != userID || (status != "" && e.Status != status) {
			continue
		}
		c, ok := repo.db.courses[e.CourseID]
		if !ok {
			continue
		}
		courses = append(courses, course.MyCourse{
			Course:          *c,
			EnrollmentID:    e.ID,
			Status:          e.Status,
			ProgressPercent: e.ProgressPercent,
			EnrolledAt:      e.EnrolledAt,
			CompletedAt:     e.CompletedAt,
			LastAccessedAt:  e.LastAccessedAt,
		})
	}
	sort.Slice(courses, func(i, j int) bool { return courses[i].EnrolledAt.After(courses[j].EnrolledAt) })
	return courses, nil
}
