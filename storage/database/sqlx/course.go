package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/course"
)

const (
	courseColumns = `c.id, c.slug, c.title, c.short_description, c.description, c.price, c.currency, c.published,
		c.published_at, c.creator_id, c.created_at, c.updated_at`
	lectureColumns = `id, course_id, title, content, video_s3_key, duration_seconds, sequence, is_preview,
		created_at, updated_at`
	enrollmentColumns = `id, user_id, course_id, status, progress_percent, enrolled_at, completed_at, last_accessed_at`
)

type courseRepository struct {
	db core.DB
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db core.DB) *courseRepository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	c.ID = uuid.NewString()
	_, err := repo.db.NamedExecContext(
		ctx,
		`INSERT INTO courses (id, slug, title, short_description, description, price, currency, published, published_at,
			creator_id, created_at, updated_at)
		VALUES (:id, :slug, :title, :short_description, :description, :price, :currency, :published, :published_at,
			:creator_id, :created_at, :updated_at)`,
		c,
	)
	if isUniqueViolation(err) {
		return course.Course{}, course.ErrSlugExists
	}
	if err != nil {
		return course.Course{}, dbError(err, "inserting course")
	}
	return c, nil
}

func (repo *courseRepository) GetCourseByID(ctx context.Context, id string) (course.Course, error) {
	if !validID(id) {
		return course.Course{}, course.ErrNotFound
	}
	var c course.Course
	if err := repo.db.GetContext(ctx, &c, "SELECT "+courseColumns+" FROM courses c WHERE c.id = $1", id); err != nil {
		return course.Course{}, trapNoRowsErr(err, course.ErrNotFound, "getting course")
	}
	return c, nil
}

func (repo *courseRepository) QueryCourses(ctx context.Context, creatorID string) ([]course.Course, error) {
	q := "SELECT " + courseColumns + " FROM courses c"
	var args []interface{}
	if creatorID != "" {
		q += " WHERE c.creator_id = $1"
		args = append(args, creatorID)
	}
	courses := make([]course.Course, 0)
	err := repo.db.SelectContext(ctx, &courses, q+" ORDER BY c.created_at DESC", args...)
	return courses, dbError(err, "querying courses")
}

func (repo *courseRepository) QueryPublishedCourses(ctx context.Context) ([]course.Course, error) {
	courses := make([]course.Course, 0)
	err := repo.db.SelectContext(
		ctx, &courses,
		"SELECT "+courseColumns+" FROM courses c WHERE c.published ORDER BY c.published_at DESC NULLS LAST",
	)
	return courses, dbError(err, "querying published courses")
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	res, err := repo.db.NamedExecContext(
		ctx,
		`UPDATE courses SET slug = :slug, title = :title, short_description = :short_description,
			description = :description, price = :price, currency = :currency, published = :published,
			published_at = :published_at, updated_at = :updated_at
		WHERE id = :id`,
		c,
	)
	if isUniqueViolation(err) {
		return course.Course{}, course.ErrSlugExists
	}
	if err != nil {
		return course.Course{}, dbError(err, "updating course")
	}
	if n, err := rowsAffected(res, "updating course"); err != nil {
		return course.Course{}, err
	} else if n == 0 {
		return course.Course{}, course.ErrNotFound
	}
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) (int64, error) {
	if !validID(id) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM courses WHERE id = $1", id)
	if err != nil {
		return 0, dbError(err, "deleting course")
	}
	return rowsAffected(res, "deleting course")
}

func (repo *courseRepository) CreateLecture(ctx context.Context, l course.Lecture) (course.Lecture, error) {
	l.ID = uuid.NewString()
	var seq *int
	if l.Sequence > 0 {
		seq = &l.Sequence
	}
	err := repo.db.GetContext(
		ctx, &l.Sequence,
		`INSERT INTO lectures (id, course_id, title, content, video_s3_key, duration_seconds, sequence, is_preview,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			COALESCE($7::int, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM lectures WHERE course_id = $2)),
			$8, $9, $10)
		RETURNING sequence`,
		l.ID, l.CourseID, l.Title, l.Content, l.VideoS3Key, l.DurationSeconds, seq, l.IsPreview, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return course.Lecture{}, dbError(err, "inserting lecture")
	}
	return l, nil
}

func (repo *courseRepository) GetLecture(ctx context.Context, courseID, lectureID string) (course.Lecture, error) {
	if !validID(courseID) || !validID(lectureID) {
		return course.Lecture{}, course.ErrLectureNotFound
	}
	var l course.Lecture
	err := repo.db.GetContext(
		ctx, &l, "SELECT "+lectureColumns+" FROM lectures WHERE id = $1 AND course_id = $2", lectureID, courseID,
	)
	if err != nil {
		return course.Lecture{}, trapNoRowsErr(err, course.ErrLectureNotFound, "getting lecture")
	}
	return l, nil
}

func (repo *courseRepository) QueryLectures(ctx context.Context, courseID string) ([]course.Lecture, error) {
	lectures := make([]course.Lecture, 0)
	err := repo.db.SelectContext(
		ctx, &lectures,
		"SELECT "+lectureColumns+" FROM lectures WHERE course_id = $1 ORDER BY sequence, created_at", courseID,
	)
	return lectures, dbError(err, "querying lectures")
}

func (repo *courseRepository) UpdateLecture(ctx context.Context, l course.Lecture) (course.Lecture, error) {
	res, err := repo.db.NamedExecContext(
		ctx,
		`UPDATE lectures SET title = :title, content = :content, video_s3_key = :video_s3_key,
			duration_seconds = :duration_seconds, sequence = :sequence, is_preview = :is_preview, updated_at = :updated_at
		WHERE id = :id AND course_id = :course_id`,
		l,
	)
	if err != nil {
		return course.Lecture{}, dbError(err, "updating lecture")
	}
	if n, err := rowsAffected(res, "updating lecture"); err != nil {
		return course.Lecture{}, err
	} else if n == 0 {
		return course.Lecture{}, course.ErrLectureNotFound
	}
	return l, nil
}

func (repo *courseRepository) DeleteLecture(ctx context.Context, courseID, lectureID string) (int64, error) {
	if !validID(courseID) || !validID(lectureID) {
		return 0, nil
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM lectures WHERE id = $1 AND course_id = $2", lectureID, courseID)
	if err != nil {
		return 0, dbError(err, "deleting lecture")
	}
	return rowsAffected(res, "deleting lecture")
}

func (repo *courseRepository) getEnrollment(ctx context.Context, exec core.DBExecutor, userID, courseID string) (course.Enrollment, error) {
	var e course.Enrollment
	err := exec.GetContext(
		ctx, &e,
		"SELECT "+enrollmentColumns+" FROM enrollments WHERE user_id = $1 AND course_id = $2", userID, courseID,
	)
	if err != nil {
		return course.Enrollment{}, trapNoRowsErr(err, course.ErrNotEnrolled, "getting enrollment")
	}
	return e, nil
}

func (repo *courseRepository) GetEnrollment(ctx context.Context, userID, courseID string) (course.Enrollment, error) {
	if !validID(userID) || !validID(courseID) {
		return course.Enrollment{}, course.ErrNotEnrolled
	}
	return repo.getEnrollment(ctx, repo.db, userID, courseID)
}

func (repo *courseRepository) CreateEnrollment(ctx context.Context, userID, courseID string) (course.Enrollment, bool, error) {
	res, err := repo.db.ExecContext(
		ctx,
		`INSERT INTO enrollments (id, user_id, course_id, status, progress_percent, enrolled_at, last_accessed_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (user_id, course_id) DO NOTHING`,
		uuid.NewString(), userID, courseID, course.StatusActive, now(),
	)
	if err != nil {
		return course.Enrollment{}, false, dbError(err, "inserting enrollment")
	}
	n, err := rowsAffected(res, "inserting enrollment")
	if err != nil {
		return course.Enrollment{}, false, err
	}
	e, err := repo.getEnrollment(ctx, repo.db, userID, courseID)
	return e, n > 0, err
}

func (repo *courseRepository) SaveLectureProgress(
	ctx context.Context, upd course.ProgressUpdate, userID, courseID, lectureID string,
) (course.CourseProgress, error) {
	cp := course.CourseProgress{UserID: userID, CourseID: courseID}
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		ts := now()

		prev := course.LectureProgress{UserID: userID, LectureID: lectureID, CourseID: courseID}
		err := tx.GetContext(
			ctx, &prev,
			`SELECT user_id, lecture_id, course_id, watched_seconds, completed, completed_at, updated_at
			FROM lecture_progress WHERE user_id = $1 AND lecture_id = $2 FOR UPDATE`,
			userID, lectureID,
		)
		if err != nil && err != sql.ErrNoRows {
			return dbError(err, "getting lecture progress")
		}

		next := course.MergeProgress(prev, upd, ts)
		if _, err = tx.NamedExecContext(
			ctx,
			`INSERT INTO lecture_progress (user_id, lecture_id, course_id, watched_seconds, completed, completed_at, updated_at)
			VALUES (:user_id, :lecture_id, :course_id, :watched_seconds, :completed, :completed_at, :updated_at)
			ON CONFLICT (user_id, lecture_id) DO UPDATE SET
				watched_seconds = EXCLUDED.watched_seconds,
				completed = EXCLUDED.completed,
				completed_at = EXCLUDED.completed_at,
				updated_at = EXCLUDED.updated_at`,
			next,
		); err != nil {
			return dbError(err, "upserting lecture progress")
		}

		var total, done int
		if err = tx.GetContext(ctx, &total, "SELECT count(*) FROM lectures WHERE course_id = $1", courseID); err != nil {
			return dbError(err, "counting lectures")
		}
		if err = tx.GetContext(
			ctx, &done,
			`SELECT count(*) FROM lecture_progress lp JOIN lectures l ON l.id = lp.lecture_id
			WHERE lp.user_id = $1 AND l.course_id = $2 AND lp.completed`,
			userID, courseID,
		); err != nil {
			return dbError(err, "counting completed lectures")
		}

		cp.ProgressPercent = course.ProgressPercent(done, total)
		cp.Status = course.StatusActive
		if cp.ProgressPercent >= 100 {
			cp.Status = course.StatusCompleted
		}
		res, err := tx.ExecContext(
			ctx,
			`UPDATE enrollments SET progress_percent = $3, status = $4,
				completed_at = CASE WHEN $5::boolean THEN COALESCE(completed_at, $6) ELSE NULL END,
				last_accessed_at = $6
			WHERE user_id = $1 AND course_id = $2`,
			userID, courseID, cp.ProgressPercent, cp.Status, cp.Status == course.StatusCompleted, ts,
		)
		if err != nil {
			return dbError(err, "updating enrollment")
		}
		if n, err := rowsAffected(res, "updating enrollment"); err != nil {
			return err
		} else if n == 0 {
			return course.ErrNotEnrolled
		}
		return nil
	})
	if err != nil {
		return course.CourseProgress{}, err
	}
	return cp, nil
}

func (repo *courseRepository) QueryMyCourses(ctx context.Context, userID, status string) ([]course.MyCourse, error) {
	q := "SELECT " + courseColumns + `, e.id AS enrollment_id, e.status AS enrollment_status, e.progress_percent,
			e.enrolled_at, e.completed_at, e.last_accessed_at
		FROM enrollments e JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		q += " AND e.status = $2"
		args = append(args, status)
	}
	courses := make([]course.MyCourse, 0)
	err := repo.db.SelectContext(ctx, &courses, q+" ORDER BY e.enrolled_at DESC", args...)
	return courses, dbError(err, "querying my courses")
}
