// Package inmemdb keeps the repositories in memory. It backs tests and local runs without PostgreSQL.
package inmemdb

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/learninghub/core/course"
	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/user"
)

var nowFunc = time.Now // mockable

func now() time.Time {
	return nowFunc().UTC()
}

type (
	DB struct {
		user   *userTable
		course *courseTable
		exam   *examTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	courseTable struct {
		sync.RWMutex
		courses     map[string]*course.Course
		lectures    map[string]*course.Lecture
		enrollments map[string]*course.Enrollment      // by userID/courseID
		progress    map[string]*course.LectureProgress // by userID/lectureID
	}

	examTable struct {
		sync.RWMutex
		questions     map[string]*exam.Question
		exams         map[string]*exam.Exam
		examQuestions map[string][]exam.ExamQuestion // by exam ID
		submissions   map[string]*exam.Submission
		items         map[string][]exam.SubmissionItem // by submission ID
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		course: &courseTable{
			courses:     make(map[string]*course.Course),
			lectures:    make(map[string]*course.Lecture),
			enrollments: make(map[string]*course.Enrollment),
			progress:    make(map[string]*course.LectureProgress),
		},
		exam: &examTable{
			questions:     make(map[string]*exam.Question),
			exams:         make(map[string]*exam.Exam),
			examQuestions: make(map[string][]exam.ExamQuestion),
			submissions:   make(map[string]*exam.Submission),
			items:         make(map[string][]exam.SubmissionItem),
		},
	}
}

func pairKey(a, b string) string {
	return a + "/" + b
}

func newID() string {
	return uuid.NewString()
}
