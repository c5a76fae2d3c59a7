package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/learninghub/core/exam"
)

type examRepository struct {
	db *examTable
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db.exam}
}

func (repo *examRepository) CreateQuestion(_ context.Context, q exam.Question) (exam.Question, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	q.ID = newID()
	repo.db.questions[q.ID] = &q
	return q, nil
}

func (repo *examRepository) QueryQuestions(_ context.Context, filter exam.QuestionFilter) ([]exam.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	matches := make([]exam.Question, 0)
	for _, q := range repo.db.questions {
		if q.AuthorID != filter.AuthorID || (filter.Type != "" && q.Type != filter.Type) {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(q.Title), search) &&
			!strings.Contains(strings.ToLower(q.Body), search) {
			continue
		}
		matches = append(matches, *q)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].CreatedAt.After(matches[j].CreatedAt) })

	start := filter.Offset()
	if start > len(matches) {
		start = len(matches)
	}
	end := start + filter.PageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

func (repo *examRepository) GetQuestionsByIDs(_ context.Context, ids []string) ([]exam.Question, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	questions := make([]exam.Question, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if q, ok := repo.db.questions[id]; ok && !seen[id] {
			seen[id] = true
			questions = append(questions, *q)
		}
	}
	return questions, nil
}

func (repo *examRepository) CreateExam(_ context.Context, e exam.Exam, questions []exam.ExamQuestion) (exam.Exam, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	e.ID = newID()
	eqs := make([]exam.ExamQuestion, len(questions))
	for i, eq := range questions {
		eq.ID = newID()
		eq.ExamID = e.ID
		eq.Question = nil
		eqs[i] = eq
	}
	repo.db.exams[e.ID] = &e
	repo.db.examQuestions[e.ID] = eqs
	return e, nil
}

func (repo *examRepository) QueryExams(_ context.Context, createdBy string) ([]exam.Exam, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	exams := make([]exam.Exam, 0)
	for _, e := range repo.db.exams {
		if createdBy == "" || e.CreatedBy == createdBy {
			exams = append(exams, *e)
		}
	}
	sort.Slice(exams, func(i, j int) bool { return exams[i].CreatedAt.After(exams[j].CreatedAt) })
	return exams, nil
}

func (repo *examRepository) GetExam(_ context.Context, id string) (exam.Exam, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if e, ok := repo.db.exams[id]; ok {
		return *e, nil
	}
	return exam.Exam{}, exam.ErrNotFound
}

func (repo *examRepository) GetExamQuestions(_ context.Context, examID string) ([]exam.ExamQuestion, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	stored := repo.db.examQuestions[examID]
	questions := make([]exam.ExamQuestion, len(stored))
	for i, eq := range stored {
		if q, ok := repo.db.questions[eq.QuestionID]; ok {
			cp := *q
			eq.Question = &cp
		}
		questions[i] = eq
	}
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Sequence < questions[j].Sequence })
	return questions, nil
}

func (repo *examRepository) CreateSubmission(_ context.Context, examID, userID string, autoGraded bool) (exam.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub := exam.Submission{
		ID:         newID(),
		ExamID:     examID,
		UserID:     userID,
		StartedAt:  now(),
		Status:     exam.StatusInProgress,
		AutoGraded: autoGraded,
	}
	repo.db.submissions[sub.ID] = &sub
	return sub, nil
}

func (repo *examRepository) GetSubmission(_ context.Context, id string) (exam.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if sub, ok := repo.db.submissions[id]; ok {
		return *sub, nil
	}
	return exam.Submission{}, exam.ErrSubmissionNotFound
}

func (repo *examRepository) GetSubmissionItems(_ context.Context, submissionID string) ([]exam.SubmissionItem, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	items := make([]exam.SubmissionItem, len(repo.db.items[submissionID]))
	copy(items, repo.db.items[submissionID])
	return items, nil
}

func (repo *examRepository) SaveSubmissionGrading(
	_ context.Context, submissionID string, items []exam.GradedItem, result exam.Result,
) (exam.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	sub, ok := repo.db.submissions[submissionID]
	if !ok {
		return exam.Submission{}, exam.ErrSubmissionNotFound
	}
	if sub.Status == exam.StatusCompleted {
		return exam.Submission{}, exam.ErrAlreadyCompleted
	}

	saved := make([]exam.SubmissionItem, len(items))
	for i, item := range items {
		saved[i] = exam.SubmissionItem{
			ID:            newID(),
			SubmissionID:  submissionID,
			QuestionID:    item.QuestionID,
			Answer:        item.Answer,
			AwardedPoints: item.AwardedPoints,
			Graded:        item.Graded,
		}
	}
	repo.db.items[submissionID] = saved

	ts := now()
	duration := int(ts.Sub(sub.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	sub.SubmittedAt.SetValid(ts)
	sub.DurationSeconds.SetValid(duration)
	sub.TotalScore.SetValid(result.TotalScore)
	sub.Status = exam.StatusCompleted
	sub.AutoGraded = true
	sub.Result = &result
	return *sub, nil
}
