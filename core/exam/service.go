package exam

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/identity"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrQuestionNotFound   = errors.New("question not found")
	ErrUnknownQuestions   = errors.New("some questions do not exist")
	ErrNotFound           = errors.New("exam not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrNotOwner           = errors.New("not the owner of this submission")
	ErrAlreadyCompleted   = errors.New("submission already completed")
)

type (
	Repository interface {
		CreateQuestion(ctx context.Context, q Question) (Question, error)
		QueryQuestions(ctx context.Context, filter QuestionFilter) ([]Question, error)
		GetQuestionsByIDs(ctx context.Context, ids []string) ([]Question, error)

		// CreateExam inserts the exam and its questions in one transaction.
		CreateExam(ctx context.Context, e Exam, questions []ExamQuestion) (Exam, error)
		// QueryExams lists exams created by createdBy, or all exams when createdBy is empty.
		QueryExams(ctx context.Context, createdBy string) ([]Exam, error)
		GetExam(ctx context.Context, id string) (Exam, error)
		// GetExamQuestions returns the exam questions ordered by sequence, with their Question set.
		GetExamQuestions(ctx context.Context, examID string) ([]ExamQuestion, error)

		CreateSubmission(ctx context.Context, examID, userID string, autoGraded bool) (Submission, error)
		GetSubmission(ctx context.Context, id string) (Submission, error)
		GetSubmissionItems(ctx context.Context, submissionID string) ([]SubmissionItem, error)
		// SaveSubmissionGrading replaces the submission items and completes the submission in one transaction.
		SaveSubmissionGrading(ctx context.Context, submissionID string, items []GradedItem, result Result) (Submission, error)
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) CreateQuestion(ctx context.Context, p identity.Principal, nq NewQuestion) (Question, error) {
	q := Question{
		AuthorID:   p.LocalUserID,
		Title:      nq.Title,
		Body:       nq.Body,
		Type:       nq.Type,
		Choices:    nq.Choices,
		Difficulty: null.IntFromPtr(nq.Difficulty),
		Tags:       nq.Tags,
		CreatedAt:  NowFunc().UTC(),
	}
	q, err := svc.repo.CreateQuestion(ctx, q)
	return q, errors.Wrap(err, "creating question")
}

// ListQuestions returns the caller's questions, newest first.
func (svc *Service) ListQuestions(ctx context.Context, p identity.Principal, filter QuestionFilter) ([]Question, QuestionFilter, error) {
	filter.AuthorID = p.LocalUserID
	filter.Clean()
	questions, err := svc.repo.QueryQuestions(ctx, filter)
	return questions, filter, errors.Wrap(err, "querying questions")
}

func (svc *Service) CreateExam(ctx context.Context, p identity.Principal, ne NewExam) (Detail, error) {
	ids := make([]string, len(ne.Questions))
	for i, q := range ne.Questions {
		ids[i] = q.QuestionID
	}
	found, err := svc.repo.GetQuestionsByIDs(ctx, ids)
	if err != nil {
		return Detail{}, errors.Wrap(err, "getting questions")
	}
	byID := make(map[string]Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return Detail{}, core.NewValidationError(ErrUnknownQuestions, core.FieldError{
			Field: "questions",
			Error: "unknown questions: " + strings.Join(missing, ", "),
		})
	}

	e := Exam{
		CourseID:           null.StringFromPtr(ne.CourseID),
		Title:              ne.Title,
		Description:        null.StringFromPtr(ne.Description),
		DurationMinutes:    ne.DurationMinutes,
		PassingScore:       *ne.PassingScore,
		RandomizeQuestions: ne.RandomizeQuestions,
		Published:          ne.Published == nil || *ne.Published,
		CreatedBy:          p.LocalUserID,
		CreatedAt:          NowFunc().UTC(),
	}
	questions := make([]ExamQuestion, len(ne.Questions))
	for i, nq := range ne.Questions {
		eq := ExamQuestion{QuestionID: nq.QuestionID, Points: 1, Sequence: i + 1}
		if nq.Points != nil {
			eq.Points = *nq.Points
		}
		if nq.Sequence != nil {
			eq.Sequence = *nq.Sequence
		}
		q := byID[nq.QuestionID]
		eq.Question = &q
		questions[i] = eq
	}

	e, err = svc.repo.CreateExam(ctx, e, questions)
	if err != nil {
		return Detail{}, errors.Wrap(err, "creating exam")
	}
	for i := range questions {
		questions[i].ExamID = e.ID
	}
	return Detail{Exam: e, Questions: questions}, nil
}

// ListExams returns the caller's exams, or all exams to Admins.
func (svc *Service) ListExams(ctx context.Context, p identity.Principal) ([]Exam, error) {
	createdBy := p.LocalUserID
	if p.IsAdmin() {
		createdBy = ""
	}
	exams, err := svc.repo.QueryExams(ctx, createdBy)
	return exams, errors.Wrap(err, "querying exams")
}

// visibleExam loads an exam, hiding unpublished ones from everyone but Admins and Teachers.
func (svc *Service) visibleExam(ctx context.Context, p identity.Principal, id string) (Exam, error) {
	e, err := svc.repo.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if !e.Published && !p.IsAdminOrTeacher() {
		return Exam{}, ErrNotFound
	}
	return e, nil
}

// GetExam returns the exam and its questions. Only Admins and Teachers see the answers.
func (svc *Service) GetExam(ctx context.Context, p identity.Principal, id string) (Detail, error) {
	e, err := svc.visibleExam(ctx, p, id)
	if err != nil {
		return Detail{}, err
	}
	questions, err := svc.repo.GetExamQuestions(ctx, id)
	if err != nil {
		return Detail{}, errors.Wrap(err, "getting exam questions")
	}
	if !p.IsAdminOrTeacher() {
		for i, eq := range questions {
			if eq.Question != nil {
				redacted := eq.Question.Redacted()
				questions[i].Question = &redacted
			}
		}
	}
	return Detail{Exam: e, Questions: questions}, nil
}

func (svc *Service) StartSubmission(ctx context.Context, p identity.Principal, examID string) (Submission, error) {
	if _, err := svc.visibleExam(ctx, p, examID); err != nil {
		return Submission{}, err
	}
	sub, err := svc.repo.CreateSubmission(ctx, examID, p.LocalUserID, true /* autoGraded */)
	return sub, errors.Wrap(err, "creating submission")
}

// Submit grades the answers of an in-progress submission owned by the caller.
func (svc *Service) Submit(ctx context.Context, p identity.Principal, submissionID string, in SubmitInput) (Submission, Result, error) {
	sub, err := svc.repo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Submission{}, Result{}, err
	}
	if sub.UserID != p.LocalUserID {
		return Submission{}, Result{}, ErrNotOwner
	}
	if sub.Status == StatusCompleted {
		return Submission{}, Result{}, ErrAlreadyCompleted
	}

	e, err := svc.repo.GetExam(ctx, sub.ExamID)
	if err != nil {
		return Submission{}, Result{}, err
	}
	questions, err := svc.repo.GetExamQuestions(ctx, sub.ExamID)
	if err != nil {
		return Submission{}, Result{}, errors.Wrap(err, "getting exam questions")
	}

	items, res := Grade(questions, in.Answers, e.PassingScore)
	sub, err = svc.repo.SaveSubmissionGrading(ctx, submissionID, items, res)
	if err != nil {
		return Submission{}, Result{}, errors.Wrap(err, "saving submission grading")
	}
	return sub, res, nil
}

// GetSubmission is visible to its owner, the exam creator and Admins.
func (svc *Service) GetSubmission(ctx context.Context, p identity.Principal, id string) (SubmissionDetail, error) {
	sub, err := svc.repo.GetSubmission(ctx, id)
	if err != nil {
		return SubmissionDetail{}, err
	}
	if sub.UserID != p.LocalUserID && !p.IsAdmin() {
		e, err := svc.repo.GetExam(ctx, sub.ExamID)
		if err != nil {
			return SubmissionDetail{}, err
		}
		if e.CreatedBy != p.LocalUserID {
			return SubmissionDetail{}, ErrNotOwner
		}
	}
	items, err := svc.repo.GetSubmissionItems(ctx, id)
	if err != nil {
		return SubmissionDetail{}, errors.Wrap(err, "getting submission items")
	}
	return SubmissionDetail{Submission: sub, Items: items}, nil
}
