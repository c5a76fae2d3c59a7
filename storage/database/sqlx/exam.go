package sqlxrepos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/exam"
)

const (
	questionColumns   = `id, author_id, title, body, type, choices, difficulty, tags, created_at`
	examColumns       = `id, course_id, title, description, duration_minutes, passing_score, randomize_questions, published, created_by, created_at`
	submissionColumns = `id, exam_id, user_id, started_at, submitted_at, duration_seconds, total_score, status, auto_graded, result`
)

type examRepository struct {
	db core.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db core.DB) *examRepository {
	return &examRepository{db: db}
}

func (repo *examRepository) CreateQuestion(ctx context.Context, q exam.Question) (exam.Question, error) {
	q.ID = uuid.NewString()
	_, err := repo.db.NamedExecContext(
		ctx,
		`INSERT INTO questions (id, author_id, title, body, type, choices, difficulty, tags, created_at)
		VALUES (:id, :author_id, :title, :body, :type, :choices, :difficulty, :tags, :created_at)`,
		q,
	)
	if err != nil {
		return exam.Question{}, dbError(err, "inserting question")
	}
	return q, nil
}

func (repo *examRepository) QueryQuestions(ctx context.Context, filter exam.QuestionFilter) ([]exam.Question, error) {
	conds := []string{"author_id = $1"}
	args := []interface{}{filter.AuthorID}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR body ILIKE $%d)", len(args), len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conds = append(conds, fmt.Sprintf("type = $%d", len(args)))
	}
	args = append(args, filter.PageSize, filter.Offset())
	q := fmt.Sprintf(
		"SELECT %s FROM questions WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		questionColumns, strings.Join(conds, " AND "), len(args)-1, len(args),
	)

	questions := make([]exam.Question, 0, filter.PageSize)
	err := repo.db.SelectContext(ctx, &questions, q, args...)
	return questions, dbError(err, "querying questions")
}

func (repo *examRepository) getQuestionsByIDs(ctx context.Context, exec core.DBExecutor, ids []string) ([]exam.Question, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	questions := make([]exam.Question, 0, len(valid))
	if len(valid) == 0 {
		return questions, nil
	}
	q, args, err := sqlx.In("SELECT "+questionColumns+" FROM questions WHERE id IN (?)", valid)
	if err != nil {
		return nil, dbError(err, "building questions query")
	}
	err = exec.SelectContext(ctx, &questions, sqlx.Rebind(sqlx.DOLLAR, q), args...)
	return questions, dbError(err, "getting questions")
}

func (repo *examRepository) GetQuestionsByIDs(ctx context.Context, ids []string) ([]exam.Question, error) {
	return repo.getQuestionsByIDs(ctx, repo.db, ids)
}

func (repo *examRepository) CreateExam(ctx context.Context, e exam.Exam, questions []exam.ExamQuestion) (exam.Exam, error) {
	e.ID = uuid.NewString()
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(
			ctx,
			`INSERT INTO exams (id, course_id, title, description, duration_minutes, passing_score, randomize_questions,
				published, created_by, created_at)
			VALUES (:id, :course_id, :title, :description, :duration_minutes, :passing_score, :randomize_questions,
				:published, :created_by, :created_at)`,
			e,
		); err != nil {
			return dbError(err, "inserting exam")
		}
		for i := range questions {
			questions[i].ID = uuid.NewString()
			questions[i].ExamID = e.ID
			if _, err := tx.NamedExecContext(
				ctx,
				`INSERT INTO exam_questions (id, exam_id, question_id, points, sequence)
				VALUES (:id, :exam_id, :question_id, :points, :sequence)`,
				questions[i],
			); err != nil {
				return dbError(err, "inserting exam question")
			}
		}
		return nil
	})
	if err != nil {
		return exam.Exam{}, err
	}
	return e, nil
}

func (repo *examRepository) QueryExams(ctx context.Context, createdBy string) ([]exam.Exam, error) {
	q := "SELECT " + examColumns + " FROM exams"
	var args []interface{}
	if createdBy != "" {
		q += " WHERE created_by = $1"
		args = append(args, createdBy)
	}
	exams := make([]exam.Exam, 0)
	err := repo.db.SelectContext(ctx, &exams, q+" ORDER BY created_at DESC", args...)
	return exams, dbError(err, "querying exams")
}

func (repo *examRepository) GetExam(ctx context.Context, id string) (exam.Exam, error) {
	if !validID(id) {
		return exam.Exam{}, exam.ErrNotFound
	}
	var e exam.Exam
	if err := repo.db.GetContext(ctx, &e, "SELECT "+examColumns+" FROM exams WHERE id = $1", id); err != nil {
		return exam.Exam{}, trapNoRowsErr(err, exam.ErrNotFound, "getting exam")
	}
	return e, nil
}

func (repo *examRepository) GetExamQuestions(ctx context.Context, examID string) ([]exam.ExamQuestion, error) {
	questions := make([]exam.ExamQuestion, 0)
	if !validID(examID) {
		return questions, nil
	}
	err := repo.db.SelectContext(
		ctx, &questions,
		"SELECT id, exam_id, question_id, points, sequence FROM exam_questions WHERE exam_id = $1 ORDER BY sequence, id",
		examID,
	)
	if err != nil {
		return nil, dbError(err, "getting exam questions")
	}

	ids := make([]string, len(questions))
	for i, eq := range questions {
		ids[i] = eq.QuestionID
	}
	found, err := repo.getQuestionsByIDs(ctx, repo.db, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]exam.Question, len(found))
	for _, q := range found {
		byID[q.ID] = q
	}
	for i := range questions {
		if q, ok := byID[questions[i].QuestionID]; ok {
			questions[i].Question = &q
		}
	}
	return questions, nil
}

func (repo *examRepository) CreateSubmission(ctx context.Context, examID, userID string, autoGraded bool) (exam.Submission, error) {
	sub := exam.Submission{
		ID:         uuid.NewString(),
		ExamID:     examID,
		UserID:     userID,
		StartedAt:  now(),
		Status:     exam.StatusInProgress,
		AutoGraded: autoGraded,
	}
	_, err := repo.db.ExecContext(
		ctx,
		"INSERT INTO submissions (id, exam_id, user_id, started_at, status, auto_graded) VALUES ($1, $2, $3, $4, $5, $6)",
		sub.ID, sub.ExamID, sub.UserID, sub.StartedAt, sub.Status, sub.AutoGraded,
	)
	if err != nil {
		return exam.Submission{}, dbError(err, "inserting submission")
	}
	return sub, nil
}

func (repo *examRepository) getSubmission(ctx context.Context, exec core.DBExecutor, id string, forUpdate bool) (exam.Submission, error) {
	if !validID(id) {
		return exam.Submission{}, exam.ErrSubmissionNotFound
	}
	q := "SELECT " + submissionColumns + " FROM submissions WHERE id = $1"
	if forUpdate {
		q += " FOR UPDATE"
	}
	var sub exam.Submission
	if err := exec.GetContext(ctx, &sub, q, id); err != nil {
		return exam.Submission{}, trapNoRowsErr(err, exam.ErrSubmissionNotFound, "getting submission")
	}
	return sub, nil
}

func (repo *examRepository) GetSubmission(ctx context.Context, id string) (exam.Submission, error) {
	return repo.getSubmission(ctx, repo.db, id, false)
}

func (repo *examRepository) GetSubmissionItems(ctx context.Context, submissionID string) ([]exam.SubmissionItem, error) {
	items := make([]exam.SubmissionItem, 0)
	err := repo.db.SelectContext(
		ctx, &items,
		`SELECT si.id, si.submission_id, si.question_id, si.answer, si.awarded_points, si.graded
		FROM submission_items si
		JOIN submissions s ON s.id = si.submission_id
		LEFT JOIN exam_questions eq ON eq.exam_id = s.exam_id AND eq.question_id = si.question_id
		WHERE si.submission_id = $1
		ORDER BY eq.sequence, si.id`,
		submissionID,
	)
	return items, dbError(err, "getting submission items")
}

// SaveSubmissionGrading replaces the items of the submission with one item per graded question,
// then completes the submission.
func (repo *examRepository) SaveSubmissionGrading(
	ctx context.Context, submissionID string, items []exam.GradedItem, result exam.Result,
) (exam.Submission, error) {
	var sub exam.Submission
	err := withTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if sub, err = repo.getSubmission(ctx, tx, submissionID, true); err != nil {
			return err
		}
		if sub.Status == exam.StatusCompleted {
			return exam.ErrAlreadyCompleted
		}

		if _, err = tx.ExecContext(ctx, "DELETE FROM submission_items WHERE submission_id = $1", submissionID); err != nil {
			return dbError(err, "deleting submission items")
		}
		for _, item := range items {
			if _, err = tx.ExecContext(
				ctx,
				`INSERT INTO submission_items (id, submission_id, question_id, answer, awarded_points, graded)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				uuid.NewString(), submissionID, item.QuestionID, item.Answer, item.AwardedPoints, item.Graded,
			); err != nil {
				return dbError(err, "inserting submission item")
			}
		}

		ts := now()
		duration := int(ts.Sub(sub.StartedAt).Seconds())
		if duration < 0 {
			duration = 0
		}
		if _, err = tx.ExecContext(
			ctx,
			`UPDATE submissions SET submitted_at = $2, duration_seconds = $3, total_score = $4, status = $5,
				auto_graded = TRUE, result = $6
			WHERE id = $1`,
			submissionID, ts, duration, result.TotalScore, exam.StatusCompleted, result,
		); err != nil {
			return dbError(err, "completing submission")
		}

		sub.SubmittedAt.SetValid(ts)
		sub.DurationSeconds.SetValid(duration)
		sub.TotalScore.SetValid(result.TotalScore)
		sub.Status = exam.StatusCompleted
		sub.AutoGraded = true
		sub.Result = &result
		return nil
	})
	if err != nil {
		return exam.Submission{}, err
	}
	return sub, nil
}
