package exam

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/learninghub/core"
)

// Question types.
const (
	TypeSingleChoice   = "single_choice"
	TypeMultipleChoice = "multiple_choice"
	TypeCloze          = "cloze"
	TypeShortAnswer    = "short_answer"
	TypeEssay          = "essay"
)

// Submission statuses.
const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
)

// Choice is an option of a choice question, an accepted blank of a cloze
// question (Value is the blank ID) or a reference answer of a short answer question.
type Choice struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
	Value     string `json:"value,omitempty"`
}

// Choices is stored as a JSON array.
type Choices []Choice

func (c Choices) Value() (driver.Value, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (c *Choices) Scan(src interface{}) error {
	return scanJSON(src, c)
}

// Tags is stored as a JSON array.
type Tags []string

func (t Tags) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func (t *Tags) Scan(src interface{}) error {
	return scanJSON(src, t)
}

// Answer is the raw JSON answer of a submission item. Empty means unanswered.
type Answer json.RawMessage

func (a Answer) IsEmpty() bool {
	trimmed := bytes.TrimSpace(a)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsEmpty() {
		return []byte("null"), nil
	}
	return a, nil
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	if Answer(data).IsEmpty() {
		*a = nil
		return nil
	}
	*a = append((*a)[0:0], data...)
	return nil
}

func (a Answer) Value() (driver.Value, error) {
	if a.IsEmpty() {
		return nil, nil
	}
	return []byte(a), nil
}

func (a *Answer) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*a = nil
	case []byte:
		*a = append((*a)[0:0], v...)
	case string:
		*a = Answer(v)
	default:
		return fmt.Errorf("exam.Answer: cannot scan %T", src)
	}
	return nil
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("exam: cannot scan %T as JSON", src)
	}
}

type Question struct {
	ID         string    `db:"id" json:"id"`
	AuthorID   string    `db:"author_id" json:"authorId"`
	Title      string    `db:"title" json:"title"`
	Body       string    `db:"body" json:"body"`
	Type       string    `db:"type" json:"type"`
	Choices    Choices   `db:"choices" json:"choices"`
	Difficulty null.Int  `db:"difficulty" json:"difficulty"`
	Tags       Tags      `db:"tags" json:"tags"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// Redacted hides what gives the answers away.
func (q Question) Redacted() Question {
	switch q.Type {
	case TypeSingleChoice, TypeMultipleChoice:
		choices := make(Choices, len(q.Choices))
		for i, c := range q.Choices {
			choices[i] = Choice{Text: c.Text}
		}
		q.Choices = choices
	case TypeCloze:
		seen := make(map[string]bool)
		choices := make(Choices, 0, len(q.Choices))
		for _, c := range q.Choices {
			if !seen[c.Value] {
				seen[c.Value] = true
				choices = append(choices, Choice{Value: c.Value})
			}
		}
		q.Choices = choices
	default:
		q.Choices = nil
	}
	return q
}

type Exam struct {
	ID                 string      `db:"id" json:"id"`
	CourseID           null.String `db:"course_id" json:"courseId"`
	Title              string      `db:"title" json:"title"`
	Description        null.String `db:"description" json:"description"`
	DurationMinutes    int         `db:"duration_minutes" json:"durationMinutes"`
	PassingScore       float64     `db:"passing_score" json:"passingScore"`
	RandomizeQuestions bool        `db:"randomize_questions" json:"randomizeQuestions"`
	Published          bool        `db:"published" json:"published"`
	CreatedBy          string      `db:"created_by" json:"createdBy"`
	CreatedAt          time.Time   `db:"created_at" json:"createdAt"`
}

type ExamQuestion struct {
	ID         string    `db:"id" json:"id"`
	ExamID     string    `db:"exam_id" json:"examId"`
	QuestionID string    `db:"question_id" json:"questionId"`
	Points     float64   `db:"points" json:"points"`
	Sequence   int       `db:"sequence" json:"sequence"`
	Question   *Question `db:"-" json:"question,omitempty"`
}

// Detail is an exam with its questions ordered by sequence.
type Detail struct {
	Exam
	Questions []ExamQuestion `json:"questions"`
}

type Submission struct {
	ID              string       `db:"id" json:"id"`
	ExamID          string       `db:"exam_id" json:"examId"`
	UserID          string       `db:"user_id" json:"userId"`
	StartedAt       time.Time    `db:"started_at" json:"startedAt"`
	SubmittedAt     null.Time    `db:"submitted_at" json:"submittedAt"`
	DurationSeconds null.Int     `db:"duration_seconds" json:"durationSeconds"`
	TotalScore      null.Float64 `db:"total_score" json:"totalScore"`
	Status          string       `db:"status" json:"status"`
	AutoGraded      bool         `db:"auto_graded" json:"autoGraded"`
	Result          *Result      `db:"result" json:"result"`
}

type SubmissionItem struct {
	ID            string  `db:"id" json:"id"`
	SubmissionID  string  `db:"submission_id" json:"submissionId"`
	QuestionID    string  `db:"question_id" json:"questionId"`
	Answer        Answer  `db:"answer" json:"answer"`
	AwardedPoints float64 `db:"awarded_points" json:"awardedPoints"`
	Graded        bool    `db:"graded" json:"graded"`
}

// SubmissionDetail is a submission with its items.
type SubmissionDetail struct {
	Submission
	Items []SubmissionItem `json:"items"`
}

// Result is the grading outcome of a submission, stored as JSON.
type Result struct {
	TotalScore   float64 `json:"totalScore"`
	MaxScore     float64 `json:"maxScore"`
	Percent      float64 `json:"percent"`
	Passed       bool    `json:"passed"`
	GradedItems  int     `json:"gradedItems"`
	PendingItems int     `json:"pendingItems"`
}

func (r Result) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *Result) Scan(src interface{}) error {
	return scanJSON(src, r)
}

type NewQuestion struct {
	Title      string   `json:"title" validate:"required,max=255"`
	Body       string   `json:"body" validate:"required"`
	Type       string   `json:"type" validate:"required,questiontype"`
	Choices    Choices  `json:"choices" validate:"omitempty,dive"`
	Difficulty *int     `json:"difficulty" validate:"omitempty,min=1,max=5"`
	Tags       []string `json:"tags" validate:"omitempty,dive,max=50"`
}

func (nq *NewQuestion) Validate(validate *validator.Validate) error {
	nq.Title = core.CleanString(nq.Title)
	nq.Body = core.CleanString(nq.Body)
	nq.Type = core.CleanString(nq.Type, true /* lower */)
	for i, tag := range nq.Tags {
		nq.Tags[i] = core.CleanString(tag)
	}
	return validate.Struct(nq)
}

type QuestionFilter struct {
	AuthorID string `query:"-"`
	Search   string `query:"search"`
	Type     string `query:"type"`
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
}

func (qf *QuestionFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Type = core.CleanString(qf.Type, true /* lower */)
	qf.Page, qf.PageSize, _ = core.PageOffset(qf.Page, qf.PageSize, defaultPageSize)
	if qf.PageSize > maxPageSize {
		qf.PageSize = maxPageSize
	}
}

func (qf QuestionFilter) Offset() int {
	return (qf.Page - 1) * qf.PageSize
}

type (
	NewExamQuestion struct {
		QuestionID string   `json:"questionId" validate:"required,uuid"`
		Points     *float64 `json:"points" validate:"omitempty,min=0"`
		Sequence   *int     `json:"sequence" validate:"omitempty,min=1"`
	}

	NewExam struct {
		CourseID           *string           `json:"courseId" validate:"omitempty,uuid"`
		Title              string            `json:"title" validate:"required,max=255"`
		Description        *string           `json:"description"`
		DurationMinutes    int               `json:"durationMinutes" validate:"required,min=1"`
		PassingScore       *float64          `json:"passingScore" validate:"required,min=0,max=100"`
		RandomizeQuestions bool              `json:"randomizeQuestions"`
		Published          *bool             `json:"published"`
		Questions          []NewExamQuestion `json:"questions" validate:"required,min=1,dive"`
	}
)

func (ne *NewExam) Validate(validate *validator.Validate) error {
	ne.Title = core.CleanString(ne.Title)
	ne.CourseID = core.CleanStringPtr(ne.CourseID, true /* lower */)
	if ne.CourseID != nil && *ne.CourseID == "" {
		ne.CourseID = nil
	}
	if err := validate.Struct(ne); err != nil {
		return err
	}
	seen := make(map[string]bool, len(ne.Questions))
	for _, q := range ne.Questions {
		if seen[q.QuestionID] {
			return core.NewValidationError(nil, core.FieldError{Field: "questions", Error: "questions must be unique"})
		}
		seen[q.QuestionID] = true
	}
	return nil
}

type (
	AnswerInput struct {
		QuestionID string `json:"questionId" validate:"required,uuid"`
		Answer     Answer `json:"answer"`
	}

	SubmitInput struct {
		Answers []AnswerInput `json:"answers" validate:"required,min=1,dive"`
	}
)

func (si *SubmitInput) Validate(validate *validator.Validate) error {
	return validate.Struct(si)
}
