package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/identity"
)

type (
	questionData struct {
		Success bool          `json:"success"`
		Message string        `json:"message"`
		Data    exam.Question `json:"data"`
	}

	examData struct {
		Success bool        `json:"success"`
		Message string      `json:"message"`
		Data    exam.Detail `json:"data"`
	}

	submissionData struct {
		Success bool            `json:"success"`
		Message string          `json:"message"`
		Data    exam.Submission `json:"data"`
	}

	gradedData struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    struct {
			Submission exam.Submission `json:"submission"`
			Result     exam.Result     `json:"result"`
		} `json:"data"`
	}
)

func (app *testApp) createQuestion(t *testing.T, token string, body map[string]interface{}) exam.Question {
	t.Helper()
	rec := app.serve(newAuthRequest(http.MethodPost, "/api/tests/questions", token, marchallObj(t, body)))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp questionData
	unmarchall(t, rec, &resp)
	return resp.Data
}

func TestExams(t *testing.T) {
	app := setup(t)
	teacher, teacherToken := app.userWithToken(t, "teacher@example.com", identity.RoleTeacher)
	_, otherTeacherToken := app.userWithToken(t, "other@example.com", identity.RoleTeacher)
	member, memberToken := app.userWithToken(t, "member@example.com", identity.RoleMember)
	_, outsiderToken := app.userWithToken(t, "outsider@example.com", identity.RoleMember)

	choice := app.createQuestion(t, teacherToken, map[string]interface{}{
		"title": "Arithmetic",
		"body":  "2 + 2 = ?",
		"type":  "single_choice",
		"choices": []map[string]interface{}{
			{"text": "3"},
			{"text": "4", "isCorrect": true},
		},
		"difficulty": 1,
		"tags":       []string{"math"},
	})
	short := app.createQuestion(t, teacherToken, map[string]interface{}{
		"title":   "Capital",
		"body":    "Capital of France?",
		"type":    "SHORT_ANSWER",
		"choices": []map[string]interface{}{{"text": "Paris"}},
	})
	essay := app.createQuestion(t, teacherToken, map[string]interface{}{
		"title": "Essay",
		"body":  "Why Go?",
		"type":  "essay",
	})
	assert.Equal(t, teacher.ID, choice.AuthorID)
	assert.Equal(t, exam.TypeShortAnswer, short.Type)

	runHttpTests(t, app, []httpTest{
		{
			name:     "member cannot author questions",
			method:   http.MethodPost,
			path:     "/api/tests/questions",
			body:     marchallObj(t, map[string]string{"title": "Q", "body": "B", "type": "essay"}),
			token:    memberToken,
			wantCode: http.StatusForbidden,
			wantData: errStaffOnly,
		},
		{
			name:     "invalid question type",
			method:   http.MethodPost,
			path:     "/api/tests/questions",
			body:     marchallObj(t, map[string]string{"title": "Q", "body": "B", "type": "true_false"}),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]interface{}{
				"message": "Validation error",
				"errors":  map[string]string{"type": "type must be one of single_choice, multiple_choice, cloze, short_answer, essay"},
			}),
		},
		{
			name:   "unknown exam questions",
			method: http.MethodPost,
			path:   "/api/tests/exams",
			body: marchallObj(t, map[string]interface{}{
				"title":           "Quiz",
				"durationMinutes": 10,
				"passingScore":    50,
				"questions":       []map[string]string{{"questionId": "1ad0e1e4-4a83-4c47-9a53-59d1a4f6d6e0"}},
			}),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]interface{}{
				"message": "Validation error",
				"errors":  map[string]string{"questions": "unknown questions: 1ad0e1e4-4a83-4c47-9a53-59d1a4f6d6e0"},
			}),
		},
		{
			name:   "duplicate exam questions",
			method: http.MethodPost,
			path:   "/api/tests/exams",
			body: marchallObj(t, map[string]interface{}{
				"title":           "Quiz",
				"durationMinutes": 10,
				"passingScore":    50,
				"questions":       []map[string]string{{"questionId": choice.ID}, {"questionId": choice.ID}},
			}),
			token:    teacherToken,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]interface{}{
				"message": "Validation error",
				"errors":  map[string]string{"questions": "questions must be unique"},
			}),
		},
	})

	t.Run("list questions", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/tests/questions?type=essay&pageSize=5", teacherToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data struct {
				Items    []exam.Question `json:"items"`
				Page     int             `json:"page"`
				PageSize int             `json:"pageSize"`
			} `json:"data"`
		}
		unmarchall(t, rec, &resp)
		require.Len(t, resp.Data.Items, 1)
		assert.Equal(t, essay.ID, resp.Data.Items[0].ID)
		assert.Equal(t, 1, resp.Data.Page)
		assert.Equal(t, 5, resp.Data.PageSize)

		// questions are private to their author
		rec = app.serve(newAuthRequest(http.MethodGet, "/api/tests/questions", otherTeacherToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarchall(t, rec, &resp)
		assert.Empty(t, resp.Data.Items)
	})

	var quiz exam.Detail
	t.Run("create exam", func(t *testing.T) {
		body := marchallObj(t, map[string]interface{}{
			"title":           " Final Quiz ",
			"durationMinutes": 30,
			"passingScore":    60,
			"questions": []map[string]interface{}{
				{"questionId": choice.ID, "points": 2},
				{"questionId": short.ID},
				{"questionId": essay.ID},
			},
		})
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/tests/exams", teacherToken, body))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp examData
		unmarchall(t, rec, &resp)
		quiz = resp.Data
		assert.Equal(t, "Exam created", resp.Message)
		assert.Equal(t, "Final Quiz", quiz.Title)
		assert.True(t, quiz.Published)
		assert.Equal(t, teacher.ID, quiz.CreatedBy)
		require.Len(t, quiz.Questions, 3)
		assert.Equal(t, float64(2), quiz.Questions[0].Points)
		assert.Equal(t, float64(1), quiz.Questions[1].Points)
		assert.Equal(t, 3, quiz.Questions[2].Sequence)
	})
	require.NotEmpty(t, quiz.ID)

	t.Run("list exams", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/tests/exams", teacherToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data []exam.Exam `json:"data"`
		}
		unmarchall(t, rec, &resp)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, quiz.ID, resp.Data[0].ID)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/tests/exams", memberToken))
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: errStaffOnly}, rec)
	})

	t.Run("members do not see answers", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodGet, "/api/tests/exams/"+quiz.ID, memberToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp examData
		unmarchall(t, rec, &resp)
		require.Len(t, resp.Data.Questions, 3)
		require.NotNil(t, resp.Data.Questions[0].Question)
		assert.Equal(t, exam.Choices{{Text: "3"}, {Text: "4"}}, resp.Data.Questions[0].Question.Choices)
		require.NotNil(t, resp.Data.Questions[1].Question)
		assert.Empty(t, resp.Data.Questions[1].Question.Choices)

		rec = app.serve(newAuthRequest(http.MethodGet, "/api/tests/exams/"+quiz.ID, teacherToken))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarchall(t, rec, &resp)
		require.NotNil(t, resp.Data.Questions[0].Question)
		assert.True(t, resp.Data.Questions[0].Question.Choices[1].IsCorrect)
	})

	var sub exam.Submission
	t.Run("start", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/tests/exams/"+quiz.ID+"/start", memberToken))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp submissionData
		unmarchall(t, rec, &resp)
		sub = resp.Data
		assert.Equal(t, "Submission started", resp.Message)
		assert.Equal(t, member.ID, sub.UserID)
		assert.Equal(t, quiz.ID, sub.ExamID)
		assert.Equal(t, exam.StatusInProgress, sub.Status)
	})
	require.NotEmpty(t, sub.ID)

	answers := marchallObj(t, map[string]interface{}{
		"answers": []map[string]interface{}{
			{"questionId": choice.ID, "answer": map[string][]int{"selectedOptionIndexes": {1}}},
			{"questionId": short.ID, "answer": map[string]string{"text": " paris "}},
			{"questionId": essay.ID, "answer": map[string]string{"text": "Because it is simple."}},
			{"questionId": "1ad0e1e4-4a83-4c47-9a53-59d1a4f6d6e0", "answer": map[string]string{"text": "ignored"}},
		},
	})

	runHttpTests(t, app, []httpTest{
		{
			name:     "start unknown exam",
			method:   http.MethodPost,
			path:     "/api/tests/exams/1ad0e1e4-4a83-4c47-9a53-59d1a4f6d6e0/start",
			token:    memberToken,
			wantCode: http.StatusNotFound,
			wantData: message("Exam not found"),
		},
		{
			name:     "submit someone else's submission",
			method:   http.MethodPost,
			path:     "/api/tests/submissions/" + sub.ID + "/submit",
			body:     answers,
			token:    outsiderToken,
			wantCode: http.StatusForbidden,
			wantData: message("Forbidden: not the owner of this submission"),
		},
		{
			name:     "submit without answers",
			method:   http.MethodPost,
			path:     "/api/tests/submissions/" + sub.ID + "/submit",
			body:     []byte(`{"answers": []}`),
			token:    memberToken,
			wantCode: http.StatusBadRequest,
		},
	})

	t.Run("submit", func(t *testing.T) {
		rec := app.serve(newAuthRequest(http.MethodPost, "/api/tests/submissions/"+sub.ID+"/submit", memberToken, answers))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp gradedData
		unmarchall(t, rec, &resp)
		assert.Equal(t, "Submission graded", resp.Message)
		assert.Equal(t, exam.StatusCompleted, resp.Data.Submission.Status)
		assert.True(t, resp.Data.Submission.SubmittedAt.Valid)
		assert.Equal(t, exam.Result{
			TotalScore:   3,
			MaxScore:     4,
			Percent:      75,
			Passed:       true,
			GradedItems:  2,
			PendingItems: 1,
		}, resp.Data.Result)
	})

	runHttpTests(t, app, []httpTest{
		{
			name:     "submit twice",
			method:   http.MethodPost,
			path:     "/api/tests/submissions/" + sub.ID + "/submit",
			body:     answers,
			token:    memberToken,
			wantCode: http.StatusConflict,
			wantData: message("Submission already completed"),
		},
		{
			name:     "outsider cannot read the submission",
			method:   http.MethodGet,
			path:     "/api/tests/submissions/" + sub.ID,
			token:    outsiderToken,
			wantCode: http.StatusForbidden,
			wantData: message("Forbidden: not the owner of this submission"),
		},
		{
			name:     "unknown submission",
			method:   http.MethodGet,
			path:     "/api/tests/submissions/1ad0e1e4-4a83-4c47-9a53-59d1a4f6d6e0",
			token:    memberToken,
			wantCode: http.StatusNotFound,
			wantData: message("Submission not found"),
		},
	})

	for name, token := range map[string]string{"owner": memberToken, "exam creator": teacherToken} {
		t.Run(name+" reads the submission", func(t *testing.T) {
			rec := app.serve(newAuthRequest(http.MethodGet, "/api/tests/submissions/"+sub.ID, token))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var resp struct {
				Data exam.SubmissionDetail `json:"data"`
			}
			unmarchall(t, rec, &resp)
			assert.Equal(t, sub.ID, resp.Data.ID)
			// one item per exam question, extra answers dropped
			require.Len(t, resp.Data.Items, 3)
			awarded := map[string]float64{}
			graded := map[string]bool{}
			for _, item := range resp.Data.Items {
				awarded[item.QuestionID] = item.AwardedPoints
				graded[item.QuestionID] = item.Graded
			}
			assert.Equal(t, map[string]float64{choice.ID: 2, short.ID: 1, essay.ID: 0}, awarded)
			assert.Equal(t, map[string]bool{choice.ID: true, short.ID: true, essay.ID: false}, graded)
		})
	}
}
