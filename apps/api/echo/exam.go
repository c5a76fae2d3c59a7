package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/services/metrics"
)

type (
	examApi struct {
		deps    ServerDeps
		svc     *exam.Service
		metrics *metrics.Metrics
	}

	QuestionPage struct {
		Items    []exam.Question `json:"items"`
		Page     int             `json:"page"`
		PageSize int             `json:"pageSize"`
	}

	GradedSubmission struct {
		Submission exam.Submission `json:"submission"`
		Result     exam.Result     `json:"result"`
	}
)

func registerExamAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := examApi{deps: deps, svc: deps.ExamSvc, metrics: deps.Metrics}

	tg := g.Group("/tests", auth)

	// authoring endpoints
	staff := staffMiddleware()
	tg.POST("/questions", api.createQuestion, staff)
	tg.GET("/questions", api.listQuestions, staff)
	tg.POST("/exams", api.createExam, staff)
	tg.GET("/exams", api.listExams, staff)

	tg.GET("/exams/:id", api.retrieveExam)
	tg.POST("/exams/:id/start", api.start)
	tg.POST("/submissions/:id/submit", api.submit)
	tg.GET("/submissions/:id", api.retrieveSubmission)
}

// Handlers

func (api *examApi) createQuestion(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data exam.NewQuestion
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	q, err := api.svc.CreateQuestion(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, success("Question created", q))
}

func (api *examApi) listQuestions(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var filter exam.QuestionFilter
	if err = ctx.Bind(&filter); err != nil {
		return errors.Wrap(err, "binding to QuestionFilter")
	}

	questions, filter, err := api.svc.ListQuestions(ctx.Request().Context(), p, filter)
	if err != nil {
		return errors.Wrap(err, "listing questions")
	}
	return ctx.JSON(http.StatusOK, success("", QuestionPage{Items: questions, Page: filter.Page, PageSize: filter.PageSize}))
}

func (api *examApi) createExam(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data exam.NewExam
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	detail, err := api.svc.CreateExam(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating exam")
	}
	return ctx.JSON(http.StatusCreated, success("Exam created", detail))
}

func (api *examApi) listExams(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	exams, err := api.svc.ListExams(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "listing exams")
	}
	return ctx.JSON(http.StatusOK, success("", exams))
}

func (api *examApi) retrieveExam(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	detail, err := api.svc.GetExam(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting exam")
	}
	return ctx.JSON(http.StatusOK, success("", detail))
}

func (api *examApi) start(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	sub, err := api.svc.StartSubmission(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "starting submission")
	}
	return ctx.JSON(http.StatusCreated, success("Submission started", sub))
}

func (api *examApi) submit(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data exam.SubmitInput
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	sub, res, err := api.svc.Submit(ctx.Request().Context(), p, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "submitting")
	}
	if api.metrics != nil {
		api.metrics.ExamSubmitted(res.Percent, res.Passed)
	}
	return ctx.JSON(http.StatusOK, success("Submission graded", GradedSubmission{Submission: sub, Result: res}))
}

func (api *examApi) retrieveSubmission(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	detail, err := api.svc.GetSubmission(ctx.Request().Context(), p, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting submission")
	}
	return ctx.JSON(http.StatusOK, success("", detail))
}
