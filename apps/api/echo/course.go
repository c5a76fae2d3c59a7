package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/course"
)

type courseApi struct {
	deps ServerDeps
	svc  *course.Service
}

func registerCourseAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := courseApi{deps: deps, svc: deps.CourseSvc}

	// management endpoints
	mg := g.Group("/admin/courses", auth, staffMiddleware())
	mg.GET("", api.listManaged)
	mg.POST("", api.create)
	mg.PATCH("/:courseId", api.update)
	mg.DELETE("/:courseId", api.destroy)
	mg.POST("/:courseId/lectures", api.createLecture)
	mg.PATCH("/:courseId/lectures/:lectureId", api.updateLecture)
	mg.DELETE("/:courseId/lectures/:lectureId", api.destroyLecture)

	// catalog endpoints
	cg := g.Group("/courses")
	cg.GET("", api.listPublished)
	cg.GET("/:courseId", api.retrievePublished)
	cg.POST("/:courseId/enroll", api.enroll, auth)
	cg.POST("/:courseId/lectures/:lectureId/progress", api.updateProgress, auth)

	g.GET("/my/courses", api.myCourses, auth)
}

// Handlers

func (api *courseApi) listManaged(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	courses, err := api.svc.ListManaged(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "listing managed courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": courses})
}

func (api *courseApi) create(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.NewCourse
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Course created", "course": c})
}

func (api *courseApi) update(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.CourseUpdate
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), p, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Course updated", "course": c})
}

func (api *courseApi) destroy(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	courseID := ctx.Param("courseId")
	if err = api.svc.Delete(ctx.Request().Context(), p, courseID); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Course deleted", "courseId": courseID})
}

func (api *courseApi) createLecture(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.NewLecture
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	l, err := api.svc.CreateLecture(ctx.Request().Context(), p, ctx.Param("courseId"), data)
	if err != nil {
		return errors.Wrap(err, "creating lecture")
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Lecture created", "lecture": l})
}

func (api *courseApi) updateLecture(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.LectureUpdate
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	l, err := api.svc.UpdateLecture(ctx.Request().Context(), p, ctx.Param("courseId"), ctx.Param("lectureId"), data)
	if err != nil {
		return errors.Wrap(err, "updating lecture")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Lecture updated", "lecture": l})
}

func (api *courseApi) destroyLecture(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	lectureID := ctx.Param("lectureId")
	if err = api.svc.DeleteLecture(ctx.Request().Context(), p, ctx.Param("courseId"), lectureID); err != nil {
		return errors.Wrap(err, "deleting lecture")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Lecture deleted", "lectureId": lectureID})
}

func (api *courseApi) listPublished(ctx echo.Context) error {
	courses, err := api.svc.ListPublished(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing published courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": courses})
}

func (api *courseApi) retrievePublished(ctx echo.Context) error {
	detail, err := api.svc.GetPublished(ctx.Request().Context(), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "getting published course")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"course": detail})
}

func (api *courseApi) enroll(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	enrollment, created, err := api.svc.Enroll(ctx.Request().Context(), p, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	if !created {
		return ctx.JSON(http.StatusOK, echo.Map{"message": "Already enrolled", "enrollment": enrollment})
	}
	return ctx.JSON(http.StatusCreated, echo.Map{"message": "Enroll success", "enrollment": enrollment})
}

func (api *courseApi) updateProgress(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	var data course.ProgressUpdate
	if err = bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}

	progress, err := api.svc.UpdateProgress(ctx.Request().Context(), p, ctx.Param("courseId"), ctx.Param("lectureId"), data)
	if err != nil {
		return errors.Wrap(err, "updating progress")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Progress updated", "courseProgress": progress})
}

func (api *courseApi) myCourses(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	courses, err := api.svc.MyCourses(ctx.Request().Context(), p, ctx.QueryParam("status"))
	if err != nil {
		return errors.Wrap(err, "listing my courses")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"courses": courses})
}
