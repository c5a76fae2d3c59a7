package echoapi

import (
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/learninghub/core/upload"
	"github.com/trezcool/learninghub/core/user"
)

const defaultContentType = "application/octet-stream"

type uploadApi struct {
	deps    ServerDeps
	svc     *upload.Service
	userSvc *user.Service
}

func registerUploadAPI(g *echo.Group, auth echo.MiddlewareFunc, deps ServerDeps) {
	api := uploadApi{deps: deps, svc: deps.UploadSvc, userSvc: deps.UserSvc}

	ug := g.Group("/upload", auth)
	ug.POST("/lecture", api.uploadTo(upload.FolderLectures))
	ug.POST("/avatar", api.uploadAvatar)
	ug.POST("/flashcard", api.uploadTo(upload.FolderFlashcards))
	ug.POST("/presigned-upload-url", api.presignedUploadURL)
	ug.GET("/presigned/*", api.presignedURL)
	ug.DELETE("/*", api.destroy)
}

// formFile returns the single `file` part of a multipart request.
func formFile(ctx echo.Context) (*multipart.FileHeader, error) {
	form, err := ctx.MultipartForm()
	if err != nil {
		return nil, errNoFile
	}
	var count int
	for _, files := range form.File {
		count += len(files)
	}
	if count > upload.MaxFiles {
		return nil, errTooManyFiles
	}
	files := form.File["file"]
	if len(files) == 0 {
		return nil, errNoFile
	}
	if files[0].Size > upload.MaxFileSize {
		return nil, errFileTooLarge
	}
	return files[0], nil
}

func (api *uploadApi) store(ctx echo.Context, folder string) (upload.Object, error) {
	fh, err := formFile(ctx)
	if err != nil {
		return upload.Object{}, err
	}
	f, err := fh.Open()
	if err != nil {
		return upload.Object{}, errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()

	contentType := fh.Header.Get(echo.HeaderContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	obj, err := api.svc.Upload(ctx.Request().Context(), folder, fh.Filename, contentType, fh.Size, f)
	return obj, errors.Wrap(err, "uploading file")
}

// pathKey is the object key of a wildcard route, URL-decoded.
func pathKey(ctx echo.Context) string {
	raw := ctx.Param("*")
	if key, err := url.PathUnescape(raw); err == nil {
		return key
	}
	return raw
}

// Handlers

func (api *uploadApi) uploadTo(folder string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		obj, err := api.store(ctx, folder)
		if err != nil {
			return err
		}
		return ctx.JSON(http.StatusCreated, success("File uploaded successfully", obj))
	}
}

func (api *uploadApi) uploadAvatar(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context principal")
	}
	obj, err := api.store(ctx, upload.FolderAvatars)
	if err != nil {
		return err
	}
	if _, err = api.userSvc.SetAvatar(ctx.Request().Context(), p.LocalUserID, obj.Key); err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	return ctx.JSON(http.StatusCreated, success("Avatar uploaded successfully", obj))
}

func (api *uploadApi) presignedUploadURL(ctx echo.Context) error {
	var data upload.PresignRequest
	if err := bindAndValidate(ctx, &data, api.deps.Validate); err != nil {
		return err
	}
	res, err := api.svc.PresignedPutURL(ctx.Request().Context(), data.FileName, data.Folder, data.ContentType)
	if err != nil {
		return errors.Wrap(err, "presigning upload")
	}
	return ctx.JSON(http.StatusOK, success("Presigned upload URL generated", res))
}

func (api *uploadApi) presignedURL(ctx echo.Context) error {
	raw := ctx.QueryParam("expiresIn")
	seconds, err := strconv.Atoi(raw)
	if raw != "" && err != nil {
		return upload.ErrInvalidExpiry
	}
	expiry, err := upload.ExpiryFromSeconds(seconds, raw != "")
	if err != nil {
		return err
	}

	u, err := api.svc.PresignedGetURL(ctx.Request().Context(), pathKey(ctx), expiry)
	if err != nil {
		return errors.Wrap(err, "presigning url")
	}
	return ctx.JSON(http.StatusOK, success("", echo.Map{"url": u, "expiresIn": int(expiry / time.Second)}))
}

func (api *uploadApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), pathKey(ctx)); err != nil {
		return errors.Wrap(err, "deleting file")
	}
	return ctx.JSON(http.StatusOK, success("File deleted successfully", nil))
}
