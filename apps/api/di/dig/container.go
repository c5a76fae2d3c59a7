package dig_container

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/learninghub/apps/api/echo"
	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/course"
	"github.com/trezcool/learninghub/core/exam"
	"github.com/trezcool/learninghub/core/identity"
	"github.com/trezcool/learninghub/core/upload"
	"github.com/trezcool/learninghub/core/user"
	authsvc "github.com/trezcool/learninghub/services/auth"
	cachesvc "github.com/trezcool/learninghub/services/cache"
	emailsvc "github.com/trezcool/learninghub/services/email"
	logsvc "github.com/trezcool/learninghub/services/logger"
	"github.com/trezcool/learninghub/services/metrics"
	"github.com/trezcool/learninghub/services/ratelimit"
	storagesvc "github.com/trezcool/learninghub/services/storage"
	"github.com/trezcool/learninghub/storage/database"
	sqlxrepos "github.com/trezcool/learninghub/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	identityResult struct {
		dig.Out
		Provider identity.Provider
		Verifier identity.Verifier
		JWKS     http.Handler `name:"jwks"`
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		UserSvc    *user.Service
		CourseSvc  *course.Service
		ExamSvc    *exam.Service
		UploadSvc  *upload.Service
		Verifier   identity.Verifier
		Limiter    ratelimit.Limiter
		Metrics    *metrics.Metrics
		JWKS       http.Handler `name:"jwks"`
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("API", nil, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger("DB", nil, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(ctx, db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newRedisClient returns nil when Redis is not configured or unreachable: callers fall back to memory.
func newRedisClient(conf *core.Config, logger core.Logger) *redis.Client {
	client, err := cachesvc.NewRedisClient(context.Background(), conf.Redis)
	if err != nil {
		logger.Warn(fmt.Sprintf("redis unavailable, using in-memory caches: %v", err))
		return nil
	}
	return client
}

func newPrincipalCache(conf *core.Config, client *redis.Client, logger core.Logger) identity.PrincipalCache {
	if client == nil {
		return cachesvc.NewMemoryPrincipalCache(conf.Auth.CacheTTL)
	}
	return cachesvc.NewPrincipalCache(client, conf.Redis.Prefix, conf.Auth.CacheTTL, logger)
}

func newCodeStore(conf *core.Config, client *redis.Client) authsvc.CodeStore {
	if client == nil {
		return cachesvc.NewMemoryCodeStore()
	}
	return cachesvc.NewCodeStore(client, conf.Redis.Prefix)
}

func localIssuer(conf *core.Config) string {
	if conf.Auth.Issuer != "" {
		return conf.Auth.Issuer
	}
	return fmt.Sprintf("http://%s%s", conf.Server.Host, conf.Server.Address)
}

func newIdentity(
	conf *core.Config, users user.Repository, codes authsvc.CodeStore, mailer core.EmailService,
) (identityResult, error) {
	if !conf.Auth.IsLocal() {
		return identityResult{
			Provider: authsvc.NewCognitoProvider(conf.Auth, nil),
			Verifier: authsvc.NewVerifier(conf.Auth.JWKSEndpoint(), conf.Auth.IssuerURL(), conf.Auth.ClientID, nil),
		}, nil
	}

	key, err := authsvc.GenerateKey()
	if err != nil {
		return identityResult{}, errors.Wrap(err, "generating signing key")
	}
	issuer := localIssuer(conf)
	provider := authsvc.NewLocalProvider(users, codes, mailer, key, issuer, conf.Auth.ClientID)

	jwksURL := conf.Auth.JWKSURL
	if jwksURL == "" {
		jwksURL = fmt.Sprintf("http://%s%s/.well-known/jwks.json", conf.Server.Host, conf.Server.Address)
	}
	return identityResult{
		Provider: provider,
		Verifier: authsvc.NewVerifier(jwksURL, issuer, conf.Auth.ClientID, nil),
		JWKS:     provider.JWKSHandler(),
	}, nil
}

func newObjectStore(conf *core.Config, logger core.Logger) (upload.ObjectStore, error) {
	if conf.Storage.Bucket == "" || conf.TestMode {
		logger.Warn("object storage not configured, files are kept in memory")
		return storagesvc.NewMemoryStore(conf.Storage.PublicBaseURL), nil
	}
	store, err := storagesvc.NewMinioStore(conf.Storage)
	if err != nil {
		return nil, err
	}
	if err = store.EnsureBucket(context.Background(), conf.Storage.Region); err != nil {
		logger.Error(fmt.Sprintf("ensuring bucket %q: %v", conf.Storage.Bucket, err), err)
	}
	return store, nil
}

func newUploadService(store upload.ObjectStore, conf *core.Config) *upload.Service {
	return upload.NewService(store, conf.Storage)
}

func newLimiter(conf *core.Config, client *redis.Client, logger core.Logger) (ratelimit.Limiter, error) {
	return ratelimit.New(client, conf.Redis.Prefix, conf.Auth.RateLimitPerMinute, logger)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		ExamSvc:    p.ExamSvc,
		UploadSvc:  p.UploadSvc,
		Verifier:   p.Verifier,
		Limiter:    p.Limiter,
		Metrics:    p.Metrics,
		JWKS:       p.JWKS,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(newRedisClient))
	must(c.Provide(newPrincipalCache))
	must(c.Provide(newCodeStore))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewCourseRepository, dig.As(new(course.Repository))))
	must(c.Provide(sqlxrepos.NewExamRepository, dig.As(new(exam.Repository))))
	must(c.Provide(newIdentity))
	must(c.Provide(newObjectStore))
	must(c.Provide(newUploadService))
	must(c.Provide(func(svc *upload.Service) course.URLSigner { return svc }))
	must(c.Provide(newLimiter))
	must(c.Provide(metrics.New))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(exam.NewService))
	must(c.Provide(newServer))

	if os.Getenv("DIG_VISUALIZE") != "" {
		_ = dig.Visualize(c, os.Stdout)
	}

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
