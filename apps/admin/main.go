package main

import (
	"context"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/learninghub/core"
	"github.com/trezcool/learninghub/core/exam"
	logsvc "github.com/trezcool/learninghub/services/logger"
	"github.com/trezcool/learninghub/storage/database"
	sqlxrepos "github.com/trezcool/learninghub/storage/database/sqlx"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger("ADMIN", nil, conf)

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(database.Ping(context.Background(), db))

	validate := validator.New()
	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		usrRepo:  sqlxrepos.NewUserRepository(db),
		examSvc:  exam.NewService(sqlxrepos.NewExamRepository(db), logger),
		validate: validate,
		out:      os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed: "+err.Error(), err)
		}
		db.Close()
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
