package main

import (
	"log"
	"os"

	dig_container "github.com/welfareschool/backend/apps/api/di/dig"
	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/services/identity"
	logsvc "github.com/welfareschool/backend/services/logger"
	"github.com/welfareschool/backend/storage/database"
	"github.com/welfareschool/backend/storage/database/memdb"
	"github.com/welfareschool/backend/storage/database/pgdb"
)

var logger core.Logger

func main() {
	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	cli := commandLine{}
	var store core.DocStore
	if conf.Database.InMemory() {
		logger.Warn("the in-memory store does not outlive this command")
		store = memdb.Open()
	} else {
		db, err := database.Open(conf)
		errAndDie(err)
		defer func() { _ = db.Close() }()
		errAndDie(db.Ping())
		cli.db = db.DB

		pg, err := pgdb.Open(database.DSN(conf), logger)
		errAndDie(err)
		store = pg
	}
	defer func() { _ = store.Close() }()

	validate, _ := dig_container.NewValidator()
	cli.accounts = account.NewService(store, conf)
	cli.students = student.NewService(store, conf)
	cli.identity = identity.NewService(store, cli.accounts, validate)

	// start CLI
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("admin command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}
