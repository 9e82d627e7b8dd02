package main

import (
	"context"
	"fmt"

	"github.com/welfareschool/backend/storage/database"
)

var gooseRunFunc = database.RunMigrations // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	arguments := make([]string, 0)
	if len(args) > 1 {
		arguments = append(arguments, args[1:]...)
	}
	return gooseRunFunc(args[0], cli.db, arguments...)
}

func (cli *commandLine) backfill() error {
	n, err := cli.students.BackfillCreatedAt(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("backfilled createdAt on %d students\n", n)
	return nil
}
