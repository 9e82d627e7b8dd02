package dig_container

import (
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/welfareschool/backend/apps/api/echo"
	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
	emailsvc "github.com/welfareschool/backend/services/email"
	"github.com/welfareschool/backend/services/identity"
	logsvc "github.com/welfareschool/backend/services/logger"
	"github.com/welfareschool/backend/storage/database"
	"github.com/welfareschool/backend/storage/database/feed"
	"github.com/welfareschool/backend/storage/database/memdb"
	"github.com/welfareschool/backend/storage/database/pgdb"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

type servicesParam struct {
	dig.In
	Students     *student.Service
	Transactions *transaction.Service
	Invoices     *invoice.Service
	Attendance   *attendance.Service
	Accounts     *account.Service
}

type serverParam struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator
	Services   live.Services
	Identity   *identity.Service
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

// NewStore opens the configured document store. Postgres is created and
// migrated on the way.
func NewStore(conf *core.Config, loggerParam DBLoggerParam) (core.DocStore, error) {
	logger := loggerParam.Logger
	if conf.Database.InMemory() {
		logger.Info("using the in-memory store")
		return memdb.Open(feed.WithLogger(logger)), nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()
	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}

	store, err := pgdb.Open(database.DSN(conf), logger)
	if err != nil {
		return nil, errors.Wrap(err, "opening document store")
	}
	return store, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	core.ParseEmailTemplates(logger)
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// NewValidator returns a validator with the tags and translations of every package.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	student.InitValidators(validate, translator)
	transaction.InitValidators(validate, translator)
	invoice.InitValidators(validate, translator)
	identity.InitValidators(validate, translator)
	return validate, translator
}

func newServices(p servicesParam) live.Services {
	return live.Services{
		Students:     p.Students,
		Transactions: p.Transactions,
		Invoices:     p.Invoices,
		Attendance:   p.Attendance,
		Accounts:     p.Accounts,
	}
}

func newServer(p serverParam) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Services:   p.Services,
		Identity:   p.Identity,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(NewStore))
	must(c.Provide(newEmailService))
	must(c.Provide(NewValidator))
	must(c.Provide(student.NewService))
	must(c.Provide(transaction.NewService))
	must(c.Provide(invoice.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(account.NewService))
	must(c.Provide(newServices))
	must(c.Provide(identity.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
