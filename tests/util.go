package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
	"github.com/welfareschool/backend/services/email"
	"github.com/welfareschool/backend/services/identity"
	"github.com/welfareschool/backend/storage/database/memdb"
)

// Mailer is an email service recording what it sends.
type Mailer interface {
	core.EmailService
	SentMessages() []core.EmailMessage
}

// Env is a complete service stack over an in-memory store.
type Env struct {
	DB         *memdb.DB
	Conf       *core.Config
	Validate   *validator.Validate
	Translator ut.Translator
	Mailer     Mailer
	Services   live.Services
	Identity   *identity.Service
}

func Config() *core.Config {
	conf := &core.Config{
		AppName:   "Welfare School",
		Env:       "TEST",
		TestMode:  true,
		SecretKey: "test-secret",
	}
	conf.Server.Addr = ":0"
	conf.Server.JWTExpirationDelta = time.Hour
	return conf
}

// NewValidator returns a validator with every package's tags registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	student.InitValidators(validate, translator)
	transaction.InitValidators(validate, translator)
	invoice.InitValidators(validate, translator)
	identity.InitValidators(validate, translator)
	return validate, translator
}

// NewEnv sets up an Env, closed when the test ends.
func NewEnv(t *testing.T, conf ...*core.Config) *Env {
	t.Helper()

	env := &Env{DB: memdb.Open(), Conf: Config()}
	if len(conf) > 0 {
		env.Conf = conf[0]
	}
	t.Cleanup(func() { _ = env.DB.Close() })

	env.Validate, env.Translator = NewValidator()
	env.Mailer = emailsvc.NewConsoleServiceMock(env.Conf)
	env.Services = live.Services{
		Students:     student.NewService(env.DB, env.Conf),
		Transactions: transaction.NewService(env.DB),
		Invoices:     invoice.NewService(env.DB, env.Mailer, nil),
		Attendance:   attendance.NewService(env.DB),
		Accounts:     account.NewService(env.DB, env.Conf),
	}
	env.Identity = identity.NewService(env.DB, env.Services.Accounts, env.Validate)
	return env
}

// CreateAccount registers an identity and its account.
func (env *Env) CreateAccount(t *testing.T, name, email, pwd string, isAdmin bool) session.Identity {
	t.Helper()
	ctx := context.Background()
	id, err := env.Identity.Register(ctx, session.Registration{
		Name:            name,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		t.Fatalf("CreateAccount() failed: %v", err)
	}
	if isAdmin {
		if err = env.Services.Accounts.SetAdmin(ctx, id.UID, true); err != nil {
			t.Fatalf("CreateAccount() failed: %v", err)
		}
	}
	return id
}

func NewStudent(name, grade, section string) student.NewStudent {
	return student.NewStudent{
		Name:          name,
		RollNumber:    "R-" + name,
		Grade:         grade,
		Section:       section,
		ParentName:    "Parent of " + name,
		ContactNumber: "0700000000",
		Address:       "1 School Road",
		DateOfBirth:   "2015-01-31",
		Gender:        "Female",
	}
}

// CreateStudent stores ns on behalf of uid.
func (env *Env) CreateStudent(t *testing.T, uid string, ns student.NewStudent) student.Student {
	t.Helper()
	ctx := context.Background()
	if err := ns.Validate(env.Validate); err != nil {
		t.Fatalf("CreateStudent() invalid student: %v", err)
	}
	id, err := env.Services.Students.Create(ctx, uid, ns)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	s, err := env.Services.Students.Get(ctx, id)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return s
}
