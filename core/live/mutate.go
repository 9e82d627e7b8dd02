package live

import (
	"fmt"
	"strings"

	"github.com/welfareschool/backend/core"
)

const (
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notification is a short user-facing message about the outcome of a mutation.
type Notification struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Notifier delivers notifications to the user who triggered a mutation.
type Notifier interface {
	Notify(n Notification)
}

type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Action names a mutation in notifications.
type Action struct {
	Verb string // add
	Past string // added
}

var (
	ActionAdd    = Action{Verb: "add", Past: "added"}
	ActionCreate = Action{Verb: "create", Past: "created"}
	ActionUpdate = Action{Verb: "update", Past: "updated"}
	ActionDelete = Action{Verb: "delete", Past: "deleted"}
)

func (a Action) SuccessMessage(entity string) string {
	return fmt.Sprintf("%s %s successfully!", capitalize(entity), a.Past)
}

func (a Action) FailureMessage(entity string) string {
	return fmt.Sprintf("Failed to %s %s", a.Verb, entity)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// Mutator runs mutations and reports their outcome. Errors are logged, notified
// with a generic message naming the action, and returned unchanged.
type Mutator struct {
	notifier Notifier
	logger   core.Logger
}

func NewMutator(notifier Notifier, logger core.Logger) Mutator {
	if notifier == nil {
		notifier = NotifierFunc(func(Notification) {})
	}
	if logger == nil {
		logger = core.NopLogger{}
	}
	return Mutator{notifier: notifier, logger: logger}
}

func (m Mutator) Run(action Action, entity string, fn func() error) error {
	if err := fn(); err != nil {
		m.logger.Error(fmt.Sprintf("%s %s", action.Verb, entity), err)
		m.notifier.Notify(Notification{Level: LevelError, Message: action.FailureMessage(entity)})
		return err
	}
	m.notifier.Notify(Notification{Level: LevelSuccess, Message: action.SuccessMessage(entity)})
	return nil
}

// Create runs a mutation returning the id of a new document.
func (m Mutator) Create(action Action, entity string, fn func() (string, error)) (string, error) {
	var id string
	err := m.Run(action, entity, func() (err error) {
		id, err = fn()
		return err
	})
	return id, err
}
