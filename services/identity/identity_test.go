package identity

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/session"
	"github.com/welfareschool/backend/storage/database/memdb"
)

func newTestService(t *testing.T) (*Service, *account.Service) {
	t.Helper()
	hashCost = bcrypt.MinCost
	t.Cleanup(func() { hashCost = bcrypt.DefaultCost })

	db := memdb.Open()
	t.Cleanup(func() { _ = db.Close() })

	validate, translator := core.NewValidator()
	InitValidators(validate, translator)
	accounts := account.NewService(db, &core.Config{})
	return NewService(db, accounts, validate), accounts
}

func registration(email, pwd string) session.Registration {
	return session.Registration{Name: "Asha Otieno", Email: email, Password: pwd, PasswordConfirm: pwd}
}

func TestPasswordPolicy(t *testing.T) {
	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "ok", pwd: "secret1", attrs: []string{"asha@school.org"}, want: ""},
		{name: "too short", pwd: "abc12", want: pwdMinLenTag},
		{name: "whitespace", pwd: "sec ret1", want: pwdNoSpaceTag},
		{name: "same as email", pwd: "asha@school.org", attrs: []string{"asha@school.org"}, want: pwdAttrSimTag},
		{name: "like local part", pwd: "Asha12", attrs: []string{"asha@school.org"}, want: pwdAttrSimTag},
		{name: "like name", pwd: "ashaotieno", attrs: []string{"Asha Otieno"}, want: pwdAttrSimTag},
		{name: "blank attrs", pwd: "secret1", attrs: []string{"", ""}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := passwordPolicy(tt.pwd, tt.attrs...); got != tt.want {
				t.Errorf("passwordPolicy() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{ErrUserNotFound, "No account found with this email"},
		{errors.Wrap(ErrWrongPassword, "signing in"), "Incorrect password"},
		{ErrEmailInUse, "Email is already registered"},
		{ErrWeakPassword, "Password is too weak"},
		{ErrInvalidEmail, "Invalid email address"},
		{errors.New("network down"), "Authentication failed"},
	}
	for _, tt := range tests {
		if got := Message(tt.err); got != tt.want {
			t.Errorf("Message(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestService_Register(t *testing.T) {
	svc, accounts := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, registration(" Asha@School.org ", "secret1"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if id.UID == "" || id.Email != "asha@school.org" {
		t.Errorf("Register() = %+v", id)
	}

	acc, err := accounts.Get(ctx, id.UID)
	if err != nil {
		t.Fatalf("accounts.Get() error = %v", err)
	}
	if acc.Name != "Asha Otieno" || acc.Email != "asha@school.org" || acc.IsAdmin {
		t.Errorf("account = %+v", acc)
	}

	tests := []struct {
		name    string
		reg     session.Registration
		wantErr error
	}{
		{name: "email in use", reg: registration("asha@school.org", "secret2"), wantErr: ErrEmailInUse},
		{name: "invalid email", reg: registration("asha-at-school", "secret2"), wantErr: ErrInvalidEmail},
		{name: "weak password", reg: registration("ben@school.org", "ben1"), wantErr: ErrWeakPassword},
		{name: "similar password", reg: registration("ben@school.org", "ben@school"), wantErr: ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Register(ctx, tt.reg); errors.Cause(err) != tt.wantErr {
				t.Errorf("Register() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_Register_Mismatch(t *testing.T) {
	svc, _ := newTestService(t)
	reg := registration("ben@school.org", "secret1")
	reg.PasswordConfirm = "secret2"

	_, err := svc.Register(context.Background(), reg)
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(vErrs) != 1 || vErrs[0].Field() != "passwordConfirm" {
		t.Errorf("Register() error = %v, want passwordConfirm validation error", err)
	}
}

func TestService_SignIn(t *testing.T) {
	svc, accounts := newTestService(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, registration("asha@school.org", "secret1"))
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tests := []struct {
		name    string
		creds   session.Credentials
		wantErr error
	}{
		{name: "ok", creds: session.Credentials{Email: "ASHA@school.org", Password: "secret1"}},
		{name: "wrong password", creds: session.Credentials{Email: "asha@school.org", Password: "secret2"}, wantErr: ErrWrongPassword},
		{name: "unknown email", creds: session.Credentials{Email: "ben@school.org", Password: "secret1"}, wantErr: ErrUserNotFound},
		{name: "invalid email", creds: session.Credentials{Email: "ben", Password: "secret1"}, wantErr: ErrInvalidEmail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := svc.SignIn(ctx, tt.creds)
			if errors.Cause(err) != tt.wantErr {
				t.Fatalf("SignIn() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && id != registered {
				t.Errorf("SignIn() = %+v, want %+v", id, registered)
			}
		})
	}

	// sign-in recreates a missing account document
	if err = accounts.Delete(ctx, registered.UID); err != nil {
		t.Fatal(err)
	}
	if _, err = svc.SignIn(ctx, session.Credentials{Email: "asha@school.org", Password: "secret1"}); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	acc, err := accounts.Get(ctx, registered.UID)
	if err != nil {
		t.Fatalf("accounts.Get() error = %v", err)
	}
	if acc.Name != "asha" || acc.IsAdmin {
		t.Errorf("recreated account = %+v", acc)
	}
}

func TestService_SetPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.Register(ctx, registration("asha@school.org", "secret1")); err != nil {
		t.Fatal(err)
	}

	if err := svc.SetPassword(ctx, "asha@school.org", "abc"); err != ErrWeakPassword {
		t.Errorf("SetPassword() error = %v, want %v", err, ErrWeakPassword)
	}
	if err := svc.SetPassword(ctx, "ben@school.org", "n3wpass"); err != ErrUserNotFound {
		t.Errorf("SetPassword() error = %v, want %v", err, ErrUserNotFound)
	}
	if err := svc.SetPassword(ctx, "asha@school.org", "n3wpass"); err != nil {
		t.Fatalf("SetPassword() error = %v", err)
	}
	if _, err := svc.SignIn(ctx, session.Credentials{Email: "asha@school.org", Password: "n3wpass"}); err != nil {
		t.Errorf("SignIn() with new password error = %v", err)
	}
}

type fakeProvider struct {
	id  session.Identity
	err error
}

func (p fakeProvider) SignIn(context.Context, session.Credentials) (session.Identity, error) {
	return p.id, p.err
}

func (p fakeProvider) Register(context.Context, session.Registration) (session.Identity, error) {
	return p.id, p.err
}

func TestSession(t *testing.T) {
	s := NewSession()
	var seen []*session.Identity
	unsub := s.OnChange(func(id *session.Identity) { seen = append(seen, id) })

	if len(seen) != 1 || seen[0] != nil {
		t.Fatalf("OnChange() initial call = %v, want [nil]", seen)
	}

	if _, err := s.SignIn(context.Background(), fakeProvider{err: ErrWrongPassword}, session.Credentials{}); err != ErrWrongPassword {
		t.Errorf("SignIn() error = %v, want %v", err, ErrWrongPassword)
	}
	if len(seen) != 1 {
		t.Errorf("failed sign-in notified listeners: %v", seen)
	}

	want := session.Identity{UID: "u1", Email: "asha@school.org"}
	if _, err := s.SignIn(context.Background(), fakeProvider{id: want}, session.Credentials{}); err != nil {
		t.Fatalf("SignIn() error = %v", err)
	}
	if len(seen) != 2 || seen[1] == nil || *seen[1] != want {
		t.Errorf("after sign-in seen = %v", seen)
	}
	if cur := s.Current(); cur == nil || *cur != want {
		t.Errorf("Current() = %v, want %v", cur, want)
	}

	s.SignOut()
	if len(seen) != 3 || seen[2] != nil || s.Current() != nil {
		t.Errorf("after sign-out seen = %v", seen)
	}

	unsub()
	unsub()
	s.Set(&want)
	if len(seen) != 3 {
		t.Errorf("listener called after unsubscribe: %v", seen)
	}
}
