package account

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/welfareschool/backend/core"
)

// Collection holds one account per identity, keyed by the identity uid.
const Collection = "users"

// Roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

type Account struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Phone     null.String `json:"phone"`
	IsAdmin   bool        `json:"isAdmin"`
	CreatedAt time.Time   `json:"createdAt"` // UTC
	UpdatedAt time.Time   `json:"updatedAt"` // UTC
}

func (acc Account) Role() string {
	if acc.IsAdmin {
		return RoleAdmin
	}
	return RoleUser
}

func FromDocument(doc core.Document) Account {
	d := doc.Data
	phone := core.AsString(d["phone"])
	return Account{
		ID:        doc.ID,
		Name:      core.AsString(d["name"]),
		Email:     core.AsString(d["email"]),
		Phone:     null.NewString(phone, phone != ""),
		IsAdmin:   core.AsBool(d["isAdmin"]),
		CreatedAt: core.AsTime(d["createdAt"]),
		UpdatedAt: core.AsTime(d["updatedAt"]),
	}
}

// NameFromEmail derives a display name from the local part of an email address.
func NameFromEmail(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

// NewAccount contains information needed to create a new Account.
type NewAccount struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone"`
	IsAdmin bool   `json:"isAdmin"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Name = core.CleanString(na.Name)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Phone = core.CleanString(na.Phone)
	return validate.Struct(na)
}

func (na NewAccount) data() core.Data {
	data := core.Data{
		"name":      na.Name,
		"email":     na.Email,
		"isAdmin":   na.IsAdmin,
		"createdAt": core.ServerTimestamp,
		"updatedAt": core.ServerTimestamp,
	}
	if na.Phone != "" {
		data["phone"] = na.Phone
	}
	return data
}

// UpdateAccount defines what information may be provided to modify an existing Account.
// An empty Phone clears it.
type UpdateAccount struct {
	Name    *string `json:"name"`
	Email   *string `json:"email" validate:"omitempty,email"`
	Phone   *string `json:"phone"`
	IsAdmin *bool   `json:"isAdmin"`
}

func (ua *UpdateAccount) Validate(validate *validator.Validate) error {
	if ua.Name != nil {
		*ua.Name = core.CleanString(*ua.Name)
	}
	if ua.Email != nil {
		*ua.Email = core.CleanString(*ua.Email, true /* lower */)
	}
	if ua.Phone != nil {
		*ua.Phone = core.CleanString(*ua.Phone)
	}
	if err := core.CheckNotBlank(
		core.OptionalString{Field: "name", Value: ua.Name},
		core.OptionalString{Field: "email", Value: ua.Email},
	); err != nil {
		return err
	}
	return validate.Struct(ua)
}

func (ua UpdateAccount) data() core.Data {
	data := core.Data{"updatedAt": core.ServerTimestamp}
	if ua.Name != nil {
		data["name"] = *ua.Name
	}
	if ua.Email != nil {
		data["email"] = *ua.Email
	}
	if ua.Phone != nil {
		data["phone"] = *ua.Phone
	}
	if ua.IsAdmin != nil {
		data["isAdmin"] = *ua.IsAdmin
	}
	return data
}

// QueryFilter narrows an account list. All set fields must match.
type QueryFilter struct {
	Search string `query:"search"` // name, email or phone
	Role   string `query:"role"`   // admin or user
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Role = core.CleanString(qf.Role, true /* lower */)
}

func (qf QueryFilter) Match(acc Account) bool {
	if qf.Search != "" &&
		!core.ContainsFold(acc.Name, qf.Search) &&
		!core.ContainsFold(acc.Email, qf.Search) &&
		!(acc.Phone.Valid && core.ContainsFold(acc.Phone.String, qf.Search)) {
		return false
	}
	switch qf.Role {
	case RoleAdmin:
		return acc.IsAdmin
	case RoleUser:
		return !acc.IsAdmin
	}
	return true
}

func (qf QueryFilter) Filter(accounts []Account) []Account {
	filtered := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if qf.Match(acc) {
			filtered = append(filtered, acc)
		}
	}
	return filtered
}

type RoleCounts struct {
	Total  int `json:"total"`
	Admins int `json:"admins"`
	Users  int `json:"users"`
}

func CountRoles(accounts []Account) RoleCounts {
	counts := RoleCounts{Total: len(accounts)}
	for _, acc := range accounts {
		if acc.IsAdmin {
			counts.Admins++
		}
	}
	counts.Users = counts.Total - counts.Admins
	return counts
}

// CreatorName returns the display name of the account id, or id itself
// when the account is unknown or has no name.
func CreatorName(accounts []Account, id string) string {
	for _, acc := range accounts {
		if acc.ID == id && acc.Name != "" {
			return acc.Name
		}
	}
	return id
}
