package student

import (
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/welfareschool/backend/core"
)

const Collection = "students"

const (
	WelfareOnly = "welfare"
	RegularOnly = "regular"
)

var (
	Grades   = []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11", "12"}
	Sections = []string{"A", "B", "C", "D"}
	Genders  = []string{"Male", "Female"}
)

type Student struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	RollNumber    string    `json:"rollNumber"`
	Grade         string    `json:"grade"`
	Section       string    `json:"section"`
	ParentName    string    `json:"parentName"`
	ContactNumber string    `json:"contactNumber"`
	Address       string    `json:"address"`
	DateOfBirth   string    `json:"dateOfBirth"`
	Gender        string    `json:"gender"`
	FeeStatus     bool      `json:"feeStatus"` // fee paid
	IsWelfare     bool      `json:"isWelfare"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"` // UTC
	UpdatedAt     time.Time `json:"updatedAt"` // UTC
}

func FromDocument(doc core.Document) Student {
	d := doc.Data
	return Student{
		ID:            doc.ID,
		Name:          core.AsString(d["name"]),
		RollNumber:    core.AsString(d["rollNumber"]),
		Grade:         core.AsString(d["grade"]),
		Section:       core.AsString(d["section"]),
		ParentName:    core.AsString(d["parentName"]),
		ContactNumber: core.AsString(d["contactNumber"]),
		Address:       core.AsString(d["address"]),
		DateOfBirth:   core.AsString(d["dateOfBirth"]),
		Gender:        core.AsString(d["gender"]),
		FeeStatus:     core.AsBool(d["feeStatus"]),
		IsWelfare:     core.AsBool(d["isWelfare"]),
		CreatedBy:     core.AsString(d["createdBy"]),
		CreatedAt:     core.AsTime(d["createdAt"]),
		UpdatedAt:     core.AsTime(d["updatedAt"]),
	}
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name          string `json:"name" validate:"required"`
	RollNumber    string `json:"rollNumber" validate:"required"`
	Grade         string `json:"grade" validate:"required,grade"`
	Section       string `json:"section" validate:"required,section"`
	ParentName    string `json:"parentName" validate:"required"`
	ContactNumber string `json:"contactNumber" validate:"required"`
	Address       string `json:"address" validate:"required"`
	DateOfBirth   string `json:"dateOfBirth" validate:"required,isodate"`
	Gender        string `json:"gender" validate:"required,gender"`
	FeeStatus     bool   `json:"feeStatus"`
	IsWelfare     bool   `json:"isWelfare"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.RollNumber = core.CleanString(ns.RollNumber)
	ns.Grade = core.CleanString(ns.Grade)
	ns.Section = core.CleanString(ns.Section)
	ns.ParentName = core.CleanString(ns.ParentName)
	ns.ContactNumber = core.CleanString(ns.ContactNumber)
	ns.Address = core.CleanString(ns.Address)
	ns.DateOfBirth = core.CleanString(ns.DateOfBirth)
	ns.Gender = core.CleanString(ns.Gender)
	return validate.Struct(ns)
}

func (ns NewStudent) data(createdBy string) core.Data {
	return core.Data{
		"name":          ns.Name,
		"rollNumber":    ns.RollNumber,
		"grade":         ns.Grade,
		"section":       ns.Section,
		"parentName":    ns.ParentName,
		"contactNumber": ns.ContactNumber,
		"address":       ns.Address,
		"dateOfBirth":   ns.DateOfBirth,
		"gender":        ns.Gender,
		"feeStatus":     ns.FeeStatus,
		"isWelfare":     ns.IsWelfare,
		"createdBy":     createdBy,
		"createdAt":     core.ServerTimestamp,
		"updatedAt":     core.ServerTimestamp,
	}
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// The creator is set once at creation and cannot be changed.
type UpdateStudent struct {
	Name          *string `json:"name"`
	RollNumber    *string `json:"rollNumber"`
	Grade         *string `json:"grade" validate:"omitempty,grade"`
	Section       *string `json:"section" validate:"omitempty,section"`
	ParentName    *string `json:"parentName"`
	ContactNumber *string `json:"contactNumber"`
	Address       *string `json:"address"`
	DateOfBirth   *string `json:"dateOfBirth" validate:"omitempty,isodate"`
	Gender        *string `json:"gender" validate:"omitempty,gender"`
	FeeStatus     *bool   `json:"feeStatus"`
	IsWelfare     *bool   `json:"isWelfare"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	fields := []core.OptionalString{
		{Field: "name", Value: us.Name},
		{Field: "rollNumber", Value: us.RollNumber},
		{Field: "grade", Value: us.Grade},
		{Field: "section", Value: us.Section},
		{Field: "parentName", Value: us.ParentName},
		{Field: "contactNumber", Value: us.ContactNumber},
		{Field: "address", Value: us.Address},
		{Field: "dateOfBirth", Value: us.DateOfBirth},
		{Field: "gender", Value: us.Gender},
	}
	for _, f := range fields {
		if f.Value != nil {
			*f.Value = core.CleanString(*f.Value)
		}
	}
	if err := core.CheckNotBlank(fields...); err != nil {
		return err
	}
	return validate.Struct(us)
}

func (us UpdateStudent) data() core.Data {
	data := core.Data{"updatedAt": core.ServerTimestamp}
	setStr := func(key string, v *string) {
		if v != nil {
			data[key] = *v
		}
	}
	setStr("name", us.Name)
	setStr("rollNumber", us.RollNumber)
	setStr("grade", us.Grade)
	setStr("section", us.Section)
	setStr("parentName", us.ParentName)
	setStr("contactNumber", us.ContactNumber)
	setStr("address", us.Address)
	setStr("dateOfBirth", us.DateOfBirth)
	setStr("gender", us.Gender)
	if us.FeeStatus != nil {
		data["feeStatus"] = *us.FeeStatus
	}
	if us.IsWelfare != nil {
		data["isWelfare"] = *us.IsWelfare
	}
	return data
}

// QueryFilter narrows a student list. All set fields must match.
type QueryFilter struct {
	Search    string `query:"search"` // name, roll number or parent name
	Grade     string `query:"grade"`
	Welfare   string `query:"welfare"` // welfare | regular
	CreatedBy string `query:"createdBy"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.Grade = core.CleanString(qf.Grade)
	qf.Welfare = core.CleanString(qf.Welfare, true /* lower */)
	qf.CreatedBy = core.CleanString(qf.CreatedBy)
}

func (qf QueryFilter) Match(s Student) bool {
	if qf.Search != "" &&
		!core.ContainsFold(s.Name, qf.Search) &&
		!core.ContainsFold(s.RollNumber, qf.Search) &&
		!core.ContainsFold(s.ParentName, qf.Search) {
		return false
	}
	if qf.Grade != "" && s.Grade != qf.Grade {
		return false
	}
	switch qf.Welfare {
	case WelfareOnly:
		if !s.IsWelfare {
			return false
		}
	case RegularOnly:
		if s.IsWelfare {
			return false
		}
	}
	if qf.CreatedBy != "" && s.CreatedBy != qf.CreatedBy {
		return false
	}
	return true
}

func (qf QueryFilter) Filter(students []Student) []Student {
	filtered := make([]Student, 0, len(students))
	for _, s := range students {
		if qf.Match(s) {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

// DistinctGrades lists the grades in use, sorted numerically.
func DistinctGrades(students []Student) []string {
	return distinct(students, func(s Student) string { return s.Grade }, func(a, b string) bool {
		return core.AsInt(a) < core.AsInt(b) || (core.AsInt(a) == core.AsInt(b) && a < b)
	})
}

func DistinctSections(students []Student) []string {
	return distinct(students, func(s Student) string { return s.Section }, func(a, b string) bool { return a < b })
}

// DistinctCreators lists the accounts that created at least one student.
func DistinctCreators(students []Student) []string {
	return distinct(students, func(s Student) string { return s.CreatedBy }, func(a, b string) bool { return a < b })
}

func distinct(students []Student, key func(Student) string, less func(a, b string) bool) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, s := range students {
		k := key(s)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
