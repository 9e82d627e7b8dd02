package attendance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/student"
)

// Collection holds one document per calendar day, keyed by its YYYY-MM-DD date.
const Collection = "attendance"

// audit fields stored next to the student flags
const (
	fieldMarkedBy = "markedBy"
	fieldMarkedAt = "markedAt"
)

// Day maps a student id to whether the student was present.
// A missing id means absent or unmarked.
type Day map[string]bool

// Copy returns an independent copy of d. A nil Day yields an empty one.
func (d Day) Copy() Day {
	cp := make(Day, len(d))
	for id, present := range d {
		cp[id] = present
	}
	return cp
}

// Register maps dates to their attendance.
type Register map[string]Day

// DayFromDocument returns the student flags of an attendance document.
// Audit fields are dropped.
func DayFromDocument(doc core.Document) Day {
	day := Day(core.AsBoolMap(doc.Data))
	delete(day, fieldMarkedBy)
	delete(day, fieldMarkedAt)
	return day
}

func RegisterFromDocuments(docs []core.Document) Register {
	reg := make(Register, len(docs))
	for _, doc := range docs {
		reg[doc.ID] = DayFromDocument(doc)
	}
	return reg
}

func (d Day) data(markedBy string) core.Data {
	data := make(core.Data, len(d)+2)
	for id, present := range d {
		data[id] = present
	}
	data[fieldMarkedBy] = markedBy
	data[fieldMarkedAt] = core.ServerTimestamp
	return data
}

// Validate rejects empty student ids and ids that collide with the audit fields.
func (d Day) Validate() error {
	var flds []core.FieldError
	for id := range d {
		switch {
		case core.CleanString(id) == "":
			flds = append(flds, core.FieldError{Field: "studentId", Error: "student id cannot be blank"})
		case id == fieldMarkedBy || id == fieldMarkedAt:
			flds = append(flds, core.FieldError{Field: id, Error: fmt.Sprintf("%q is not a valid student id", id)})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

// ParseDate validates a YYYY-MM-DD attendance date.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(core.DateLayout, date)
	if err != nil {
		return time.Time{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date must be in YYYY-MM-DD format"})
	}
	return t, nil
}

// Today is the current UTC date.
func Today() string {
	return core.NowFunc().UTC().Format(core.DateLayout)
}

// ShiftDate moves date by the given number of days.
func ShiftDate(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, days).Format(core.DateLayout), nil
}

// Toggle returns a copy of day with the student's flag flipped.
// An unmarked student becomes present.
func Toggle(day Day, studentID string) Day {
	next := day.Copy()
	next[studentID] = !day[studentID]
	return next
}

// MarkAll returns a copy of day with every student in ids set to present.
// Students outside ids keep their flags.
func MarkAll(day Day, ids []string, present bool) Day {
	next := day.Copy()
	for _, id := range ids {
		next[id] = present
	}
	return next
}

// CohortFilter selects the students an attendance view covers. Empty fields match all.
type CohortFilter struct {
	Grade   string `query:"grade" json:"grade"`
	Section string `query:"section" json:"section"`
}

func (cf *CohortFilter) Clean() {
	cf.Grade = core.CleanString(cf.Grade)
	cf.Section = core.CleanString(cf.Section)
}

func (cf CohortFilter) Match(s student.Student) bool {
	return (cf.Grade == "" || s.Grade == cf.Grade) && (cf.Section == "" || s.Section == cf.Section)
}

// IDs returns the ids of the matching students, in input order.
func (cf CohortFilter) IDs(students []student.Student) []string {
	ids := make([]string, 0, len(students))
	for _, s := range students {
		if cf.Match(s) {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

type Summary struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Absent  int     `json:"absent"`
	Rate    float64 `json:"rate"`    // present / total, 0 for an empty cohort
	Percent int     `json:"percent"` // Rate as a rounded whole percent
}

// Summarize counts the cohort's present and absent students for a day.
func Summarize(day Day, cohort []string) Summary {
	s := Summary{Total: len(cohort)}
	for _, id := range cohort {
		if day[id] {
			s.Present++
		}
	}
	s.Absent = s.Total - s.Present
	if s.Total > 0 {
		s.Rate = float64(s.Present) / float64(s.Total)
		s.Percent = int(math.Round(s.Rate * 100))
	}
	return s
}

// Dates returns the register's dates, oldest first.
func (reg Register) Dates() []string {
	dates := make([]string, 0, len(reg))
	for date := range reg {
		dates = append(dates, date)
	}
	sort.Strings(dates)
	return dates
}
