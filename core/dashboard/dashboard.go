// Package dashboard derives the overview figures from the live collections.
package dashboard

import (
	"math"

	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
)

// RecentTransactions is how many of the latest transactions the overview lists.
const RecentTransactions = 5

type Input struct {
	Students     []student.Student
	Transactions []transaction.Transaction // newest first
	Invoices     []invoice.Invoice
	Accounts     []account.Account
	Attendance   attendance.Day
}

type StudentStats struct {
	Total                int     `json:"total"`
	Welfare              int     `json:"welfare"`
	UnpaidFees           int     `json:"unpaidFees"`
	FeeCollectionRate    float64 `json:"feeCollectionRate"`
	FeeCollectionPercent int     `json:"feeCollectionPercent"`
}

type Stats struct {
	Students   StudentStats              `json:"students"`
	Finance    transaction.Totals        `json:"finance"`
	Recent     []transaction.Transaction `json:"recentTransactions"`
	Invoices   invoice.StatusCounts      `json:"invoices"`
	Users      account.RoleCounts        `json:"users"`
	Attendance attendance.Summary        `json:"attendance"`
}

// Compute derives the overview. Rates over empty sets are 0.
func Compute(in Input) Stats {
	ids := make([]string, 0, len(in.Students))
	for _, s := range in.Students {
		ids = append(ids, s.ID)
	}
	return Stats{
		Students:   studentStats(in.Students),
		Finance:    transaction.Summarize(in.Transactions),
		Recent:     transaction.Recent(in.Transactions, RecentTransactions),
		Invoices:   invoice.CountByStatus(in.Invoices),
		Users:      account.CountRoles(in.Accounts),
		Attendance: attendance.Summarize(in.Attendance, ids),
	}
}

func studentStats(students []student.Student) StudentStats {
	st := StudentStats{Total: len(students)}
	for _, s := range students {
		if s.IsWelfare {
			st.Welfare++
		}
		if !s.FeeStatus {
			st.UnpaidFees++
		}
	}
	st.FeeCollectionRate = Rate(st.Total-st.UnpaidFees, st.Total)
	st.FeeCollectionPercent = Percent(st.FeeCollectionRate)
	return st
}

// Rate is part/total, or 0 when total is 0.
func Rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total)
}

// Percent rounds a rate to a whole percent.
func Percent(rate float64) int {
	return int(math.Round(rate * 100))
}
