package dashboard

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/welfareschool/backend/core/account"
	"github.com/welfareschool/backend/core/attendance"
	"github.com/welfareschool/backend/core/invoice"
	"github.com/welfareschool/backend/core/student"
	"github.com/welfareschool/backend/core/transaction"
)

func TestCompute(t *testing.T) {
	in := Input{
		Students: []student.Student{
			{ID: "a", IsWelfare: true, FeeStatus: true},
			{ID: "b", IsWelfare: true},
			{ID: "c", FeeStatus: true},
		},
		Transactions: []transaction.Transaction{
			{Type: transaction.TypeIncome, Amount: decimal.NewFromInt(5000)},
			{Type: transaction.TypeExpense, Amount: decimal.NewFromInt(1200)},
			{Type: transaction.TypeExpense, Amount: decimal.NewFromInt(300)},
		},
		Invoices: []invoice.Invoice{
			{Status: invoice.StatusSent}, {Status: invoice.StatusOverdue}, {Status: invoice.StatusPaid},
		},
		Accounts:   []account.Account{{ID: "u1", IsAdmin: true}, {ID: "u2"}},
		Attendance: attendance.Day{"a": true, "c": true},
	}

	got := Compute(in)
	wantStudents := StudentStats{Total: 3, Welfare: 2, UnpaidFees: 1, FeeCollectionRate: 2.0 / 3.0, FeeCollectionPercent: 67}
	if got.Students != wantStudents {
		t.Errorf("Compute() students = %+v, want %+v", got.Students, wantStudents)
	}
	if !got.Finance.NetBalance.Equal(decimal.NewFromInt(3500)) || !got.Finance.Expense.Equal(decimal.NewFromInt(1500)) {
		t.Errorf("Compute() finance = %+v", got.Finance)
	}
	if got.Invoices.Pending != 2 || got.Users.Admins != 1 || got.Users.Users != 1 {
		t.Errorf("Compute() invoices = %+v, users = %+v", got.Invoices, got.Users)
	}
	if got.Attendance.Present != 2 || got.Attendance.Percent != 67 {
		t.Errorf("Compute() attendance = %+v", got.Attendance)
	}
	if len(got.Recent) != 3 {
		t.Errorf("Compute() recent = %d transactions, want 3", len(got.Recent))
	}
}

func TestCompute_Empty(t *testing.T) {
	got := Compute(Input{})
	if got.Students.FeeCollectionRate != 0 || got.Attendance.Rate != 0 || !got.Finance.NetBalance.IsZero() {
		t.Errorf("Compute() on empty input = %+v", got)
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		part, total int
		want        float64
		wantPercent int
	}{
		{part: 0, total: 0, want: 0, wantPercent: 0},
		{part: 1, total: 2, want: 0.5, wantPercent: 50},
		{part: 1, total: 3, want: 1.0 / 3.0, wantPercent: 33},
		{part: 4, total: 4, want: 1, wantPercent: 100},
	}
	for _, tt := range tests {
		got := Rate(tt.part, tt.total)
		if got != tt.want || Percent(got) != tt.wantPercent {
			t.Errorf("Rate(%d, %d) = %v (%d%%), want %v (%d%%)", tt.part, tt.total, got, Percent(got), tt.want, tt.wantPercent)
		}
	}
}
