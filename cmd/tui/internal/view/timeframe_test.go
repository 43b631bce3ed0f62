package view

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MrJamesThe3rd/factura/internal/authority"
	"github.com/MrJamesThe3rd/factura/internal/einvoice"
	"github.com/MrJamesThe3rd/factura/internal/invoice"
)

func TestDateRange(t *testing.T) {
	// Thursday 2024-03-14 22:30 in Bogota is already Friday in UTC.
	now := time.Date(2024, 3, 15, 3, 30, 0, 0, time.UTC)

	type testCase struct {
		name      string
		tf        Timeframe
		wantStart string
		wantEnd   string
	}

	tests := []testCase{
		{name: "Today", tf: TimeframeToday, wantStart: "2024-03-14", wantEnd: "2024-03-14"},
		{name: "ThisWeek", tf: TimeframeThisWeek, wantStart: "2024-03-11", wantEnd: "2024-03-14"},
		{name: "ThisMonth", tf: TimeframeThisMonth, wantStart: "2024-03-01", wantEnd: "2024-03-14"},
		{name: "LastMonth", tf: TimeframeLastMonth, wantStart: "2024-02-01", wantEnd: "2024-02-29"},
		{name: "Bimester", tf: TimeframeBimester, wantStart: "2024-03-01", wantEnd: "2024-04-30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := dateRange(tt.tf, now)

			assert.Equal(t, tt.wantStart, start.Format("2006-01-02"))
			assert.Equal(t, tt.wantEnd, end.Format("2006-01-02"))
			assert.Equal(t, 0, start.Hour())
			assert.Equal(t, 23, end.Hour())
			assert.Equal(t, bogota, start.Location())
		})
	}
}

func TestDescribeResult(t *testing.T) {
	type testCase struct {
		name    string
		outcome einvoice.Outcome
		err     error
		want    string
	}

	tests := []testCase{
		{
			name:    "Accepted",
			outcome: einvoice.Outcome{Status: invoice.StatusAccepted},
			want:    "Send: invoice is accepted",
		},
		{
			name: "Rejected",
			outcome: einvoice.Outcome{
				Status: invoice.StatusRejected,
				Errors: []invoice.AuthorityError{{Code: "FAD06"}, {Code: "FAJ43b"}},
			},
			err:  fmt.Errorf("submitting: %w", &authority.RejectionError{}),
			want: "Send: rejected by DIAN [FAD06, FAJ43b]",
		},
		{
			name: "Unsettled",
			err:  einvoice.ErrUnsettled,
			want: "Send: DIAN has not settled the previous submission, check status first",
		},
		{
			name: "Other",
			err:  errors.New("boom"),
			want: "Send failed: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeResult(actionSend, tt.outcome, tt.err))
		})
	}
}
