package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// StatusPaid is the YooKassa status a payment must carry to be submitted.
const StatusPaid = "Оплачен"

// DefaultTZ is the fixed offset appended to API timestamps. NPD expects
// Moscow wall-clock time; no timezone database lookup is performed.
const DefaultTZ = "+03:00"

const paidAtLayout = "02.01.2006 15:04:05"

var (
	ErrBadAmount = errors.New("unparseable amount")
	ErrBadDate   = errors.New("unparseable payment date")
)

// Record is one row of a YooKassa export. PaymentID, RawPaidAt and RawAmount
// are always non-empty: rows missing any of them are dropped by the reader
// and never constructed.
type Record struct {
	PaymentID   string
	RawPaidAt   string
	Status      string
	RawAmount   string
	Description string
	Method      string
}

// IsPaid reports whether the payment is eligible for submission.
func (r Record) IsPaid() bool { return r.Status == StatusPaid }

// Amount parses the raw amount into an exact decimal. YooKassa renders
// amounts with space thousands separators and a comma decimal mark.
func (r Record) Amount() (decimal.Decimal, error) {
	s := strings.TrimSpace(r.RawAmount)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrBadAmount, r.RawAmount)
	}
	return d, nil
}

// OperationTime converts the raw paid-at timestamp (dd.mm.yyyy hh:mm:ss)
// into the ISO form the API expects, with the fixed offset suffix.
func (r Record) OperationTime() (string, error) {
	t, err := time.Parse(paidAtLayout, strings.TrimSpace(r.RawPaidAt))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrBadDate, r.RawPaidAt)
	}
	return t.Format("2006-01-02T15:04:05") + DefaultTZ, nil
}
