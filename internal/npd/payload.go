package npd

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ragimov700/yookassa-to-npd/internal/ingest"
)

const (
	// IncomeTypeIndividual marks income received from a private person.
	IncomeTypeIndividual = "FROM_INDIVIDUAL"
	// PaymentTypeCash is the payment type used for YooKassa imports.
	PaymentTypeCash = "CASH"
)

// Payload is the body of one income registration request.
type Payload struct {
	OperationTime                   string       `json:"operationTime"`
	RequestTime                     string       `json:"requestTime"`
	Services                        []ServiceRow `json:"services"`
	TotalAmount                     string       `json:"totalAmount"`
	Client                          ClientInfo   `json:"client"`
	PaymentType                     string       `json:"paymentType"`
	IgnoreMaxTotalIncomeRestriction bool         `json:"ignoreMaxTotalIncomeRestriction"`
}

// ServiceRow is a single service line; imports always use quantity 1.
type ServiceRow struct {
	Name     string      `json:"name"`
	Amount   json.Number `json:"amount"`
	Quantity int         `json:"quantity"`
}

// ClientInfo identifies the payer. For anonymous individual income every
// field stays null and only IncomeType is set.
type ClientInfo struct {
	ContactPhone *string `json:"contactPhone"`
	DisplayName  *string `json:"displayName"`
	INN          *string `json:"inn"`
	IncomeType   string  `json:"incomeType"`
}

// BuildPayload assembles the request body for one record. The API wants
// integral amounts without a fractional part ("500", never "500.0"), so
// the decimal's canonical string is used for both the service line and
// totalAmount. requestTime is the wall clock at build time; the payload is
// built once per record and reused unmodified across retries.
func BuildPayload(operationTime, serviceName string, amount decimal.Decimal, paymentType string, now time.Time) Payload {
	value := amount.String()
	if amount.IsInteger() {
		// "500,00" must serialize as "500", never "500.00".
		value = amount.Truncate(0).String()
	}
	return Payload{
		OperationTime: operationTime,
		RequestTime:   now.Format("2006-01-02T15:04:05") + ingest.DefaultTZ,
		Services: []ServiceRow{
			{Name: serviceName, Amount: json.Number(value), Quantity: 1},
		},
		TotalAmount: value,
		Client:      ClientInfo{IncomeType: IncomeTypeIndividual},
		PaymentType: paymentType,
	}
}
