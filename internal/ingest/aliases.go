package ingest

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Logical fields resolved from the header row. YooKassa exports localized
// headers; API-style exports of the same data use the generic names.
type field int

const (
	fieldPaymentID field = iota
	fieldStatus
	fieldPaidAt
	fieldAmount
	fieldDescription
	fieldMethod
)

// Aliases are tried in order; the first case-insensitive match wins.
var fieldAliases = map[field][]string{
	fieldPaymentID:   {"Идентификатор платежа", "payment_id", "id"},
	fieldStatus:      {"Статус платежа", "payment_status", "status"},
	fieldPaidAt:      {"Дата платежа", "payment_date", "paid_at"},
	fieldAmount:      {"Сумма платежа", "payment_amount", "amount"},
	fieldDescription: {"Описание заказа", "order_description", "description"},
	fieldMethod:      {"Метод платежа", "payment_method", "method"},
}

// resolveColumn returns the index of the first header matching an alias,
// or -1 when the field is absent.
func resolveColumn(headers []string, f field) int {
	for _, alias := range fieldAliases[f] {
		for i, h := range headers {
			if strings.EqualFold(h, alias) {
				return i
			}
		}
	}
	return -1
}

// suggestHeader finds the observed header closest to any alias of f, for
// "did you mean" hints when a required column is missing. Returns "" when
// nothing is within a distance of 2.
func suggestHeader(headers []string, f field) string {
	best, bestDist := "", 3
	for _, alias := range fieldAliases[f] {
		for _, h := range headers {
			d := levenshtein.ComputeDistance(strings.ToLower(h), strings.ToLower(alias))
			if d < bestDist {
				best, bestDist = h, d
			}
		}
	}
	return best
}
