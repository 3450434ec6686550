package indicator

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

const dateLayout = "2006-01-02"

// Account class prefixes of the French chart of accounts.
var (
	IncomePrefixes  = []string{"70", "71", "72", "73", "74", "75", "76", "77", "78", "79"}
	ExpensePrefixes = []string{"60", "61", "62", "63", "64", "65", "66", "67", "68", "69"}
)

// BalanceSum returns the summed balance of posted lines of companyID whose
// account code starts with any of prefixes, dated within [from, to].
func BalanceSum(ctx context.Context, inv odoo.Invoker, prefixes []string, companyID int64, from, to time.Time) (decimal.Decimal, error) {
	if len(prefixes) == 0 {
		return decimal.Zero, nil
	}
	codes := make([][]any, len(prefixes))
	for i, p := range prefixes {
		codes[i] = odoo.Cond("account_id.code", "=like", p+"%")
	}
	domain := odoo.And(
		odoo.Where(
			odoo.Cond("move_id.state", "=", "posted"),
			odoo.Cond("company_id", "=", companyID),
			odoo.Cond("date", ">=", from.Format(dateLayout)),
			odoo.Cond("date", "<=", to.Format(dateLayout)),
		),
		odoo.AnyOf(codes...),
	)

	res, err := odoo.ReadGroup(ctx, inv, "account.move.line", domain, []string{"balance"}, nil)
	if err != nil {
		return decimal.Zero, eris.Wrap(err, "indicator: balance sum")
	}
	return decimalOf(res.Get("0.balance")), nil
}

// YearToDate returns the period from January 1st of now's year to now, in
// now's location.
func YearToDate(now time.Time) (time.Time, time.Time) {
	return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location()), now
}
