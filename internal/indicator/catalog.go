package indicator

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// VAT periodicity labels.
const VATNotSet = "not set"

var vatLabels = map[string]string{
	"monthly":   "Monthly",
	"quarterly": "Quarterly",
	"yearly":    "Yearly",
}

const (
	moveLine = "account.move.line"
	posted   = "posted"
)

// DefaultCatalog returns the fixed set of remote indicators, in extraction
// order. The server version is not part of it; it comes from the handshake.
func DefaultCatalog() *Registry {
	r, err := NewRegistry(
		NewExtractor(NameAnnualClosingDate, annualClosingDate),
		NewExtractor(NameOperationsToQualify, operationsToQualify),
		NewExtractor(NamePurchasesToProcess, purchasesToProcess),
		NewExtractor(NameOrphanPayments, orphanPayments),
		NewExtractor(NameUnreconciledTransfers, unreconciledTransfers),
		NewExtractor(NameEncashmentPivot, encashmentPivot),
		NewExtractor(NameLastFiscalLockDate, lastFiscalLockDate),
		NewExtractor(NameTransferBalance, transferBalance),
		NewExtractor(NameVATPeriodicity, vatPeriodicity),
		NewExtractor(NameCustomModels, customModels),
		NewExtractor(NameAutomatedActions, automatedActions),
		NewExtractor(NameActiveUsers, activeUsers),
		NewExtractor(NameStaffDomainUsers, staffDomainUsers),
		NewExtractor(NameActiveApplications, activeApplications),
		NewExtractor(NameActivationDate, activationDate),
		NewExtractor(NameProvisionalResult, provisionalResult),
	)
	if err != nil {
		panic(err)
	}
	return r
}

func count(ctx context.Context, ec *Context, model string, domain odoo.Domain) (string, bool, error) {
	n, err := odoo.SearchCount(ctx, ec.Session, model, domain)
	if err != nil {
		return "", false, err
	}
	return FormatCount(n), true, nil
}

func annualClosingDate(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.Read(ctx, ec.Session, "res.company", []int64{ec.CompanyID},
		[]string{"fiscalyear_last_day", "fiscalyear_last_month"})
	if err != nil {
		return "", false, err
	}
	day, okDay := positiveInt(res.Get("0.fiscalyear_last_day"))
	month, okMonth := positiveInt(res.Get("0.fiscalyear_last_month"))
	if !okDay || !okMonth || day > 31 || month > 12 {
		return "", false, nil
	}
	return fmt.Sprintf("%02d/%02d", day, month), true, nil
}

func operationsToQualify(ctx context.Context, ec *Context) (string, bool, error) {
	// Upper bound also covers 4755 bank operations awaiting validation.
	return count(ctx, ec, moveLine, odoo.Where(
		odoo.Cond("account_id.code", ">=", "47%"),
		odoo.Cond("account_id.code", "<=", "475%"),
		odoo.Cond("full_reconcile_id", "=", false),
		odoo.Cond("move_id.state", "=", posted),
	))
}

func journals(ctx context.Context, ec *Context, kind string) ([]int64, error) {
	return odoo.Search(ctx, ec.Session, "account.journal", odoo.Where(
		odoo.Cond("type", "=", kind),
		odoo.Cond("company_id", "=", ec.CompanyID),
	), nil)
}

func purchasesToProcess(ctx context.Context, ec *Context) (string, bool, error) {
	ids, err := journals(ctx, ec, "purchase")
	if err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return FormatCount(0), true, nil
	}
	return count(ctx, ec, "account.move", odoo.Where(
		odoo.Cond("journal_id", "in", ids),
		odoo.Cond("state", "=", "draft"),
		odoo.Cond("move_type", "=", "in_invoice"),
	))
}

func orphanPayments(ctx context.Context, ec *Context) (string, bool, error) {
	ids, err := journals(ctx, ec, "bank")
	if err != nil {
		return "", false, err
	}
	if len(ids) == 0 {
		return FormatCount(0), true, nil
	}

	var total int64
	// 40: suppliers, 41: customers.
	for _, prefix := range []string{"40%", "41%"} {
		n, err := odoo.SearchCount(ctx, ec.Session, moveLine, odoo.Where(
			odoo.Cond("journal_id", "in", ids),
			odoo.Cond("account_id.code", "=like", prefix),
			odoo.Cond("full_reconcile_id", "=", false),
			odoo.Cond("move_id.state", "=", posted),
		))
		if err != nil {
			return "", false, err
		}
		total += n
	}
	return FormatCount(total), true, nil
}

func unreconciledTransfers(ctx context.Context, ec *Context) (string, bool, error) {
	return count(ctx, ec, moveLine, odoo.Where(
		odoo.Cond("account_id.code", "=like", "58%"),
		odoo.Cond("full_reconcile_id", "=", false),
		odoo.Cond("move_id.state", "=", posted),
	))
}

func encashmentPivot(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.SearchRead(ctx, ec.Session, moveLine, odoo.Where(
		odoo.Cond("account_id.code", "=like", "478%"),
		odoo.Cond("move_id.state", "=", posted),
	), map[string]any{"fields": []string{"debit", "credit"}})
	if err != nil {
		return "", false, err
	}
	lines, err := res.Records()
	if err != nil {
		return "", false, err
	}
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(decimalOf(l.Get("debit"))).Sub(decimalOf(l.Get("credit")))
	}
	return FormatMoney(sum), true, nil
}

func lastFiscalLockDate(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.SearchRead(ctx, ec.Session, "account.change.lock.date", odoo.All(),
		map[string]any{"fields": []string{"fiscalyear_lock_date"}, "limit": 1})
	if err != nil {
		return "", false, err
	}
	v := res.Get("0.fiscalyear_lock_date")
	if v.Type != gjson.String || v.Str == "" {
		return "", false, nil
	}
	return v.Str, true, nil
}

func transferBalance(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.ReadGroup(ctx, ec.Session, moveLine, odoo.Where(
		odoo.Cond("account_id.code", "=like", "58%"),
		odoo.Cond("move_id.state", "=", posted),
		odoo.Cond("company_id", "=", ec.CompanyID),
	), []string{"balance"}, nil)
	if err != nil {
		return "", false, err
	}
	return FormatMoney(decimalOf(res.Get("0.balance"))), true, nil
}

func vatPeriodicity(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.Read(ctx, ec.Session, "res.company", []int64{ec.CompanyID},
		[]string{"account_tax_periodicity"})
	if err != nil {
		return "", false, err
	}
	v := res.Get("0.account_tax_periodicity")
	if v.Type != gjson.String || v.Str == "" {
		return VATNotSet, true, nil
	}
	if label, ok := vatLabels[v.Str]; ok {
		return label, true, nil
	}
	return v.Str, true, nil
}

func customModels(ctx context.Context, ec *Context) (string, bool, error) {
	prefix := ec.CustomModelPrefix
	if prefix == "" {
		prefix = "x_"
	}
	return count(ctx, ec, "ir.model", odoo.Where(odoo.Cond("model", "=like", prefix+"%")))
}

func automatedActions(ctx context.Context, ec *Context) (string, bool, error) {
	return count(ctx, ec, "ir.actions.server", odoo.All())
}

func activeUsers(ctx context.Context, ec *Context) (string, bool, error) {
	return count(ctx, ec, "res.users", odoo.Where(
		odoo.Cond("active", "=", true),
		odoo.Cond("share", "=", false),
	))
}

func staffDomainUsers(ctx context.Context, ec *Context) (string, bool, error) {
	if ec.StaffEmailDomain == "" {
		return "", false, nil
	}
	return count(ctx, ec, "res.users", odoo.Where(odoo.Cond("login", "=like", "%@"+ec.StaffEmailDomain)))
}

func activeApplications(ctx context.Context, ec *Context) (string, bool, error) {
	return count(ctx, ec, "ir.module.module", odoo.Where(
		odoo.Cond("state", "=", "installed"),
		odoo.Cond("application", "=", true),
	))
}

func activationDate(ctx context.Context, ec *Context) (string, bool, error) {
	res, err := odoo.SearchRead(ctx, ec.Session, "ir.module.module", odoo.All(), map[string]any{
		"fields": []string{"create_date"},
		"limit":  1,
		"order":  "create_date asc",
	})
	if err != nil {
		return "", false, err
	}
	v := res.Get("0.create_date")
	if v.Type != gjson.String || v.Str == "" {
		return "", false, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", v.Str)
	if err != nil {
		// Unexpected layout: keep the raw value.
		return v.Str, true, nil
	}
	return t.Format("02/01/2006"), true, nil
}

func provisionalResult(ctx context.Context, ec *Context) (string, bool, error) {
	income, err := BalanceSum(ctx, ec.Session, IncomePrefixes, ec.CompanyID, ec.From, ec.To)
	if err != nil {
		return "", false, err
	}
	expense, err := BalanceSum(ctx, ec.Session, ExpensePrefixes, ec.CompanyID, ec.From, ec.To)
	if err != nil {
		return "", false, err
	}
	// Income is credit-positive in the ledger.
	return FormatMoney(income.Neg().Sub(expense)), true, nil
}
