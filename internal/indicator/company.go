package indicator

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"

	"github.com/lpde-tools/ledger-indicators/pkg/odoo"
)

// DefaultCompanyID is used when the API user's company cannot be read.
const DefaultCompanyID int64 = 1

// ResolveCompanyID reads the active company of user uid. On any failure it
// returns DefaultCompanyID together with the error.
func ResolveCompanyID(ctx context.Context, inv odoo.Invoker, uid int64) (int64, error) {
	res, err := odoo.Read(ctx, inv, "res.users", []int64{uid}, []string{"company_id"})
	if err != nil {
		return DefaultCompanyID, err
	}
	v := res.Get("0.company_id.0")
	if v.Type != gjson.Number || v.Int() <= 0 {
		return DefaultCompanyID, eris.New("indicator: user has no company")
	}
	return v.Int(), nil
}
