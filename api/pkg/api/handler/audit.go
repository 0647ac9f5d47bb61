package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"

	"github.com/bl-hori/auth-platform-sub003/api/pkg/api/model"
	"github.com/bl-hori/auth-platform-sub003/common/pkg/util"
	"github.com/bl-hori/auth-platform-sub003/db/pkg/db"
	dbmodel "github.com/bl-hori/auth-platform-sub003/db/pkg/db/model"
)

// QueryAuditRecordsHandler is an API handler querying the audit trail
type QueryAuditRecordsHandler struct {
	runner  TxRunner
	records dbmodel.AuditRecordDAO
}

// NewQueryAuditRecordsHandler creates and returns a new handler
func NewQueryAuditRecordsHandler(dbSession *db.Session) QueryAuditRecordsHandler {
	return QueryAuditRecordsHandler{runner: dbSession, records: dbmodel.NewAuditRecordDAO(dbSession)}
}

// Handle answers GET /v1/admin/audit. Query parameters: eventType, from,
// to (RFC 3339) and limit.
func (qah QueryAuditRecordsHandler) Handle(c echo.Context) error {
	p, err := requestPrincipal(c)
	if err != nil {
		return writeError(c, err)
	}

	filter := dbmodel.AuditRecordFilterInput{
		OrganizationID: p.OrganizationID,
		Limit:          cast.ToInt(c.QueryParam("limit")),
	}
	if v := c.QueryParam("eventType"); v != "" {
		filter.EventType = &v
	}
	if v := c.QueryParam("from"); v != "" {
		from, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "from must be an RFC 3339 timestamp")
		}
		filter.From = &from
	}
	if v := c.QueryParam("to"); v != "" {
		to, perr := time.Parse(time.RFC3339, v)
		if perr != nil {
			return util.NewAPIErrorResponse(c, util.KindInvalidRequest, "to must be an RFC 3339 timestamp")
		}
		filter.To = &to
	}

	var records []dbmodel.AuditRecord
	err = qah.runner.RunInTenantTx(c.Request().Context(), func(ctx context.Context, tx *db.Tx) error {
		var qerr error
		records, qerr = qah.records.GetAll(ctx, tx, filter)
		return qerr
	})
	if err != nil {
		return writeError(c, err)
	}

	out := make([]*model.APIAuditRecord, 0, len(records))
	for i := range records {
		out = append(out, model.NewAPIAuditRecord(&records[i]))
	}
	return c.JSON(http.StatusOK, out)
}
