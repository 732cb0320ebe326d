package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/user"
)

var orderingParam = "ordering"

// Ordering binds the `ordering` query param, eg. `?ordering=-createdAt,id`.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrdering(val, user.Orderable)
}
