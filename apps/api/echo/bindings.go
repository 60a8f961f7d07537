package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

var orderingParam = "ordering"

// Ordering binds "?ordering=name,-created_at" (descending when prefixed by "-").
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field != "" {
			ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
}

