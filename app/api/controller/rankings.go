package controller

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/modes"
)

// HandleRankings returns one 50-entry leaderboard page as a mapping of
// local position ("0".."49") to enriched entry. Pages outside [1,200]
// default to 1.
// GET /rankings?page=1..200&mode=...&m=...
func (c *Controller) HandleRankings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := modes.Resolve(q.Get("mode"), q.Get("m"))

	page := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil {
		page = n
	}

	rows, err := c.App.Query.PageRankings(r.Context(), mode, page)
	if err != nil {
		c.App.Logger.Error("rankings page failed", zap.Int("page", page), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	lb := make(map[string]wireEntry, len(rows))
	for i := range rows {
		lb[strconv.Itoa(i)] = toWireEntry(&rows[i])
	}
	writeJSON(w, http.StatusOK, lb)
}
