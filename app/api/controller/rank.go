package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/modes"
)

// HandleRank returns the entry holding a 1-indexed rank as a single-element
// array, or the zero sentinel when nobody holds it.
// GET /rank/{rank}?mode=osu|taiko|fruits|mania&m=0..3
func (c *Controller) HandleRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := modes.Resolve(q.Get("mode"), q.Get("m"))

	rank, err := strconv.ParseInt(mux.Vars(r)["rank"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid Rank")
		return
	}

	u, err := c.App.Query.LookupByRank(r.Context(), mode, rank-1)
	if err != nil {
		c.App.Logger.Error("rank lookup failed", zap.Int64("rank", rank), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if u == nil {
		writeJSON(w, http.StatusOK, []sentinelEntry{{}})
		return
	}

	writeJSON(w, http.StatusOK, []wireEntry{toWireEntry(u)})
}
