package controller

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rankline/scorerank/pkg/modes"
	"github.com/rankline/scorerank/pkg/query"
)

const maxBatchUsers = 100

// HandleUsers returns one enriched result per referenced user. References
// are resolved as user ids unless s=username; an optional comma-aligned
// score parameter substitutes a hypothetical score per position.
// GET /u/{users}?mode=...&m=...&s=user_id|username&score=...
func (c *Controller) HandleUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := modes.Resolve(q.Get("mode"), q.Get("m"))

	users := strings.Split(mux.Vars(r)["users"], ",")
	if len(users) > maxBatchUsers {
		writeError(w, http.StatusBadRequest, "Too many users. Max limit is 100.")
		return
	}

	var scores []string
	if v := q.Get("score"); v != "" {
		scores = strings.Split(v, ",")
	}

	by := query.ByUserID
	if q.Get("s") == "username" {
		by = query.ByUsername
	}

	results := make([]wireUserEntry, 0, len(users))
	for i, ref := range users {
		var hypothetical *int64
		if i < len(scores) && scores[i] != "" {
			n, err := strconv.ParseInt(scores[i], 10, 64)
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid Score")
				return
			}
			hypothetical = &n
		}

		u, err := c.App.Query.LookupByUser(r.Context(), mode, ref, by, hypothetical)
		if errors.Is(err, query.ErrUnknownUser) {
			writeError(w, http.StatusBadRequest, "Invalid User")
			return
		}
		if err != nil {
			c.App.Logger.Error("user lookup failed", zap.String("ref", ref), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}

		results = append(results, toWireUserEntry(u))
	}

	writeJSON(w, http.StatusOK, results)
}
