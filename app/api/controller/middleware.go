package controller

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/modes"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withTiming observes the duration of every query operation, labelled with
// the route template, resolved mode and guessed request origin.
func (c *Controller) withTiming(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		q := r.URL.Query()
		metrics.ObserveRequest(time.Since(start),
			r.Method,
			route,
			strconv.Itoa(rec.status),
			originOf(r),
			modes.Resolve(q.Get("mode"), q.Get("m")).String())
	})
}

// originOf classifies who is calling: browsers set a referer or a
// Mozilla-prefixed agent, the known bots identify themselves by user agent.
func originOf(r *http.Request) string {
	if r.Header.Get("Referer") != "" {
		return "browser"
	}
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		return "other"
	}
	if strings.HasPrefix(ua, "Mozilla") {
		return "browser"
	}
	switch ua {
	case "flowabot":
		return "flowabot"
	case "bathbot-client":
		return "bathbot"
	case "axios/0.27.2":
		// osu-tracker sends no custom headers; its axios version is the
		// only way to tell it apart.
		return "osu-tracker"
	default:
		return "other"
	}
}
