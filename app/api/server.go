package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/rankline/scorerank/app/api/controller"
	"github.com/rankline/scorerank/app/api/types"
	"github.com/rankline/scorerank/pkg/metrics"
	"github.com/rankline/scorerank/pkg/utils"
)

// NewServer builds the API and metrics servers onto the app.
func NewServer(app *types.App) error {
	ctler := controller.NewController(app)
	router, err := ctler.NewRouter()
	if err != nil {
		return err
	}

	// use <ip>:<port> to bind to a specific interface or :<port> to bind to all interfaces
	addr := utils.Env("ADDR", ":3000")
	app.Server = &http.Server{Addr: addr, Handler: router}

	metricsAddr := utils.Env("METRICS_ADDR", ":9100")
	app.Metrics = metrics.Server(metricsAddr)

	app.Logger.Info("Starting server",
		zap.String("addr", addr),
		zap.String("metricsAddr", metricsAddr))
	return nil
}
