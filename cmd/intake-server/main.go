package main

import (
	"context"
	"log/slog"
	"net/http"

	"datago-harvester/lib/configutil"
	"datago-harvester/lib/serviceutil"
	"datago-harvester/lib/telemetry"
	"datago-harvester/services/intake"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(false)
	config, err := configutil.ReadOrDefault("intake.json5", intake.DefaultConfig())
	if err != nil {
		serviceutil.Fatal("failed to read config", err)
	}

	t, err := telemetry.SetupFromEnv(ctx, "intake-server")
	if err != nil {
		slog.Debug("telemetry not configured, spans go nowhere", "err", err)
	}
	defer t.Shutdown(context.Background())
	telemetry.InstrumentPerfStats(ctx)

	mux := http.NewServeMux()
	intake.NewService(config).Register(mux)
	go serviceutil.StartHttpServer(config.Port, mux)

	<-ctx.Done()
}
