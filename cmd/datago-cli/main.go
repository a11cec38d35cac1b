package main

import (
	"context"
	"log/slog"

	"datago-harvester/cmd/datago-cli/commands"
	"datago-harvester/lib/serviceutil"
	"datago-harvester/lib/telemetry"
)

func main() {
	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(false)
	t, err := telemetry.SetupFromEnv(ctx, "datago-cli")
	if err != nil {
		slog.Debug("telemetry not configured, spans go nowhere", "err", err)
	}
	defer t.Shutdown(context.Background())

	commands.ExecuteContext(ctx)
}
