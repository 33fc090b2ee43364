package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Netflix/go-env"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/anonchat/modules/broadcast"
	"github.com/example/anonchat/modules/identity"
	"github.com/example/anonchat/modules/rooms"
	"github.com/example/anonchat/modules/wsserver"
)

func main() {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(config.ShutdownTimeout),
		mono.WithLogLevel(logLevel(config.LogLevel)),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	roomsModule := rooms.NewModule(app.Logger(), config.SweepInterval, config.IdleRoomMaxAge)
	identityModule := identity.NewModule(app.Logger(), config.DisconnectGrace, roomsModule)
	broadcastModule := broadcast.NewModule(app.Logger())

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	serverModule := wsserver.NewModule(addr, config.CorsAllowedOrigins, roomsModule, identityModule, app.Logger())

	// The hub is not exposed through the service container, so it is
	// injected by hand before registration.
	serverModule.SetHub(broadcastModule.Hub())

	// Order: emitters before consumers, the server surface last.
	app.Register(roomsModule)
	app.Register(identityModule)
	app.Register(broadcastModule)
	app.Register(serverModule)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	log.Printf("Chat server listening on %s (ws://%s/ws)", addr, addr)

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

// logLevel maps the LOG_LEVEL setting onto the framework levels;
// unrecognized values fall back to info.
func logLevel(s string) mono.LogLevel {
	switch s {
	case "debug":
		return mono.LogLevelDebug
	case "warn":
		return mono.LogLevelWarn
	case "error":
		return mono.LogLevelError
	default:
		return mono.LogLevelInfo
	}
}
