package main

import (
	"log"

	"offline-chat/internal/app"
)

func main() {
	cfg := app.LoadConfig()
	a, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("chatd init: %v", err)
	}
	if err := a.Start(); err != nil {
		log.Fatalf("chatd start: %v", err)
	}
	app.WaitForShutdown(a)
}
