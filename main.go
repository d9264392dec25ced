package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/lefinal/spikematch/app"
)

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	config, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := app.NewApp(config).Boot(ctx); err != nil {
		log.Fatalf("boot: %v", err)
	}
}
