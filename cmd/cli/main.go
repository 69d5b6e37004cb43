package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/bantx/internal/client/cli"
	"github.com/dmitrijs2005/bantx/internal/client/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx, os.Args[1:]); err != nil {
		os.Exit(1)
	}

}
