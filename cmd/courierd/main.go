package main

import (
	"flag"

	"github.com/joho/godotenv"
	"github.com/lancera/courier/internal/daemon"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (TOML)")
	flag.Parse()

	// missing .env is fine, env vars may come from the environment proper
	_ = godotenv.Load()

	app := fx.New(
		daemon.Module(daemon.Params{ConfigPath: *configFlag}),
	)

	app.Run()
}
