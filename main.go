package main

import (
	"log"

	"csms/internal/config"
	"csms/server"
)

func main() {
	conf, err := config.GetConfig()
	if err != nil {
		log.Fatalf("loading configuration failed: %v", err)
	}
	centralSystem, err := server.NewCentralSystem(conf)
	if err != nil {
		log.Fatalf("central system initialization failed: %v", err)
	}
	centralSystem.Start()
}
