package main

import (
	"log"
	"net/http"

	"resultzone/internal/api"
	"resultzone/internal/config"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	h := api.NewServer(cfg)
	log.Printf("resultzone api listening on %s queue=%s max_upload_mb=%d", cfg.APIAddr, cfg.TemporalTaskQueue, cfg.MaxUploadMB)
	if err := http.ListenAndServe(cfg.APIAddr, h.Routes()); err != nil {
		log.Fatal(err)
	}
}
