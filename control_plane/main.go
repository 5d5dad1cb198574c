package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/nexusvanguard/control-plane/control_plane/config"
)

func main() {
	cfg := config.Load()

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to wire control plane: %v", err)
	}
	log.Printf("✅ Control plane wired (storage=%s, llm_enabled=%v, pulse_enabled=%v)",
		cfg.VanguardStorageMode, cfg.VanguardLLMEnabled, cfg.PulseServiceEnabled)

	if cfg.AdminAPIKey == "" {
		log.Println("⚠️  VANGUARD_ADMIN_API_KEY not set; /vanguard/admin/* will reject every request")
	}

	ctx := context.Background()
	app.Start(ctx)

	if app.singleton != nil {
		log.Println("✅ Singleton lease active; escalation/hysteresis/pulse loops run on whichever node holds it")
	} else {
		log.Println("⚠️  No coordination backend; running escalation/hysteresis/pulse loops in STANDALONE mode")
	}

	fmt.Println("==================================================")
	fmt.Println("NEXUS-VANGUARD CONTROL PLANE")
	fmt.Println("==================================================")
	fmt.Printf("Mode:               %s\n", cfg.VanguardMode)
	fmt.Printf("Default Rate Limit: %d/%s\n", cfg.DefaultRateLimit, cfg.DefaultRateWindow)
	fmt.Printf("Admin Rate Limit:   %d/%s\n", cfg.AdminRateLimit, cfg.AdminRateWindow)
	fmt.Printf("Pulse Poll Interval:%s\n", cfg.PulsePollInterval)
	fmt.Println("==================================================")

	log.Printf("Nexus-Vanguard control plane listening on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, app.Router(cfg.AdminAPIKey)))
}
