// Package banner prints the startup banner and a summary of the effective
// configuration: ASCII art, then a listen/config block, then a
// quick-checks section.
package banner

import (
	"fmt"

	"melonsync/pkg/config"
)

const art = `
 __  __ ______ _      ____  _   _  _______     ___   _  _____
|  \/  |  ____| |    / __ \| \ | |/ ____\ \   / / \ | |/ ____|
| \  / | |__  | |   | |  | |  \| | (___  \ \_/ /|  \| | |
| |\/| |  __| | |   | |  | | . ' |\___ \  \   / | . ' | |
| |  | | |____| |___| |__| | |\  |____) |  | |  | |\  | |____
|_|  |_|______|______\____/|_| \_|_____/   |_|  |_| \_|\_____|
`

// Print writes the banner and a summary of cfg to stdout.
func Print(cfg *config.Config, version string) {
	fmt.Print(art)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Admin addr:   %s\n", cfg.Admin.Address)
	fmt.Printf("Store path:   %s\n", cfg.Store.Path)
	fmt.Printf("Write limit:  %d\n", cfg.Store.WriteLimit)
	if version != "" {
		fmt.Printf("Version:      %s\n", version)
	}

	fmt.Println("\n== Vacuum =====================================================")
	if cfg.Vacuum.Enabled {
		fmt.Printf("- enabled (cron=%s)\n", cfg.Vacuum.Cron)
	} else {
		fmt.Println("- disabled")
	}

	fmt.Println("\n== Rate limit =================================================")
	fmt.Printf("- %.1f req/s, burst %d per sync context\n", cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /healthz")
	fmt.Println("GET  /readyz")
	fmt.Println("GET  /metrics")
	fmt.Println("GET  /debug/roots/{handle}")
	fmt.Println("GET  /debug/roots/{handle}/batches")
	fmt.Println("GET  /docs/ - Swagger UI")

	fmt.Println("\n== Production? =================================================")
	if cfg.Store.WriteLimit <= 1 {
		fmt.Println("- Write limit: MISCONFIGURED")
	} else {
		fmt.Println("- Write limit: OK")
	}
	if cfg.Admin.Address == "" {
		fmt.Println("- Admin address: MISSING")
	} else {
		fmt.Println("- Admin address: OK")
	}
}
