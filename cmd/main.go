// Command dialogue-gateway serves the persona chat API.
//
// Usage:
//
//	dialogue-gateway [serve] [--config gateway.yaml] [--env-file .env] [--debug]
//	dialogue-gateway modes
//	dialogue-gateway classify "なぜ火星に行くべきなのか"
//	dialogue-gateway version
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
