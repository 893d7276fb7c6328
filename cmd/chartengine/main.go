// chartengine serves live charts built from the Redis bar feed and replays
// stored bars for backtests.
//
// Usage:
//
//	chartengine serve --config config.yaml
//	chartengine backtest --speed=100 --from=2026-01-02 --series=NSE:2885
package main

import (
	"log"
)

func main() {
	if err := Execute(); err != nil {
		log.Fatalf("chartengine: %v", err)
	}
}
