package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/torosent/relayload/internal/relaystub"
)

func main() {
	port := flag.Int("port", 5000, "Listening port")
	delay := flag.Duration("delay", 2*time.Second, "Simulated upstream latency per relayed call")
	timeout := flag.Duration("upstream-timeout", 30*time.Second, "Fail relayed calls slower than this with 504 (0 = never)")
	workers := flag.Int("workers", 4, "Concurrent sync relays before requests queue")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	stub := relaystub.New(relaystub.Options{
		UpstreamDelay:   *delay,
		UpstreamTimeout: *timeout,
		Workers:         *workers,
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("relay stub listening on %s (delay %s, %d sync workers)", addr, *delay, *workers)
	log.Fatal(http.ListenAndServe(addr, stub.Handler()))
}
