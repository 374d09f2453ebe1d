package main

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
)

// rng is a xorshift PRNG: fast, deterministic, good enough for demo load
// rather than for cryptography.
var rng uint64 = 1755956219406641000

func fastRand() uint32 {
	rng ^= rng << 13
	rng ^= rng >> 7
	rng ^= rng << 17
	return uint32(rng)
}

// runFuzzTraffic drives synthetic order flow against the control server's
// text protocol over TCP, for exercising clobd without a live client.
func runFuzzTraffic(addr string, log *zap.Logger) {
	time.Sleep(200 * time.Millisecond) // let the listener come up
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Error("fuzz traffic dial failed", zap.Error(err))
		return
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	const n = 10_000
	for i := 0; i < n; i++ {
		side := fastRand() % 2
		price := uint64(100 + fastRand()%200)
		qty := uint64(fastRand()%1000 + 1)
		fmt.Fprintf(conn, "LIMIT %d %d %d 1000000 10 1 0 1 cb%d\n", side, price, qty, i%16)
		if _, err := reader.ReadString('\n'); err != nil {
			log.Warn("fuzz traffic read failed", zap.Error(err))
			return
		}
	}
	log.Info("fuzz traffic complete", zap.Int("orders", n))
}
