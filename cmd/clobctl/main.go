// Command clobctl is a line-oriented TCP client for clobd's control
// server, covering LIMIT, CANCEL, CANCELCID, PRUNE, MASSCANCEL, PAUSE, and
// RESUME, and accepting human-typed decimal prices ("101.50") converted to
// FP32 via shopspring/decimal instead of requiring the caller to do FP32
// math by hand.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Bonfida/agnostic-orderbook/internal/fp"
)

const q32Shift = 32

func priceToFP32(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	scale := new(big.Int).Lsh(big.NewInt(1), q32Shift)
	scaled := d.Mul(decimal.NewFromBigInt(scale, 0))
	if scaled.IsNegative() {
		return 0, fmt.Errorf("price %q is negative", s)
	}
	return scaled.BigInt().Uint64(), nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "clobd control server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("connected to", *addr, "- type HELP for commands")
	connReader := bufio.NewReader(conn)
	stdin := bufio.NewScanner(os.Stdin)

	for stdin.Scan() {
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "QUIT" {
			return
		}
		if line == "HELP" {
			printHelp()
			continue
		}
		if err := translateAndSend(conn, line); err != nil {
			fmt.Println("error:", err)
			continue
		}
		reply, err := connReader.ReadString('\n')
		if err != nil {
			fmt.Println("connection closed:", err)
			return
		}
		fmt.Print(reply)
	}
}

func printHelp() {
	fmt.Println(`commands:
  buy  <price> <qty> <cb>           post/match a bid at a human decimal price
  sell <price> <qty> <cb>           post/match an ask at a human decimal price
  CANCEL <hi> <lo>                  cancel by 128-bit order key
  CANCELCID <side> <cb>             cancel by client id (0=bid, 1=ask)
  PRUNE <side> <cb> <limit>         prune an owner's resting orders
  CONSUME <n>                       drain n events, pay the cranker
  MASSCANCEL <hi,lo;hi,lo;...>      cancel a batch of order ids at once
  PAUSE                             halt matching (market-authority gated)
  RESUME <match_limit>              resolve a paused book's cross, in batches
  QUIT                              disconnect`)
}

// translateAndSend converts clobctl's human-facing command vocabulary
// into the wire-compatible lines the control server parses.
func translateAndSend(conn net.Conn, line string) error {
	fields := strings.Fields(line)
	switch strings.ToLower(fields[0]) {
	case "buy", "sell":
		if len(fields) < 4 {
			return fmt.Errorf("usage: %s <price> <qty> <cb>", fields[0])
		}
		price, err := priceToFP32(fields[1])
		if err != nil {
			return err
		}
		qty := fields[2]
		side := 0
		if strings.ToLower(fields[0]) == "sell" {
			side = 1
		}
		maxQuote := fp.MulCeil(mustParseUint(qty), price) * 2 // generous headroom so the order isn't quote-starved
		_, err = fmt.Fprintf(conn, "LIMIT %d %d %s %d 10 1 0 1 %s\n", side, price, qty, maxQuote, fields[3])
		return err
	default:
		_, err := fmt.Fprintln(conn, line)
		return err
	}
}

func mustParseUint(s string) uint64 {
	var v uint64
	fmt.Sscanf(s, "%d", &v)
	return v
}
