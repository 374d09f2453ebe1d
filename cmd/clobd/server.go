package main

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/fp"
	"github.com/Bonfida/agnostic-orderbook/internal/market"
	"github.com/Bonfida/agnostic-orderbook/internal/matching"
)

func keyOf(hi, lo uint64) fp.Key { return fp.Key{Hi: hi, Lo: lo} }

// controlServer reads line-oriented commands from each connection, one
// command per line, covering new order, cancel, cancel-by-client-id, prune,
// consume events, mass cancel, and pause/resume matching. Disabling and
// closing the market have no command here.
type controlServer struct {
	host      *host
	log       *zap.Logger
	listener  net.Listener
	clientsMu sync.RWMutex
	clients   map[uint64]net.Conn
	nextConn  uint64
}

func newControlServer(h *host, log *zap.Logger, addr string) (*controlServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on control addr %s: %w", addr, err)
	}
	return &controlServer{host: h, log: log, listener: ln, clients: make(map[uint64]net.Conn)}, nil
}

func (s *controlServer) Start() {
	s.log.Info("control server started", zap.String("addr", s.listener.Addr().String()))
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			continue
		}
		id := s.addClient(conn)
		go s.handleClient(conn, id)
	}
}

func (s *controlServer) addClient(conn net.Conn) uint64 {
	s.clientsMu.Lock()
	id := s.nextConn
	s.nextConn++
	s.clients[id] = conn
	s.clientsMu.Unlock()
	return id
}

func (s *controlServer) delClient(id uint64) {
	s.clientsMu.Lock()
	conn, ok := s.clients[id]
	delete(s.clients, id)
	s.clientsMu.Unlock()
	if ok {
		conn.Close()
	}
}

func (s *controlServer) handleClient(conn net.Conn, id uint64) {
	defer s.delClient(id)
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		reply := s.dispatch(strings.Fields(scanner.Text()))
		fmt.Fprintln(conn, reply)
	}
}

// dispatch parses one command line and drives the engine. Commands:
//
//	LIMIT side price max_base max_quote match_limit self_trade post_only post_allowed cb_hex
//	CANCEL price_hi price_lo
//	CANCELCID side client_id_hex
//	PRUNE side client_id_hex limit
//	CONSUME n
//	MASSCANCEL price_hi,price_lo;price_hi,price_lo;...
//	PAUSE
//	RESUME match_limit
func (s *controlServer) dispatch(parts []string) string {
	if len(parts) == 0 {
		return "ERR empty"
	}
	switch parts[0] {
	case "LIMIT":
		return s.cmdLimit(parts[1:])
	case "CANCEL":
		return s.cmdCancel(parts[1:])
	case "CANCELCID":
		return s.cmdCancelByClientID(parts[1:])
	case "PRUNE":
		return s.cmdPrune(parts[1:])
	case "CONSUME":
		return s.cmdConsume(parts[1:])
	case "MASSCANCEL":
		return s.cmdMassCancel(parts[1:])
	case "PAUSE":
		return s.cmdPauseMatching()
	case "RESUME":
		return s.cmdResumeMatching(parts[1:])
	default:
		return "ERR unknown command"
	}
}

func (s *controlServer) cmdLimit(a []string) string {
	if len(a) < 9 {
		return "ERR LIMIT needs 9 fields"
	}
	sideN, _ := strconv.Atoi(a[0])
	price, _ := strconv.ParseUint(a[1], 10, 64)
	maxBase, _ := strconv.ParseUint(a[2], 10, 64)
	maxQuote, _ := strconv.ParseUint(a[3], 10, 64)
	matchLimit, _ := strconv.ParseUint(a[4], 10, 64)
	selfTrade, _ := strconv.Atoi(a[5])
	postOnly := a[6] == "1"
	postAllowed := a[7] == "1"
	cb := []byte(a[8])

	start := time.Now()
	res, err := market.NewOrder(s.host.regions(), s.host.state(), s.host.callerAuthority, market.NewOrderParams{
		Side:              eventqueue.Side(sideN),
		LimitPrice:        price,
		MaxBaseQty:        maxBase,
		MaxQuoteQty:       maxQuote,
		MatchLimit:        matchLimit,
		CallbackInfo:      cb,
		PostOnly:          postOnly,
		PostAllowed:       postAllowed,
		SelfTradeBehavior: matching.SelfTradeBehavior(selfTrade),
	})
	s.host.metrics.matchLatencyNS.Observe(float64(time.Since(start).Nanoseconds()))
	if err != nil {
		s.host.metrics.instructionsErr.WithLabelValues(err.Error()).Inc()
		return "ERR " + err.Error()
	}
	s.host.metrics.fillsEmitted.Add(float64(countFillsHint(res)))
	s.host.broadcastDepth()
	return fmt.Sprintf("OK posted=%v base_consumed=%d quote_consumed=%d base_posted=%d",
		res.Posted, res.TotalBaseConsumed, res.TotalQuoteConsumed, res.TotalBasePosted)
}

// countFillsHint approximates the number of Fill events a NewOrder call
// produced from its aggregate result, for the fills_emitted counter — the
// exact count lives in the event queue itself, which the cranker drains
// independently via CONSUME.
func countFillsHint(res matching.Result) int {
	if res.TotalBaseConsumed == 0 {
		return 0
	}
	return 1
}

func (s *controlServer) cmdCancel(a []string) string {
	if len(a) < 2 {
		return "ERR CANCEL needs 2 fields"
	}
	hi, _ := strconv.ParseUint(a[0], 10, 64)
	lo, _ := strconv.ParseUint(a[1], 10, 64)
	out, err := market.CancelOrder(s.host.regions(), keyOf(hi, lo))
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.broadcastDepth()
	return fmt.Sprintf("OK base=%d", out.BaseSize)
}

func (s *controlServer) cmdCancelByClientID(a []string) string {
	if len(a) < 2 {
		return "ERR CANCELCID needs 2 fields"
	}
	sideN, _ := strconv.Atoi(a[0])
	cid := []byte(a[1])
	st := s.host.state()
	out, err := market.CancelOrderByClientID(s.host.regions(), eventqueue.Side(sideN), cid, int(st.CallbackIDLen))
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.broadcastDepth()
	return fmt.Sprintf("OK base=%d", out.BaseSize)
}

func (s *controlServer) cmdPrune(a []string) string {
	if len(a) < 3 {
		return "ERR PRUNE needs 3 fields"
	}
	sideN, _ := strconv.Atoi(a[0])
	cid := []byte(a[1])
	limit, _ := strconv.ParseUint(a[2], 10, 16)
	st := s.host.state()
	n, err := market.Prune(s.host.regions(), eventqueue.Side(sideN), cid, int(st.CallbackIDLen), uint16(limit))
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.broadcastDepth()
	return fmt.Sprintf("OK pruned=%d", n)
}

func (s *controlServer) cmdMassCancel(a []string) string {
	if len(a) < 1 {
		return "ERR MASSCANCEL needs 1 field"
	}
	var keys []fp.Key
	for _, pair := range strings.Split(a[0], ";") {
		hl := strings.Split(pair, ",")
		if len(hl) != 2 {
			return "ERR malformed order id " + pair
		}
		hi, _ := strconv.ParseUint(hl[0], 10, 64)
		lo, _ := strconv.ParseUint(hl[1], 10, 64)
		keys = append(keys, keyOf(hi, lo))
	}
	base, quote, err := market.MassCancelOrders(s.host.regions(), keys)
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.broadcastDepth()
	return fmt.Sprintf("OK base=%d quote=%d", base, quote)
}

func (s *controlServer) cmdPauseMatching() string {
	if err := market.PauseMatching(s.host.marketBuf, s.host.marketAuthority); err != nil {
		return "ERR " + err.Error()
	}
	return "OK paused"
}

func (s *controlServer) cmdResumeMatching(a []string) string {
	if len(a) < 1 {
		return "ERR RESUME needs 1 field"
	}
	matchLimit, _ := strconv.ParseUint(a[0], 10, 64)
	completed, err := market.ResumeMatching(s.host.regions(), s.host.marketAuthority, matchLimit)
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.broadcastDepth()
	return fmt.Sprintf("OK completed=%v", completed)
}

func (s *controlServer) cmdConsume(a []string) string {
	if len(a) < 1 {
		return "ERR CONSUME needs 1 field"
	}
	n, _ := strconv.ParseUint(a[0], 10, 64)
	popped, err := market.ConsumeEvents(s.host.marketBuf, s.host.eq, n)
	if err != nil {
		return "ERR " + err.Error()
	}
	s.host.metrics.eventsConsumed.Add(float64(popped))
	s.host.metrics.queueDepth.Set(float64(s.host.eq.Count()))
	if s.host.ledger != nil {
		reward := s.host.state().CrankerReward * popped
		if err := s.host.ledger.RecordConsume(s.host.ctx, s.host.marketName, popped, reward, "clobctl", time.Now().Unix()); err != nil {
			s.log.Warn("audit record failed", zap.Error(err))
		}
	}
	return fmt.Sprintf("OK popped=%d", popped)
}
