// Command clobd is the host harness: it owns the four byte regions of one
// market, decodes control-plane commands, drives internal/market, logs
// structured events, serves Prometheus metrics, persists an audit ledger
// of cranker activity, and broadcasts book-depth snapshots over a websocket
// feed (fill and out events are not broadcast). It loads a matching engine, accepts connections, and drives it
// against one config-defined market.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Bonfida/agnostic-orderbook/internal/audit"
	"github.com/Bonfida/agnostic-orderbook/internal/config"
	"github.com/Bonfida/agnostic-orderbook/internal/eventqueue"
	"github.com/Bonfida/agnostic-orderbook/internal/feed"
	"github.com/Bonfida/agnostic-orderbook/internal/hostio"
	"github.com/Bonfida/agnostic-orderbook/internal/market"
	"github.com/Bonfida/agnostic-orderbook/internal/slab"
)

// host owns the four regions backing one market plus the ambient
// collaborators that sit outside the core: metrics, the audit ledger, and
// the market-data feed. Nothing in internal/slab, internal/eventqueue,
// internal/matching, or internal/market knows this type exists.
type host struct {
	ctx             context.Context
	log             *zap.Logger
	metrics         *metrics
	ledger          *audit.Ledger
	feedHub         *feed.Hub
	marketName      string
	callerAuthority [32]byte
	marketAuthority [32]byte
	marketBuf       []byte
	eq              *eventqueue.Queue
	bids, asks      *slab.Slab
}

func (h *host) regions() market.Regions {
	return market.Regions{Market: h.marketBuf, EventQueue: h.eq, Bids: h.bids, Asks: h.asks}
}

func (h *host) state() market.State {
	st, err := market.Decode(h.marketBuf)
	if err != nil {
		h.log.Fatal("market state decode failed", zap.Error(err))
	}
	return st
}

func (h *host) broadcastDepth() {
	if h.feedHub == nil {
		return
	}
	depth := feed.DepthJSON{}
	h.bids.Walk(false, func(hd slab.Handle) bool {
		leaf := h.bids.Leaf(hd)
		depth.Bids = append(depth.Bids, feed.DepthLevel{Price: leaf.Key.PriceOf(true), Size: leaf.BaseQty})
		return len(depth.Bids) < 10
	})
	h.asks.Walk(true, func(hd slab.Handle) bool {
		leaf := h.asks.Leaf(hd)
		depth.Asks = append(depth.Asks, feed.DepthLevel{Price: leaf.Key.PriceOf(false), Size: leaf.BaseQty})
		return len(depth.Asks) < 10
	})
	h.feedHub.Broadcast(feed.Event{Kind: "depth", Depth: depth})
}

func main() {
	configPath := flag.String("config", "clobd.yaml", "path to market config")
	fuzzTraffic := flag.Bool("fuzz", false, "generate synthetic demo traffic against the control server")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("config load failed", zap.Error(errors.Wrap(err, "load clobd config")))
	}

	callerAuthority, err := hostio.NewIdentity()
	if err != nil {
		logger.Fatal("identity generation failed", zap.Error(err))
	}
	marketAuthority, err := hostio.NewIdentity()
	if err != nil {
		logger.Fatal("identity generation failed", zap.Error(err))
	}

	cbInfoLen := int(cfg.Market.CallbackInfoLen)
	marketBuf := make([]byte, market.StateLen)
	eqBuf := make([]byte, eventqueue.RegionLen(cfg.Market.EventQueueCapacity, cbInfoLen))
	bidsBuf := make([]byte, slab.RegionLen(cfg.Market.BidsCapacity, cbInfoLen))
	asksBuf := make([]byte, slab.RegionLen(cfg.Market.AsksCapacity, cbInfoLen))

	eq, bids, asks, err := market.CreateMarket(marketBuf, eqBuf, bidsBuf, asksBuf, market.CreateMarketParams{
		CallerAuthority:    callerAuthority,
		MarketAuthority:    marketAuthority,
		HasMarketAuthority: cfg.Market.Permissioned,
		CallbackIDLen:      cfg.Market.CallbackIDLen,
		CallbackInfoLen:    cfg.Market.CallbackInfoLen,
		MinBaseOrderSize:   cfg.Market.MinBaseOrderSize,
		TickSize:           cfg.Market.TickSize,
		CrankerReward:      cfg.Market.CrankerReward,
	})
	if err != nil {
		logger.Fatal("create market failed", zap.Error(errors.Wrap(err, "bootstrap market")))
	}

	h := &host{
		ctx:             context.Background(),
		log:             logger,
		metrics:         newMetrics("clobd"),
		marketName:      cfg.Market.Name,
		callerAuthority: callerAuthority,
		marketAuthority: marketAuthority,
		marketBuf:       marketBuf,
		eq:              eq,
		bids:            bids,
		asks:            asks,
	}

	if cfg.Host.AuditDBPath != "" {
		ledger, err := audit.Open(cfg.Host.AuditDBPath)
		if err != nil {
			logger.Fatal("audit ledger open failed", zap.Error(errors.Wrap(err, "open audit db")))
		}
		defer ledger.Close()
		h.ledger = ledger
	}

	if cfg.Host.FeedAddr != "" {
		h.feedHub = feed.NewHub()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/feed", h.feedHub)
			logger.Info("feed server started", zap.String("addr", cfg.Host.FeedAddr))
			if err := http.ListenAndServe(cfg.Host.FeedAddr, mux); err != nil {
				logger.Error("feed server exited", zap.Error(err))
			}
		}()
	}

	if cfg.Host.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", h.metrics.handler())
			logger.Info("metrics server started", zap.String("addr", cfg.Host.MetricsAddr))
			if err := http.ListenAndServe(cfg.Host.MetricsAddr, mux); err != nil {
				logger.Error("metrics server exited", zap.Error(err))
			}
		}()
	}

	ctl, err := newControlServer(h, logger, cfg.Host.ControlAddr)
	if err != nil {
		logger.Fatal("control server init failed", zap.Error(err))
	}

	if *fuzzTraffic {
		go runFuzzTraffic(cfg.Host.ControlAddr, logger)
	}

	ctl.Start()
}
