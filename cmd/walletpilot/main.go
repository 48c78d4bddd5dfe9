package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/walletpilot/walletpilot/apilog"
	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/balances"
	"github.com/walletpilot/walletpilot/bot"
	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/config"
	"github.com/walletpilot/walletpilot/db"
	"github.com/walletpilot/walletpilot/oneinch"
	"github.com/walletpilot/walletpilot/orchestrator"
	"github.com/walletpilot/walletpilot/server"
	"github.com/walletpilot/walletpilot/tracker"
	"github.com/walletpilot/walletpilot/wallet"
)

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer store.Close()

	// Connect RPC clients
	endpoints, err := cfg.RPCByChain()
	if err != nil {
		log.Fatalf("Failed to parse RPC endpoints: %v", err)
	}
	rpcClients := make(map[chains.ID]*ethclient.Client)
	for id, url := range endpoints {
		client, err := ethclient.Dial(url)
		if err != nil {
			log.Fatalf("Failed to connect to %s RPC at %s: %v", chains.Name(id), url, err)
		}
		rpcClients[id] = client
		log.Printf("Connected to %s RPC", chains.Name(id))
	}

	// API clients, with all traffic logged to the store
	backendClient := backend.NewClient(cfg.BackendURL,
		func() (string, error) { return cfg.BackendToken, nil },
		apilog.NewHTTPClient("backend", store))
	quoteClient := oneinch.NewClient(cfg.OneinchURL, cfg.OneinchAPIKey,
		apilog.NewHTTPClient("oneinch", store))

	// Signing wallet; absent in demo mode
	var signer wallet.Adapter
	if !cfg.DemoMode() {
		s, err := wallet.NewSigner(cfg.Mnemonic, 0, rpcClients, chains.ID(cfg.DefaultChainID))
		if err != nil {
			log.Fatalf("Failed to create wallet: %v", err)
		}
		signer = s
		if addr, ok := s.Address(); ok {
			log.Printf("Wallet ready: %s", addr.Hex())
		}
	} else {
		log.Println("No mnemonic configured, running in demo mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	trk := tracker.New(backendClient)

	allowanceCheck := func(ctx context.Context, chainID chains.ID, token, owner, spender common.Address, amt *big.Int) (bool, error) {
		rpc, ok := rpcClients[chainID]
		if !ok {
			return false, nil
		}
		allowance, err := balances.Allowance(ctx, rpc, token, owner, spender)
		if err != nil {
			return false, err
		}
		return allowance.Cmp(amt) >= 0, nil
	}

	orch := orchestrator.New(ctx, backendClient, quoteClient, store, trk, signer,
		orchestrator.WithAllowanceCheck(allowanceCheck))

	b, err := bot.New(cfg, store, orch, quoteClient, backendClient, signer, rpcClients)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}
	orch.Notify = b.Notify
	orch.OnSwapInitiated = func(swapID string) {
		log.Printf("Swap initiated: %s", swapID)
	}

	// Resume polling for orders left in flight by a previous run
	if err := orch.ResumePending(ctx); err != nil {
		log.Printf("Failed to resume pending orders: %v", err)
	}

	// Start HTTP server
	srv := server.New(cfg, store)
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("Shutting down...")
		cancel()
		b.Stop()
		os.Exit(0)
	}()

	log.Println("Starting WalletPilot...")
	if err := b.Run(ctx); err != nil {
		log.Fatalf("Bot error: %v", err)
	}
}
