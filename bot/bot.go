// Package bot is the Telegram chat surface: it turns messages into swap
// proposals and confirmed proposals into orchestrated swaps.
package bot

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/walletpilot/walletpilot/amount"
	"github.com/walletpilot/walletpilot/backend"
	"github.com/walletpilot/walletpilot/balances"
	"github.com/walletpilot/walletpilot/chains"
	"github.com/walletpilot/walletpilot/config"
	"github.com/walletpilot/walletpilot/db"
	"github.com/walletpilot/walletpilot/oneinch"
	"github.com/walletpilot/walletpilot/orchestrator"
	"github.com/walletpilot/walletpilot/parser"
	"github.com/walletpilot/walletpilot/swaps"
	"github.com/walletpilot/walletpilot/tokens"
	"github.com/walletpilot/walletpilot/wallet"
)

// proposal is a quoted swap awaiting the user's confirm/cancel tap.
type proposal struct {
	req       orchestrator.Request
	chatID    int64
	messageID int
}

type Bot struct {
	api     *tgbotapi.BotAPI
	cfg     *config.Config
	store   *db.Store
	orch    *orchestrator.Orchestrator
	quotes  *oneinch.Client
	backend *backend.Client
	signer  wallet.Adapter // nil in demo mode
	rpc     map[chains.ID]*ethclient.Client

	mu        sync.Mutex
	proposals map[string]*proposal
}

func New(cfg *config.Config, store *db.Store, orch *orchestrator.Orchestrator, quotes *oneinch.Client, bc *backend.Client, signer wallet.Adapter, rpc map[chains.ID]*ethclient.Client) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("creating bot API: %w", err)
	}

	log.Printf("bot: authorized on account %s", api.Self.UserName)
	return &Bot{
		api:       api,
		cfg:       cfg,
		store:     store,
		orch:      orch,
		quotes:    quotes,
		backend:   bc,
		signer:    signer,
		rpc:       rpc,
		proposals: make(map[string]*proposal),
	}, nil
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(ctx, update.CallbackQuery)
		case update.Message != nil:
			b.handleMessage(ctx, update.Message)
		}
	}

	return nil
}

func (b *Bot) Stop() {
	b.api.StopReceivingUpdates()
}

// Notify sends a plain update to a chat. The orchestrator uses it for
// background polling results.
func (b *Bot) Notify(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("bot: error notifying chat %d: %v", chatID, err)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.reply(msg, "Welcome to WalletPilot. Tell me what to swap, e.g. `swap 10 USDC to ETH on base`.\nCommands: /address /balance /status <id> /history")
		case "address":
			b.handleAddress(msg)
		case "balance":
			b.handleBalance(ctx, msg)
		case "swap":
			b.handleSwapText(ctx, msg, msg.CommandArguments())
		case "status":
			b.handleStatus(ctx, msg, strings.TrimSpace(msg.CommandArguments()))
		case "history":
			b.handleHistory(ctx, msg)
		default:
			b.reply(msg, "Unknown command. Use /start for help.")
		}
		return
	}

	// Free text: best-effort swap extraction. Anything unrecognized is
	// answered with help rather than an error.
	b.handleSwapText(ctx, msg, msg.Text)
}

func (b *Bot) handleAddress(msg *tgbotapi.Message) {
	if b.signer == nil {
		b.reply(msg, "Demo mode: no wallet is configured. Swaps are simulated.")
		return
	}
	addr, ok := b.signer.Address()
	if !ok {
		b.reply(msg, "Wallet is not connected.")
		return
	}
	b.reply(msg, fmt.Sprintf("Your wallet address: `%s`", addr.Hex()))
}

func (b *Bot) handleBalance(ctx context.Context, msg *tgbotapi.Message) {
	if b.signer == nil {
		b.reply(msg, "Demo mode: no wallet, no balances.")
		return
	}
	addr, _ := b.signer.Address()
	chainID := chains.ID(b.cfg.DefaultChainID)
	rpc, ok := b.rpc[chainID]
	if !ok {
		b.reply(msg, fmt.Sprintf("No RPC endpoint configured for %s.", chains.Name(chainID)))
		return
	}

	native, err := balances.NativeBalance(ctx, rpc, addr)
	if err != nil {
		b.reply(msg, fmt.Sprintf("Error reading balance: %v", err))
		return
	}
	formatted, _ := amount.FormatUnits(native.String(), amount.DefaultDecimals)

	lines := []string{fmt.Sprintf("*%s*", chains.Name(chainID)),
		fmt.Sprintf("%s: %s", chains.NativeSymbol(chainID), formatted)}

	if usdc, ok := tokens.Lookup(chainID, "USDC"); ok {
		bal, err := balances.TokenBalance(ctx, rpc, common.HexToAddress(usdc.Address), addr)
		if err == nil {
			f, _ := amount.FormatUnits(bal.String(), usdc.Decimals)
			lines = append(lines, fmt.Sprintf("USDC: %s", f))
		}
	}

	b.reply(msg, strings.Join(lines, "\n"))
}

// handleSwapText parses, quotes, and proposes a swap with confirm/cancel
// buttons. Execution only happens after the user taps Confirm.
func (b *Bot) handleSwapText(ctx context.Context, msg *tgbotapi.Message, text string) {
	req, ok := parser.Parse(text)
	if !ok {
		b.reply(msg, "I didn't catch that. Try `swap 10 USDC to ETH on base`.")
		return
	}

	chainID := chains.ID(b.cfg.DefaultChainID)
	if req.ChainName != "" {
		id, ok := chains.FromName(req.ChainName)
		if !ok {
			b.reply(msg, fmt.Sprintf("I don't support the chain %q.", req.ChainName))
			return
		}
		chainID = id
	}

	srcToken, ok := tokens.Lookup(chainID, req.SourceToken)
	if !ok {
		b.reply(msg, fmt.Sprintf("I don't know %s on %s. Known tokens: %s",
			req.SourceToken, chains.Name(chainID), strings.Join(tokens.Symbols(chainID), ", ")))
		return
	}
	dstToken, ok := tokens.Lookup(chainID, req.DestToken)
	if !ok {
		b.reply(msg, fmt.Sprintf("I don't know %s on %s.", req.DestToken, chains.Name(chainID)))
		return
	}

	baseUnits, err := amount.ParseUnits(req.Amount, srcToken.Decimals)
	if err != nil {
		b.reply(msg, fmt.Sprintf("Bad amount %q: %v", req.Amount, err))
		return
	}

	quote, err := b.quotes.GetQuote(ctx, oneinch.QuoteParams{
		ChainID:         chainID,
		SrcTokenAddress: srcToken.Address,
		DstTokenAddress: dstToken.Address,
		Amount:          baseUnits.String(),
	})
	if err != nil {
		log.Printf("bot: quote failed: %v", err)
		// Propose anyway; the backend can still settle without a local
		// estimate.
		quote = &swaps.Quote{
			SrcToken:  srcToken,
			DstToken:  dstToken,
			SrcAmount: baseUnits.String(),
		}
	}
	quote.SrcToken = srcToken
	quote.DstToken = dstToken
	if quote.SrcAmount == "" {
		quote.SrcAmount = baseUnits.String()
	}

	userID := msg.From.ID
	if user, err := b.store.GetOrCreateUser(ctx, msg.From.ID, msg.From.UserName); err == nil {
		userID = user.ID
	} else {
		log.Printf("bot: error recording user %d: %v", msg.From.ID, err)
	}

	b.propose(msg, orchestrator.Request{
		Quote:      quote,
		SrcChainID: chainID,
		DstChainID: chainID,
		ChatID:     msg.Chat.ID,
		MessageID:  int64(msg.MessageID),
		UserID:     userID,
	})
}

func (b *Bot) propose(msg *tgbotapi.Message, req orchestrator.Request) {
	id := shortID()

	text := fmt.Sprintf("*Swap proposal %s*\n%s", id, describeQuote(req))

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Confirm", "confirm:"+id),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", "cancel:"+id),
		),
	)

	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = "Markdown"
	out.ReplyMarkup = keyboard
	sent, err := b.api.Send(out)
	if err != nil {
		log.Printf("bot: error sending proposal: %v", err)
		return
	}

	b.mu.Lock()
	b.proposals[id] = &proposal{req: req, chatID: sent.Chat.ID, messageID: sent.MessageID}
	b.mu.Unlock()
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			log.Printf("bot: error answering callback: %v", err)
		}
	}()

	action, id, ok := strings.Cut(cb.Data, ":")
	if !ok {
		return
	}

	b.mu.Lock()
	prop, exists := b.proposals[id]
	delete(b.proposals, id)
	b.mu.Unlock()

	if !exists {
		b.edit(cb.Message.Chat.ID, cb.Message.MessageID, "This proposal has expired. Send a new swap request.")
		return
	}

	switch action {
	case "cancel":
		b.orch.Cancel()
		b.edit(prop.chatID, prop.messageID, fmt.Sprintf("Swap proposal %s cancelled.", id))
	case "confirm":
		b.edit(prop.chatID, prop.messageID, fmt.Sprintf("Executing swap %s…", id))
		go func() {
			result := b.orch.Execute(ctx, prop.req)
			b.edit(prop.chatID, prop.messageID, result.Message)
		}()
	}
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message, swapID string) {
	if swapID == "" {
		b.reply(msg, "Usage: /status <swap-id>")
		return
	}

	record, err := b.backend.SwapStatus(ctx, swapID)
	if err != nil {
		b.reply(msg, fmt.Sprintf("Couldn't fetch status for %s: %v", swapID, err))
		return
	}

	text := fmt.Sprintf("Swap %s: *%s*", swapID, record.Status)
	if record.OrderHash != "" && record.OrderHash != backend.OrderHashUserExecutes {
		text += fmt.Sprintf("\nOrder: `%s`", record.OrderHash)
	}
	if record.ErrorDetails != "" {
		text += "\n" + record.ErrorDetails
	}
	b.reply(msg, text)
}

func (b *Bot) handleHistory(ctx context.Context, msg *tgbotapi.Message) {
	orders, err := b.store.ListOrdersByChat(ctx, msg.Chat.ID, 10)
	if err != nil {
		b.reply(msg, fmt.Sprintf("Error loading history: %v", err))
		return
	}
	if len(orders) == 0 {
		b.reply(msg, "No swaps yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("*Recent swaps*\n")
	for _, o := range orders {
		formatted := o.Amount
		if token, ok := tokens.Lookup(o.SrcChainID, o.SrcToken); ok {
			if f, err := amount.FormatUnits(o.Amount, token.Decimals); err == nil {
				formatted = f
			}
		}
		sb.WriteString(fmt.Sprintf("`%s` %s %s → %s on %s: %s\n",
			o.SwapID, formatted, o.SrcToken, o.DstToken, chains.Name(o.SrcChainID), o.Status))
	}
	b.reply(msg, sb.String())
}

func describeQuote(req orchestrator.Request) string {
	q := req.Quote
	srcAmount, err := amount.FormatUnits(q.SrcAmount, q.SrcToken.Decimals)
	if err != nil {
		srcAmount = q.SrcAmount
	}

	out := fmt.Sprintf("%s %s → %s on %s", srcAmount, q.SrcToken.Symbol, q.DstToken.Symbol, chains.Name(req.SrcChainID))
	if q.DstAmount != "" {
		if dstAmount, err := amount.FormatUnits(q.DstAmount, q.DstToken.Decimals); err == nil {
			out += fmt.Sprintf("\nEstimated receive: %s %s", dstAmount, q.DstToken.Symbol)
		}
	}
	if q.Gas > 0 {
		out += fmt.Sprintf("\nEstimated gas: %s units", oneinch.GasEstimate(q))
	}
	return out
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ReplyToMessageID = msg.MessageID
	reply.ParseMode = "Markdown"
	reply.DisableWebPagePreview = true
	if _, err := b.api.Send(reply); err != nil {
		log.Printf("bot: error sending message: %v", err)
	}
}

func (b *Bot) edit(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("bot: error editing message: %v", err)
	}
}

func shortID() string {
	buf := make([]byte, 4)
	rand.Read(buf)
	return hex.EncodeToString(buf)
}
