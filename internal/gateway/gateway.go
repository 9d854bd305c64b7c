// Package gateway exposes the router and vaults over HTTP. It authenticates
// callers with bearer tokens, rate limits by client IP through redis, and
// relays bus events to websocket subscribers.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	natsgo "github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/terminal-bench/fundvault/internal/auth"
	"github.com/terminal-bench/fundvault/internal/exporter"
	"github.com/terminal-bench/fundvault/internal/fund"
	"github.com/terminal-bench/fundvault/internal/roles"
	"github.com/terminal-bench/fundvault/internal/router"
	"github.com/terminal-bench/fundvault/internal/vault"
	"github.com/terminal-bench/fundvault/pkg/messaging"
)

// Config holds gateway settings.
type Config struct {
	RateLimitMax    int
	RateLimitWindow time.Duration
}

// Gateway is the HTTP front of the fund service.
type Gateway struct {
	engine     *gin.Engine
	cfg        Config
	auth       *auth.Service
	roles      *roles.Registry
	fundRouter *router.Router
	vaults     map[fund.Address]*vault.Vault
	bus        *messaging.Client
	redis      *redis.Client

	wsMu      sync.RWMutex
	wsClients map[uuid.UUID]*WSClient
}

// WSClient is one websocket subscriber.
type WSClient struct {
	ID   uuid.UUID
	Addr fund.Address
	Conn *websocket.Conn
	Send chan []byte
	Done chan struct{}
}

// New builds the gateway and its routes.
func New(cfg Config, authSvc *auth.Service, reg *roles.Registry, fundRouter *router.Router, vaults map[fund.Address]*vault.Vault, bus *messaging.Client, rdb *redis.Client) *Gateway {
	g := &Gateway{
		engine:     gin.Default(),
		cfg:        cfg,
		auth:       authSvc,
		roles:      reg,
		fundRouter: fundRouter,
		vaults:     vaults,
		bus:        bus,
		redis:      rdb,
		wsClients:  make(map[uuid.UUID]*WSClient),
	}
	g.setupRoutes()
	return g
}

func (g *Gateway) setupRoutes() {
	g.engine.Use(g.rateLimitMiddleware())

	g.engine.GET("/health", g.healthCheck)
	g.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := g.engine.Group("/api/v1")
	{
		v1.POST("/auth/token", g.issueToken)

		v1.GET("/vaults", g.listVaults)
		v1.GET("/vaults/:addr", g.getVault)
		v1.GET("/vaults/:addr/limits/:user", g.getLimits)

		v1.POST("/deposits", g.authMiddleware(), g.requestDeposit)
		v1.POST("/withdrawals", g.authMiddleware(), g.requestWithdraw)
		v1.GET("/records", g.authMiddleware(), g.getRecords)
		v1.GET("/ws", g.authMiddleware(), g.handleWebSocket)

		admin := v1.Group("/admin", g.authMiddleware(), g.adminMiddleware())
		{
			admin.POST("/vaults/:addr/deposits/complete", g.completeDeposits)
			admin.POST("/vaults/:addr/deposits/refund", g.refundDeposit)
			admin.POST("/vaults/:addr/withdrawals/process", g.processWithdrawals)
			admin.POST("/vaults/:addr/withdrawals/complete", g.completeWithdrawals)
			admin.POST("/vaults/:addr/withdrawals/refund", g.refundWithdrawal)
			admin.POST("/vaults/:addr/settlement/out", g.settlementOut)
			admin.POST("/vaults/:addr/settlement/in", g.settlementIn)
		}
	}
}

// Start runs the HTTP server and bridges bus events to websocket clients.
func (g *Gateway) Start(addr string) error {
	if g.bus != nil {
		if err := g.bus.Subscribe("fund.>", g.RelayEvent); err != nil {
			return err
		}
	}
	return g.engine.Run(addr)
}

// Handler exposes the engine for http.Server integration.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

// Middleware

func (g *Gateway) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		addr, err := g.auth.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("caller", addr)
		c.Next()
	}
}

func (g *Gateway) adminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := c.MustGet("caller").(fund.Address)
		if !g.roles.Has(caller, roles.Admin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func (g *Gateway) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if g.redis == nil {
			c.Next()
			return
		}
		window := time.Now().Unix() / int64(g.cfg.RateLimitWindow.Seconds())
		key := fmt.Sprintf("ratelimit:%s:%d", c.ClientIP(), window)

		count, err := g.redis.Incr(c.Request.Context(), key).Result()
		if err != nil {
			// Redis down must not take the API with it.
			c.Next()
			return
		}
		if count == 1 {
			g.redis.Expire(c.Request.Context(), key, g.cfg.RateLimitWindow)
		}
		if count > int64(g.cfg.RateLimitMax) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// Handlers

func (g *Gateway) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

type tokenRequest struct {
	Address string `json:"address" binding:"required"`
}

func (g *Gateway) issueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	token, err := g.auth.Issue(fund.Address(req.Address))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (g *Gateway) listVaults(c *gin.Context) {
	count := g.fundRouter.VaultCount()
	vaults, err := g.fundRouter.VaultsInRange(0, count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list vaults"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"vaults": vaults})
}

func (g *Gateway) vaultFor(c *gin.Context) (*vault.Vault, bool) {
	v, ok := g.vaults[fund.Address(c.Param("addr"))]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown vault"})
		return nil, false
	}
	return v, true
}

func (g *Gateway) getVault(c *gin.Context) {
	v, ok := g.vaultFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"address":         v.Address(),
		"custody":         v.CustodyBalance().String(),
		"share_holders":   v.ShareHolderCount(),
		"net_settled_out": v.NetSettledOut().String(),
	})
}

func (g *Gateway) getLimits(c *gin.Context) {
	v, ok := g.vaultFor(c)
	if !ok {
		return
	}
	user := fund.Address(c.Param("user"))
	c.JSON(http.StatusOK, gin.H{
		"max_deposit":      v.MaxDeposit(user).String(),
		"max_mint":         v.MaxMint(user).String(),
		"max_withdraw":     v.MaxWithdraw(user).String(),
		"max_redeem":       v.MaxRedeem(user).String(),
		"pending_deposit":  v.PendingDepositOf(user).String(),
		"pending_withdraw": v.PendingWithdrawOf(user).String(),
		"claim":            v.ClaimOf(user).String(),
	})
}

type requestPayload struct {
	Vault    string `json:"vault" binding:"required"`
	Amount   string `json:"amount" binding:"required"`
	Receiver string `json:"receiver"`
}

func (g *Gateway) requestDeposit(c *gin.Context) {
	g.forwardRequest(c, g.fundRouter.DepositRequest, exporter.IncDepositRequests)
}

func (g *Gateway) requestWithdraw(c *gin.Context) {
	g.forwardRequest(c, g.fundRouter.WithdrawRequest, exporter.IncWithdrawRequests)
}

func (g *Gateway) forwardRequest(c *gin.Context, forward func(context.Context, fund.Address, fund.Address, decimal.Decimal, fund.Address) error, count func()) {
	var req requestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	caller := c.MustGet("caller").(fund.Address)
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	receiver := fund.Address(req.Receiver)
	if receiver.IsZero() {
		receiver = caller
	}
	if err := forward(c.Request.Context(), caller, fund.Address(req.Vault), amount, receiver); err != nil {
		exporter.IncErrors()
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	count()
	c.JSON(http.StatusAccepted, gin.H{"message": "request staged"})
}

func (g *Gateway) getRecords(c *gin.Context) {
	caller := c.MustGet("caller").(fund.Address)
	reqTotal, procTotal := g.fundRouter.NumberOfRecords(caller)

	reqStart := intQuery(c, "req_start", 0)
	reqCount := intQuery(c, "req_count", reqTotal)
	procStart := intQuery(c, "proc_start", 0)
	procCount := intQuery(c, "proc_count", procTotal)

	reqs, procs, err := g.fundRouter.GetRecords(caller, reqStart, reqCount, procStart, procCount)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"requests":  reqs,
		"processed": procs,
	})
}

// Admin handlers

type batchPayload struct {
	Nav     string `json:"nav"`
	Entries []struct {
		User   string `json:"user" binding:"required"`
		Amount string `json:"amount" binding:"required"`
	} `json:"entries" binding:"required"`
}

func (p *batchPayload) entries() ([]vault.Entry, error) {
	out := make([]vault.Entry, 0, len(p.Entries))
	for _, e := range p.Entries {
		amount, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return nil, err
		}
		out = append(out, vault.Entry{User: fund.Address(e.User), Amount: amount})
	}
	return out, nil
}

func (g *Gateway) completeDeposits(c *gin.Context) {
	g.runBatch(c, true, func(ctx context.Context, v *vault.Vault, caller fund.Address, nav decimal.Decimal, entries []vault.Entry) error {
		return v.CompleteDeposits(ctx, caller, nav, entries)
	})
}

func (g *Gateway) processWithdrawals(c *gin.Context) {
	g.runBatch(c, true, func(ctx context.Context, v *vault.Vault, caller fund.Address, nav decimal.Decimal, entries []vault.Entry) error {
		return v.ProcessWithdrawals(ctx, caller, nav, entries)
	})
}

func (g *Gateway) completeWithdrawals(c *gin.Context) {
	g.runBatch(c, false, func(ctx context.Context, v *vault.Vault, caller fund.Address, _ decimal.Decimal, entries []vault.Entry) error {
		return v.CompleteWithdrawals(ctx, caller, entries)
	})
}

func (g *Gateway) runBatch(c *gin.Context, needsNav bool, run func(context.Context, *vault.Vault, fund.Address, decimal.Decimal, []vault.Entry) error) {
	v, ok := g.vaultFor(c)
	if !ok {
		return
	}
	var req batchPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	nav := decimal.Zero
	if needsNav {
		var err error
		nav, err = decimal.NewFromString(req.Nav)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nav"})
			return
		}
	}
	entries, err := req.entries()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry amount"})
		return
	}
	caller := c.MustGet("caller").(fund.Address)
	if err := run(c.Request.Context(), v, caller, nav, entries); err != nil {
		exporter.IncErrors()
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch settled"})
}

type refundPayload struct {
	User   string `json:"user" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

func (g *Gateway) refundDeposit(c *gin.Context) {
	g.runRefund(c, func(ctx context.Context, v *vault.Vault, caller fund.Address, amount decimal.Decimal, user fund.Address) error {
		return v.RefundSingleDeposit(ctx, caller, amount, user)
	})
}

func (g *Gateway) refundWithdrawal(c *gin.Context) {
	g.runRefund(c, func(ctx context.Context, v *vault.Vault, caller fund.Address, amount decimal.Decimal, user fund.Address) error {
		return v.RefundSingleWithdrawal(ctx, caller, amount, user)
	})
}

func (g *Gateway) runRefund(c *gin.Context, run func(context.Context, *vault.Vault, fund.Address, decimal.Decimal, fund.Address) error) {
	v, ok := g.vaultFor(c)
	if !ok {
		return
	}
	var req refundPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	caller := c.MustGet("caller").(fund.Address)
	if err := run(c.Request.Context(), v, caller, amount, fund.Address(req.User)); err != nil {
		exporter.IncErrors()
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refunded"})
}

type settlementPayload struct {
	Amount string `json:"amount" binding:"required"`
}

func (g *Gateway) settlementOut(c *gin.Context) {
	g.runSettlement(c, func(ctx context.Context, v *vault.Vault, caller fund.Address, amount decimal.Decimal) error {
		return v.SettlementOut(ctx, caller, amount)
	})
}

func (g *Gateway) settlementIn(c *gin.Context) {
	g.runSettlement(c, func(ctx context.Context, v *vault.Vault, caller fund.Address, amount decimal.Decimal) error {
		return v.SettlementIn(ctx, caller, amount)
	})
}

func (g *Gateway) runSettlement(c *gin.Context, run func(context.Context, *vault.Vault, fund.Address, decimal.Decimal) error) {
	v, ok := g.vaultFor(c)
	if !ok {
		return
	}
	var req settlementPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	caller := c.MustGet("caller").(fund.Address)
	if err := run(c.Request.Context(), v, caller, amount); err != nil {
		exporter.IncErrors()
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	exporter.IncSettlements()
	c.JSON(http.StatusOK, gin.H{"message": "settled"})
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case isAny(err, fund.ErrUnauthorized, fund.ErrForbidden):
		return http.StatusForbidden
	case isAny(err, fund.ErrVaultNotAuthorized, fund.ErrNotAuthorized, fund.ErrOutOfRange):
		return http.StatusNotFound
	case isAny(err, fund.ErrInsufficientBalance, fund.ErrInsufficientAllowance,
		fund.ErrBelowMinimum, fund.ErrSuspended, fund.ErrExceedsGlobalMax,
		fund.ErrExceedsIndividualMax, fund.ErrAmountMismatch):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func isAny(err error, targets ...error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// WebSocket handling

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (g *Gateway) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := &WSClient{
		ID:   uuid.New(),
		Addr: c.MustGet("caller").(fund.Address),
		Conn: conn,
		Send: make(chan []byte, 64),
		Done: make(chan struct{}),
	}

	g.wsMu.Lock()
	g.wsClients[client.ID] = client
	g.wsMu.Unlock()

	go g.wsReadPump(client)
	go g.wsWritePump(client)
}

func (g *Gateway) wsReadPump(client *WSClient) {
	defer func() {
		g.wsMu.Lock()
		delete(g.wsClients, client.ID)
		g.wsMu.Unlock()
		close(client.Done)
		client.Conn.Close()
	}()

	for {
		if _, _, err := client.Conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (g *Gateway) wsWritePump(client *WSClient) {
	for {
		select {
		case message := <-client.Send:
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-client.Done:
			return
		}
	}
}

// RelayEvent fans a bus message out to every connected websocket client.
func (g *Gateway) RelayEvent(msg *natsgo.Msg) {
	g.wsMu.RLock()
	defer g.wsMu.RUnlock()
	for _, client := range g.wsClients {
		select {
		case client.Send <- msg.Data:
		default:
			// slow consumer, drop
		}
	}
}
