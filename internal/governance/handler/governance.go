package handler

import (
	"context"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/checkpoint"
	"github.com/jmerrifield20/govledger/internal/identity"
	"github.com/jmerrifield20/govledger/internal/token"
	"go.uber.org/zap"
)

// governanceSvc is the interface expected by GovernanceHandler, satisfied by
// *governance.Service.
type governanceSvc interface {
	Head() uint64
	Owner() common.Address
	Mine() uint64
	CurrentVotes(account common.Address) *big.Int
	PriorVotes(account common.Address, block uint64) (*big.Int, error)
	Checkpoints(account common.Address) []checkpoint.Checkpoint
	DelegateOf(holder common.Address) (common.Address, bool)
	BalanceOf(holder common.Address) *big.Int
	TotalSupply() *big.Int
	Mint(ctx context.Context, caller, to common.Address, amount *big.Int) (uint64, error)
	Burn(ctx context.Context, caller, from common.Address, amount *big.Int) (uint64, error)
	Delegate(ctx context.Context, holder, to common.Address) (uint64, error)
	Undelegate(ctx context.Context, holder common.Address) (uint64, error)
}

// GovernanceHandler serves vote queries and token mutations.
type GovernanceHandler struct {
	svc        governanceSvc
	tokens     *identity.TokenIssuer
	mutLimiter gin.HandlerFunc
	logger     *zap.Logger
}

// NewGovernanceHandler creates a GovernanceHandler. Mutating routes require a
// caller token verified by tokens.
func NewGovernanceHandler(svc governanceSvc, tokens *identity.TokenIssuer, logger *zap.Logger) *GovernanceHandler {
	return &GovernanceHandler{svc: svc, tokens: tokens, logger: logger}
}

// SetMutationLimiter configures a middleware that runs on mutating routes
// after the caller is authenticated.
func (h *GovernanceHandler) SetMutationLimiter(mw gin.HandlerFunc) {
	h.mutLimiter = mw
}

// Register mounts the governance routes on the given router group.
func (h *GovernanceHandler) Register(rg *gin.RouterGroup) {
	guard := []gin.HandlerFunc{identity.RequireCaller(h.tokens)}
	if h.mutLimiter != nil {
		guard = append(guard, h.mutLimiter)
	}
	auth := func(fn gin.HandlerFunc) []gin.HandlerFunc {
		return append(guard[:len(guard):len(guard)], fn)
	}

	chain := rg.Group("/chain")
	{
		chain.GET("/head", h.Head)
		chain.POST("/mine", auth(h.Mine)...)
	}

	acct := rg.Group("/accounts/:address")
	{
		acct.GET("/votes", h.CurrentVotes)
		acct.GET("/votes/prior", h.PriorVotes)
		acct.GET("/checkpoints", h.Checkpoints)
		acct.GET("/delegate", h.DelegateOf)
		acct.GET("/balance", h.Balance)
	}

	rg.GET("/token", h.TokenInfo)
	rg.POST("/token/mint", auth(h.Mint)...)
	rg.POST("/token/burn", auth(h.Burn)...)
	rg.POST("/delegate", auth(h.Delegate)...)
}

// ─── Request / Response types ────────────────────────────────────────────────

type checkpointView struct {
	Block uint64 `json:"block"`
	Votes string `json:"votes"`
}

type delegateRequest struct {
	Delegatee string `json:"delegatee"`
}

type mintRequest struct {
	To     string `json:"to"     binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type burnRequest struct {
	From   string `json:"from"   binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

// ─── Chain ───────────────────────────────────────────────────────────────────

// Head handles GET /chain/head.
func (h *GovernanceHandler) Head(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"block": h.svc.Head()})
}

// Mine handles POST /chain/mine. Only the token owner may advance the chain.
func (h *GovernanceHandler) Mine(c *gin.Context) {
	caller, _ := identity.CallerFromCtx(c)
	if caller != h.svc.Owner() {
		c.JSON(http.StatusForbidden, gin.H{"error": token.ErrNotOwner.Error()})
		return
	}
	head := h.svc.Mine()
	SetHeadBlock(head)
	c.JSON(http.StatusOK, gin.H{"block": head})
}

// ─── Queries ─────────────────────────────────────────────────────────────────

// CurrentVotes handles GET /accounts/:address/votes.
func (h *GovernanceHandler) CurrentVotes(c *gin.Context) {
	account, ok := addressParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": account.Hex(),
		"votes":   h.svc.CurrentVotes(account).String(),
	})
}

// PriorVotes handles GET /accounts/:address/votes/prior?block=n.
func (h *GovernanceHandler) PriorVotes(c *gin.Context) {
	account, ok := addressParam(c)
	if !ok {
		return
	}
	block, err := strconv.ParseUint(c.Query("block"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "block must be a non-negative integer"})
		return
	}

	votes, err := h.svc.PriorVotes(account, block)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": account.Hex(),
		"block":   block,
		"votes":   votes.String(),
	})
}

// Checkpoints handles GET /accounts/:address/checkpoints.
func (h *GovernanceHandler) Checkpoints(c *gin.Context) {
	account, ok := addressParam(c)
	if !ok {
		return
	}
	cps := h.svc.Checkpoints(account)
	views := make([]checkpointView, 0, len(cps))
	for _, cp := range cps {
		views = append(views, checkpointView{Block: cp.Block, Votes: cp.Weight.String()})
	}
	c.JSON(http.StatusOK, gin.H{
		"account":     account.Hex(),
		"count":       len(views),
		"checkpoints": views,
	})
}

// DelegateOf handles GET /accounts/:address/delegate.
func (h *GovernanceHandler) DelegateOf(c *gin.Context) {
	holder, ok := addressParam(c)
	if !ok {
		return
	}
	var delegate *string
	if d, ok := h.svc.DelegateOf(holder); ok {
		s := d.Hex()
		delegate = &s
	}
	c.JSON(http.StatusOK, gin.H{"account": holder.Hex(), "delegate": delegate})
}

// Balance handles GET /accounts/:address/balance.
func (h *GovernanceHandler) Balance(c *gin.Context) {
	holder, ok := addressParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": holder.Hex(),
		"balance": h.svc.BalanceOf(holder).String(),
	})
}

// TokenInfo handles GET /token.
func (h *GovernanceHandler) TokenInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"owner":        h.svc.Owner().Hex(),
		"total_supply": h.svc.TotalSupply().String(),
		"head":         h.svc.Head(),
	})
}

// ─── Mutations ───────────────────────────────────────────────────────────────

// Delegate handles POST /delegate. An empty delegatee clears the caller's delegate.
func (h *GovernanceHandler) Delegate(c *gin.Context) {
	caller, _ := identity.CallerFromCtx(c)

	var req delegateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		block uint64
		err   error
		op    = "delegate"
	)
	if req.Delegatee == "" {
		op = "undelegate"
		block, err = h.svc.Undelegate(c.Request.Context(), caller)
	} else {
		to, ok := parseAddress(c, "delegatee", req.Delegatee)
		if !ok {
			return
		}
		block, err = h.svc.Delegate(c.Request.Context(), caller, to)
	}
	h.recordMutation(op, err)
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := gin.H{"delegator": caller.Hex(), "delegate": nil, "block": block}
	if d, ok := h.svc.DelegateOf(caller); ok {
		resp["delegate"] = d.Hex()
	}
	c.JSON(http.StatusOK, resp)
}

// Mint handles POST /token/mint.
func (h *GovernanceHandler) Mint(c *gin.Context) {
	caller, _ := identity.CallerFromCtx(c)

	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	to, ok := parseAddress(c, "to", req.To)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	block, err := h.svc.Mint(c.Request.Context(), caller, to, amount)
	h.recordMutation("mint", err)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"to":      to.Hex(),
		"amount":  amount.String(),
		"balance": h.svc.BalanceOf(to).String(),
		"block":   block,
	})
}

// Burn handles POST /token/burn.
func (h *GovernanceHandler) Burn(c *gin.Context) {
	caller, _ := identity.CallerFromCtx(c)

	var req burnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, ok := parseAddress(c, "from", req.From)
	if !ok {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	block, err := h.svc.Burn(c.Request.Context(), caller, from, amount)
	h.recordMutation("burn", err)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"from":    from.Hex(),
		"amount":  amount.String(),
		"balance": h.svc.BalanceOf(from).String(),
		"block":   block,
	})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// recordMutation counts the outcome and refreshes the head gauge, which a
// mutation may have moved whether or not it succeeded.
func (h *GovernanceHandler) recordMutation(op string, err error) {
	RecordMutation(op, err)
	SetHeadBlock(h.svc.Head())
}

func addressParam(c *gin.Context) (common.Address, bool) {
	return parseAddress(c, "address", c.Param("address"))
}

func parseAddress(c *gin.Context, field, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		c.JSON(http.StatusBadRequest, gin.H{"error": field + " must be a 20-byte hex address"})
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseAmount accepts decimal or 0x-prefixed hex up to 256 bits.
func parseAmount(c *gin.Context, s string) (*big.Int, bool) {
	amount, ok := math.ParseBig256(s)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be a decimal or 0x-hex integer of at most 256 bits"})
		return nil, false
	}
	return amount, true
}
