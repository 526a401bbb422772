package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

var errPageFull = errors.New("page full")

// JournalHandler exposes read-only HTTP endpoints for the governance journal.
type JournalHandler struct {
	journal eventlog.Log
	logger  *zap.Logger
}

// NewJournalHandler creates a new JournalHandler.
func NewJournalHandler(journal eventlog.Log, logger *zap.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

// Register mounts the journal routes on the given router group.
func (h *JournalHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries", h.ListEntries)
		l.GET("/entries/:idx", h.GetEntry)
	}
}

// Overview handles GET /ledger and returns the chain length and root hash.
func (h *JournalHandler) Overview(c *gin.Context) {
	ctx := c.Request.Context()

	count, err := h.journal.Len(ctx)
	if err != nil {
		h.logger.Error("journal Len", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query journal"})
		return
	}

	root, err := h.journal.Root(ctx)
	if err != nil {
		h.logger.Error("journal Root", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query journal root"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": count,
		"root":    root,
	})
}

// Verify handles GET /ledger/verify and walks the full chain.
func (h *JournalHandler) Verify(c *gin.Context) {
	if err := h.journal.Verify(c.Request.Context()); err != nil {
		h.logger.Warn("journal integrity check failed", zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}

// ListEntries handles GET /ledger/entries?from=i&limit=n.
func (h *JournalHandler) ListEntries(c *gin.Context) {
	from, err := strconv.Atoi(c.DefaultQuery("from", "0"))
	if err != nil || from < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a non-negative integer"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
		return
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	entries := make([]*eventlog.Entry, 0, limit)
	err = h.journal.Range(c.Request.Context(), from, func(e *eventlog.Entry) error {
		entries = append(entries, e)
		if len(entries) == limit {
			return errPageFull
		}
		return nil
	})
	if err != nil && !errors.Is(err, errPageFull) {
		h.logger.Error("journal Range", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list journal"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"from":    from,
		"count":   len(entries),
		"entries": entries,
	})
}

// GetEntry handles GET /ledger/entries/:idx.
func (h *JournalHandler) GetEntry(c *gin.Context) {
	idx, err := strconv.Atoi(c.Param("idx"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "idx must be a non-negative integer"})
		return
	}

	entry, err := h.journal.Get(c.Request.Context(), idx)
	if err != nil {
		if !errors.Is(err, eventlog.ErrNotFound) {
			h.logger.Error("journal Get", zap.Int("idx", idx), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read journal"})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "entry not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}
