package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"phishguard/internal/blocklist"
)

type BlocklistHandler interface {
	Check(c *gin.Context)
	Status(c *gin.Context)
}

type blocklistHandler struct {
	cache *blocklist.Cache
}

func NewBlocklistHandler(cache *blocklist.Cache) BlocklistHandler {
	return &blocklistHandler{cache: cache}
}

// Check answers whether navigation to url would be cancelled.
func (h *blocklistHandler) Check(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	d := h.cache.Evaluate(url)
	c.JSON(http.StatusOK, gin.H{"cancel": d.Cancel, "host": d.Host, "state": h.cache.State().String()})
}

func (h *blocklistHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"state": h.cache.State().String(), "hosts": len(h.cache.Hosts())})
}
