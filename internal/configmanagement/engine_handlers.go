// Package configmanagement exposes the report server's view of the
// configured ASR engine and evaluation dataset.
package configmanagement

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"speech-eval-toolkit/internal/coreengine/vendoradapters"
)

// EngineHandlers describes the engines known to the adapter registry.
type EngineHandlers struct {
	Config vendoradapters.Config
}

// ListEnginesHandler lists the engine names and the configured default.
func (h *EngineHandlers) ListEnginesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engines": vendoradapters.Engines(),
		"default": h.Config.Engine,
	})
}

// GetEngineConfigHandler returns the configured engine settings with
// credentials masked.
func (h *EngineHandlers) GetEngineConfigHandler(c *gin.Context) {
	cfg := h.Config
	c.JSON(http.StatusOK, gin.H{
		"engine":           cfg.Engine,
		"model":            cfg.Model,
		"language":         cfg.Language,
		"endpoint":         cfg.Endpoint,
		"region":           cfg.Region,
		"credentials_file": cfg.CredentialsFile,
		"threads":          cfg.Threads,
		"timeout":          cfg.Timeout.String(),
		"api_key":          MaskSecret(cfg.APIKey),
		"api_secret":       MaskSecret(cfg.APISecret),
	})
}

// MaskSecret keeps the last four characters of secrets longer than eight.
func MaskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "****"
	default:
		return strings.Repeat("*", 4) + s[len(s)-4:]
	}
}
