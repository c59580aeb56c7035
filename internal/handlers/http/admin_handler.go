package http

import (
	"errors"
	"net/http"
	"strings"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/services"
	apperrors "chatwarden/pkg/errors"
	"chatwarden/pkg/validation"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the moderation state over HTTP so operators can
// inspect and adjust policies without going through chat commands.
type AdminHandler struct {
	policies   *services.PolicyService
	cooldowns  *services.CooldownService
	pyramids   *services.PyramidService
	accountAge *services.AccountAgeService
}

func NewAdminHandler(
	policies *services.PolicyService,
	cooldowns *services.CooldownService,
	pyramids *services.PyramidService,
	accountAge *services.AccountAgeService,
) *AdminHandler {
	return &AdminHandler{
		policies:   policies,
		cooldowns:  cooldowns,
		pyramids:   pyramids,
		accountAge: accountAge,
	}
}

func (h *AdminHandler) SetupRoutes(api *gin.RouterGroup) {
	api.GET("/commands/:command/policy", h.GetCommandPolicy)
	api.GET("/channels/:channel/commands/:command/roles", h.GetChannelRoles)
	api.PUT("/channels/:channel/commands/:command/roles", h.SetChannelRoles)
	api.GET("/channels/:channel/commands/:command/cooldown", h.GetCooldown)
	api.PUT("/channels/:channel/commands/:command/cooldown", h.SetCooldown)
	api.GET("/channels/:channel/moderation", h.GetModerationMode)
	api.PUT("/channels/:channel/moderation", h.SetModerationMode)
	api.GET("/channels/:channel/strikes", h.GetStrikes)
	api.PUT("/channels/:channel/agegate", h.SetAgeGate)
	api.GET("/bans", h.ListBans)
	api.POST("/bans", h.BanUser)
	api.DELETE("/bans/:username", h.UnbanUser)
}

func (h *AdminHandler) GetCommandPolicy(c *gin.Context) {
	cmd := c.Param("command")
	if err := validation.ValidateCommandID(cmd); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	policy, err := h.policies.GetPolicy(domain.CommandID(cmd))
	if err != nil {
		c.Error(apperrors.NewNotFoundError("command"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"command": cmd,
		"policy":  policy,
	})
}

func (h *AdminHandler) GetChannelRoles(c *gin.Context) {
	channel, cmd, ok := h.channelCommandParams(c)
	if !ok {
		return
	}

	roles, err := h.policies.EffectiveRoles(channel, cmd)
	if err != nil {
		c.Error(apperrors.NewNotFoundError("command"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"command": cmd,
		"roles":   roles,
	})
}

type setRolesRequest struct {
	Levels []string `json:"levels" binding:"required,min=1,max=10"`
}

func (h *AdminHandler) SetChannelRoles(c *gin.Context) {
	channel, cmd, ok := h.channelCommandParams(c)
	if !ok {
		return
	}

	var req setRolesRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	effective, err := h.policies.SetOverride(channel, cmd, req.Levels)
	switch {
	case errors.Is(err, domain.ErrUnknownCommand):
		c.Error(apperrors.NewNotFoundError("command"))
		return
	case errors.Is(err, domain.ErrConflictingLevels):
		c.Error(apperrors.NewConflictError("'all' and 'default' cannot be combined with other levels"))
		return
	case errors.Is(err, domain.ErrInvalidRole):
		c.Error(apperrors.NewInvalidInputError("unrecognized role name"))
		return
	case err != nil:
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"command": cmd,
		"kind":    effective.Kind,
		"roles":   effective.Roles,
	})
}

func (h *AdminHandler) GetCooldown(c *gin.Context) {
	channel, cmd, ok := h.channelCommandParams(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"command": cmd,
		"seconds": h.cooldowns.Duration(channel, cmd),
	})
}

type setCooldownRequest struct {
	Seconds int `json:"seconds" binding:"min=0"`
}

func (h *AdminHandler) SetCooldown(c *gin.Context) {
	channel, cmd, ok := h.channelCommandParams(c)
	if !ok {
		return
	}

	var req setCooldownRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateCooldownSeconds(req.Seconds); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if _, err := h.policies.GetPolicy(cmd); err != nil {
		c.Error(apperrors.NewNotFoundError("command"))
		return
	}

	h.cooldowns.SetDuration(channel, cmd, req.Seconds)
	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"command": cmd,
		"seconds": req.Seconds,
	})
}

func (h *AdminHandler) GetModerationMode(c *gin.Context) {
	channel, ok := h.channelParam(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"mode":    h.pyramids.Mode(channel),
	})
}

type setModerationRequest struct {
	Mode string `json:"mode" binding:"required"`
}

func (h *AdminHandler) SetModerationMode(c *gin.Context) {
	channel, ok := h.channelParam(c)
	if !ok {
		return
	}

	var req setModerationRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	mode, err := domain.ParseModerationMode(req.Mode)
	if err != nil {
		c.Error(apperrors.NewInvalidInputError("mode must be one of: off, normal, max"))
		return
	}

	if err := h.pyramids.ToggleBlocking(channel, mode); err != nil {
		if errors.Is(err, domain.ErrInsufficientPrivilege) {
			c.Error(apperrors.NewForbiddenError("bot lacks moderator capability in this channel"))
			return
		}
		c.Error(apperrors.NewInternalError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"mode":    mode,
	})
}

func (h *AdminHandler) GetStrikes(c *gin.Context) {
	channel, ok := h.channelParam(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"channel": channel,
		"strikes": h.pyramids.StrikeHistory(channel),
	})
}

type setAgeGateRequest struct {
	Hours  int    `json:"hours" binding:"min=0"`
	Action string `json:"action"`
}

func (h *AdminHandler) SetAgeGate(c *gin.Context) {
	channel, ok := h.channelParam(c)
	if !ok {
		return
	}

	var req setAgeGateRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	action := domain.ActionTimeout
	switch req.Action {
	case "", string(domain.ActionTimeout):
	case string(domain.ActionBan):
		action = domain.ActionBan
	default:
		c.Error(apperrors.NewInvalidInputError("action must be 'timeout' or 'ban'"))
		return
	}

	threshold := h.accountAge.SetThreshold(channel, req.Hours, action)
	c.JSON(http.StatusOK, gin.H{
		"channel":   channel,
		"threshold": threshold,
	})
}

func (h *AdminHandler) ListBans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"banned": h.policies.BanList(),
	})
}

type banRequest struct {
	Username string `json:"username" binding:"required,max=25"`
}

func (h *AdminHandler) BanUser(c *gin.Context) {
	var req banRequest
	if err := c.BindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if err := validation.ValidateAccountName(username); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.policies.Ban(username)
	c.JSON(http.StatusCreated, gin.H{
		"banned": username,
	})
}

func (h *AdminHandler) UnbanUser(c *gin.Context) {
	username := strings.ToLower(strings.TrimSpace(c.Param("username")))
	if err := validation.ValidateAccountName(username); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	h.policies.Unban(username)
	c.Status(http.StatusNoContent)
}

func (h *AdminHandler) channelParam(c *gin.Context) (domain.Channel, bool) {
	channel := strings.ToLower(c.Param("channel"))
	if err := validation.ValidateAccountName(channel); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.Channel(channel), true
}

func (h *AdminHandler) channelCommandParams(c *gin.Context) (domain.Channel, domain.CommandID, bool) {
	channel, ok := h.channelParam(c)
	if !ok {
		return "", "", false
	}
	cmd := c.Param("command")
	if err := validation.ValidateCommandID(cmd); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", "", false
	}
	return channel, domain.CommandID(cmd), true
}
