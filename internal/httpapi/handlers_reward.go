package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pitodoapp/core/pkg/reward"
)

type rewardPayload struct {
	RewardID     string `json:"reward_id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Amount       int64  `json:"amount"`
	Rank         int    `json:"rank,omitempty"`
	DisplayOrder int    `json:"display_order"`
}

type spinPayload struct {
	SpinID         string                `json:"spin_id"`
	Status         string                `json:"status"`
	Reward         reward.RewardSnapshot `json:"reward"`
	Replayed       bool                  `json:"replayed"`
	CreatedUnixUTC int64                 `json:"created_unix_utc"`
}

type eventPayload struct {
	EventID         string `json:"event_id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	OpensAtUnixUTC  int64  `json:"opens_at_unix_utc"`
	ClosesAtUnixUTC int64  `json:"closes_at_unix_utc"`
	MinNumber       int    `json:"min_number"`
	MaxNumber       int    `json:"max_number"`
}

func rewardToPayload(definition reward.RewardDefinition) rewardPayload {
	return rewardPayload{
		RewardID:     definition.RewardID,
		Title:        definition.Title,
		Type:         string(definition.Type),
		Amount:       definition.Amount,
		Rank:         definition.Rank,
		DisplayOrder: definition.DisplayOrder,
	}
}

func spinToPayload(log reward.SpinLog) spinPayload {
	return spinPayload{
		SpinID:         log.SpinID,
		Status:         string(log.Status),
		Reward:         log.Snapshot,
		Replayed:       log.Replayed,
		CreatedUnixUTC: log.CreatedUnixUTC,
	}
}

func eventToPayload(event reward.Event) eventPayload {
	return eventPayload{
		EventID:         event.EventID,
		Title:           event.Title,
		Status:          string(event.Status),
		OpensAtUnixUTC:  event.OpensAtUnixUTC,
		ClosesAtUnixUTC: event.ClosesAtUnixUTC,
		MinNumber:       event.MinNumber,
		MaxNumber:       event.MaxNumber,
	}
}

// handleActiveRewards lists the spin pool without the draw weights; the odds
// stay server-side.
func (server *Server) handleActiveRewards(ctx *gin.Context) {
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	definitions, err := server.rewards.ActiveRewards(requestCtx)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]rewardPayload, 0, len(definitions))
	for _, definition := range definitions {
		payload = append(payload, rewardToPayload(definition))
	}
	ctx.JSON(http.StatusOK, gin.H{"rewards": payload})
}

type spinRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
}

func (server *Server) handleSpin(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request spinRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := reward.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	key, err := reward.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return
	}

	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	log, err := server.rewards.Spin(requestCtx, userID, key)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"spin": spinToPayload(log)})
}

type claimRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

func (server *Server) handleClaim(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request claimRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := reward.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}

	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	log, err := server.rewards.Claim(requestCtx, userID, ctx.Param("spin_id"), reward.ContactInfo{
		Name:  request.Name,
		Phone: request.Phone,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"spin": spinToPayload(log)})
}

func (server *Server) handleGetEvent(ctx *gin.Context) {
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	event, err := server.rewards.GetEvent(requestCtx, ctx.Param("event_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"event": eventToPayload(event)})
}

type registerRequest struct {
	Number         int    `json:"number"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (server *Server) handleRegister(ctx *gin.Context) {
	claims := getClaims(ctx)
	var request registerRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := reward.NewUserID(claims.UserID())
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	key, err := reward.NewIdempotencyKey(request.IdempotencyKey)
	if err != nil {
		server.respondError(ctx, err)
		return
	}

	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	entry, err := server.rewards.Register(requestCtx, userID, ctx.Param("event_id"), request.Number, key)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"entry_id":      entry.EntryID,
		"chosen_number": entry.ChosenNumber,
		"replayed":      entry.Replayed,
	})
}

func (server *Server) handleWinners(ctx *gin.Context) {
	requestCtx, cancel := server.requestContext(ctx)
	defer cancel()

	winners, err := server.rewards.Winners(requestCtx, ctx.Param("event_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payload := make([]gin.H, 0, len(winners))
	for _, ranked := range winners {
		entries := make([]gin.H, 0, len(ranked.Entries))
		for _, entry := range ranked.Entries {
			entries = append(entries, gin.H{
				"user_id":       entry.UserID,
				"chosen_number": entry.ChosenNumber,
			})
		}
		rankPayload := gin.H{
			"rank":           ranked.Rank,
			"winning_number": ranked.WinningNumber,
			"winners":        entries,
		}
		if ranked.Reward != nil {
			rankPayload["reward"] = rewardToPayload(*ranked.Reward)
		}
		payload = append(payload, rankPayload)
	}
	ctx.JSON(http.StatusOK, gin.H{"results": payload})
}
