package handler

//go:generate mockgen -source=handler.go -destination=mocks/mock_handler.go -package=mocks

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/bharathbbg/awb-reconciler/internal/apperror"
	"github.com/bharathbbg/awb-reconciler/internal/logger"
	"github.com/bharathbbg/awb-reconciler/internal/model"
	"github.com/bharathbbg/awb-reconciler/internal/queue"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	actorHeader   = "X-Actor"
	confirmHeader = "X-Confirm-Reset"
	defaultActor  = "api"
)

// AWBService is what the HTTP layer needs from the lifecycle.
type AWBService interface {
	Create(ctx context.Context, orderID, actor string) (model.GenerateResult, error)
	Restore(ctx context.Context, orderID, actor string) (model.RestoreResult, error)
	Sync(ctx context.Context, orderID string, manual bool, actor string) (model.SyncResult, error)
	ConditionalDelete(ctx context.Context, orderID, reason, actor string) (model.DeleteOutcome, error)
	DownloadLabel(ctx context.Context, orderID, actor string) ([]byte, string, error)
	BulkGenerate(ctx context.Context, orderIDs []string, actor string) model.BulkResult
	ResetMarkers(ctx context.Context, orderID, confirmation string) (int, error)
	SweepDeleted(ctx context.Context, actor string) (model.SweepResult, error)
	Health(ctx context.Context) (model.HealthReport, error)
	Tariff(ctx context.Context, req model.TariffRequest) (float64, error)
	CheckService(ctx context.Context, req model.TariffRequest) (bool, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task queue.Task) (queue.Receipt, error)
}

type Handler struct {
	svc   AWBService
	tasks TaskQueue
}

// NewHandler accepts a nil queue; async requests then run inline.
func NewHandler(svc AWBService, tasks TaskQueue) *Handler {
	return &Handler{svc: svc, tasks: tasks}
}

type errorResponse struct {
	Error  string   `json:"error"`
	Kind   string   `json:"kind"`
	Fields []string `json:"fields,omitempty"`
	Remote string   `json:"remote,omitempty"`
}

type bulkRequest struct {
	OrderIDs []string `json:"order_ids" binding:"required,min=1"`
}

func (h *Handler) GenerateAWB(c *gin.Context) {
	ctx := c.Request.Context()
	orderID, actor := c.Param("id"), actorOf(c)

	if async, _ := strconv.ParseBool(c.Query("async")); async && h.tasks != nil {
		rc, err := h.tasks.Enqueue(ctx, queue.Task{Kind: queue.KindCreate, OrderID: orderID, Actor: actor})
		if err != nil {
			writeError(c, err)
			return
		}
		if rc.Queued {
			c.JSON(http.StatusAccepted, model.GenerateResult{Outcome: model.GenerateQueued})
			return
		}
		// No broker: the task already ran inline.
		if res, ok := rc.Result.(model.GenerateResult); ok {
			writeGenerate(c, res)
			return
		}
		c.JSON(http.StatusAccepted, model.GenerateResult{Outcome: model.GenerateQueued})
		return
	}

	res, err := h.svc.Create(ctx, orderID, actor)
	if err != nil {
		writeError(c, err)
		return
	}
	writeGenerate(c, res)
}

func writeGenerate(c *gin.Context, res model.GenerateResult) {
	switch res.Outcome {
	case model.GenerateBlocked:
		c.JSON(http.StatusConflict, res)
	case model.GenerateQueued, model.GenerateInProgress:
		c.JSON(http.StatusAccepted, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (h *Handler) DownloadLabel(c *gin.Context) {
	pdf, awb, err := h.svc.DownloadLabel(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="awb-`+awb+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (h *Handler) SyncStatus(c *gin.Context) {
	manual, _ := strconv.ParseBool(c.Query("manual"))
	res, err := h.svc.Sync(c.Request.Context(), c.Param("id"), manual, actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Restore(c *gin.Context) {
	res, err := h.svc.Restore(c.Request.Context(), c.Param("id"), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) DeleteAWB(c *gin.Context) {
	out, err := h.svc.ConditionalDelete(c.Request.Context(), c.Param("id"), c.Query("reason"), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": out})
}

func (h *Handler) BulkGenerate(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: apperror.KindValidation.String()})
		return
	}
	c.JSON(http.StatusOK, h.svc.BulkGenerate(c.Request.Context(), req.OrderIDs, actorOf(c)))
}

func (h *Handler) ResetMarkers(c *gin.Context) {
	n, err := h.svc.ResetMarkers(c.Request.Context(), c.Param("id"), c.GetHeader(confirmHeader))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": n})
}

func (h *Handler) SweepDeleted(c *gin.Context) {
	res, err := h.svc.SweepDeleted(c.Request.Context(), actorOf(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) HealthReport(c *gin.Context) {
	report, err := h.svc.Health(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *Handler) Tariff(c *gin.Context) {
	var req model.TariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: apperror.KindValidation.String()})
		return
	}
	tariff, err := h.svc.Tariff(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tariff": tariff})
}

func (h *Handler) CheckService(c *gin.Context) {
	var req model.TariffRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: apperror.KindValidation.String()})
		return
	}
	ok, err := h.svc.CheckService(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": ok})
}

func actorOf(c *gin.Context) string {
	if a := c.GetHeader(actorHeader); a != "" {
		return a
	}
	return defaultActor
}

func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusUnprocessableEntity
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindForbidden:
		return http.StatusForbidden
	case apperror.KindAmbiguous, apperror.KindNetwork, apperror.KindUnavailable,
		apperror.KindAuth, apperror.KindHTTP, apperror.KindMalformed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	kind := apperror.KindOf(err)
	resp := errorResponse{Error: err.Error(), Kind: kind.String(), Remote: apperror.RemoteBody(err)}

	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		resp.Fields = appErr.Fields
	}

	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		logger.GetLoggerFromCtx(c.Request.Context()).Error(c.Request.Context(), "request failed",
			zap.String("route", c.FullPath()),
			zap.String("order_id", c.Param("id")),
			zap.String("kind", kind.String()),
			zap.Error(err),
		)
	}
	c.JSON(status, resp)
}
