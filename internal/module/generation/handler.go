package generation

import (
	"net/http"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/artboard/server/internal/module/credits"
	"github.com/artboard/server/internal/module/project"
	"github.com/artboard/server/internal/shared/response"
	"github.com/artboard/server/internal/utils/middleware"
	"github.com/artboard/server/internal/utils/pagination"
)

// Handler handles HTTP requests for generation jobs.
type Handler struct {
	service  *Service
	basePath string
}

// NewHandler creates a new generation handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes registers generation routes that require
// authentication. createMiddleware runs only in front of job creation.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup, createMiddleware ...gin.HandlerFunc) {
	h.basePath = r.BasePath()

	projects := r.Group("/projects/:projectId/generations")
	{
		create := append(append([]gin.HandlerFunc{}, createMiddleware...), h.Create)
		projects.POST("", create...)
		projects.GET("", h.List)
	}

	generations := r.Group("/generations")
	{
		generations.GET("/:id", h.Get)
		generations.DELETE("/:id", h.Delete)
	}
}

// ErrorMappings maps orchestrator errors to responses. Order matters: the
// first match wins.
var ErrorMappings = []response.ErrorMapping{
	{Err: ErrInvalidRequest, Status: http.StatusBadRequest, Code: "INVALID_REQUEST"},
	{Err: ErrGenerationNotFound, Status: http.StatusNotFound, Code: "GENERATION_NOT_FOUND"},
	{Err: project.ErrProjectNotFound, Status: http.StatusNotFound, Code: "PROJECT_NOT_FOUND"},
	{Err: credits.ErrAccountNotFound, Status: http.StatusNotFound, Code: "ACCOUNT_NOT_FOUND"},
	{Err: ErrInsufficientCredits, Status: http.StatusPaymentRequired, Code: "INSUFFICIENT_CREDITS",
		Message: "no generation credits left; subscribe or add your own provider key"},
	{Err: ErrInsufficientProviderCredit, Status: http.StatusPaymentRequired, Code: "INSUFFICIENT_PROVIDER_CREDIT",
		Message: "the provider account could not be charged; top it up and retry"},
	{Err: ErrTimeout, Status: http.StatusGatewayTimeout, Code: "TIMEOUT",
		Message: "generation is still running; poll the job for its result"},
	{Err: ErrProviderUnavailable, Status: http.StatusServiceUnavailable, Code: "PROVIDER_UNAVAILABLE"},
	{Err: credits.ErrBillingUnavailable, Status: http.StatusServiceUnavailable, Code: "BILLING_UNAVAILABLE"},
	{Err: ErrProviderRejected, Status: http.StatusUnprocessableEntity, Code: "PROVIDER_REJECTED"},
}

// Create starts a generation in a project.
//
//	@Summary		Create generation
//	@Description	Starts an image generation. With wait=true the call blocks until the job is terminal or the wait runs out.
//	@Tags			Generations
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			projectId	path		string					true	"Project ID"
//	@Param			wait		query		bool					false	"Block until terminal"
//	@Param			request		body		CreateGenerationRequest	true	"Generation request"
//	@Success		201			{object}	GenerationResponse
//	@Failure		400			{object}	map[string]interface{}
//	@Failure		402			{object}	map[string]interface{}
//	@Failure		404			{object}	map[string]interface{}
//	@Failure		422			{object}	map[string]interface{}
//	@Failure		503			{object}	map[string]interface{}
//	@Failure		504			{object}	map[string]interface{}
//	@Router			/projects/{projectId}/generations [post]
func (h *Handler) Create(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		response.BadRequest(c, "invalid project ID")
		return
	}

	var query CreateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	var req CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	g, err := h.service.Create(c.Request.Context(), userID, projectID, req.ToInput(query.Wait))
	if g != nil {
		c.Header("Location", h.location(g.ID))
	}
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}

	c.JSON(http.StatusCreated, g.ToResponse())
}

// Get returns a job, advancing it when it is still running.
//
//	@Summary		Get generation
//	@Description	Safe to call on a short fixed interval until status is COMPLETED or FAILED.
//	@Tags			Generations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Generation ID"
//	@Success		200	{object}	GenerationResponse
//	@Failure		404	{object}	map[string]interface{}
//	@Router			/generations/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid generation ID")
		return
	}

	g, err := h.service.Get(c.Request.Context(), userID, id)
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	c.JSON(http.StatusOK, g.ToResponse())
}

// List returns a page of a project's jobs.
//
//	@Summary		List generations
//	@Tags			Generations
//	@Produce		json
//	@Security		BearerAuth
//	@Param			projectId	path		string	true	"Project ID"
//	@Param			page		query		int		false	"Page"
//	@Param			page_size	query		int		false	"Page size"
//	@Success		200			{object}	ListGenerationsResponse
//	@Failure		404			{object}	map[string]interface{}
//	@Router			/projects/{projectId}/generations [get]
func (h *Handler) List(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	projectID, err := uuid.Parse(c.Param("projectId"))
	if err != nil {
		response.BadRequest(c, "invalid project ID")
		return
	}

	page := pagination.New()
	if err := c.ShouldBindQuery(page); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	gens, total, err := h.service.List(c.Request.Context(), userID, projectID, page.Limit(), page.Offset())
	if err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}

	out := make([]*GenerationResponse, len(gens))
	for i, g := range gens {
		out[i] = g.ToResponse()
	}
	c.JSON(http.StatusOK, ListGenerationsResponse{Generations: out, Pagination: page.Info(total)})
}

// Delete removes a job.
//
//	@Summary		Delete generation
//	@Tags			Generations
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Generation ID"
//	@Success		204
//	@Failure		404	{object}	map[string]interface{}
//	@Router			/generations/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	userID := middleware.GetUserID(c)
	if userID == uuid.Nil {
		response.Unauthorized(c, "")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid generation ID")
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, id); err != nil {
		response.HandleErrorWithDefault(c, err, ErrorMappings)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) location(id uuid.UUID) string {
	return path.Join("/", h.basePath, "generations", id.String())
}
