package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/studyquest-api/internal/dto"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/service"
	"github.com/noah-isme/studyquest-api/internal/utils"
)

// BlogHandler serves published articles and lets admins manage them.
type BlogHandler struct {
	service service.BlogService
	logger  zerolog.Logger
}

// NewBlogHandler constructs a blog handler.
func NewBlogHandler(service service.BlogService, logger zerolog.Logger) *BlogHandler {
	return &BlogHandler{
		service: service,
		logger:  logger.With().Str("component", "blog_handler").Logger(),
	}
}

// Register wires blog routes.
func (h *BlogHandler) Register(router fiber.Router) {
	staff := middleware.WithAuth(middleware.RequireRole(middleware.StaffRoles...), middleware.AuthOptions{RequireUser: true})

	router.Get("", h.list)
	router.Get("/:slug", h.get)
	router.Post("", staff, h.create)
	router.Delete("/:slug", staff, h.delete)
}

func (h *BlogHandler) list(c *fiber.Ctx) error {
	posts, err := h.service.List(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load posts")
	}
	return utils.OK(c, posts, "blog posts", fiber.Map{"count": len(posts)})
}

func (h *BlogHandler) get(c *fiber.Ctx) error {
	post, err := h.service.Get(requestContext(c), c.Params("slug"))
	if err != nil {
		return respondError(c, h.logger, err, "failed to load post")
	}
	return utils.SendSuccess(c, "blog post", post)
}

func (h *BlogHandler) create(c *fiber.Ctx) error {
	var payload dto.BlogPostCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	author := localString(c, middleware.LocalUserName)
	if author == "" {
		author = userIDFromContext(c)
	}

	post, err := h.service.Create(requestContext(c), author, payload)
	if err != nil {
		return respondError(c, h.logger, err, "failed to create post")
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "post published", post)
}

func (h *BlogHandler) delete(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), c.Params("slug")); err != nil {
		return respondError(c, h.logger, err, "failed to delete post")
	}
	requestLogger(h.logger, c).Info().Str("slug", c.Params("slug")).Str("role", userRoleFromContext(c)).Msg("blog post deleted")
	return c.SendStatus(fiber.StatusNoContent)
}
