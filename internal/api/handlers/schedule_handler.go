package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/scheduler"
)

// Registrar is the part of the scheduler the REST layer calls.
type Registrar interface {
	Register(ctx context.Context, post *models.Post) error
	Cancel(id int64)
}

type ScheduleHandler struct {
	posts repository.PostRepository
	s     Registrar
}

func NewScheduleHandler(posts repository.PostRepository, s Registrar) *ScheduleHandler {
	return &ScheduleHandler{posts: posts, s: s}
}

// SchedulePost arms the triggers for a post that has entered scheduled.
func (h *ScheduleHandler) SchedulePost(c *fiber.Ctx) error {
	post, err := h.ownPost(c)
	if err != nil {
		return err
	}
	if post == nil {
		return nil
	}

	if err := h.s.Register(c.Context(), post); err != nil {
		var se *scheduler.ScheduleError
		if errors.As(err, &se) {
			return errorJSON(c, fiber.StatusBadRequest, se.Error())
		}
		slog.Error("register schedule", "post_id", post.ID, "error", err)
		return errorJSON(c, fiber.StatusInternalServerError, "Unable to schedule post")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message":       "Post scheduled successfully",
		"scheduled_for": post.ScheduledFor,
	})
}

func (h *ScheduleHandler) CancelSchedule(c *fiber.Ctx) error {
	post, err := h.ownPost(c)
	if err != nil {
		return err
	}
	if post == nil {
		return nil
	}

	h.s.Cancel(post.ID)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ScheduleHandler) PostStatus(c *fiber.Ctx) error {
	post, err := h.ownPost(c)
	if err != nil {
		return err
	}
	if post == nil {
		return nil
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"id":               post.ID,
		"platform":         post.Platform,
		"status":           post.Status,
		"scheduled_for":    post.ScheduledFor,
		"platform_post_id": post.PlatformPostID,
		"error_message":    post.ErrorMessage,
		"published_at":     post.PublishedAt,
	})
}

// ownPost loads the :id post for the caller. A nil post with a nil error
// means the response has already been written.
func (h *ScheduleHandler) ownPost(c *fiber.Ctx) (*models.Post, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return nil, errorJSON(c, fiber.StatusBadRequest, "Invalid post id")
	}

	post, err := h.posts.GetByID(c.Context(), int64(id))
	if err != nil {
		slog.Info(err.Error())
		return nil, errorJSON(c, fiber.StatusInternalServerError, "Unable to load post")
	}
	if post == nil || post.UserID != GetUserID(c) {
		return nil, errorJSON(c, fiber.StatusNotFound, "Post not found")
	}
	return post, nil
}
