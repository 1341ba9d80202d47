package httpapi

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/chat"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/media"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/registry"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

type menuItem struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Category    string       `json:"category,omitempty"`
	Price       storex.Money `json:"price"`
	Available   bool         `json:"available"`
}

func (s *Server) listRestaurants(c *fiber.Ctx) error {
	out, err := s.svc.Restaurants(c.UserContext(), registry.ListQuery{
		Page:   c.QueryInt("page", 1),
		Limit:  c.QueryInt("limit", 0),
		Search: c.Query("search"),
	})
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) startSession(c *fiber.Ctx) error {
	out, err := s.svc.StartSession(c.UserContext(), c.Params("slug"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(out)
}

func (s *Server) chat(c *fiber.Ctx) error {
	var req chat.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fmt.Errorf("%w: body must be JSON with a content field", contractx.ErrValidation)
	}
	out, err := s.svc.Chat(c.UserContext(), c.Params("slug"), req)
	if err != nil {
		return err
	}
	return c.JSON(out)
}

func (s *Server) menu(c *fiber.Ctx) error {
	items, err := s.svc.Menu(c.UserContext(), c.Params("slug"), c.Query("search"))
	if err != nil {
		return err
	}
	out := make([]menuItem, 0, len(items))
	for _, it := range items {
		out = append(out, menuItem{
			ID:          it.ID.String(),
			Name:        it.Name,
			Description: it.Description,
			Category:    it.Category,
			Price:       it.Price,
			Available:   it.Available,
		})
	}
	return c.JSON(out)
}

func (s *Server) messages(c *fiber.Ctx) error {
	msgs, err := s.svc.Messages(c.UserContext(), c.Params("slug"), c.Params("id"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(msgs)
}

func (s *Server) uploadPaymentProof(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", contractx.ErrValidation)
	}
	if fh.Size > media.MaxImageBytes {
		return media.ErrTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("%w: read upload: %v", contractx.ErrValidation, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, media.MaxImageBytes+1))
	if err != nil {
		return fmt.Errorf("%w: read upload: %v", contractx.ErrValidation, err)
	}

	url, err := s.svc.UploadPaymentProof(c.UserContext(), c.Params("slug"), data)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"image_url": url})
}
