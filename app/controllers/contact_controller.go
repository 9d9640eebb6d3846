package controllers

import (
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
)

type ContactController struct {
	contact *services.ContactService
}

func NewContactController(contact *services.ContactService) *ContactController {
	return &ContactController{contact: contact}
}

// Submit handles POST /api/contact.
func (cc *ContactController) Submit(c *ctx.Context) {
	var in services.ContactInput
	if !c.BindJSON(&in) {
		return
	}
	msg, err := cc.contact.Submit(c.Context(), in, c.ClientIP())
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(resource.Map{"id": msg.ID, "received_at": msg.CreatedAt})
}

// Index handles GET /api/admin/contact.
func (cc *ContactController) Index(c *ctx.Context) {
	msgs, err := cc.contact.List(c.Context(), c.Principal())
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(msgs)
}
