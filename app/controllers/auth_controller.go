package controllers

import (
	"github.com/shashiranjanraj/bunkar/app/resources"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/ctx"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
)

type AuthController struct {
	auth *services.AuthService
}

func NewAuthController(auth *services.AuthService) *AuthController {
	return &AuthController{auth: auth}
}

func tokens(t *services.Tokens) resource.Map {
	return resource.Map{
		"access_token":  t.AccessToken,
		"refresh_token": t.RefreshToken,
		"user":          resource.One(resources.User, *t.User),
	}
}

// Register handles POST /api/auth/register.
func (ac *AuthController) Register(c *ctx.Context) {
	var in services.RegisterInput
	if !c.BindJSON(&in) {
		return
	}
	t, err := ac.auth.Register(c.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.Created(tokens(t))
}

// Login handles POST /api/auth/login.
func (ac *AuthController) Login(c *ctx.Context) {
	var in services.LoginInput
	if !c.BindJSON(&in) {
		return
	}
	t, err := ac.auth.Login(c.Context(), in)
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(tokens(t))
}

// Me handles GET /api/auth/me.
func (ac *AuthController) Me(c *ctx.Context) {
	u, err := ac.auth.Me(c.Context(), c.Principal())
	if err != nil {
		fail(c, err)
		return
	}
	c.Success(resource.One(resources.User, *u))
}
