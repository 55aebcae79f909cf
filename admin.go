package frontpage

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/eringen/frontpage/docstore"
	"github.com/eringen/frontpage/listing"
)

func apiError(c echo.Context, code int, msg string) error {
	return c.JSON(code, apiResponse{Success: false, Message: msg})
}

func (a *App) handleSession(c echo.Context) error {
	return c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Session",
		Data:    SessionInfo{Authenticated: IsAdmin(c), CSRFToken: CsrfToken(c)},
	})
}

func (a *App) handleLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return apiError(c, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	var in LoginInput
	if err := c.Bind(&in); err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid request body")
	}
	if err := a.validate.Struct(in); err != nil {
		return apiError(c, http.StatusBadRequest, "Password is required")
	}
	if subtle.ConstantTimeCompare([]byte(in.Password), []byte(a.Config.AdminPassword)) != 1 {
		a.loginLimiter.Record(ip)
		return apiError(c, http.StatusUnauthorized, "Invalid password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apiResponse{
		Success: true,
		Message: "Logged in",
		Data:    SessionInfo{Authenticated: true, CSRFToken: CsrfToken(c)},
	})
}

func handleLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, apiResponse{Success: true, Message: "Logged out"})
}

// handleCreatePost answers POST /api/posts. Status codes: 201 created,
// 400 invalid input, 401 not logged in, 409 slug taken, 429 rate limited,
// 500 store failure.
func (a *App) handleCreatePost(c echo.Context) error {
	if !IsAdmin(c) {
		return apiError(c, http.StatusUnauthorized, "Authentication required")
	}
	if !a.writeLimiter.Allow(c.RealIP()) {
		return apiError(c, http.StatusTooManyRequests, "Too many requests. Try again later.")
	}

	var in PostInput
	if err := c.Bind(&in); err != nil {
		return apiError(c, http.StatusBadRequest, "Invalid request body")
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Slug = strings.TrimSpace(in.Slug)
	if err := a.validate.Struct(in); err != nil {
		return apiError(c, http.StatusBadRequest, validationMessage(err))
	}
	slug := Slugify(in.Slug)
	if slug == "" {
		slug = Slugify(in.Title)
	}
	if slug == "" {
		return apiError(c, http.StatusBadRequest, "Slug is required. Add a title or slug.")
	}

	ctx := c.Request().Context()
	store, err := a.Connect(ctx)
	if err != nil {
		c.Logger().Errorf("frontpage: create post: %v", err)
		return apiError(c, http.StatusInternalServerError, listing.MsgConnectFailed)
	}
	n, err := store.Count(ctx, docstore.Filter{docstore.Eq("slug", slug)})
	if err != nil {
		c.Logger().Errorf("frontpage: create post: slug lookup: %v", err)
		return apiError(c, http.StatusInternalServerError, "Could not save the post")
	}
	if n > 0 {
		return apiError(c, http.StatusConflict, "A post with this slug already exists")
	}

	doc := in.document(slug, time.Now().UTC())
	id, err := store.Insert(ctx, docstore.CollectionPosts, doc)
	if err != nil {
		c.Logger().Errorf("frontpage: create post: insert: %v", err)
		return apiError(c, http.StatusInternalServerError, "Could not save the post")
	}
	doc["_id"] = id
	rec, _ := listing.NormalizeOne(doc, 0)
	c.Logger().Infof("frontpage: created post %s (%s)", id, slug)
	return c.JSON(http.StatusCreated, apiResponse{Success: true, Message: "Post created", Data: rec})
}

func (in PostInput) document(slug string, now time.Time) docstore.Document {
	published := true
	if in.Published != nil {
		published = *in.Published
	}
	lang := strings.ToLower(in.Language)
	if lang == "" {
		lang = listing.DefaultLang
	}
	visibility := in.Visibility
	if visibility == "" {
		visibility = "public"
	}
	doc := docstore.Document{
		"title":       in.Title,
		"slug":        slug,
		"content":     in.Content,
		"isPublished": published,
		"visibility":  visibility,
		"language":    lang,
		"createdAt":   now,
		"updatedAt":   now,
	}
	if in.BannerImage != "" {
		doc["bannerImage"] = in.BannerImage
	}
	if c := strings.TrimSpace(in.Category); c != "" {
		doc[docstore.RelationField] = c
	}
	if l := strings.TrimSpace(in.Location); l != "" {
		doc["location"] = l
	}
	return doc
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid post"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
