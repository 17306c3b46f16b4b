package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"weblog/analytics"
	"weblog/archive"
	"weblog/common"
	"weblog/content"
	"weblog/models"
)

// MaxSlugLength matches the size of every slug column.
const MaxSlugLength = 64

const suggestionLimit = 10

type AdminModule struct {
	db        *gorm.DB
	store     *content.Store
	archive   *archive.Archive
	analytics *analytics.AnalyticsModule
}

func NewAdminModule(db *gorm.DB, store *content.Store, arch *archive.Archive, analyticsModule *analytics.AnalyticsModule) *AdminModule {
	return &AdminModule{
		db:        db,
		store:     store,
		archive:   arch,
		analytics: analyticsModule,
	}
}

func (a *AdminModule) RegisterRoutes(router *gin.Engine) {
	router.POST("/login", a.login)
	router.POST("/logout", a.logout)

	adminGroup := router.Group("/admin")
	adminGroup.Use(a.requireAuth)
	{
		adminGroup.GET("/me", a.me)

		adminGroup.GET("/posts", a.listPosts)
		adminGroup.POST("/posts", a.createPost)
		adminGroup.GET("/posts/:id", a.getPost)
		adminGroup.PUT("/posts/:id", a.updatePost)
		adminGroup.DELETE("/posts/:id", a.deletePost)

		adminGroup.GET("/links", a.listLinks)
		adminGroup.POST("/links", a.createLink)
		adminGroup.PUT("/links/:id", a.updateLink)
		adminGroup.DELETE("/links/:id", a.deleteLink)

		adminGroup.GET("/quotations", a.listQuotations)
		adminGroup.POST("/quotations", a.createQuotation)
		adminGroup.PUT("/quotations/:id", a.updateQuotation)
		adminGroup.DELETE("/quotations/:id", a.deleteQuotation)

		adminGroup.GET("/series", a.listSeries)
		adminGroup.POST("/series", a.createSeries)
		adminGroup.PUT("/series/:id", a.updateSeries)
		adminGroup.DELETE("/series/:id", a.deleteSeries)

		adminGroup.GET("/tags/autocomplete", a.tagAutocomplete)
		adminGroup.POST("/reindex", a.reindex)
		adminGroup.GET("/analytics", a.analyticsPage)
	}
}

func (a *AdminModule) requireAuth(c *gin.Context) {
	session := sessions.Default(c)
	userID := session.Get("user_id")

	if userID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		c.Abort()
		return
	}

	c.Set("user_id", userID)
	c.Next()
}

// respondError maps store errors to status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, content.ErrInvalidTag):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		common.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("admin request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

type loginRequest struct {
	Email    string `form:"email" json:"email" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
}

func (a *AdminModule) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, err)
		return
	}

	var user models.User
	if err := a.db.Where("email = ?", strings.ToLower(req.Email)).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong email or password"})
		return
	}

	if !checkPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong email or password"})
		return
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	if err := session.Save(); err != nil {
		respondError(c, errors.Wrap(err, "save session"))
		return
	}

	common.Log.WithField("user_id", user.ID).Info("admin logged in")
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *AdminModule) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (a *AdminModule) me(c *gin.Context) {
	var user models.User
	if err := a.db.First(&user, c.MustGet("user_id")).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func idParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(common.ErrNotFound, "id %q", c.Param("id"))
	}
	return uint(id), nil
}

// loadItem fetches the row of dest by the id route parameter, tags preloaded.
func (a *AdminModule) loadItem(c *gin.Context, dest interface{}) error {
	id, err := idParam(c)
	if err != nil {
		return err
	}
	err = a.db.WithContext(c.Request.Context()).Preload("Tags").First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(common.ErrNotFound, "id %d", id)
	}
	return errors.Wrapf(err, "load %d", id)
}

// listItems pages through every row of a content type, drafts included,
// newest first.
func (a *AdminModule) listItems(c *gin.Context, model interface{}, dest interface{}) {
	db := a.db.WithContext(c.Request.Context())

	var count int64
	if err := db.Model(model).Count(&count).Error; err != nil {
		respondError(c, errors.Wrap(err, "count items"))
		return
	}
	page, err := common.Paginate(int(count), c.Query("page"), common.PageSize)
	if err != nil {
		respondError(c, err)
		return
	}

	err = db.Preload("Tags").
		Order("created_time DESC, id DESC").
		Offset(page.Offset()).
		Limit(page.PerPage).
		Find(dest).Error
	if err != nil {
		respondError(c, errors.Wrap(err, "list items"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": dest, "page": page})
}

// splitTags accepts tags separated by commas or spaces.
func splitTags(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
}

// tagsFor returns the requested tags, or the current ones when the request
// leaves them out.
func tagsFor(raw *string, item models.Item) []string {
	if raw != nil {
		return splitTags(*raw)
	}
	current := item.TagList()
	names := make([]string, len(current))
	for i, t := range current {
		names[i] = t.Tag
	}
	return names
}

func (a *AdminModule) saveItem(c *gin.Context, item models.Item, tags []string, status int) {
	if err := a.store.Save(c.Request.Context(), item, tags); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(status, gin.H{"item": item, "type": item.ItemType()})
}

func (a *AdminModule) deleteItem(c *gin.Context, item models.Item) {
	if err := a.loadItem(c, item); err != nil {
		respondError(c, err)
		return
	}
	if err := a.store.Delete(c.Request.Context(), item); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

type postRequest struct {
	Title    string     `json:"title" binding:"required"`
	Slug     string     `json:"slug"`
	Body     string     `json:"body"`
	Status   string     `json:"status"`
	PubTime  *time.Time `json:"pub_time"`
	SeriesID *uint      `json:"series_id"`
	Tags     *string    `json:"tags"`
}

func (r postRequest) apply(post *models.Post) error {
	switch r.Status {
	case "":
	case models.StatusDraft, models.StatusPublished:
		post.Status = r.Status
	default:
		return errors.Errorf("invalid status %q", r.Status)
	}

	post.Title = r.Title
	post.Body = r.Body
	post.SeriesID = r.SeriesID
	post.Slug = slugOr(r.Slug, r.Title)
	if r.PubTime != nil {
		post.PubTime = *r.PubTime
	}
	return nil
}

func (a *AdminModule) listPosts(c *gin.Context) {
	a.listItems(c, &models.Post{}, &[]models.Post{})
}

func (a *AdminModule) getPost(c *gin.Context) {
	var post models.Post
	if err := a.loadItem(c, &post); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"item":         post,
		"type":         post.ItemType(),
		"content_html": models.RenderMarkdown(post.Body),
	})
}

func (a *AdminModule) createPost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	post := &models.Post{AuthorID: c.MustGet("user_id").(uint)}
	if err := req.apply(post); err != nil {
		badRequest(c, err)
		return
	}
	a.saveItem(c, post, tagsFor(req.Tags, post), http.StatusCreated)
}

func (a *AdminModule) updatePost(c *gin.Context) {
	var post models.Post
	if err := a.loadItem(c, &post); err != nil {
		respondError(c, err)
		return
	}

	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.apply(&post); err != nil {
		badRequest(c, err)
		return
	}
	a.saveItem(c, &post, tagsFor(req.Tags, &post), http.StatusOK)
}

func (a *AdminModule) deletePost(c *gin.Context) {
	a.deleteItem(c, &models.Post{})
}

type linkRequest struct {
	URL         string     `json:"url" binding:"required"`
	Title       string     `json:"title" binding:"required"`
	Slug        string     `json:"slug"`
	ViaURL      *string    `json:"via_url"`
	ViaTitle    *string    `json:"via_title"`
	Commentary  string     `json:"commentary"`
	CreatedTime *time.Time `json:"created_time"`
	Tags        *string    `json:"tags"`
}

func (r linkRequest) apply(link *models.Link) {
	link.URL = r.URL
	link.Title = r.Title
	link.ViaURL = r.ViaURL
	link.ViaTitle = r.ViaTitle
	link.Commentary = r.Commentary
	link.Slug = slugOr(r.Slug, r.Title)
	if r.CreatedTime != nil {
		link.CreatedTime = *r.CreatedTime
	}
}

func (a *AdminModule) listLinks(c *gin.Context) {
	a.listItems(c, &models.Link{}, &[]models.Link{})
}

func (a *AdminModule) createLink(c *gin.Context) {
	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	link := &models.Link{}
	req.apply(link)
	a.saveItem(c, link, tagsFor(req.Tags, link), http.StatusCreated)
}

func (a *AdminModule) updateLink(c *gin.Context) {
	var link models.Link
	if err := a.loadItem(c, &link); err != nil {
		respondError(c, err)
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.apply(&link)
	a.saveItem(c, &link, tagsFor(req.Tags, &link), http.StatusOK)
}

func (a *AdminModule) deleteLink(c *gin.Context) {
	a.deleteItem(c, &models.Link{})
}

type quotationRequest struct {
	Quotation   string     `json:"quotation" binding:"required"`
	Source      string     `json:"source" binding:"required"`
	SourceURL   *string    `json:"source_url"`
	Slug        string     `json:"slug"`
	CreatedTime *time.Time `json:"created_time"`
	Tags        *string    `json:"tags"`
}

func (r quotationRequest) apply(q *models.Quotation) {
	q.Quotation = r.Quotation
	q.Source = r.Source
	q.SourceURL = r.SourceURL
	q.Slug = slugOr(r.Slug, r.Source+" "+r.Quotation)
	if r.CreatedTime != nil {
		q.CreatedTime = *r.CreatedTime
	}
}

func (a *AdminModule) listQuotations(c *gin.Context) {
	a.listItems(c, &models.Quotation{}, &[]models.Quotation{})
}

func (a *AdminModule) createQuotation(c *gin.Context) {
	var req quotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	q := &models.Quotation{}
	req.apply(q)
	a.saveItem(c, q, tagsFor(req.Tags, q), http.StatusCreated)
}

func (a *AdminModule) updateQuotation(c *gin.Context) {
	var q models.Quotation
	if err := a.loadItem(c, &q); err != nil {
		respondError(c, err)
		return
	}

	var req quotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.apply(&q)
	a.saveItem(c, &q, tagsFor(req.Tags, &q), http.StatusOK)
}

func (a *AdminModule) deleteQuotation(c *gin.Context) {
	a.deleteItem(c, &models.Quotation{})
}

type seriesRequest struct {
	Title       string `json:"title" binding:"required"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (a *AdminModule) listSeries(c *gin.Context) {
	series := []models.Series{}
	if err := a.db.WithContext(c.Request.Context()).Order("title, id").Find(&series).Error; err != nil {
		respondError(c, errors.Wrap(err, "list series"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": series})
}

func (a *AdminModule) createSeries(c *gin.Context) {
	var req seriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	series := &models.Series{
		Title:       req.Title,
		Slug:        slugOr(req.Slug, req.Title),
		Description: req.Description,
	}
	if err := a.store.SaveSeries(c.Request.Context(), series); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"item": series})
}

func (a *AdminModule) updateSeries(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	var series models.Series
	if err := a.db.WithContext(c.Request.Context()).First(&series, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			err = common.ErrNotFound
		}
		respondError(c, err)
		return
	}

	var req seriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	series.Title = req.Title
	series.Slug = slugOr(req.Slug, req.Title)
	series.Description = req.Description

	if err := a.store.SaveSeries(c.Request.Context(), &series); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": series})
}

func (a *AdminModule) deleteSeries(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := a.store.DeleteSeries(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func (a *AdminModule) tagAutocomplete(c *gin.Context) {
	tags, err := a.archive.TagSuggestions(c.Request.Context(), c.Query("q"), suggestionLimit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (a *AdminModule) reindex(c *gin.Context) {
	n, err := a.store.Reindex(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reindexed": n})
}

// slugOr returns slug, or one generated from fallback when slug is blank.
func slugOr(slug, fallback string) string {
	if s := generateSlug(slug); s != "" {
		return s
	}
	return generateSlug(fallback)
}

func generateSlug(title string) string {
	accentMap := map[rune]rune{
		'á': 'a', 'à': 'a', 'ã': 'a', 'â': 'a', 'ä': 'a', 'å': 'a', 'ā': 'a',
		'é': 'e', 'è': 'e', 'ê': 'e', 'ë': 'e', 'ē': 'e',
		'í': 'i', 'ì': 'i', 'î': 'i', 'ï': 'i', 'ī': 'i',
		'ó': 'o', 'ò': 'o', 'õ': 'o', 'ô': 'o', 'ö': 'o', 'ø': 'o', 'ō': 'o',
		'ú': 'u', 'ù': 'u', 'û': 'u', 'ü': 'u', 'ū': 'u',
		'ç': 'c', 'ć': 'c', 'č': 'c',
		'ñ': 'n', 'ń': 'n',
		'ý': 'y', 'ÿ': 'y',
		'ß': 's',
	}

	slug := strings.ToLower(title)
	slug = strings.Map(func(r rune) rune {
		if replacement, exists := accentMap[r]; exists {
			return replacement
		}
		return r
	}, slug)

	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r == ' ' {
			return '-'
		}
		return -1
	}, slug)

	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	// slugs are ASCII at this point
	if len(slug) > MaxSlugLength {
		slug = strings.TrimRight(slug[:MaxSlugLength], "-")
	}
	return slug
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
