package blog

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/analytics"
	"weblog/archive"
	"weblog/common"
	"weblog/fulltext"
	"weblog/models"
	"weblog/search"
)

// HomeCount is how many items of each type the home page shows.
const HomeCount = 10

type BlogModule struct {
	engine    *search.Engine
	archive   *archive.Archive
	analytics *analytics.AnalyticsModule
}

func NewBlogModule(db *gorm.DB, dialect fulltext.Dialect, analyticsModule *analytics.AnalyticsModule) *BlogModule {
	return &BlogModule{
		engine:    search.NewEngine(db, dialect),
		archive:   archive.NewArchive(db, dialect),
		analytics: analyticsModule,
	}
}

func (b *BlogModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/", b.index)
	router.GET("/search", b.search)
	router.GET("/tags/:tags", b.tag)
	router.GET("/tags/:tags/related", b.related)
	router.GET("/archive/:year", b.year)
	router.GET("/archive/:year/:month", b.month)
	router.GET("/posts/:year/:month/:day/:slug", b.post)
	router.GET("/links/:year/:month/:day/:slug", b.link)
	router.GET("/quotes/:year/:month/:day/:slug", b.quote)
	router.GET("/series/:slug", b.series)
}

// respondError hides the reason behind every not found.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, common.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	common.Log.WithError(err).WithField("path", c.Request.URL.Path).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func intParams(c *gin.Context, names ...string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			return nil, errors.Wrapf(common.ErrNotFound, "%s %q", name, c.Param(name))
		}
		out[i] = v
	}
	return out, nil
}

func (b *BlogModule) index(c *gin.Context) {
	home, err := b.archive.Latest(c.Request.Context(), HomeCount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, home)
}

func (b *BlogModule) search(c *gin.Context) {
	res, err := b.engine.Search(c.Request.Context(), search.Params{
		Q:           c.Query("q"),
		Tags:        c.QueryArray("tag"),
		ExcludeTags: c.QueryArray("exclude.tag"),
		Type:        c.Query("type"),
		Year:        c.Query("year"),
		Month:       c.Query("month"),
		Page:        c.Query("page"),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (b *BlogModule) tag(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := b.archive.Tags(ctx, c.Param("tags"), c.Query("page"))
	if err != nil {
		respondError(c, err)
		return
	}

	body := gin.H{
		"tags":         res.Tags,
		"tag":          res.Tag,
		"only_one_tag": res.OnlyOneTag,
		"items":        res.Items,
		"total":        res.Total,
		"page":         res.Page,
	}
	if res.OnlyOneTag {
		related, err := b.archive.RelatedTags(ctx, res.Tag.Tag, archive.DefaultRelatedLimit, archive.NewRelatedCache())
		if err != nil {
			respondError(c, err)
			return
		}
		counts, err := b.archive.TagCounts(ctx, res.Tag.Tag)
		if err != nil {
			respondError(c, err)
			return
		}
		body["related_tags"] = related
		body["counts"] = counts
	}
	c.JSON(http.StatusOK, body)
}

func (b *BlogModule) related(c *gin.Context) {
	limit := archive.DefaultRelatedLimit
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	tag := c.Param("tags")
	related, err := b.archive.RelatedTags(c.Request.Context(), tag, limit, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": tag, "related_tags": related})
}

func (b *BlogModule) year(c *gin.Context) {
	p, err := intParams(c, "year")
	if err != nil {
		respondError(c, err)
		return
	}
	ya, err := b.archive.YearArchive(c.Request.Context(), p[0])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ya)
}

func (b *BlogModule) month(c *gin.Context) {
	p, err := intParams(c, "year", "month")
	if err != nil {
		respondError(c, err)
		return
	}
	ma, err := b.archive.MonthArchive(c.Request.Context(), p[0], p[1])
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ma)
}

func (b *BlogModule) post(c *gin.Context) {
	p, err := intParams(c, "year", "month", "day")
	if err != nil {
		respondError(c, err)
		return
	}
	post, err := b.archive.Post(c.Request.Context(), p[0], p[1], p[2], c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}

	if b.analytics.TrackView(c, post.ID) {
		post.Views++
	}

	c.JSON(http.StatusOK, gin.H{
		"post":         post,
		"content_html": models.RenderMarkdown(post.Body),
		"tag_summary":  models.TagSummary(post),
	})
}

func (b *BlogModule) link(c *gin.Context) {
	p, err := intParams(c, "year", "month", "day")
	if err != nil {
		respondError(c, err)
		return
	}
	link, err := b.archive.Link(c.Request.Context(), p[0], p[1], p[2], c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"link":        link,
		"domain":      link.Domain(),
		"word_count":  link.WordCount(),
		"tag_summary": models.TagSummary(link),
	})
}

func (b *BlogModule) quote(c *gin.Context) {
	p, err := intParams(c, "year", "month", "day")
	if err != nil {
		respondError(c, err)
		return
	}
	q, err := b.archive.Quotation(c.Request.Context(), p[0], p[1], p[2], c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"quotation":   q,
		"tag_summary": models.TagSummary(q),
	})
}

func (b *BlogModule) series(c *gin.Context) {
	page, err := b.archive.Series(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}
