package site

import (
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/models"
)

type SiteModule struct {
	db     *gorm.DB
	domain string
}

func NewSiteModule(db *gorm.DB, domain string) *SiteModule {
	return &SiteModule{db: db, domain: strings.TrimSuffix(domain, "/")}
}

func (s *SiteModule) RegisterRoutes(router *gin.Engine) {
	router.GET("/sitemap.xml", s.sitemap)
}

// ItemPath is the public detail path of an item dated t.
func ItemPath(itemType string, t time.Time, slug string) string {
	prefix := "/" + itemType + "s"
	if itemType == models.QuotationType {
		prefix = "/quotes"
	}
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s", prefix, t.Year(), int(t.Month()), t.Day(), slug)
}

type sitemapWriter struct {
	domain string
	b      strings.Builder
}

func (w *sitemapWriter) url(path string, lastmod *time.Time, changefreq, priority string) {
	w.b.WriteString("  <url>\n")
	w.b.WriteString("    <loc>")
	xml.EscapeText(&w.b, []byte(w.domain+path))
	w.b.WriteString("</loc>\n")
	if lastmod != nil {
		w.b.WriteString("    <lastmod>" + lastmod.UTC().Format(time.RFC3339) + "</lastmod>\n")
	}
	w.b.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	w.b.WriteString("    <priority>" + priority + "</priority>\n")
	w.b.WriteString("  </url>\n")
}

// publicTags lists the tags carried by at least one public item.
func (s *SiteModule) publicTags(db *gorm.DB) ([]string, error) {
	q := db.Model(&models.Tag{})
	for i, kind := range models.Kinds {
		sub := db.Table(kind.JoinTable + " AS jt").
			Select("jt.tag_id").
			Joins("JOIN " + kind.Table + " ON " + kind.Table + ".id = jt." + kind.JoinColumn)
		if kind.Visible != "" {
			sub = sub.Where(kind.Visible)
		}
		if i == 0 {
			q = q.Where("tags.id IN (?)", sub)
		} else {
			q = q.Or("tags.id IN (?)", sub)
		}
	}

	var tags []string
	err := q.Order("tags.tag").Pluck("tags.tag", &tags).Error
	return tags, errors.Wrap(err, "list public tags")
}

// Build renders the sitemap of every public page.
func (s *SiteModule) Build(db *gorm.DB) (string, error) {
	w := &sitemapWriter{domain: s.domain}
	w.b.WriteString(xml.Header)
	w.b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	w.b.WriteString("\n")

	w.url("/", nil, "daily", "1.0")

	var posts []models.Post
	err := db.Select("id, slug, pub_time").
		Where("status = ?", models.StatusPublished).
		Order("pub_time DESC, id").
		Find(&posts).Error
	if err != nil {
		return "", errors.Wrap(err, "list posts")
	}
	for _, post := range posts {
		w.url(ItemPath(models.PostType, post.PubTime, post.Slug), &post.PubTime, "monthly", "0.8")
	}

	var links []models.Link
	if err := db.Select("id, slug, created_time").Order("created_time DESC, id").Find(&links).Error; err != nil {
		return "", errors.Wrap(err, "list links")
	}
	for _, link := range links {
		w.url(ItemPath(models.LinkType, link.CreatedTime, link.Slug), &link.CreatedTime, "yearly", "0.5")
	}

	var quotations []models.Quotation
	if err := db.Select("id, slug, created_time").Order("created_time DESC, id").Find(&quotations).Error; err != nil {
		return "", errors.Wrap(err, "list quotations")
	}
	for _, q := range quotations {
		w.url(ItemPath(models.QuotationType, q.CreatedTime, q.Slug), &q.CreatedTime, "yearly", "0.5")
	}

	var series []models.Series
	if err := db.Order("slug, id").Find(&series).Error; err != nil {
		return "", errors.Wrap(err, "list series")
	}
	for _, ser := range series {
		w.url("/series/"+ser.Slug, nil, "weekly", "0.6")
	}

	tags, err := s.publicTags(db)
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		w.url("/tags/"+tag, nil, "weekly", "0.4")
	}

	w.b.WriteString("</urlset>\n")
	return w.b.String(), nil
}

func (s *SiteModule) sitemap(c *gin.Context) {
	body, err := s.Build(s.db.WithContext(c.Request.Context()))
	if err != nil {
		common.Log.WithError(err).Error("error building sitemap")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, body)
}
