package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/models"
)

// ViewThrottle is how long a visitor's repeat views of a post are ignored.
const ViewThrottle = 30 * time.Minute

const cookieName = "weblog_visitor_id"

// ViewEvent records one counted view of a post.
type ViewEvent struct {
	ID        uint      `gorm:"primaryKey"`
	PostID    uint      `gorm:"not null;index"`
	CookieID  string    `gorm:"not null;index"`
	IP        string    `gorm:"not null"`
	Language  *string   // nullable
	Browser   *string   // nullable
	CreatedAt time.Time `gorm:"index"`
}

type AnalyticsModule struct {
	db *gorm.DB
}

// NewAnalyticsModule returns nil, which disables tracking, when db is nil or
// the events table cannot be migrated.
func NewAnalyticsModule(db *gorm.DB) *AnalyticsModule {
	if db == nil {
		common.Log.Warn("analytics db is nil, view counting disabled")
		return nil
	}

	if err := db.AutoMigrate(&ViewEvent{}); err != nil {
		common.Log.WithError(err).Error("error migrating view_events table")
		return nil
	}

	return &AnalyticsModule{db: db}
}

// TrackView counts a view of the post unless the same visitor already viewed
// it within ViewThrottle. It reports whether the view was counted.
func (a *AnalyticsModule) TrackView(c *gin.Context, postID uint) bool {
	if a == nil || a.db == nil {
		return false
	}
	db := a.db.WithContext(c.Request.Context())

	cookieID := a.getOrCreateCookieID(c)

	var recent int64
	err := db.Model(&ViewEvent{}).
		Where("cookie_id = ? AND post_id = ? AND created_at > ?", cookieID, postID, time.Now().Add(-ViewThrottle)).
		Count(&recent).Error
	if err != nil {
		common.Log.WithError(err).WithField("post_id", postID).Error("error checking recent views")
		return false
	}
	if recent > 0 {
		return false
	}

	event := ViewEvent{
		PostID:    postID,
		CookieID:  cookieID,
		IP:        a.getClientIP(c),
		Language:  a.extractLanguage(c),
		Browser:   a.extractBrowser(c.Request.UserAgent()),
		CreatedAt: time.Now(),
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&event).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", postID).
			UpdateColumn("views", gorm.Expr("views + ?", 1)).Error
	})
	if err != nil {
		common.Log.WithError(err).WithField("post_id", postID).Error("error saving view")
		return false
	}
	return true
}

func (a *AnalyticsModule) getOrCreateCookieID(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	data := time.Now().String() + c.ClientIP() + c.Request.UserAgent()
	hash := sha256.Sum256([]byte(data))
	cookieID := hex.EncodeToString(hash[:])

	c.SetCookie(cookieName, cookieID, 60*60*24*365*2, "/", "", false, true)
	return cookieID
}

// getClientIP prefers proxy headers over the socket address.
func (a *AnalyticsModule) getClientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func (a *AnalyticsModule) extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// more specific names first
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	default:
		browser = "Other"
	}
	return &browser
}

// extractLanguage keeps the first entry of Accept-Language without its q value.
func (a *AnalyticsModule) extractLanguage(c *gin.Context) *string {
	acceptLang := c.GetHeader("Accept-Language")
	if acceptLang == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(strings.Split(acceptLang, ",")[0], ";")[0])
	return &lang
}

type PostViews struct {
	PostID uint   `json:"post_id"`
	Title  string `json:"title"`
	Views  uint   `json:"views"`
}

// TopPosts returns the most viewed published posts.
func (a *AnalyticsModule) TopPosts(limit int) []PostViews {
	if a == nil || a.db == nil {
		return []PostViews{}
	}

	results := []PostViews{}
	err := a.db.Model(&models.Post{}).
		Select("id AS post_id, title, views").
		Where("status = ? AND views > 0", models.StatusPublished).
		Order("views DESC, id").
		Limit(limit).
		Scan(&results).Error
	if err != nil {
		common.Log.WithError(err).Error("error loading top posts")
		return []PostViews{}
	}
	return results
}

type DayViews struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ViewsByDay counts views for each of the last days days, oldest first,
// including days without views.
func (a *AnalyticsModule) ViewsByDay(days int) []DayViews {
	if a == nil || a.db == nil || days <= 0 {
		return []DayViews{}
	}

	var events []ViewEvent
	err := a.db.Select("created_at").
		Where("created_at >= ?", time.Now().AddDate(0, 0, -days)).
		Find(&events).Error
	if err != nil {
		common.Log.WithError(err).Error("error loading views by day")
		return []DayViews{}
	}

	counts := map[string]int64{}
	for _, e := range events {
		counts[e.CreatedAt.Local().Format("2006-01-02")]++
	}

	out := make([]DayViews, days)
	for i := 0; i < days; i++ {
		date := time.Now().AddDate(0, 0, -(days - 1 - i)).Format("2006-01-02")
		out[i] = DayViews{Date: date, Count: counts[date]}
	}
	return out
}
