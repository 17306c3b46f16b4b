package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

const (
	defaultChartDays = 15
	topPostsLimit    = 10
)

// DayVisitChart is one bar of the views-per-day chart, scaled against the
// busiest day.
type DayVisitChart struct {
	Date       string  `json:"date"`
	Count      int64   `json:"count"`
	Percentage float64 `json:"percentage"`
}

type PostVisitChart struct {
	PostID     uint    `json:"post_id"`
	PostTitle  string  `json:"post_title"`
	Count      uint    `json:"count"`
	Percentage float64 `json:"percentage"`
}

func (a *AdminModule) analyticsPage(c *gin.Context) {
	if a.analytics == nil {
		c.JSON(http.StatusOK, gin.H{"analytics_enabled": false})
		return
	}

	days := defaultChartDays
	if raw := c.Query("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 365 {
			days = n
		}
	}

	visitsByDay := a.analytics.ViewsByDay(days)
	topPosts := a.analytics.TopPosts(topPostsLimit)

	maxVisitsPerDay := int64(1)
	for _, day := range visitsByDay {
		if day.Count > maxVisitsPerDay {
			maxVisitsPerDay = day.Count
		}
	}

	maxVisitsPerPost := uint(1)
	for _, post := range topPosts {
		if post.Views > maxVisitsPerPost {
			maxVisitsPerPost = post.Views
		}
	}

	dayCharts := make([]DayVisitChart, len(visitsByDay))
	for i, day := range visitsByDay {
		dayCharts[i] = DayVisitChart{
			Date:       day.Date,
			Count:      day.Count,
			Percentage: float64(day.Count) / float64(maxVisitsPerDay) * 100,
		}
	}

	postCharts := make([]PostVisitChart, len(topPosts))
	for i, post := range topPosts {
		postCharts[i] = PostVisitChart{
			PostID:     post.PostID,
			PostTitle:  post.Title,
			Count:      post.Views,
			Percentage: float64(post.Views) / float64(maxVisitsPerPost) * 100,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"analytics_enabled": true,
		"views_by_day":      dayCharts,
		"top_posts":         postCharts,
	})
}
