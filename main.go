package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"weblog/admin"
	"weblog/analytics"
	"weblog/archive"
	"weblog/blog"
	"weblog/cache"
	"weblog/common"
	"weblog/content"
	"weblog/database"
	"weblog/fulltext"
	"weblog/site"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [serve|reindex|createuser [-email E -password P]]\n", os.Args[0])
	os.Exit(2)
}

func main() {
	common.LoadDotEnvs()
	cfg := common.LoadConfig()
	common.InitLogger(cfg.LogLevel)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	db, dialect, err := common.ConnectDb(cfg)
	if err != nil {
		common.Log.WithError(err).Fatal("failed to connect to database")
	}
	if err := database.RunMigrations(db, dialect); err != nil {
		common.Log.WithError(err).Fatal("failed to run migrations")
	}

	switch cmd {
	case "serve":
		serve(cfg, db, dialect)
	case "reindex":
		n, err := content.NewStore(db, dialect).Reindex(context.Background())
		if err != nil {
			common.Log.WithError(err).Fatal("reindex failed")
		}
		common.Log.WithField("count", n).Info("reindex done")
	case "createuser":
		fs := flag.NewFlagSet("createuser", flag.ExitOnError)
		email := fs.String("email", cfg.AdminEmail, "author email (default $ADMIN_EMAIL)")
		password := fs.String("password", cfg.AdminPassword, "author password (default $ADMIN_PASSWORD)")
		fs.Parse(os.Args[2:])

		if _, err := admin.CreateUser(db, *email, *password); err != nil {
			common.Log.WithError(err).Fatal("createuser failed")
		}
	default:
		usage()
	}
}

func serve(cfg common.Config, db *gorm.DB, dialect fulltext.Dialect) {
	if cfg.SessionSecret == "" {
		common.Log.Fatal("SESSION_SECRET environment variable not set")
	}

	router := gin.Default()
	router.Use(cors.Default())

	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	sessionStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
	})
	router.Use(sessions.Sessions("weblog-session", sessionStore))

	responseCache := cache.New(cfg.CacheDir, cfg.CacheMaxAge)
	router.Use(responseCache.Middleware())
	if cfg.CacheMaxAge > 0 {
		go func() {
			for range time.Tick(cfg.CacheMaxAge) {
				if err := responseCache.ClearOld(); err != nil {
					common.Log.WithError(err).Warn("error clearing old cache files")
				}
			}
		}()
	}

	store := content.NewStore(db, dialect)
	store.OnChange(responseCache.ClearOnChange)

	analyticsModule := analytics.NewAnalyticsModule(db)

	blogModule := blog.NewBlogModule(db, dialect, analyticsModule)
	blogModule.RegisterRoutes(router)

	adminModule := admin.NewAdminModule(db, store, archive.NewArchive(db, dialect), analyticsModule)
	adminModule.RegisterRoutes(router)

	siteModule := site.NewSiteModule(db, cfg.Domain)
	siteModule.RegisterRoutes(router)

	common.Log.WithField("port", cfg.Port).Info("starting server")
	if err := router.Run(":" + cfg.Port); err != nil {
		common.Log.WithError(err).Fatal("failed to start server")
	}
}
