package db

import (
	"context"
	"fmt"
	"time"

	"zhutalk/internal/models"
	"zhutalk/internal/utils"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to PostgreSQL and configures the pool.
func Open(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	log.Info().Msg("Database connection established")
	return gdb, nil
}

// Ping checks the connection for the health endpoint.
func Ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// SeedOptions describes the demo data created by Seed.
type SeedOptions struct {
	AdminEmail    string
	AdminPassword string
	ArticleSlug   string
	ArticleTitle  string
}

// Seed creates an admin account and one published article when the users
// table is empty. It is a no-op otherwise.
func Seed(gdb *gorm.DB, opts SeedOptions) error {
	// 检查是否已有用户数据
	var count int64
	if err := gdb.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info().Msg("Users already seeded, skipping")
		return nil
	}

	hash, err := utils.HashPassword(opts.AdminPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return gdb.Transaction(func(tx *gorm.DB) error {
		admin := models.User{
			Username: "admin",
			Email:    opts.AdminEmail,
			Password: hash,
			Avatar:   utils.RandomAvatar(),
			Role:     models.RoleAdmin,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		article := models.Article{
			Slug:   opts.ArticleSlug,
			UserID: admin.ID,
			Title:  opts.ArticleTitle,
			Status: models.ArticleStatusPublished,
		}
		if err := tx.Create(&article).Error; err != nil {
			return fmt.Errorf("create article: %w", err)
		}
		log.Info().Uint("article_id", article.ID).Str("email", admin.Email).Msg("Initial data created successfully")
		return nil
	})
}
