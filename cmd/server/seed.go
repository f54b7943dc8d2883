package main

import (
	"errors"
	"os"

	"zhutalk/internal/db"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var seedOpts db.SeedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create an admin account and a published article on an empty database",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedOpts.AdminPassword == "" {
			seedOpts.AdminPassword = os.Getenv("ADMIN_PASSWORD")
		}
		if seedOpts.AdminPassword == "" {
			return errors.New("admin password required (--admin-password or ADMIN_PASSWORD)")
		}
		return withDB(func(gdb *gorm.DB) error {
			if err := db.MigrateUp(gdb); err != nil {
				return err
			}
			return db.Seed(gdb, seedOpts)
		})
	},
}

func init() {
	f := seedCmd.Flags()
	f.StringVar(&seedOpts.AdminEmail, "admin-email", "admin@zhutalk.local", "admin account email")
	f.StringVar(&seedOpts.AdminPassword, "admin-password", "", "admin account password (or ADMIN_PASSWORD)")
	f.StringVar(&seedOpts.ArticleSlug, "article-slug", "hello-zhutalk", "slug of the demo article")
	f.StringVar(&seedOpts.ArticleTitle, "article-title", "欢迎来到竹谈", "title of the demo article")
}
