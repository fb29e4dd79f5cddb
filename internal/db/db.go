// Package db opens the gorm handle and prepares the schema.
package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/convault/convault/internal/models"
)

// Connect opens the database for the given DSN. A DSN containing "@tcp("
// is treated as MySQL; anything else (file path, file: URI, :memory:) is
// opened with the pure-Go sqlite driver, which is the local default.
func Connect(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.Contains(dsn, "@tcp(") {
		dialector = mysql.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	return gdb, nil
}

// Migrate creates the schema and seeds the provider reference rows.
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("db: migrate: %w", err)
	}
	return seedProviders(gdb)
}

func seedProviders(gdb *gorm.DB) error {
	seed := []models.Provider{
		{
			Name:          "openai",
			DisplayName:   "OpenAI / ChatGPT",
			BaseAPIURL:    ptr("https://api.openai.com/v1"),
			SchemaVersion: ptr("1.0"),
			Notes:         ptr("OpenAI ChatGPT provider"),
		},
		{
			Name:          "anthropic",
			DisplayName:   "Anthropic / Claude",
			BaseAPIURL:    ptr("https://api.anthropic.com/v1"),
			SchemaVersion: ptr("1.0"),
			Notes:         ptr("Anthropic Claude provider"),
		},
	}
	for _, p := range seed {
		var existing models.Provider
		err := gdb.Where("name = ?", p.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return fmt.Errorf("db: seed lookup %s: %w", p.Name, err)
		}
		if err := gdb.Create(&p).Error; err != nil {
			return fmt.Errorf("db: seed %s: %w", p.Name, err)
		}
	}
	return nil
}

func ptr(s string) *string { return &s }
