package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/hongbietcode/voice-to-slide/internal/job"
)

// Connect opens the MySQL connection and runs migrations.
// Both binaries call this at startup; failure is fatal.
func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	if err := gdb.AutoMigrate(&job.Job{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return gdb
}
