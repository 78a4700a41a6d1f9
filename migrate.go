package realtime

import (
	"log"

	model "github.com/jazbelrose/mylg-realtime/models"
)

func (c *RealtimeEngine) AutoMigrate() error {
	db := c.config.DB
	if db == nil {
		return nil
	}
	log.Println("AutoMigrate...")
	return db.AutoMigrate(
		&model.ChatMessage{},
		&model.ThreadSummary{},
		&model.Notification{},
		&model.ProjectMember{},
	)
}
