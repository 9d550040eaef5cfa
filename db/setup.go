package db

import (
	"fmt"

	mysqlcfg "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/monocle-dev/oncall/internal/models"
)

// Open connects to the database for driver ("postgres" or "mysql").
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch driver {
	case "postgres":
		// lib/pq registers itself as "postgres"; gorm only supplies the dialect.
		dialector = postgres.New(postgres.Config{DriverName: "postgres", DSN: dsn})
	case "mysql":
		normalized, err := mysqlDSN(dsn)
		if err != nil {
			return nil, err
		}
		dialector = mysql.Open(normalized)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	return conn, nil
}

// mysqlDSN forces parseTime so DATE and DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysqlcfg.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}

	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

func Migrate(conn *gorm.DB) error {
	models := []interface{}{
		&models.User{},
		&models.Team{},
		&models.Service{},
		&models.TeamMembership{},
		&models.Schedule{},
		&models.ScheduleMember{},
		&models.Assignment{},
		&models.Incident{},
		&models.IncidentUpdate{},
		&models.IncidentAcknowledgment{},
		&models.NotificationLog{},
		&models.EscalationLog{},
		&models.AckToken{},
	}

	for _, model := range models {
		if err := conn.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}

	return nil
}
