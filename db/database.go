package db

import (
	"database/sql"
	"fmt"
	"time"

	"storycast/config"

	_ "github.com/go-sql-driver/mysql"
)

var DB *sql.DB

// InitDB 初始化数据库连接
func InitDB(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	DB, err = sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	return nil
}

// InitSchema 创建任务表
func InitSchema() error {
	jobsTable := `
	CREATE TABLE IF NOT EXISTS jobs (
		id VARCHAR(36) PRIMARY KEY,
		world VARCHAR(64) NOT NULL,
		owner_id VARCHAR(64) NOT NULL,
		language VARCHAR(16) NOT NULL,
		variant VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		segments JSON NOT NULL,
		file_count INT NOT NULL DEFAULT 0,
		program_url VARCHAR(512) NOT NULL DEFAULT '',
		manifest JSON NULL,
		error_message TEXT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		started_at TIMESTAMP NULL,
		completed_at TIMESTAMP NULL,
		INDEX idx_jobs_status (status),
		INDEX idx_jobs_key (world, owner_id, language, variant)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	if _, err := DB.Exec(jobsTable); err != nil {
		return fmt.Errorf("failed to create jobs table: %w", err)
	}

	return nil
}

// CloseDB 关闭数据库连接
func CloseDB() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
