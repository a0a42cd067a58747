package db

import (
	"fmt"
	"time"

	"storycast/config"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var GormDB *gorm.DB

// ProgramRun 每次流水线执行的审计记录。成功与失败都落库，
// 用于排查重复生成和降级原因。
type ProgramRun struct {
	ID             uint      `gorm:"primaryKey"`
	JobID          string    `gorm:"type:varchar(36);index"`
	World          string    `gorm:"type:varchar(64)"`
	OwnerID        string    `gorm:"type:varchar(64);index"`
	Language       string    `gorm:"type:varchar(16)"`
	Variant        string    `gorm:"type:varchar(16)"`
	Succeeded      bool      `gorm:"index"`
	Degraded       bool      // 归一化降级等非致命问题
	TargetLUFS     float64   // 本次使用的响度目标
	SegmentCount   int
	RecordingCount int
	ProgramSecs    float64 // 成品节目时长
	DurationMs     int64   // 流水线耗时
	FailReason     string `gorm:"type:text"`
	CreatedAt      time.Time
}

func (ProgramRun) TableName() string {
	return "program_runs"
}

// InitGorm 初始化Gorm连接并迁移审计表。新模块统一走Gorm。
func InitGorm(cfg *config.Config) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	var err error
	GormDB, err = gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return fmt.Errorf("failed to open gorm connection: %w", err)
	}

	if err := GormDB.AutoMigrate(&ProgramRun{}); err != nil {
		return fmt.Errorf("failed to migrate program_runs: %w", err)
	}

	return nil
}
