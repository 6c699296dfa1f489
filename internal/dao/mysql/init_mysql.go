// Package mysql is the cloud document store backend: one documents table in MySQL
// accessed through GORM. Several server instances can share it; live updates between
// them travel over the change feed, not through this package.
package mysql

import (
	"fmt"

	"support_chat_server/internal/config"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to MySQL, migrates the documents table and returns the backend.
func Open(conf *config.MysqlConfig) (*Store, error) {
	// user:password@tcp(host:port)/database?params
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		conf.User,
		conf.Password,
		conf.Host,
		conf.Port,
		conf.DatabaseName,
	)

	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{
		TranslateError: true, // duplicate keys surface as gorm.ErrDuplicatedKey
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect mysql: %w", err)
	}

	// creates the table and window index when missing, never drops columns
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}

	zap.L().Info("mysql document store ready",
		zap.String("host", conf.Host),
		zap.String("database", conf.DatabaseName),
	)
	return NewStore(db), nil
}
