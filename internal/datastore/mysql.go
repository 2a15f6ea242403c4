package datastore

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tphakala/trackid-go/internal/conf"
	"github.com/tphakala/trackid-go/internal/errors"
)

func mysqlDSN(cfg conf.MySQLSettings) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Database)
}

func mysqlDialector(cfg conf.MySQLSettings) (gorm.Dialector, error) {
	if cfg.Host == "" || cfg.Database == "" || cfg.Username == "" {
		return nil, errors.Newf("mysql requires host, database and username").
			Component("datastore").
			Category(errors.CategoryConfiguration).
			Context("host", cfg.Host).
			Context("database", cfg.Database).
			Build()
	}
	return mysql.Open(mysqlDSN(cfg)), nil
}
