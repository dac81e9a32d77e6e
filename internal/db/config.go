package db

import (
	"time"

	"github.com/go-sql-driver/mysql"
)

type MariaDbConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration // seconds
}

var mysqlParseDSN = mysql.ParseDSN
