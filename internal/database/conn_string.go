package database

import (
	"fmt"
	"net/url"

	"github.com/rickgao/quotestream/internal/config"
)

// BuildConnString builds a PostgreSQL connection URL for the recorder's
// pool. Reserved characters in the password are escaped.
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, sslMode)
}
