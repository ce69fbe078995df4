package migration

import (
	"errors"

	appconfig "github.com/weaverun/weave/config"
)

// FromConfig builds a migrator for the application's database section.
func FromConfig(cfg *appconfig.Config) (*SQLMigrator, error) {
	if cfg == nil {
		return nil, errors.New("migration: config is required")
	}
	return FromDatabaseConfig(cfg.Database)
}

// FromDatabaseConfig builds a migrator from the database settings alone.
func FromDatabaseConfig(dbCfg appconfig.DatabaseConfig) (*SQLMigrator, error) {
	dbType, err := ParseDatabaseType(dbCfg.Driver)
	if err != nil {
		return nil, err
	}

	var url string
	switch dbType {
	case DatabaseTypeSQLite:
		// Name carries the file path for sqlite.
		url = BuildDatabaseURL(dbType, "", 0, dbCfg.Name, "", "", "")
	default:
		url = BuildDatabaseURL(dbType, dbCfg.Host, dbCfg.Port, dbCfg.Name,
			dbCfg.User, dbCfg.Password, dbCfg.SSLMode)
	}

	return New(&Config{DatabaseType: dbType, DatabaseURL: url})
}

// FromURL builds a migrator from an explicit driver name and URL.
func FromURL(driver, url string) (*SQLMigrator, error) {
	dbType, err := ParseDatabaseType(driver)
	if err != nil {
		return nil, err
	}
	return New(&Config{DatabaseType: dbType, DatabaseURL: url})
}
