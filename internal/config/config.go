package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr        string
	StoreDriver string // postgres, sqlite or memory
	DatabaseURL string
	SQLiteDSN   string
	SchemaDir   string
	JWTSecret   string
	JWTTTLMin   int
	UploadDir   string
	CORSOrigins string
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val != "" {
		return val
	}
	return def
}

func MustLoad() Config {
	jwtttl, _ := strconv.Atoi(getenv("JWT_TTL_MIN", "1440"))

	return Config{
		Addr:        getenv("HTTP_ADDR", ":8080"),
		StoreDriver: getenv("STORE_DRIVER", "postgres"),
		DatabaseURL: getenv("DATABASE_URL", ""),
		SQLiteDSN:   getenv("SQLITE_DSN", "file:sapa.db?_pragma=foreign_keys(ON)"),
		SchemaDir:   getenv("SCHEMA_DIR", "sql"),
		JWTSecret:   getenv("JWT_SECRET", ""),
		JWTTTLMin:   jwtttl,
		UploadDir:   getenv("UPLOAD_DIR", "./uploads"),
		CORSOrigins: getenv("CORS_ORIGINS", "http://localhost:3000"),
	}
}
