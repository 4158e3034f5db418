package api

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"
)

// Version is reported by the health endpoint. Overridden at build time.
var Version = "1.0.0"

// HealthHandler responds to health check requests. A failing database ping
// turns the response into 503.
func HealthHandler(db *gorm.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code, database := "ok", http.StatusOK, "ok"
		if err := ping(r, db); err != nil {
			status, code, database = "degraded", http.StatusServiceUnavailable, err.Error()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{
			"status":   status,
			"version":  Version,
			"database": database,
		})
	}
}

func ping(r *http.Request, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(r.Context())
}

// RootHandler answers the bare root path so uptime checks have a target.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "SavePad API online",
	})
}
