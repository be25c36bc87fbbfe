package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the JSON view of pgxpool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// Check is a named dependency probe reported by HealthHandler.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler pings every dependency and reports 503 if any fails. When
// pool is non-nil its statistics are included.
func HealthHandler(pool *pgxpool.Pool, checks ...Check) echo.HandlerFunc {
	if pool != nil {
		checks = append([]Check{{Name: "postgres", Ping: pool.Ping}}, checks...)
	}
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				results[chk.Name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[chk.Name] = "ok"
		}

		body := map[string]interface{}{"status": "healthy", "checks": results}
		if status != http.StatusOK {
			body["status"] = "unhealthy"
		}
		if pool != nil {
			body["pool"] = GetPoolStats(pool)
		}
		return c.JSON(status, body)
	}
}
