package httputil

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// ParsePagination reads the offset and limit query parameters of list and
// search endpoints.
func ParsePagination(c *gin.Context) (offset, limit int, err error) {
	offset, limit = 0, DefaultLimit
	if raw, ok := c.GetQuery("offset"); ok {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset parameter: must be a non-negative integer")
		}
	}
	if raw, ok := c.GetQuery("limit"); ok {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 1 || limit > MaxLimit {
			return 0, 0, fmt.Errorf("invalid limit parameter: must be between 1 and %d", MaxLimit)
		}
	}
	return offset, limit, nil
}

// ParseTimeQuery parses an optional RFC 3339 query parameter. A missing
// parameter yields nil.
func ParseTimeQuery(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s parameter: must be an RFC 3339 timestamp", name)
	}
	ts = ts.UTC()
	return &ts, nil
}

// ParseUUIDParam parses a UUID path parameter.
func ParseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s parameter: must be a valid UUID", name)
	}
	return id, nil
}
