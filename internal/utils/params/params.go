// Package params reads typed values from gin path and query parameters.
package params

import (
	"strconv"

	"github.com/gin-gonic/gin"

	svcErr "github.com/oggyb/tweetheart/internal/errors"
)

// PathID parses a positive integer path parameter.
func PathID(c *gin.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, svcErr.InvalidArgument(name + " must be a positive integer")
	}
	return id, nil
}

// QueryInt parses an integer query parameter, def when absent.
func QueryInt(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, svcErr.InvalidArgument(name + " must be an integer")
	}
	return n, nil
}

// QueryBool parses a boolean query parameter, false when absent.
func QueryBool(c *gin.Context, name string) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, svcErr.InvalidArgument(name + " must be a boolean")
	}
	return v, nil
}

// QueryString returns a pointer to a non-empty query parameter, nil otherwise.
func QueryString(c *gin.Context, name string) *string {
	if v := c.Query(name); v != "" {
		return &v
	}
	return nil
}
