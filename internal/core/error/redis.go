package errx

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
)

// WrapRedis maps checkpoint store Redis failures to the unified error type:
// a missing key is 404, an aborted MULTI/EXEC is 409, a timeout is 504 and
// anything else is 502.
func WrapRedis(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.Nil):
		return New(err, http.StatusNotFound, RedisNotFoundMessage)
	case errors.Is(err, redis.TxFailedErr):
		return New(err, http.StatusConflict, RedisErrorMessage)
	case isTimeout(err):
		return New(err, http.StatusGatewayTimeout, RedisErrorMessage)
	default:
		return New(err, http.StatusBadGateway, RedisErrorMessage)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
