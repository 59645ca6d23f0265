// Package redisconn turns deployment Redis connection strings into client
// options.
package redisconn

import (
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Options parses connStr as a redis:// URL, falling back to the managed
// cache format "host:port,password=...,ssl=true" when the URL form does not
// parse. Unknown key=value parts are ignored.
func Options(connStr string) *redis.Options {
	opts, err := redis.ParseURL(connStr)
	if err == nil {
		return opts
	}
	parts := strings.Split(connStr, ",")
	opts = &redis.Options{Addr: parts[0]}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(kv[0]) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.ToLower(kv[1]) == "true" {
				opts.TLSConfig = &tls.Config{}
			}
		}
	}
	return opts
}
