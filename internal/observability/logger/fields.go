package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// HTTP

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

// Login flow

// Provider names the identity provider, e.g. "exact".
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Format is the profile representation requested (json or xml).
func Format(v string) zap.Field { return zap.String("format", v) }

func UserID(v string) zap.Field { return zap.String("user_id", v) }

func SessionID(v string) zap.Field { return zap.String("session_id", v) }

// Email logs a masked address: jan.smit@mail.nl becomes j…@m….nl.
func Email(v string) zap.Field { return zap.String("email", maskEmail(v)) }

func maskEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		switch {
		case s == "":
			return ""
		case len(s) <= 3:
			return "***"
		}
		return s[:1] + "…" + s[len(s)-1:]
	}
	if len(local) > 1 {
		local = local[:1] + "…"
	}
	host, rest, _ := strings.Cut(domain, ".")
	if len(host) > 1 {
		host = host[:1] + "…"
	}
	if rest == "" {
		return local + "@" + host
	}
	return local + "@" + host + "." + rest
}

// Division is the Exact Online administration the user last worked in.
func Division(v int) zap.Field { return zap.Int("division", v) }

// System

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

// Layer is handler, service or repository.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

func String(key, v string) zap.Field { return zap.String(key, v) }
