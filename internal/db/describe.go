package db

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Target is a password-free description of a DSN, safe to log.
type Target struct {
	Type        string `json:"type"`
	Host        string `json:"host,omitempty"`
	Port        int    `json:"port,omitempty"`
	User        string `json:"user,omitempty"`
	Name        string `json:"name,omitempty"`
	SSLMode     string `json:"ssl_mode,omitempty"`
	Path        string `json:"path,omitempty"`
	PasswordSet bool   `json:"password_set"`
}

// String renders the target for log lines.
func (t Target) String() string {
	if t.Type == DialectSQLite {
		return fmt.Sprintf("sqlite path=%s", t.Path)
	}
	return fmt.Sprintf("postgres host=%s port=%d db=%s user=%s sslmode=%s", t.Host, t.Port, t.Name, t.User, t.SSLMode)
}

// Describe parses dsn into a Target without exposing the password.
func Describe(dsn string) (Target, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return Target{}, fmt.Errorf("empty dsn")
	}

	if !isPostgresDSN(trimmed) {
		pathPart := trimmed
		if strings.HasPrefix(strings.ToLower(pathPart), "file:") {
			pathPart = pathPart[len("file:"):]
		}
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return Target{Type: DialectSQLite, Path: strings.TrimSpace(pathPart)}, nil
	}

	if !strings.Contains(trimmed, "://") {
		return describeKeyValue(trimmed), nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return Target{}, fmt.Errorf("parse dsn: %w", errParse)
	}
	port := 5432
	if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
		parsedPort, errPort := strconv.Atoi(rawPort)
		if errPort != nil {
			return Target{}, fmt.Errorf("parse port: %w", errPort)
		}
		port = parsedPort
	}
	username := ""
	passwordSet := false
	if u.User != nil {
		username = strings.TrimSpace(u.User.Username())
		_, passwordSet = u.User.Password()
	}
	sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
	if sslMode == "" {
		sslMode = "prefer"
	}
	return Target{
		Type:        DialectPostgres,
		Host:        strings.TrimSpace(u.Hostname()),
		Port:        port,
		User:        username,
		Name:        strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
		SSLMode:     sslMode,
		PasswordSet: passwordSet,
	}, nil
}

func describeKeyValue(dsn string) Target {
	target := Target{Type: DialectPostgres, Port: 5432, SSLMode: "prefer"}
	for _, field := range strings.Fields(dsn) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		value = strings.Trim(value, "'")
		switch strings.ToLower(key) {
		case "host":
			target.Host = value
		case "port":
			if parsed, errPort := strconv.Atoi(value); errPort == nil {
				target.Port = parsed
			}
		case "user":
			target.User = value
		case "dbname":
			target.Name = value
		case "sslmode":
			target.SSLMode = value
		case "password":
			target.PasswordSet = value != ""
		}
	}
	return target
}
