package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultVAPIDSubject = "mailto:support@callsupport.app"

type Config struct {
	HTTPPort     string
	HTTPSPort    string
	Domain       string
	HTTPOnly     bool
	TURNPort     int
	TURNRealm    string
	TURNRelayIP  string
	DatabasePath string
	RoomTTL      time.Duration
	LogLevel     string
	JWTSecret    string
	VAPIDKeys    *VAPIDKeys
	// KeysDir holds generated secrets (JWT, VAPID, TURN credentials).
	KeysDir string
}

type VAPIDKeys struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// fileConfig is the shape of config.json. Secrets never live there.
type fileConfig struct {
	HTTPPort     string `json:"http_port"`
	HTTPSPort    string `json:"https_port"`
	Domain       string `json:"domain"`
	HTTPOnly     bool   `json:"http_only"`
	TURNPort     int    `json:"turn_port"`
	TURNRealm    string `json:"turn_realm"`
	DatabasePath string `json:"database_path"`
	RoomTTL      string `json:"room_ttl"`
	LogLevel     string `json:"log_level"`
}

// LoadFile reads config.json from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	cfg := &Config{
		HTTPPort:     fc.HTTPPort,
		HTTPSPort:    fc.HTTPSPort,
		Domain:       fc.Domain,
		HTTPOnly:     fc.HTTPOnly,
		TURNPort:     fc.TURNPort,
		TURNRealm:    fc.TURNRealm,
		DatabasePath: fc.DatabasePath,
		LogLevel:     fc.LogLevel,
	}
	if fc.RoomTTL != "" {
		ttl, err := time.ParseDuration(fc.RoomTTL)
		if err != nil {
			return nil, fmt.Errorf("invalid room_ttl %q: %w", fc.RoomTTL, err)
		}
		cfg.RoomTTL = ttl
	}
	return cfg, nil
}

// Load builds the server configuration: defaults, then config.json next to
// the executable, then environment, then the http-only flag.
func Load(httpOnly *bool) *Config {
	cfg, err := LoadFile(filepath.Join(executableDir(), "config.json"))
	if err == nil {
		fmt.Println("NOTE: Custom configuration loaded from config.json")
	} else {
		cfg = &Config{}
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if httpOnly != nil && *httpOnly {
		cfg.HTTPOnly = true
	}

	keysDir := getKeysDirectory()
	cfg.KeysDir = keysDir
	cfg.JWTSecret = loadOrGenerateJWTSecret(keysDir)
	cfg.VAPIDKeys = loadVAPIDKeys(keysDir)

	return cfg
}

func applyEnv(cfg *Config) {
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.HTTPSPort = getEnv("HTTPS_PORT", cfg.HTTPSPort)
	cfg.Domain = getEnv("DOMAIN", cfg.Domain)
	cfg.TURNPort = getEnvInt("TURN_PORT", cfg.TURNPort)
	cfg.TURNRealm = getEnv("TURN_REALM", cfg.TURNRealm)
	cfg.TURNRelayIP = getEnv("TURN_RELAY_IP", cfg.TURNRelayIP)
	cfg.DatabasePath = getEnv("DATABASE_PATH", cfg.DatabasePath)
	cfg.RoomTTL = getEnvDuration("ROOM_TTL", cfg.RoomTTL)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
}

func applyDefaults(cfg *Config) {
	if cfg.HTTPPort == "" {
		cfg.HTTPPort = "8080"
	}
	if cfg.HTTPSPort == "" {
		cfg.HTTPSPort = "8443"
	}
	if cfg.Domain == "" {
		cfg.Domain = "localhost"
	}
	if cfg.TURNPort == 0 {
		cfg.TURNPort = 3478
	}
	if cfg.TURNRealm == "" {
		cfg.TURNRealm = "callsupport"
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "callsupport.db"
	}
	if cfg.RoomTTL <= 0 {
		cfg.RoomTTL = 2 * time.Minute
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// ParseLogLevel maps LOG_LEVEL values to slog levels; unknown values are info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func executableDir() string {
	execPath, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(execPath)
}

func getKeysDirectory() string {
	return filepath.Join(executableDir(), "keys")
}

func generateRandomSecret() string {
	bytes := make([]byte, 32)
	rand.Read(bytes)
	return base64.URLEncoding.EncodeToString(bytes)
}

func loadOrGenerateJWTSecret(keysDir string) string {
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		return secret
	}

	secretFile := filepath.Join(keysDir, "jwt-secret.key")
	if secretData, err := os.ReadFile(secretFile); err == nil {
		if secret := strings.TrimSpace(string(secretData)); secret != "" {
			return secret
		}
	}

	secret := generateRandomSecret()
	if err := os.MkdirAll(keysDir, 0700); err == nil {
		if err := os.WriteFile(secretFile, []byte(secret), 0600); err != nil {
			fmt.Printf("Warning: Failed to save JWT secret to disk: %v\n", err)
		}
	}
	return secret
}

// loadVAPIDKeys returns web push keys from env, then keys/, generating and
// saving a new pair when neither has a usable one.
func loadVAPIDKeys(keysDir string) *VAPIDKeys {
	subject := getEnv("VAPID_SUBJECT", defaultVAPIDSubject)

	if pub, priv := os.Getenv("VAPID_PUBLIC_KEY"), os.Getenv("VAPID_PRIVATE_KEY"); pub != "" && priv != "" {
		return &VAPIDKeys{PublicKey: pub, PrivateKey: priv, Subject: subject}
	}

	publicKeyFile := filepath.Join(keysDir, "vapid-public.key")
	privateKeyFile := filepath.Join(keysDir, "vapid-private.key")
	subjectFile := filepath.Join(keysDir, "vapid-subject.key")

	pubData, pubErr := os.ReadFile(publicKeyFile)
	privData, privErr := os.ReadFile(privateKeyFile)
	if pubErr == nil && privErr == nil {
		priv := strings.TrimSpace(string(privData))
		// The webpush library wants the raw 32-byte scalar, not PKCS#8.
		if decoded, err := base64.RawURLEncoding.DecodeString(priv); err == nil && len(decoded) == 32 {
			if subjectData, err := os.ReadFile(subjectFile); err == nil {
				subject = strings.TrimSpace(string(subjectData))
			}
			return &VAPIDKeys{PublicKey: strings.TrimSpace(string(pubData)), PrivateKey: priv, Subject: subject}
		}
		fmt.Println("WARNING: stored VAPID private key is unusable, regenerating")
	}

	keys, err := generateVAPIDKeys(subject)
	if err != nil {
		panic("Failed to generate VAPID keys: " + err.Error())
	}
	if err := saveVAPIDKeys(keysDir, keys); err != nil {
		fmt.Printf("Warning: Failed to save VAPID keys to disk: %v\n", err)
	}
	return keys
}

func generateVAPIDKeys(subject string) (*VAPIDKeys, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	// Uncompressed point: 0x04 || X || Y.
	pub := make([]byte, 65)
	pub[0] = 0x04
	key.PublicKey.X.FillBytes(pub[1:33])
	key.PublicKey.Y.FillBytes(pub[33:65])

	priv := make([]byte, 32)
	key.D.FillBytes(priv)

	return &VAPIDKeys{
		PublicKey:  base64.RawURLEncoding.EncodeToString(pub),
		PrivateKey: base64.RawURLEncoding.EncodeToString(priv),
		Subject:    subject,
	}, nil
}

func saveVAPIDKeys(keysDir string, keys *VAPIDKeys) error {
	if err := os.MkdirAll(keysDir, 0700); err != nil {
		return fmt.Errorf("failed to create keys directory: %w", err)
	}
	files := map[string]string{
		"vapid-public.key":  keys.PublicKey,
		"vapid-private.key": keys.PrivateKey,
		"vapid-subject.key": keys.Subject,
	}
	for name, value := range files {
		if err := os.WriteFile(filepath.Join(keysDir, name), []byte(value), 0600); err != nil {
			return fmt.Errorf("failed to save %s: %w", name, err)
		}
	}
	return nil
}
