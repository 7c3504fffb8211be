package config

type Config struct {
	// App: global application metadata
	App InConfigAppConfig `mapstructure:"app"`

	// Server: network configuration and execution environment
	Server ServerConfig `mapstructure:"server"`

	// Storage: photo tree location and derivative side directories
	Storage StorageConfig `mapstructure:"storage"`

	// Image: upload constraints and derivative encoder behavior
	Image ImageConfig `mapstructure:"image"`

	// Cache: in-memory thumbnail cache settings to reduce disk I/O
	Cache CacheConfig `mapstructure:"cache"`

	// Security: admin credentials, session signing, CORS, rate limits
	Security SecurityConfig `mapstructure:"security"`

	// BaseURL: the public-facing root URL used for absolute link generation
	BaseURL string `mapstructure:"base_url"`
}

type InConfigAppConfig struct {
	// Name: identity of the service used in logs (e.g., "Mio Gallery")
	Name string `mapstructure:"name"`

	// Version: application semantic version
	Version string `mapstructure:"version"`
}

type ServerConfig struct {
	// Port: the TCP port the HTTP server will bind to (default: 5088)
	Port int `mapstructure:"port"`

	// Env: execution context (development, staging, production)
	Env string `mapstructure:"env"`
}

type StorageConfig struct {
	// PhotoDir: root of the photo tree ({root}/{YYYY}/{MM}/...). The
	// metadata document, descriptions, thumbnails and download JPEGs
	// live in fixed locations under this root.
	PhotoDir string `mapstructure:"photo_dir"`
}

type ImageConfig struct {
	// MaxUploadSize: maximum payload size per uploaded file (e.g., "50MB")
	MaxUploadSize string `mapstructure:"max_upload_size"`

	// RawExtensions: camera RAW extensions decoded via the external RAW
	// pipeline. Uploads with these extensions are rejected when no RAW
	// decoder binary is found on PATH.
	RawExtensions []string `mapstructure:"raw_extensions"`

	// RawDecoder: name of the RAW decoder binary looked up on PATH
	RawDecoder string `mapstructure:"raw_decoder"`

	// AvifEnabled: toggles AVIF derivative generation. When off (or when
	// encoding fails) uploads still succeed with WebP only.
	AvifEnabled bool `mapstructure:"avif_enabled"`
}

type CacheConfig struct {
	// Enabled: toggles the in-memory thumbnail caching layer
	Enabled bool `mapstructure:"enabled"`

	// MaxCapacity: maximum RAM allocated for cache in MB (e.g., 100)
	MaxCapacity int `mapstructure:"max_capacity"`

	// TTL: expiration time for cached items (e.g., "30m", "24h")
	TTL string `mapstructure:"ttl"`
}

type SecurityConfig struct {
	// AdminPasswordHash: bcrypt hash of the admin password
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	// AdminPassword: plaintext admin password, development fallback only.
	// Ignored when AdminPasswordHash is set.
	AdminPassword string `mapstructure:"admin_password"`

	// SessionSecret: key used to sign session cookies
	SessionSecret string `mapstructure:"session_secret"`

	// CorsOrigins: list of allowed domains for browser cross-origin requests
	CorsOrigins []string `mapstructure:"cors_origins"`

	// RateLimit: request throttling using a token-bucket algorithm
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	// Enabled: global toggle for the rate limiting middleware
	Enabled bool `mapstructure:"enabled"`

	// Requests: number of allowed requests per time window
	Requests int `mapstructure:"requests"`

	// Window: the timeframe for the request limit (e.g., "1s", "1m")
	Window string `mapstructure:"window"`

	// Burst: temporary allowed spike capacity above the steady-rate limit
	Burst int `mapstructure:"burst"`
}
