package cfg

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/product-matcher/pkg/e"
	"github.com/DRSN-tech/product-matcher/pkg/logger"
	"github.com/jimlawless/whereami"
	"github.com/joho/godotenv"
)

const (
	// ModelBackendLocal включает встроенную модель: average pooling цветов по сетке без сверточной сети.
	// Различает товары по цвету и грубой композиции кадра, но не по форме и надписям, поэтому годится
	// для разработки и тестов. Для точного распознавания нужен ModelBackendRemote с CNN в ML-сервисе.
	ModelBackendLocal  = "local"
	ModelBackendRemote = "remote"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Store      *StoreCfg
	Catalog    *CatalogCfg
	Extractor  *ExtractorCfg
	Ml         *MLServiceCfg
	Query      *QueryCfg
	Cache      *CacheCfg
	Http       *HTTPConfig
	Grpc       *GRPCConfig
	Redis      *RedisCfg
	Minio      *MinIOCfg
	Kafka      *KafkaCfg
	Db         *PGDBCfg
	Downloader *DownloaderCfg
}

type StoreCfg struct {
	Path string // Путь к бинарному файлу хранилища эмбеддингов
}

type CatalogCfg struct {
	CSVPath         string   // CSV с метаданными каталога
	ImagesDir       string   // Локальная директория с изображениями <id>.<ext>
	ImageExtensions []string // Расширения в порядке перебора
	BuildWorkers    int      // Параллельность построения каталога
}

type ExtractorCfg struct {
	Backend       string // local (слабый baseline) | remote
	WeightsPath   string // PMWT-файл проекции, пусто = без проекции
	InputSize     int
	PoolGrid      int
	MaxConcurrent int // Размер пула воркеров вокруг модели
}

type MLServiceCfg struct {
	Addr       string
	MaxRetries int
	Timeout    time.Duration
}

type QueryCfg struct {
	DefaultTopK int
	MaxTopK     int
	Timeout     time.Duration
}

type CacheCfg struct {
	Type string // none | memory | redis
	TTL  time.Duration
	Size int
}

type HTTPConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxUploadBytes int64
	RateLimit      float64 // запросов в секунду на IP, 0 = без ограничения
	RateBurst      int
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
}

type MinIOCfg struct {
	MinioEndpoint     string // Адрес MinIO, пусто = MinIO не используется
	BucketName        string // Бакет для изображений и артефактов
	MinioRootUser     string
	MinioRootPassword string
	MinioUseSSL       bool
	ImagesPrefix      string // Префикс ключей изображений каталога
	StoreObjectKey    string // Ключ артефакта хранилища
	UploadImagesLimit int    // Лимит одновременных загрузок в S3
}

type KafkaCfg struct {
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type PGDBCfg struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string // Пусто = журнал сборок отключен
	SSLMode        string
	MigrationsPath string
}

type DownloaderCfg struct {
	Timeout      time.Duration
	MaxRetries   int
	Workers      int
	RatePerSec   float64
	MaxFileBytes int64
	MirrorToS3   bool
}

func (c *MinIOCfg) Enabled() bool { return c.MinioEndpoint != "" && c.BucketName != "" }
func (c *KafkaCfg) Enabled() bool { return len(c.Brokers) > 0 && c.Topic != "" }
func (c *PGDBCfg) Enabled() bool  { return c.DBName != "" }

// Load загружает .env (если есть) и переменные окружения, возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("failed to load .env: %v", err)
	}

	catalog, err := loadCatalogCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	extractor, err := loadExtractorCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	ml, err := loadMLServiceCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	query, err := loadQueryCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	cache, err := loadCacheCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minio, err := loadMinIOCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	downloader, err := loadDownloaderCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if cache.Type == CacheRedis && redis.Addr == "" {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("CACHE_TYPE=redis requires REDIS_ADDR"))
	}

	return &Config{
		Store:      &StoreCfg{Path: getEnvOrDefault("STORE_PATH", "embeddings/product_embeddings.bin")},
		Catalog:    catalog,
		Extractor:  extractor,
		Ml:         ml,
		Query:      query,
		Cache:      cache,
		Http:       http,
		Grpc:       loadGRPCConfig(),
		Redis:      redis,
		Minio:      minio,
		Kafka:      kafka,
		Db:         loadPGDBCfg(),
		Downloader: downloader,
	}, nil
}

func loadCatalogCfg(log logger.Logger) (*CatalogCfg, error) {
	const (
		defaultCSVPath    = "data/product_data.csv"
		defaultImagesDir  = "data/product_images"
		defaultExtensions = "jpg,jpeg,png,gif,webp"
	)

	workers, err := parseIntEnv("BUILD_WORKERS", runtime.NumCPU())
	if err != nil || workers < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid BUILD_WORKERS")
		return nil, e.Wrap("BUILD_WORKERS", e.ErrIncorrectEnvVariable)
	}

	return &CatalogCfg{
		CSVPath:         getEnvOrDefault("CATALOG_CSV", defaultCSVPath),
		ImagesDir:       getEnvOrDefault("IMAGES_DIR", defaultImagesDir),
		ImageExtensions: splitList(getEnvOrDefault("IMAGE_EXTENSIONS", defaultExtensions)),
		BuildWorkers:    workers,
	}, nil
}

func loadExtractorCfg(log logger.Logger) (*ExtractorCfg, error) {
	const (
		defaultInputSize = 224
		defaultPoolGrid  = 4
	)

	backend := strings.ToLower(getEnvOrDefault("MODEL_BACKEND", ModelBackendLocal))
	if backend != ModelBackendLocal && backend != ModelBackendRemote {
		log.Errorf(e.ErrUnsupportedBackend, "invalid MODEL_BACKEND %q", backend)
		return nil, e.Wrap("MODEL_BACKEND", e.ErrUnsupportedBackend)
	}

	inputSize, err := parseIntEnv("MODEL_INPUT_SIZE", defaultInputSize)
	if err != nil || inputSize < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid MODEL_INPUT_SIZE")
		return nil, e.Wrap("MODEL_INPUT_SIZE", e.ErrIncorrectEnvVariable)
	}

	grid, err := parseIntEnv("MODEL_POOL_GRID", defaultPoolGrid)
	if err != nil || grid < 1 || grid > inputSize {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid MODEL_POOL_GRID")
		return nil, e.Wrap("MODEL_POOL_GRID", e.ErrIncorrectEnvVariable)
	}

	maxConcurrent, err := parseIntEnv("EXTRACTOR_MAX_CONCURRENT", runtime.NumCPU())
	if err != nil || maxConcurrent < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid EXTRACTOR_MAX_CONCURRENT")
		return nil, e.Wrap("EXTRACTOR_MAX_CONCURRENT", e.ErrIncorrectEnvVariable)
	}

	return &ExtractorCfg{
		Backend:       backend,
		WeightsPath:   getEnv("MODEL_WEIGHTS_PATH"),
		InputSize:     inputSize,
		PoolGrid:      grid,
		MaxConcurrent: maxConcurrent,
	}, nil
}

func loadMLServiceCfg(log logger.Logger) (*MLServiceCfg, error) {
	const (
		defaultHost       = "ml-service"
		defaultPort       = "50051"
		defaultMaxRetries = 3
		defaultTimeout    = 5 * time.Second
	)

	maxRetries, err := parseIntEnv("ML_MAX_RETRIES", defaultMaxRetries)
	if err != nil || maxRetries < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid ML_MAX_RETRIES")
		return nil, e.Wrap("ML_MAX_RETRIES", e.ErrIncorrectEnvVariable)
	}

	timeout, err := parseDurationEnv("ML_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid ML_TIMEOUT")
		return nil, err
	}

	host := getEnvOrDefault("ML_HOST", defaultHost)
	port := getEnvOrDefault("ML_PORT", defaultPort)

	return &MLServiceCfg{
		Addr:       host + ":" + port,
		MaxRetries: maxRetries,
		Timeout:    timeout,
	}, nil
}

func loadQueryCfg(log logger.Logger) (*QueryCfg, error) {
	const (
		defaultTopK    = 1
		defaultMaxTopK = 50
		defaultTimeout = 10 * time.Second
	)

	topK, err := parseIntEnv("TOP_K_DEFAULT", defaultTopK)
	if err != nil || topK < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid TOP_K_DEFAULT")
		return nil, e.Wrap("TOP_K_DEFAULT", e.ErrIncorrectEnvVariable)
	}

	maxTopK, err := parseIntEnv("TOP_K_MAX", defaultMaxTopK)
	if err != nil || maxTopK < topK {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid TOP_K_MAX")
		return nil, e.Wrap("TOP_K_MAX", e.ErrIncorrectEnvVariable)
	}

	timeout, err := parseDurationEnv("QUERY_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid QUERY_TIMEOUT")
		return nil, err
	}

	return &QueryCfg{DefaultTopK: topK, MaxTopK: maxTopK, Timeout: timeout}, nil
}

func loadCacheCfg(log logger.Logger) (*CacheCfg, error) {
	const (
		defaultTTL  = 10 * time.Minute
		defaultSize = 1024
	)

	cacheType := strings.ToLower(getEnvOrDefault("CACHE_TYPE", CacheNone))
	switch cacheType {
	case CacheNone, CacheMemory, CacheRedis:
	default:
		log.Errorf(e.ErrUnsupportedBackend, "invalid CACHE_TYPE %q", cacheType)
		return nil, e.Wrap("CACHE_TYPE", e.ErrUnsupportedBackend)
	}

	ttl, err := parseDurationEnv("CACHE_TTL", defaultTTL)
	if err != nil {
		log.Errorf(err, "invalid CACHE_TTL")
		return nil, err
	}

	size, err := parseIntEnv("CACHE_SIZE", defaultSize)
	if err != nil || size < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid CACHE_SIZE")
		return nil, e.Wrap("CACHE_SIZE", e.ErrIncorrectEnvVariable)
	}

	return &CacheCfg{Type: cacheType, TTL: ttl, Size: size}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort           = "8080"
		defaultReadTimeout    = 5 * time.Second
		defaultWriteTimeout   = 15 * time.Second
		defaultIdleTimeout    = 60 * time.Second
		defaultMaxUploadBytes = 15 << 20
		defaultRateBurst      = 20
	)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	maxUpload, err := parseIntEnv("HTTP_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil || maxUpload < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid HTTP_MAX_UPLOAD_BYTES")
		return nil, e.Wrap("HTTP_MAX_UPLOAD_BYTES", e.ErrIncorrectEnvVariable)
	}

	rateLimit, err := parseFloatEnv("HTTP_RATE_LIMIT", 0)
	if err != nil || rateLimit < 0 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid HTTP_RATE_LIMIT")
		return nil, e.Wrap("HTTP_RATE_LIMIT", e.ErrIncorrectEnvVariable)
	}

	burst, err := parseIntEnv("HTTP_RATE_BURST", defaultRateBurst)
	if err != nil || burst < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid HTTP_RATE_BURST")
		return nil, e.Wrap("HTTP_RATE_BURST", e.ErrIncorrectEnvVariable)
	}

	return &HTTPConfig{
		Port:           getEnvOrDefault("HTTP_PORT", defaultPort),
		ReadTimeout:    readTimeout,
		WriteTimeout:   writeTimeout,
		IdleTimeout:    idleTimeout,
		MaxUploadBytes: int64(maxUpload),
		RateLimit:      rateLimit,
		RateBurst:      burst,
	}, nil
}

func loadGRPCConfig() *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault("GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	return &RedisCfg{
		Addr:        getEnv("REDIS_ADDR"),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     max(readTimeout, writeTimeout),
	}, nil
}

func loadMinIOCfg(log logger.Logger) (*MinIOCfg, error) {
	const (
		defaultUseSSL        = false
		defaultImagesPrefix  = "product_images"
		defaultStoreKey      = "embeddings/product_embeddings.bin"
		defaultUploadsLimits = 10
	)

	useSSL, err := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid MINIO_USE_SSL")
		return nil, err
	}

	limit, err := parseIntEnv("MINIO_UPLOAD_LIMIT", defaultUploadsLimits)
	if err != nil || limit < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid MINIO_UPLOAD_LIMIT")
		return nil, e.Wrap("MINIO_UPLOAD_LIMIT", e.ErrIncorrectEnvVariable)
	}

	return &MinIOCfg{
		MinioEndpoint:     getEnv("MINIO_ENDPOINT"),
		BucketName:        getEnv("BUCKET_NAME"),
		MinioRootUser:     getEnv("MINIO_ROOT_USER"),
		MinioRootPassword: getEnv("MINIO_ROOT_PASSWORD"),
		MinioUseSSL:       useSSL,
		ImagesPrefix:      strings.Trim(getEnvOrDefault("MINIO_IMAGES_PREFIX", defaultImagesPrefix), "/"),
		StoreObjectKey:    getEnvOrDefault("MINIO_STORE_KEY", defaultStoreKey),
		UploadImagesLimit: limit,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 1
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "catalog.store-built"
	)

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Brokers:           splitList(getEnv("KAFKA_BROKERS")),
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadPGDBCfg() *PGDBCfg {
	const (
		defaultHost       = "localhost"
		defaultPort       = "5432"
		defaultSSLMode    = "disable"
		defaultMigrations = "file://db/migrations"
	)

	return &PGDBCfg{
		Host:           getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:           getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:           getEnv("POSTGRES_USER"),
		Password:       getEnv("POSTGRES_PASSWORD"),
		DBName:         getEnv("POSTGRES_DB"),
		SSLMode:        getEnvOrDefault("SSL_MODE", defaultSSLMode),
		MigrationsPath: getEnvOrDefault("MIGRATIONS_PATH", defaultMigrations),
	}
}

func loadDownloaderCfg(log logger.Logger) (*DownloaderCfg, error) {
	const (
		defaultTimeout    = 10 * time.Second
		defaultMaxRetries = 3
		defaultWorkers    = 4
		defaultRate       = 5.0
		defaultMaxBytes   = 20 << 20
	)

	timeout, err := parseDurationEnv("DOWNLOAD_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_TIMEOUT")
		return nil, err
	}

	retries, err := parseIntEnv("DOWNLOAD_MAX_RETRIES", defaultMaxRetries)
	if err != nil || retries < 0 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid DOWNLOAD_MAX_RETRIES")
		return nil, e.Wrap("DOWNLOAD_MAX_RETRIES", e.ErrIncorrectEnvVariable)
	}

	workers, err := parseIntEnv("DOWNLOAD_WORKERS", defaultWorkers)
	if err != nil || workers < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid DOWNLOAD_WORKERS")
		return nil, e.Wrap("DOWNLOAD_WORKERS", e.ErrIncorrectEnvVariable)
	}

	rate, err := parseFloatEnv("DOWNLOAD_RATE", defaultRate)
	if err != nil || rate < 0 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid DOWNLOAD_RATE")
		return nil, e.Wrap("DOWNLOAD_RATE", e.ErrIncorrectEnvVariable)
	}

	maxBytes, err := parseIntEnv("DOWNLOAD_MAX_BYTES", defaultMaxBytes)
	if err != nil || maxBytes < 1 {
		log.Errorf(e.ErrIncorrectEnvVariable, "invalid DOWNLOAD_MAX_BYTES")
		return nil, e.Wrap("DOWNLOAD_MAX_BYTES", e.ErrIncorrectEnvVariable)
	}

	mirror, err := strconv.ParseBool(getEnvOrDefault("DOWNLOAD_MIRROR_S3", "false"))
	if err != nil {
		log.Errorf(err, "invalid DOWNLOAD_MIRROR_S3")
		return nil, err
	}

	return &DownloaderCfg{
		Timeout:      timeout,
		MaxRetries:   retries,
		Workers:      workers,
		RatePerSec:   rate,
		MaxFileBytes: int64(maxBytes),
		MirrorToS3:   mirror,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return f, nil
}

// splitList разбирает список через запятую, отбрасывая пустые элементы.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
