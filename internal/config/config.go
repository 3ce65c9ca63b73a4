// Package config handles configuration loading and validation for docrag.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrInvalidConfig is returned when the loaded configuration fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the complete docrag configuration.
type Config struct {
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	LLM        LLMConfig        `mapstructure:"llm"`
	PDF        PDFConfig        `mapstructure:"pdf"`
	Watch      WatchConfig      `mapstructure:"watch"`
	Ignore     []string         `mapstructure:"ignore"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider          string            `mapstructure:"provider" validate:"required,oneof=ollama openai gemini hash"`
	Ollama            OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI            OpenAIEmbedConfig `mapstructure:"openai"`
	Gemini            GeminiEmbedConfig `mapstructure:"gemini"`
	Hash              HashEmbedConfig   `mapstructure:"hash"`
	BatchSize         int               `mapstructure:"batch_size" validate:"gte=1"`
	RequestsPerSecond float64           `mapstructure:"requests_per_second" validate:"gte=0"`
	MaxRetries        int               `mapstructure:"max_retries" validate:"gte=0"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions" validate:"gte=0"`
}

// GeminiEmbedConfig configures Gemini embeddings.
type GeminiEmbedConfig struct {
	Model      string `mapstructure:"model"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions" validate:"gte=0"`
}

// HashEmbedConfig configures the local feature-hashing embedder.
type HashEmbedConfig struct {
	Dimensions int `mapstructure:"dimensions" validate:"gte=0"`
}

// DatabaseConfig configures the document store.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=0"`
}

// ChunkingConfig configures how extracted text is split.
type ChunkingConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" validate:"gt=0,gtfield=ChunkOverlap"`
	ChunkOverlap int `mapstructure:"chunk_overlap" validate:"gte=0"`
}

// RetrievalConfig configures similarity search.
type RetrievalConfig struct {
	TopK     int     `mapstructure:"top_k" validate:"gte=1"`
	MinScore float64 `mapstructure:"min_score" validate:"gte=-1,lte=1"`
}

// LLMConfig configures the LLM service for Q&A.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider" validate:"required,oneof=ollama openai anthropic gemini"`
	Ollama      OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI      OpenAILLMConfig `mapstructure:"openai"`
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
	Gemini      GeminiLLMConfig `mapstructure:"gemini"`
	Temperature float64         `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int             `mapstructure:"max_tokens" validate:"gte=1"`
}

// OllamaLLMConfig configures Ollama LLM.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures OpenAI LLM.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// AnthropicConfig configures Anthropic LLM.
type AnthropicConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// GeminiLLMConfig configures Gemini LLM.
type GeminiLLMConfig struct {
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// PDFConfig configures text extraction.
type PDFConfig struct {
	Extractor     string `mapstructure:"extractor" validate:"required,oneof=auto pdfcpu pdftotext"`
	PDFToTextPath string `mapstructure:"pdftotext_path"`
	MaxFileSize   int64  `mapstructure:"max_file_size" validate:"gt=0"`
	MaxFileCount  int    `mapstructure:"max_file_count" validate:"gt=0"`
}

// WatchConfig configures the upload directory watcher.
type WatchConfig struct {
	Dir      string        `mapstructure:"dir"`
	Debounce time.Duration `mapstructure:"debounce" validate:"gte=0"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
			Gemini: GeminiEmbedConfig{
				Model: DefaultGeminiEmbedModel,
			},
			Hash: HashEmbedConfig{
				Dimensions: DefaultHashDimensions,
			},
			BatchSize:  DefaultEmbedBatchSize,
			MaxRetries: DefaultMaxRetries,
		},
		Database: DatabaseConfig{
			Driver:   DefaultDatabaseDriver,
			Path:     DefaultDatabasePath(),
			MaxConns: DefaultMaxConns,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
		},
		Retrieval: RetrievalConfig{
			TopK:     DefaultTopK,
			MinScore: DefaultMinScore,
		},
		LLM: LLMConfig{
			Provider: DefaultLLMProvider,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
			Anthropic: AnthropicConfig{
				Model: DefaultAnthropicModel,
			},
			Gemini: GeminiLLMConfig{
				Model: DefaultGeminiLLMModel,
			},
			Temperature: DefaultTemperature,
			MaxTokens:   DefaultMaxTokens,
		},
		PDF: PDFConfig{
			Extractor:     DefaultPDFExtractor,
			PDFToTextPath: DefaultPDFToTextPath,
			MaxFileSize:   DefaultMaxFileSize,
			MaxFileCount:  DefaultMaxFileCount,
		},
		Watch: WatchConfig{
			Dir:      DefaultWatchDir,
			Debounce: DefaultWatchDebounce,
		},
		Ignore: DefaultIgnorePatterns(),
	}
}

// Load reads configuration from a .env file, the config file and
// environment variables, then validates the result.
func Load(configFile string) error {
	// A missing .env is normal; existing environment variables win.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Debug("Could not read .env file", "error", err)
	}

	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Search for config in standard locations
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")

		// Also check for .docragrc.yaml in current directory and parents
		if rcPath := findRCFile(); rcPath != "" {
			viper.SetConfigFile(rcPath)
		}
	}

	// Environment variables
	viper.SetEnvPrefix("DOCRAG")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	// Load API keys and database settings from environment if not in config
	loadEnvFallbacks(loaded)

	if err := Validate(loaded); err != nil {
		return err
	}

	cfg = loaded
	return nil
}

// Validate checks value ranges and provider names.
func Validate(c *Config) error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s=%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("%w: database.dsn is required for the postgres driver", ErrInvalidConfig)
	}
	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	d := DefaultConfig()

	// Embeddings
	viper.SetDefault("embeddings.provider", d.Embeddings.Provider)
	viper.SetDefault("embeddings.ollama.url", d.Embeddings.Ollama.URL)
	viper.SetDefault("embeddings.ollama.model", d.Embeddings.Ollama.Model)
	viper.SetDefault("embeddings.openai.model", d.Embeddings.OpenAI.Model)
	viper.SetDefault("embeddings.openai.base_url", "")
	viper.SetDefault("embeddings.openai.api_key", "")
	viper.SetDefault("embeddings.openai.dimensions", 0)
	viper.SetDefault("embeddings.gemini.model", d.Embeddings.Gemini.Model)
	viper.SetDefault("embeddings.gemini.api_key", "")
	viper.SetDefault("embeddings.gemini.dimensions", 0)
	viper.SetDefault("embeddings.hash.dimensions", d.Embeddings.Hash.Dimensions)
	viper.SetDefault("embeddings.batch_size", d.Embeddings.BatchSize)
	viper.SetDefault("embeddings.requests_per_second", 0)
	viper.SetDefault("embeddings.max_retries", d.Embeddings.MaxRetries)

	// Database
	viper.SetDefault("database.driver", d.Database.Driver)
	viper.SetDefault("database.path", d.Database.Path)
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_conns", d.Database.MaxConns)

	// Chunking
	viper.SetDefault("chunking.chunk_size", d.Chunking.ChunkSize)
	viper.SetDefault("chunking.chunk_overlap", d.Chunking.ChunkOverlap)

	// Retrieval
	viper.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	viper.SetDefault("retrieval.min_score", d.Retrieval.MinScore)

	// LLM
	viper.SetDefault("llm.provider", d.LLM.Provider)
	viper.SetDefault("llm.ollama.url", d.LLM.Ollama.URL)
	viper.SetDefault("llm.ollama.model", d.LLM.Ollama.Model)
	viper.SetDefault("llm.openai.model", d.LLM.OpenAI.Model)
	viper.SetDefault("llm.openai.base_url", "")
	viper.SetDefault("llm.openai.api_key", "")
	viper.SetDefault("llm.anthropic.model", d.LLM.Anthropic.Model)
	viper.SetDefault("llm.anthropic.api_key", "")
	viper.SetDefault("llm.gemini.model", d.LLM.Gemini.Model)
	viper.SetDefault("llm.gemini.api_key", "")
	viper.SetDefault("llm.temperature", d.LLM.Temperature)
	viper.SetDefault("llm.max_tokens", d.LLM.MaxTokens)

	// PDF
	viper.SetDefault("pdf.extractor", d.PDF.Extractor)
	viper.SetDefault("pdf.pdftotext_path", d.PDF.PDFToTextPath)
	viper.SetDefault("pdf.max_file_size", d.PDF.MaxFileSize)
	viper.SetDefault("pdf.max_file_count", d.PDF.MaxFileCount)

	// Watch
	viper.SetDefault("watch.dir", d.Watch.Dir)
	viper.SetDefault("watch.debounce", d.Watch.Debounce)

	// Ignore patterns
	viper.SetDefault("ignore", d.Ignore)
}

// findRCFile searches for .docragrc.yaml starting from current directory.
func findRCFile() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		rcPath := filepath.Join(dir, ".docragrc.yaml")
		if _, err := os.Stat(rcPath); err == nil {
			return rcPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// loadEnvFallbacks fills API keys and the Postgres DSN from conventional
// environment variables when the config leaves them empty.
func loadEnvFallbacks(c *Config) {
	openaiKey := os.Getenv("OPENAI_API_KEY")
	if c.Embeddings.OpenAI.APIKey == "" {
		c.Embeddings.OpenAI.APIKey = openaiKey
	}
	if c.LLM.OpenAI.APIKey == "" {
		c.LLM.OpenAI.APIKey = openaiKey
	}

	if c.LLM.Anthropic.APIKey == "" {
		c.LLM.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = os.Getenv("GOOGLE_API_KEY")
	}
	if c.Embeddings.Gemini.APIKey == "" {
		c.Embeddings.Gemini.APIKey = geminiKey
	}
	if c.LLM.Gemini.APIKey == "" {
		c.LLM.Gemini.APIKey = geminiKey
	}

	if c.Database.DSN == "" {
		c.Database.DSN = PostgresDSNFromEnv()
	}
}

// PostgresDSNFromEnv builds a connection URL from DB_NAME, DB_USER,
// DB_PASSWORD, DB_HOST and DB_PORT. It returns "" when DB_NAME is unset.
func PostgresDSNFromEnv() string {
	name := os.Getenv("DB_NAME")
	if name == "" {
		return ""
	}

	host := os.Getenv("DB_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("DB_PORT")
	if port == "" {
		port = "5432"
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, port),
		Path:   "/" + name,
	}
	if user := os.Getenv("DB_USER"); user != "" {
		if pw, ok := os.LookupEnv("DB_PASSWORD"); ok {
			u.User = url.UserPassword(user, pw)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}
