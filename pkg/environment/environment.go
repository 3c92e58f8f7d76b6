package environment

import (
	"path/filepath"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/spf13/afero"
)

const EnvFileName = ".env"

// Environment holds gateway configuration loaded from the OS or defaults.
type Environment struct {
	Host     string `env:"FILEVAULT_HOST,default=127.0.0.1"`
	Port     string `env:"FILEVAULT_PORT,default=5000"`
	DataDir  string `env:"FILEVAULT_DATA_DIR,default=.filevault"`
	Catalog  string `env:"FILEVAULT_DB,default="`
	EnvFile  string
	Home     string `env:"HOME"`
	Pwd      string `env:"PWD"`

	// Object store backend: "minio" or "local".
	StoreBackend   string `env:"STORE_BACKEND,default=local"`
	MinioEndpoint  string `env:"MINIO_ENDPOINT,default=localhost:9000"`
	MinioAccessKey string `env:"MINIO_ACCESS_KEY,default=minioadmin"`
	MinioSecretKey string `env:"MINIO_SECRET_KEY,default=minioadmin"`
	MinioBucket    string `env:"MINIO_BUCKET,default=uploads"`
	MinioUseSSL    string `env:"MINIO_USE_SSL,default=0"`

	// Classifier settings. An empty model disables the LLM tier and the
	// heuristic mapping is used on its own.
	ClassifierModel      string `env:"CLASSIFIER_MODEL,default="`
	ClassifierTimeoutSec int    `env:"CLASSIFIER_TIMEOUT,default=10"`

	// Identity settings. AuthTokens is a comma-separated list of
	// token:owner pairs for static verification; IntrospectURL switches to
	// remote token introspection when set.
	AuthTokens    string `env:"AUTH_TOKENS,default="`
	IntrospectURL string `env:"AUTH_INTROSPECT_URL,default="`

	PresignTTLSec int    `env:"PRESIGN_TTL,default=3600"`
	PresignSecret string `env:"PRESIGN_SECRET,default=filevault-dev-secret"`

	// PublicURL is the external address presigned local-store links are
	// built against. Defaults to the listen address.
	PublicURL string `env:"FILEVAULT_PUBLIC_URL,default="`

	Extras env.EnvSet
}

// checkEnvFile checks if a .env file exists in the given directory.
func checkEnvFile(fs afero.Fs, baseDir string) (string, error) {
	envFile := filepath.Join(baseDir, EnvFileName)
	exists, err := afero.Exists(fs, envFile)
	if err == nil && exists {
		return envFile, nil
	}
	return "", err
}

// findEnvFile searches for a .env file in both the Pwd and Home directories.
func findEnvFile(fs afero.Fs, pwd, home string) string {
	if envFile, _ := checkEnvFile(fs, pwd); envFile != "" {
		return envFile
	}
	if envFile, _ := checkEnvFile(fs, home); envFile != "" {
		return envFile
	}
	return ""
}

// NewEnvironment initializes and returns a new Environment based on provided
// or default settings.
func NewEnvironment(fs afero.Fs, environ *Environment) (*Environment, error) {
	if environ != nil {
		// An explicitly provided environment wins over process env vars;
		// only derived fields are filled in.
		environ.EnvFile = findEnvFile(fs, environ.Pwd, environ.Home)
		if environ.Catalog == "" {
			environ.Catalog = filepath.Join(environ.DataDir, "catalog.db")
		}
		return environ, nil
	}

	environment := &Environment{}
	extras, err := env.UnmarshalFromEnviron(environment)
	if err != nil {
		return nil, err
	}
	environment.Extras = extras

	environment.EnvFile = findEnvFile(fs, environment.Pwd, environment.Home)
	if environment.Catalog == "" {
		environment.Catalog = filepath.Join(environment.DataDir, "catalog.db")
	}

	return environment, nil
}

// ListenAddr returns the host:port pair the gateway binds to.
func (e *Environment) ListenAddr() string {
	return e.Host + ":" + e.Port
}

// BaseURL returns the address presigned links are built against.
func (e *Environment) BaseURL() string {
	if e.PublicURL != "" {
		return e.PublicURL
	}
	return "http://" + e.ListenAddr()
}

// ClassifierTimeout returns the classifier call bound as a duration.
func (e *Environment) ClassifierTimeout() time.Duration {
	return time.Duration(e.ClassifierTimeoutSec) * time.Second
}

// PresignTTL returns the presigned URL lifetime as a duration.
func (e *Environment) PresignTTL() time.Duration {
	return time.Duration(e.PresignTTLSec) * time.Second
}
